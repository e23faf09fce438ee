package webview

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// CustomCSSElementID identifies the injected style element so repeat
// injections can detect an earlier run.
const CustomCSSElementID = "median-custom-css"

// Injector builds the JavaScript snippets run against a page after load.
// Payloads travel base64-encoded so arbitrary CSS and script bodies survive
// embedding in a script literal.
type Injector struct {
	customCSS      string
	customJS       string
	bridgeLibrary  string
	blobDownloader string
	viewportWidth  int
}

// InjectorOption configures an Injector.
type InjectorOption func(*Injector)

// WithCustomCSS sets the stylesheet injected into every page.
func WithCustomCSS(css string) InjectorOption {
	return func(i *Injector) { i.customCSS = css }
}

// WithCustomJS sets the script injected into every page.
func WithCustomJS(js string) InjectorOption {
	return func(i *Injector) { i.customJS = js }
}

// WithBridgeLibrary sets the bridge runtime injected into trusted pages.
func WithBridgeLibrary(js string) InjectorOption {
	return func(i *Injector) { i.bridgeLibrary = js }
}

// WithViewportWidth forces a fixed viewport width on every page.
func WithViewportWidth(w int) InjectorOption {
	return func(i *Injector) { i.viewportWidth = w }
}

// WithBlobDownloader sets the script that serializes blob: URLs for the
// shell when a download starts on one.
func WithBlobDownloader(js string) InjectorOption {
	return func(i *Injector) { i.blobDownloader = js }
}

// NewInjector creates an Injector with the given options.
func NewInjector(opts ...InjectorOption) *Injector {
	i := &Injector{}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// HasCustomCSS reports whether a stylesheet is configured.
func (i *Injector) HasCustomCSS() bool { return i.customCSS != "" }

// HasCustomJS reports whether a script is configured.
func (i *Injector) HasCustomJS() bool { return i.customJS != "" }

// HasBridgeLibrary reports whether the bridge runtime is configured.
func (i *Injector) HasBridgeLibrary() bool { return i.bridgeLibrary != "" }

// HasViewportWidth reports whether a forced viewport width is configured.
func (i *Injector) HasViewportWidth() bool { return i.viewportWidth > 0 }

// HasBlobDownloader reports whether the blob downloader is configured.
func (i *Injector) HasBlobDownloader() bool { return i.blobDownloader != "" }

// CustomCSSScript returns a script that installs the configured stylesheet
// under a well-known element id. Evaluating it yields "success" when the
// element was created, so callers can verify the injection took.
func (i *Injector) CustomCSSScript() string {
	encoded := base64.StdEncoding.EncodeToString([]byte(i.customCSS))
	return fmt.Sprintf(`(function() {
  if (document.getElementById(%q)) return "success";
  var style = document.createElement("style");
  style.id = %q;
  style.textContent = atob(%q);
  document.head.appendChild(style);
  return document.getElementById(%q) ? "success" : "failure";
})()`, CustomCSSElementID, CustomCSSElementID, encoded, CustomCSSElementID)
}

// CustomJSScript returns a script that decodes and evaluates the configured
// script body in page scope.
func (i *Injector) CustomJSScript() string {
	return wrapBase64Eval(i.customJS)
}

// BridgeLibraryScript returns a script that evaluates the bridge runtime.
func (i *Injector) BridgeLibraryScript() string {
	return wrapBase64Eval(i.bridgeLibrary)
}

// BlobDownloadScript returns a script that installs the blob downloader and
// points it at blobURL.
func (i *Injector) BlobDownloadScript(blobURL string) string {
	payload, _ := json.Marshal(blobURL)
	return wrapBase64Eval(i.blobDownloader) + fmt.Sprintf("\nwebshellDownloadBlob(%s);", string(payload))
}

// ViewportWidthScript returns a script that rewrites the page's viewport meta
// tag to a fixed width.
func (i *Injector) ViewportWidthScript() string {
	return fmt.Sprintf(`(function() {
  var meta = document.querySelector("meta[name=viewport]");
  if (!meta) {
    meta = document.createElement("meta");
    meta.name = "viewport";
    document.head.appendChild(meta);
  }
  meta.content = "width=%d, user-scalable=no";
})()`, i.viewportWidth)
}

// CallbackScript builds a script invoking the named page function with data,
// guarding against the function being absent. Used to deliver device info and
// bridge results to pages that register a handler.
func CallbackScript(name string, data any) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode callback payload: %w", err)
	}
	return fmt.Sprintf(`if (typeof %s === 'function') { %s(%s); }`, name, name, string(payload)), nil
}

// MultiCallbackScript invokes each named page function with the same payload.
func MultiCallbackScript(names []string, data any) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode callback payload: %w", err)
	}
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "if (typeof %s === 'function') { %s(%s); }\n", name, name, string(payload))
	}
	return b.String(), nil
}

func wrapBase64Eval(body string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(body))
	return fmt.Sprintf(`(function() { eval(atob(%q)); })()`, encoded)
}
