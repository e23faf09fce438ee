// Package webview defines the capability surface the navigation core drives,
// with interchangeable implementations selected at composition time.
package webview

import "errors"

const (
	// AssetURLPrefix marks bundled-asset URLs that bypass navigation decisions.
	AssetURLPrefix = "file:///android_asset/"
	// OfflinePageURL is the bundled fallback page shown on connectivity loss.
	OfflinePageURL = "file:///android_asset/offline.html"
	// OfflinePageURLRaw is the short alias accepted by LoadURL.
	OfflinePageURLRaw = "file:///offline.html"
)

// ErrUnsupported is returned by capability methods a lighter implementation
// does not provide.
var ErrUnsupported = errors.New("webview: operation not supported")

// StateBlob is an opaque serialized webview state (history plus position).
type StateBlob []byte

// SSLError classifies a certificate failure reported by the engine.
type SSLError int

const (
	SSLNotYetValid SSLError = iota
	SSLExpired
	SSLIDMismatch
	SSLUntrusted
	SSLDateInvalid
	SSLInvalid
)

// Client receives navigation callbacks from a WebView. LoadURL, Reload and
// GoBack re-enter ShouldOverrideURLLoading before the engine proceeds, the
// same protocol the platform webview client uses.
type Client interface {
	ShouldOverrideURLLoading(view WebView, url string, isReload, isRedirect bool) bool
	OnPageStarted(url string)
	OnPageFinished(view WebView, url string)
	OnPageCommitVisible(url string)
	DoUpdateVisitedHistory(view WebView, url string, isReload bool)
	OnReceivedError(view WebView, errorCode int, description, failingURL string)
	// OnReceivedSSLError reports a certificate failure on the main
	// document; the load is already cancelled when it fires.
	OnReceivedSSLError(view WebView, sslError SSLError, failingURL string)
	// OnFormResubmission asks whether a POST may be resent on a history
	// navigation. Exactly one of the two replies must be invoked.
	OnFormResubmission(view WebView, dontResend, resend func())
}

// ClientSetter is implemented by engines whose navigation client can be
// replaced after construction, e.g. when a pooled view changes windows.
type ClientSetter interface {
	SetClient(client Client)
}

// WebView is the capability interface over a browser engine instance.
type WebView interface {
	// LoadURL routes the URL through the client's navigation decision first.
	LoadURL(url string)
	// LoadURLDirect hands the URL straight to the engine, skipping the
	// navigation decision and its html-intercept side effects.
	LoadURLDirect(url string)
	Reload()
	StopLoading()
	GoBack()
	GoForward()
	CanGoBack() bool
	CanGoForward() bool
	URL() string
	DefaultUserAgent() string

	// RunJavaScript is fire-and-forget script evaluation: a no-op once the
	// owning view has been destroyed.
	RunJavaScript(js string)
	// RunJavaScriptWithResult evaluates js and delivers the string result.
	RunJavaScriptWithResult(js string, cb func(result string, err error))

	SaveState() (StateBlob, error)
	RestoreState(state StateBlob) error

	ScrollX() int
	ScrollY() int
	ScrollTo(x, y int)

	SetZoom(factor float64)
	Zoom() float64

	Destroy()
	IsDestroyed() bool
}
