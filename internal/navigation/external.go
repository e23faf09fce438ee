package navigation

import (
	"errors"
	"net/url"
	"strings"
)

// ErrNoHandler is returned by Shell implementations when no installed
// application can handle a URL.
var ErrNoHandler = errors.New("no handler for url")

// Shell routes URLs out of the webview: to the system browser, to an
// in-app browser surface, or to whatever application owns a custom scheme.
type Shell interface {
	// OpenExternalBrowser opens u in the system browser. forceDefault
	// pins the system default browser, used for app link domains where a
	// generic open would loop straight back into the app.
	OpenExternalBrowser(u *url.URL, forceDefault bool) error
	// OpenAppBrowser opens u in the in-app browser surface.
	OpenAppBrowser(u *url.URL) error
	// OpenCustomScheme hands u to the application registered for its
	// scheme, returning ErrNoHandler when there is none.
	OpenCustomScheme(u *url.URL) error
}

// IntentURL is a parsed intent: URL, the Android deep-link envelope some
// sites emit. Scheme plus host/path reconstruct the inner URL; FallbackURL is
// the page to load when no application handles it.
type IntentURL struct {
	Inner       *url.URL
	FallbackURL string
}

// ParseIntentURL decodes an intent://host/path#Intent;...;end URL. The
// fragment carries key=value fields split by semicolons, among them scheme
// and S.browser_fallback_url.
func ParseIntentURL(raw string) (*IntentURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "intent" {
		return nil, errors.New("not an intent url")
	}

	fragment := strings.TrimSuffix(strings.TrimPrefix(u.Fragment, "Intent;"), ";end")
	scheme := ""
	fallback := ""
	for _, field := range strings.Split(fragment, ";") {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch k {
		case "scheme":
			scheme = v
		case "S.browser_fallback_url":
			if decoded, err := url.QueryUnescape(v); err == nil {
				fallback = decoded
			} else {
				fallback = v
			}
		}
	}
	if scheme == "" {
		return &IntentURL{FallbackURL: fallback}, nil
	}

	inner := *u
	inner.Scheme = scheme
	inner.Fragment = ""
	inner.RawFragment = ""
	return &IntentURL{Inner: &inner, FallbackURL: fallback}, nil
}
