package webview

import "sync"

// Basic is the lighter WebView implementation: no history traversal, no state
// save/restore, no zoom. It carries just enough engine surface for windows
// that never need restoration, the same capability split the app ships in its
// reduced build variant.
type Basic struct {
	mu        sync.Mutex
	client    Client
	url       string
	userAgent string
	scripts   []string
	destroyed bool
}

// NewBasic creates a lighter webview.
func NewBasic(client Client) *Basic {
	return &Basic{client: client, userAgent: "Mozilla/5.0 (Linux) webshell-lite"}
}

// SetClient replaces the navigation client.
func (b *Basic) SetClient(client Client) {
	b.mu.Lock()
	b.client = client
	b.mu.Unlock()
}

// LoadURL implements WebView.
func (b *Basic) LoadURL(url string) {
	if url == "" || b.IsDestroyed() {
		return
	}
	if url == OfflinePageURLRaw {
		url = OfflinePageURL
	}
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client == nil || !client.ShouldOverrideURLLoading(b, url, false, false) {
		b.LoadURLDirect(url)
	}
}

// LoadURLDirect implements WebView.
func (b *Basic) LoadURLDirect(url string) {
	b.mu.Lock()
	if !b.destroyed {
		b.url = url
	}
	b.mu.Unlock()
}

// Reload implements WebView.
func (b *Basic) Reload() {
	b.mu.Lock()
	url := b.url
	client := b.client
	b.mu.Unlock()
	if client == nil || !client.ShouldOverrideURLLoading(b, url, true, false) {
		b.LoadURLDirect(url)
	}
}

// StopLoading implements WebView.
func (b *Basic) StopLoading() {}

// GoBack implements WebView.
func (b *Basic) GoBack() {}

// GoForward implements WebView.
func (b *Basic) GoForward() {}

// CanGoBack implements WebView.
func (b *Basic) CanGoBack() bool { return false }

// CanGoForward implements WebView.
func (b *Basic) CanGoForward() bool { return false }

// URL implements WebView.
func (b *Basic) URL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.url
}

// DefaultUserAgent implements WebView.
func (b *Basic) DefaultUserAgent() string { return b.userAgent }

// RunJavaScript implements WebView.
func (b *Basic) RunJavaScript(js string) {
	b.mu.Lock()
	if !b.destroyed {
		b.scripts = append(b.scripts, js)
	}
	b.mu.Unlock()
}

// RunJavaScriptWithResult implements WebView.
func (b *Basic) RunJavaScriptWithResult(js string, cb func(result string, err error)) {
	b.RunJavaScript(js)
	if cb != nil {
		cb("1", nil)
	}
}

// SaveState implements WebView.
func (b *Basic) SaveState() (StateBlob, error) { return nil, ErrUnsupported }

// RestoreState implements WebView.
func (b *Basic) RestoreState(StateBlob) error { return ErrUnsupported }

// ScrollX implements WebView.
func (b *Basic) ScrollX() int { return 0 }

// ScrollY implements WebView.
func (b *Basic) ScrollY() int { return 0 }

// ScrollTo implements WebView.
func (b *Basic) ScrollTo(int, int) {}

// SetZoom implements WebView.
func (b *Basic) SetZoom(float64) {}

// Zoom implements WebView.
func (b *Basic) Zoom() float64 { return 1.0 }

// Destroy implements WebView.
func (b *Basic) Destroy() {
	b.mu.Lock()
	b.destroyed = true
	b.client = nil
	b.mu.Unlock()
}

// IsDestroyed implements WebView.
func (b *Basic) IsDestroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}
