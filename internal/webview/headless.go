package webview

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/morntool/webshell/internal/dispatch"
)

// Headless is the full WebView implementation: an in-process engine stand-in
// that keeps real back/forward history, state save/restore, scroll and zoom,
// and drives client load callbacks over the dispatch queue.
type Headless struct {
	mu sync.Mutex

	client Client
	queue  dispatch.Queue

	history []string
	index   int // -1 when empty

	defaultUserAgent string
	scripts          []string
	jsResult         func(js string) (string, error)
	interceptFn      InterceptFunc
	offlinePage      string
	pageHTML         string

	scrollX, scrollY int
	zoom             float64

	urlToReloadFromOfflinePage string

	autoComplete bool
	loading      bool
	destroyed    bool
}

// HeadlessOption configures a Headless view.
type HeadlessOption func(*Headless)

// WithAutoComplete makes every engine load synthesize the full page lifecycle
// (started, visited history, finished) on the dispatch queue.
func WithAutoComplete() HeadlessOption {
	return func(h *Headless) { h.autoComplete = true }
}

// WithUserAgent sets the engine's default user agent string.
func WithUserAgent(ua string) HeadlessOption {
	return func(h *Headless) { h.defaultUserAgent = ua }
}

// WithJSResultFunc installs the hook answering RunJavaScriptWithResult.
func WithJSResultFunc(fn func(js string) (string, error)) HeadlessOption {
	return func(h *Headless) { h.jsResult = fn }
}

// InterceptFunc is the pre-render hook consulted on every engine load: when
// it claims the URL the returned document is rendered instead of a native
// fetch. noCache forces revalidation, set on reloads.
type InterceptFunc func(url string, noCache bool) (html string, ok bool)

// WithInterceptFunc installs the pre-render intercept hook.
func WithInterceptFunc(fn InterceptFunc) HeadlessOption {
	return func(h *Headless) { h.interceptFn = fn }
}

// WithOfflinePage sets the document rendered for the bundled offline URL.
func WithOfflinePage(html string) HeadlessOption {
	return func(h *Headless) { h.offlinePage = html }
}

// NewHeadless creates a full headless webview.
func NewHeadless(client Client, queue dispatch.Queue, opts ...HeadlessOption) *Headless {
	h := &Headless{
		client:           client,
		queue:            queue,
		index:            -1,
		zoom:             1.0,
		defaultUserAgent: "Mozilla/5.0 (Linux) webshell",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetClient replaces the navigation client, used when a pooled view is handed
// to a different window.
func (h *Headless) SetClient(client Client) {
	h.mu.Lock()
	h.client = client
	h.mu.Unlock()
}

// LoadURL implements WebView. The URL passes through the client's navigation
// decision unless it is a javascript: URL.
func (h *Headless) LoadURL(url string) {
	if url == "" || h.IsDestroyed() {
		return
	}
	if url == OfflinePageURLRaw {
		url = OfflinePageURL
	}

	// javascript: URLs go straight to the engine so resulting location
	// changes land in the native history stack.
	if strings.HasPrefix(url, "javascript:") {
		h.RunJavaScript(strings.TrimPrefix(url, "javascript:"))
		return
	}

	h.mu.Lock()
	client := h.client
	h.mu.Unlock()

	if client == nil || !client.ShouldOverrideURLLoading(h, url, false, false) {
		h.engineLoad(url, false)
	}
}

// LoadURLDirect implements WebView.
func (h *Headless) LoadURLDirect(url string) {
	if url == "" || h.IsDestroyed() {
		return
	}
	h.engineLoad(url, false)
}

// Reload implements WebView.
func (h *Headless) Reload() {
	if h.IsDestroyed() {
		return
	}
	h.mu.Lock()
	client := h.client
	url := h.currentLocked()
	h.mu.Unlock()

	if client == nil || !client.ShouldOverrideURLLoading(h, url, true, false) {
		h.engineLoad(url, true)
	}
}

// StopLoading implements WebView.
func (h *Headless) StopLoading() {
	h.mu.Lock()
	h.loading = false
	h.mu.Unlock()
}

// GoBack steps back past any offline-page history entries, re-announcing the
// target to the navigation client so the html interceptor learns about it.
func (h *Headless) GoBack() {
	h.mu.Lock()
	target := ""
	steps := 0
	for i := h.index - 1; i >= 0; i-- {
		if h.history[i] != OfflinePageURL {
			target = h.history[i]
			steps = i - h.index
			break
		}
	}
	client := h.client
	h.mu.Unlock()

	if target == "" {
		return
	}
	if client != nil && client.ShouldOverrideURLLoading(h, target, false, false) {
		return
	}
	h.goBackOrForward(steps)
}

// GoForward steps forward, skipping over an interposed offline page.
func (h *Headless) GoForward() {
	h.mu.Lock()
	next := ""
	if h.index+1 < len(h.history) {
		next = h.history[h.index+1]
	}
	hasAfter := h.index+2 < len(h.history)
	h.mu.Unlock()

	if next == OfflinePageURL {
		if hasAfter {
			h.goBackOrForward(2)
		}
		return
	}
	if next != "" {
		h.goBackOrForward(1)
	}
}

// CanGoBack implements WebView.
func (h *Headless) CanGoBack() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := h.index - 1; i >= 0; i-- {
		if h.history[i] != OfflinePageURL {
			return true
		}
	}
	return false
}

// CanGoForward reports whether a forward entry exists, looking through an
// interposed offline page.
func (h *Headless) CanGoForward() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index+1 >= len(h.history) {
		return false
	}
	if h.history[h.index+1] == OfflinePageURL {
		return h.index+2 < len(h.history)
	}
	return true
}

// URL implements WebView.
func (h *Headless) URL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentLocked()
}

// DefaultUserAgent implements WebView.
func (h *Headless) DefaultUserAgent() string { return h.defaultUserAgent }

// RunJavaScript implements WebView.
func (h *Headless) RunJavaScript(js string) {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	h.scripts = append(h.scripts, js)
	h.mu.Unlock()
}

// RunJavaScriptWithResult implements WebView.
func (h *Headless) RunJavaScriptWithResult(js string, cb func(result string, err error)) {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	h.scripts = append(h.scripts, js)
	fn := h.jsResult
	h.mu.Unlock()

	result := "1"
	var err error
	if fn != nil {
		result, err = fn(js)
	}
	if cb != nil {
		cb(result, err)
	}
}

// PageHTML returns the document rendered for the current page: the offline
// page, an intercepted fetch's normalized HTML, or empty for a native load.
func (h *Headless) PageHTML() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pageHTML
}

// ExecutedScripts returns a copy of every script evaluated so far.
func (h *Headless) ExecutedScripts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.scripts))
	copy(out, h.scripts)
	return out
}

type headlessState struct {
	History []string `json:"history"`
	Index   int      `json:"index"`
	ScrollX int      `json:"scrollX"`
	ScrollY int      `json:"scrollY"`
	Zoom    float64  `json:"zoom"`
}

// SaveState implements WebView.
func (h *Headless) SaveState() (StateBlob, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return json.Marshal(headlessState{
		History: h.history,
		Index:   h.index,
		ScrollX: h.scrollX,
		ScrollY: h.scrollY,
		Zoom:    h.zoom,
	})
}

// RestoreState implements WebView.
func (h *Headless) RestoreState(state StateBlob) error {
	var s headlessState
	if err := json.Unmarshal(state, &s); err != nil {
		return err
	}
	h.mu.Lock()
	h.history = s.History
	h.index = s.Index
	h.scrollX, h.scrollY = s.ScrollX, s.ScrollY
	if s.Zoom > 0 {
		h.zoom = s.Zoom
	}
	h.mu.Unlock()
	return nil
}

// ScrollX implements WebView.
func (h *Headless) ScrollX() int { h.mu.Lock(); defer h.mu.Unlock(); return h.scrollX }

// ScrollY implements WebView.
func (h *Headless) ScrollY() int { h.mu.Lock(); defer h.mu.Unlock(); return h.scrollY }

// ScrollTo implements WebView.
func (h *Headless) ScrollTo(x, y int) {
	h.mu.Lock()
	h.scrollX, h.scrollY = x, y
	h.mu.Unlock()
}

// SetZoom implements WebView.
func (h *Headless) SetZoom(factor float64) {
	if factor <= 0 {
		return
	}
	h.mu.Lock()
	h.zoom = factor
	h.mu.Unlock()
}

// Zoom implements WebView.
func (h *Headless) Zoom() float64 { h.mu.Lock(); defer h.mu.Unlock(); return h.zoom }

// Destroy implements WebView.
func (h *Headless) Destroy() {
	h.mu.Lock()
	h.destroyed = true
	h.client = nil
	h.mu.Unlock()
}

// IsDestroyed implements WebView.
func (h *Headless) IsDestroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}

// ReloadFromOfflinePage walks back to the page shown before the offline page
// and records it so the next start of that page forces a real reload.
func (h *Headless) ReloadFromOfflinePage() {
	h.mu.Lock()
	for i := h.index - 1; i >= 0; i-- {
		if h.history[i] != OfflinePageURL {
			h.urlToReloadFromOfflinePage = h.history[i]
			break
		}
	}
	h.mu.Unlock()
	h.GoBack()
}

// ShouldReloadPage consumes a pending offline-page reload marker. When it
// returns true the caller must abandon the started load; a forced reload has
// been issued so the user cannot mistake cached content for connectivity.
func (h *Headless) ShouldReloadPage(url string) bool {
	h.mu.Lock()
	if h.urlToReloadFromOfflinePage == "" || h.urlToReloadFromOfflinePage != url {
		h.mu.Unlock()
		return false
	}
	h.urlToReloadFromOfflinePage = ""
	h.mu.Unlock()

	h.StopLoading()
	h.Reload()
	return true
}

func (h *Headless) currentLocked() string {
	if h.index < 0 || h.index >= len(h.history) {
		return ""
	}
	return h.history[h.index]
}

// engineLoad commits the URL to history, resolves the page content (bundled
// offline document or intercepted fetch) and emits load callbacks when
// auto-complete is on.
func (h *Headless) engineLoad(url string, isReload bool) {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	if !isReload {
		// A fresh load truncates any forward history.
		h.history = append(h.history[:h.index+1], url)
		h.index = len(h.history) - 1
	}
	h.loading = true
	h.pageHTML = ""
	client := h.client
	auto := h.autoComplete
	intercept := h.interceptFn
	offline := h.offlinePage
	h.mu.Unlock()

	complete := func() {
		if !auto || client == nil || h.queue == nil {
			return
		}
		h.queue.Post(func() {
			if h.IsDestroyed() {
				return
			}
			client.OnPageStarted(url)
			client.DoUpdateVisitedHistory(h, url, isReload)
			client.OnPageCommitVisible(url)
			client.OnPageFinished(h, url)
			h.mu.Lock()
			h.loading = false
			h.mu.Unlock()
		})
	}

	if url == OfflinePageURL && offline != "" {
		h.mu.Lock()
		h.pageHTML = offline
		h.mu.Unlock()
		complete()
		return
	}

	if intercept != nil {
		// The hook's fetch blocks, so it runs off the queue the way the
		// platform engine calls shouldInterceptRequest off the UI thread.
		go func() {
			if html, ok := intercept(url, isReload); ok {
				h.mu.Lock()
				h.pageHTML = html
				h.mu.Unlock()
			}
			complete()
		}()
		return
	}
	complete()
}

func (h *Headless) goBackOrForward(steps int) {
	h.mu.Lock()
	target := h.index + steps
	if target < 0 || target >= len(h.history) {
		h.mu.Unlock()
		return
	}
	h.index = target
	url := h.history[target]
	client := h.client
	auto := h.autoComplete
	h.mu.Unlock()

	if !auto || client == nil || h.queue == nil {
		return
	}
	h.queue.Post(func() {
		if h.IsDestroyed() {
			return
		}
		client.OnPageStarted(url)
		client.DoUpdateVisitedHistory(h, url, false)
		client.OnPageCommitVisible(url)
		client.OnPageFinished(h, url)
	})
}
