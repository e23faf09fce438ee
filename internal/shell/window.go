package shell

import (
	"sync"

	"github.com/morntool/webshell/internal/domain/entity"
	"github.com/morntool/webshell/internal/navigation"
	"github.com/morntool/webshell/internal/webview"
	"github.com/morntool/webshell/internal/window"
)

// AppWindow is one logical window: a webview plus the navigation controller
// driving it. It implements navigation.Host.
type AppWindow struct {
	app    *App
	id     window.ID
	parent *AppWindow
	ctrl   *navigation.Controller

	mu      sync.Mutex
	view    webview.WebView
	pooled  bool
	visible bool
	closed  bool
}

// WindowID implements navigation.Host.
func (w *AppWindow) WindowID() window.ID { return w.id }

// IsRoot implements navigation.Host.
func (w *AppWindow) IsRoot() bool { return w.app.windows.IsRoot(w.id) }

// Controller returns the window's navigation controller.
func (w *AppWindow) Controller() *navigation.Controller { return w.ctrl }

// View returns the webview currently presented, nil after Close.
func (w *AppWindow) View() webview.WebView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view
}

// LoadURL implements navigation.Host: the URL re-enters the navigation
// decision through the webview.
func (w *AppWindow) LoadURL(url string) {
	if view := w.View(); view != nil {
		view.LoadURL(url)
	}
}

// OpenNewWindow implements navigation.Host.
func (w *AppWindow) OpenNewWindow(url string, parentURLLevel int, postLoadScript string) {
	child := w.app.openWindow(w, false, parentURLLevel, postLoadScript, windowOptions{})
	if w.app.windows.MaxWindowsEnabled() {
		// The child's first load must not run the max-windows check it
		// would otherwise lose to.
		w.app.windows.SetIgnoreInterceptMaxWindows(child.id, true)
	}
	child.LoadURL(url)
}

// CloseWindow implements navigation.Host.
func (w *AppWindow) CloseWindow() { w.Close() }

// CloseWindowWithResult implements navigation.Host: the parent takes over
// url at urlLevel, then this window closes.
func (w *AppWindow) CloseWindowWithResult(url string, urlLevel int, postLoadScript string) {
	if p := w.parent; p != nil {
		if postLoadScript != "" {
			p.ctrl.SetPostLoadScript(postLoadScript)
		}
		if urlLevel != window.LevelUnknown {
			w.app.windows.SetURLLevels(p.id, urlLevel, w.app.windows.ParentURLLevel(p.id))
		}
		w.app.queue.Post(func() { p.LoadURL(url) })
	}
	w.Close()
}

// SwitchToWebView implements navigation.Host: swaps in a pooled webview,
// destroying the replaced one unless the pool owns it.
func (w *AppWindow) SwitchToWebView(view webview.WebView, isPooled bool) {
	w.mu.Lock()
	old := w.view
	wasPooled := w.pooled
	w.view = view
	w.pooled = isPooled
	w.mu.Unlock()

	if cs, ok := view.(webview.ClientSetter); ok {
		cs.SetClient(w.ctrl)
	}
	w.ctrl.SetWebView(view, isPooled)

	if old != nil && old != view {
		if wasPooled {
			w.app.pool.Release(old)
		} else {
			old.Destroy()
		}
	}
}

// ShowWebView implements navigation.Host.
func (w *AppWindow) ShowWebView() {
	w.mu.Lock()
	w.visible = true
	w.mu.Unlock()
}

// HideWebView implements navigation.Host.
func (w *AppWindow) HideWebView() {
	w.mu.Lock()
	w.visible = false
	w.mu.Unlock()
}

// Visible reports whether the webview is presented rather than hidden behind
// the activity indicator.
func (w *AppWindow) Visible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

// Close tears the window down: saves its state, releases or destroys its
// webview and removes it from the registry. Idempotent.
func (w *AppWindow) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	view := w.view
	pooled := w.pooled
	w.view = nil
	w.mu.Unlock()

	if view != nil && !pooled {
		w.app.saveViewState(w, view)
	}
	w.ctrl.CancelLoadTimeout()
	w.app.windows.RemoveWindow(w.id)

	if view != nil {
		if pooled {
			w.app.pool.Release(view)
		} else {
			view.Destroy()
		}
	}
	w.app.windowClosed(w)
}

// stateEntity snapshots the window into its persistence form.
func (w *AppWindow) stateEntity(view webview.WebView, blob webview.StateBlob) *entity.WindowState {
	return &entity.WindowState{
		WindowID:       string(w.id),
		IsRoot:         w.app.windows.IsRoot(w.id),
		URLLevel:       w.app.windows.URLLevel(w.id),
		ParentURLLevel: w.app.windows.ParentURLLevel(w.id),
		ScrollX:        view.ScrollX(),
		ScrollY:        view.ScrollY(),
		WebViewState:   []byte(blob),
	}
}
