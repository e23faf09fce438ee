package navigation

import (
	"errors"
	"net/url"
	"strings"

	"github.com/morntool/webshell/internal/webview"
	"github.com/morntool/webshell/internal/window"
)

// ShouldOverrideURLLoading implements webview.Client: it is the navigation
// decision. Returning true claims the URL, meaning the engine must not load
// it; returning false arms the html interceptor and the offline countdown and
// lets the load proceed.
func (c *Controller) ShouldOverrideURLLoading(view webview.WebView, rawURL string, isReload, isRedirect bool) bool {
	if rawURL == "" {
		return false
	}

	// 1x1 tracking images arrive as data: navigations; they load normally.
	if strings.HasPrefix(rawURL, "data:") && IsTrackingPixel(rawURL) {
		c.log.Debug().Msg("tracking pixel detected, loading normally")
		return false
	}

	if c.decide(view, rawURL, false) {
		c.mu.Lock()
		finish := c.finishOnExternalURL
		if isRedirect {
			// The claimed URL was a server-side redirect: the engine
			// will still emit a finished callback for it, which the
			// lifecycle must swallow.
			c.interceptedRedirectURL = rawURL
			c.state = StateDone
			c.cancelLoadTimeoutLocked()
		}
		c.mu.Unlock()
		if isRedirect {
			c.host.ShowWebView()
		}
		if finish {
			c.host.CloseWindow()
		}
		return true
	}

	c.mu.Lock()
	c.finishOnExternalURL = false
	c.state = StateStartLoad
	c.cancelLoadTimeoutLocked()
	if c.offlineDelay > 0 {
		gen := c.loadEpoch.Current()
		c.cancelLoadTimeout = c.queue.PostDelayed(c.offlineDelay, func() {
			if !c.loadEpoch.Valid(gen) {
				return
			}
			if c.showOfflinePage && view.URL() != webview.OfflinePageURL {
				c.log.Info().Str("url", rawURL).Msg("load timed out, showing offline page")
				view.LoadURLDirect(webview.OfflinePageURL)
			}
		})
	}
	c.mu.Unlock()

	if c.interceptor != nil {
		c.interceptor.SetInterceptURL(rawURL)
	}
	c.host.HideWebView()
	return false
}

// ShouldOverrideURLLoadingNoAction answers what the decision would do without
// performing any side effects, used by restore paths that must not spawn
// windows.
func (c *Controller) ShouldOverrideURLLoadingNoAction(view webview.WebView, rawURL string) bool {
	return c.decide(view, rawURL, true)
}

// decide is the core routing pipeline. noAction answers hypothetically.
func (c *Controller) decide(view webview.WebView, rawURL string, noAction bool) bool {
	if rawURL == "" {
		return false
	}

	// Bundled assets and in-page blobs load without interference.
	if strings.HasPrefix(rawURL, webview.AssetURLPrefix) {
		return false
	}
	if strings.HasPrefix(rawURL, "blob:") {
		return false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		c.log.Debug().Str("url", rawURL).Msg("unparseable url, loading normally")
		return false
	}
	scheme := strings.ToLower(u.Scheme)

	if scheme == SchemeBridge {
		if noAction {
			return true
		}
		c.runBridgeCommands(u)
		return true
	}

	if scheme == SchemeMedian || scheme == SchemeGoNativeLite {
		current := c.CurrentWebViewURL()
		if current != "" && !c.rules.BridgeAllowed(current) {
			c.log.Error().Str("current_url", current).Msg("url not authorized for native bridge")
			return true
		}
		if c.bridge != nil {
			c.bridge.HandleBridgeURL(u)
		}
		return true
	}

	if to, ok := c.rules.RedirectFor(rawURL); ok {
		if noAction {
			return true
		}
		c.queue.Post(func() { c.host.LoadURL(to) })
		return true
	}

	if !c.rules.IsInternal(rawURL) {
		if noAction {
			return true
		}
		c.routeExternal(u)
		// A deep-link launch that routed straight out would leave a
		// blank window behind; show the start page instead.
		if c.launchedViaAppLink && c.CurrentWebViewURL() == "" {
			c.host.LoadURL(c.rules.InitialURL())
		}
		return true
	}

	// From here the URL will load, though possibly in another window.

	if c.windows != nil && c.windows.MaxWindowsEnabled() {
		if c.windows.IgnoreInterceptMaxWindows(c.host.WindowID()) {
			// A freshly spawned window is doing its first load;
			// suppress one round of max-windows checks so it cannot
			// evict itself.
			c.windows.SetIgnoreInterceptMaxWindows(c.host.WindowID(), false)
		} else if c.windows.WindowCount() > 1 && c.windows.MaxWindowsReached() {
			if c.onMaxWindowsReached(view, rawURL) {
				return true
			}
		}
	}

	currentLevel := window.LevelUnknown
	parentLevel := window.LevelUnknown
	if c.windows != nil {
		currentLevel = c.windows.URLLevel(c.host.WindowID())
		parentLevel = c.windows.ParentURLLevel(c.host.WindowID())
	}
	newLevel := c.rules.LevelForURL(rawURL)
	if currentLevel >= 0 && newLevel >= 0 {
		if newLevel > currentLevel {
			if noAction {
				return true
			}
			c.mu.Lock()
			postLoad := c.postLoadScript
			c.postLoadScript = ""
			c.mu.Unlock()
			c.host.OpenNewWindow(rawURL, currentLevel, postLoad)
			return true
		}
		if newLevel < currentLevel && newLevel <= parentLevel {
			if noAction {
				return true
			}
			c.mu.Lock()
			postLoad := c.postLoadScript
			c.postLoadScript = ""
			c.mu.Unlock()
			c.host.CloseWindowWithResult(rawURL, newLevel, postLoad)
			return true
		}
	}

	if newLevel >= 0 && c.windows != nil {
		c.windows.SetURLLevels(c.host.WindowID(), newLevel, parentLevel)
	}

	if c.pool != nil {
		if poolView, policy := c.pool.WebViewForURL(rawURL); poolView != nil {
			if noAction {
				c.pool.Release(poolView)
				return true
			}
			switch policy {
			case webview.DisownAlways:
				c.queue.Post(func() { c.host.SwitchToWebView(poolView, false) })
				c.pool.DisownWebView(poolView)
				c.pool.OnFinishedLoading(c.ctx)
				return true
			case webview.DisownNever:
				c.queue.Post(func() { c.host.SwitchToWebView(poolView, true) })
				return true
			case webview.DisownReload:
				if !URLsMatchOnPath(rawURL, c.CurrentWebViewURL()) {
					c.queue.Post(func() { c.host.SwitchToWebView(poolView, true) })
					return true
				}
				c.pool.Release(poolView)
			}
		}
	}

	c.mu.Lock()
	wasPooled := c.isPoolWebView
	c.isPoolWebView = false
	c.mu.Unlock()
	if wasPooled && c.pool != nil {
		// Either reloading the pooled page or navigating it elsewhere;
		// both take the view out of the pool for good.
		c.pool.DisownWebView(view)
	}

	return false
}

func (c *Controller) runBridgeCommands(u *url.URL) {
	for _, cmd := range ParseBridgeCommands(u) {
		switch cmd.Command {
		case "pop":
			if !c.host.IsRoot() {
				c.host.CloseWindow()
			}
		case "clearPools":
			if c.pool != nil {
				c.pool.FlushAll()
			}
		default:
			c.log.Debug().Str("command", cmd.Command).Msg("unknown bridge command")
		}
	}
}

func (c *Controller) routeExternal(u *url.URL) {
	mode := c.rules.Mode(u.String())
	if mode == ModeAppBrowser {
		if err := c.shell.OpenAppBrowser(u); err != nil {
			c.log.Error().Err(err).Str("url", u.String()).Msg("open app browser failed")
		}
		return
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "intent":
		intent, err := ParseIntentURL(u.String())
		if err != nil {
			c.log.Error().Err(err).Str("url", u.String()).Msg("bad intent url")
			return
		}
		var openErr error
		if intent.Inner != nil {
			openErr = c.shell.OpenCustomScheme(intent.Inner)
		} else {
			openErr = ErrNoHandler
		}
		if errors.Is(openErr, ErrNoHandler) {
			if intent.FallbackURL != "" {
				c.host.LoadURL(intent.FallbackURL)
			} else {
				c.log.Error().Str("url", u.String()).Msg("no application installed for intent url")
			}
		} else if openErr != nil {
			c.log.Error().Err(openErr).Str("url", u.String()).Msg("open intent url failed")
		}
	case "http", "https":
		force := c.rules.IsAppLink(u.String())
		if err := c.shell.OpenExternalBrowser(u, force); err != nil {
			c.log.Error().Err(err).Str("url", u.String()).Msg("open external browser failed")
		}
	default:
		if err := c.shell.OpenCustomScheme(u); err != nil {
			c.log.Error().Err(err).Str("url", u.String()).Msg("open custom scheme failed")
		}
	}
}

// onMaxWindowsReached reconciles the window limit for a load of rawURL.
// Returning true means this decision consumed the URL: the load restarts
// once excess windows close. Returning false means the caller evicted the
// oldest window and should keep processing the load.
func (c *Controller) onMaxWindowsReached(view webview.WebView, rawURL string) bool {
	if c.windows.AutoClose() && URLsMatchIgnoreTrailing(rawURL, c.rules.InitialURL()) {
		id := c.host.WindowID()
		c.windows.SetAsNewRoot(id)
		c.windows.SetURLLevels(id, window.LevelUnknown, window.LevelUnknown)
		c.windows.SetIgnoreInterceptMaxWindows(id, true)
		c.windows.SetOnExcessWindowClosedListener(func() {
			c.queue.Post(func() { view.LoadURL(rawURL) })
		})
		c.windows.NotifyMaxWindowsReached("")
		return true
	}

	if excess, ok := c.windows.ExcessWindow(); ok {
		c.windows.NotifyMaxWindowsReached(excess)
		c.windows.RemoveWindow(excess)
	}
	return false
}
