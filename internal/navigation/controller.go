package navigation

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/morntool/webshell/internal/config"
	"github.com/morntool/webshell/internal/dispatch"
	"github.com/morntool/webshell/internal/intercept"
	"github.com/morntool/webshell/internal/logging"
	"github.com/morntool/webshell/internal/webview"
	"github.com/morntool/webshell/internal/window"
)

// LoadState tracks a page load through its callbacks.
type LoadState int

const (
	StateUnknown LoadState = iota
	// StateStartLoad means the navigation decision let the load proceed.
	StateStartLoad
	// StatePageStarted means the engine reported the load underway.
	StatePageStarted
	// StateDone means the page finished.
	StateDone
)

func (s LoadState) String() string {
	switch s {
	case StateStartLoad:
		return "start_load"
	case StatePageStarted:
		return "page_started"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// ErrCodeHostLookup is the engine error code for DNS resolution failure.
const ErrCodeHostLookup = -2

// Host is the window that owns a Controller: it presents the webview and
// opens or closes sibling windows on the controller's behalf.
type Host interface {
	WindowID() window.ID
	IsRoot() bool
	// LoadURL routes a URL through the navigation decision again.
	LoadURL(url string)
	// OpenNewWindow opens a child window on url. postLoadScript runs in
	// the child after its first page finishes.
	OpenNewWindow(url string, parentURLLevel int, postLoadScript string)
	// CloseWindow closes this window.
	CloseWindow()
	// CloseWindowWithResult closes this window, handing url and its level
	// back to the parent to load.
	CloseWindowWithResult(url string, urlLevel int, postLoadScript string)
	// SwitchToWebView swaps the presented webview for a pooled one.
	SwitchToWebView(view webview.WebView, isPooled bool)
	ShowWebView()
	HideWebView()
}

// VisitRecorder persists visited-page history.
type VisitRecorder interface {
	RecordVisit(ctx context.Context, url string) error
}

// ControllerParams collects the controller's collaborators. Host, Shell and
// Rules are required; the rest degrade to no-ops when nil.
type ControllerParams struct {
	Host        Host
	Shell       Shell
	Rules       *Ruleset
	Windows     *window.Manager
	Pool        *webview.Pool
	Interceptor *intercept.Interceptor
	Injector    *webview.Injector
	Queue       dispatch.Queue
	Bridge      BridgeHandler
	DeviceInfo  DeviceInfoFunc
	Visits      VisitRecorder
	// OfflineProbe reports whether the device is disconnected; consulted
	// before substituting the offline page on a load error.
	OfflineProbe func() bool

	Config *config.Config

	// FinishOnExternalURL closes the window when its first navigation is
	// claimed, the behavior of windows opened via window.open.
	FinishOnExternalURL bool
	// LaunchedViaAppLink marks windows opened by a deep link, which fall
	// back to the initial URL rather than showing a blank page.
	LaunchedViaAppLink bool
	IsFirstLaunch      bool
}

// Controller drives one window's navigation: it decides where each URL load
// goes and reacts to the engine's page lifecycle.
type Controller struct {
	host        Host
	shell       Shell
	rules       *Ruleset
	windows     *window.Manager
	pool        *webview.Pool
	interceptor *intercept.Interceptor
	injector    *webview.Injector
	queue       dispatch.Queue
	bridge      BridgeHandler
	deviceInfo  DeviceInfoFunc
	visits      VisitRecorder
	offline     func() bool
	log         zerolog.Logger
	ctx         context.Context

	showOfflinePage  bool
	offlineDelay     time.Duration
	interactiveDelay time.Duration
	configPostLoad   string
	initialZoom      float64

	launchedViaAppLink bool
	isFirstLaunch      bool

	// loadEpoch invalidates offline timers the CancelFunc missed, e.g. a
	// timer whose queue task was already dequeued when cancel ran.
	loadEpoch dispatch.Epoch
	// readyEpoch invalidates the document.readyState poll of a superseded
	// page load.
	readyEpoch dispatch.Epoch

	mu                     sync.Mutex
	view                   webview.WebView
	state                  LoadState
	currentWebViewURL      string
	interceptedRedirectURL string
	cssInjected            bool
	sawLoadingState        bool
	visitedLoginOrSignup   bool
	loggedIn               bool
	postLoadScript         string
	cancelLoadTimeout      dispatch.CancelFunc
	isPoolWebView          bool
	finishOnExternalURL    bool
}

// NewController builds a Controller. ctx carries the logger and bounds any
// work the controller spawns.
func NewController(ctx context.Context, p ControllerParams) *Controller {
	c := &Controller{
		host:               p.Host,
		shell:              p.Shell,
		rules:              p.Rules,
		windows:            p.Windows,
		pool:               p.Pool,
		interceptor:        p.Interceptor,
		injector:           p.Injector,
		queue:              p.Queue,
		bridge:             p.Bridge,
		deviceInfo:         p.DeviceInfo,
		visits:             p.Visits,
		offline:            p.OfflineProbe,
		ctx:                ctx,
		log:                logging.FromContext(ctx).With().Str("component", "navigation").Logger(),
		launchedViaAppLink: p.LaunchedViaAppLink,
		isFirstLaunch:      p.IsFirstLaunch,
	}
	if p.Config != nil {
		c.showOfflinePage = p.Config.Navigation.ShowOfflinePage
		if t := p.Config.Navigation.ConnectionOfflineTime; t > 0 {
			c.offlineDelay = time.Duration(t * float64(time.Second))
		}
		if t := p.Config.Navigation.InteractiveDelay; t > 0 {
			c.interactiveDelay = time.Duration(t * float64(time.Second))
		}
		c.configPostLoad = p.Config.Injection.PostLoadJavascript
		c.initialZoom = p.Config.Injection.InitialZoom
	}
	c.finishOnExternalURL = p.FinishOnExternalURL
	return c
}

// SetWebView records the webview this controller currently drives.
func (c *Controller) SetWebView(view webview.WebView, isPooled bool) {
	c.mu.Lock()
	c.view = view
	c.isPoolWebView = isPooled
	c.mu.Unlock()
}

// SetPostLoadScript stages a script run once after the next page finishes,
// used when a parent window hands navigation to a child.
func (c *Controller) SetPostLoadScript(js string) {
	c.mu.Lock()
	c.postLoadScript = js
	c.mu.Unlock()
}

// State returns the current load state.
func (c *Controller) State() LoadState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentWebViewURL returns the last finished page's URL.
func (c *Controller) CurrentWebViewURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentWebViewURL
}

// SetCurrentWebViewURL seeds the finished-page URL, used when restoring a
// window from saved state.
func (c *Controller) SetCurrentWebViewURL(url string) {
	c.mu.Lock()
	c.currentWebViewURL = url
	c.mu.Unlock()
}

// CancelLoadTimeout stops a pending offline-page countdown.
func (c *Controller) CancelLoadTimeout() {
	c.mu.Lock()
	c.cancelLoadTimeoutLocked()
	c.mu.Unlock()
}

func (c *Controller) cancelLoadTimeoutLocked() {
	c.loadEpoch.Advance()
	c.readyEpoch.Advance()
	if c.cancelLoadTimeout != nil {
		c.cancelLoadTimeout()
		c.cancelLoadTimeout = nil
	}
}

func (c *Controller) currentView() webview.WebView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// OnPageStarted implements webview.Client.
func (c *Controller) OnPageStarted(url string) {
	if v, ok := c.currentView().(interface{ ShouldReloadPage(string) bool }); ok && v != nil {
		// A load right after leaving the offline page gets replaced by a
		// forced reload so cached content is not mistaken for
		// connectivity.
		if v.ShouldReloadPage(url) {
			return
		}
	}

	c.mu.Lock()
	c.state = StatePageStarted
	c.cancelLoadTimeoutLocked()
	c.cssInjected = false
	c.mu.Unlock()

	c.log.Debug().Str("url", url).Msg("page started")

	if c.interceptor != nil {
		c.interceptor.SetInterceptURL(url)
	}
	if c.pool != nil {
		c.pool.OnStartedLoading()
	}
	if c.injector != nil && c.injector.HasViewportWidth() {
		if view := c.currentView(); view != nil {
			view.RunJavaScript(c.injector.ViewportWidthScript())
		}
	}

	c.startReadyStatePoll()
}

// readyCheckInterval paces the document.readyState poll.
const readyCheckInterval = 100 * time.Millisecond

// startReadyStatePoll reveals the webview as soon as the document is usable
// instead of holding the splash overlay until every subresource finishes.
func (c *Controller) startReadyStatePoll() {
	view := c.currentView()
	if c.queue == nil || view == nil {
		return
	}
	c.mu.Lock()
	c.sawLoadingState = false
	gen := c.readyEpoch.Advance()
	c.mu.Unlock()
	c.scheduleReadyCheck(view, gen)
}

func (c *Controller) scheduleReadyCheck(view webview.WebView, gen uint64) {
	c.queue.PostDelayed(readyCheckInterval, func() {
		if !c.readyEpoch.Valid(gen) || view.IsDestroyed() {
			return
		}
		view.RunJavaScriptWithResult("document.readyState", func(result string, err error) {
			if err != nil || !c.readyEpoch.Valid(gen) {
				return
			}
			c.handleReadyState(view, gen, strings.Trim(strings.TrimSpace(result), `"`))
		})
	})
}

// handleReadyState applies the readiness gate: with an interactive delay
// configured the page shows at interactive (after that delay), otherwise it
// shows once a load observed in progress reaches complete.
func (c *Controller) handleReadyState(view webview.WebView, gen uint64, status string) {
	delayed := c.interactiveDelay > 0
	switch {
	case status == "loading" || (!delayed && status == "interactive"):
		c.mu.Lock()
		c.sawLoadingState = true
		c.mu.Unlock()
		c.scheduleReadyCheck(view, gen)
	case delayed && status == "interactive":
		c.readyEpoch.Advance()
		c.queue.PostDelayed(c.interactiveDelay, func() { c.host.ShowWebView() })
	case status == "complete":
		c.mu.Lock()
		saw := c.sawLoadingState
		c.mu.Unlock()
		if saw {
			c.readyEpoch.Advance()
			c.host.ShowWebView()
			return
		}
		c.scheduleReadyCheck(view, gen)
	default:
		c.scheduleReadyCheck(view, gen)
	}
}

// OnPageFinished implements webview.Client.
func (c *Controller) OnPageFinished(view webview.WebView, url string) {
	c.mu.Lock()
	if c.interceptedRedirectURL == url {
		// A server-side redirect already claimed by the decision; the
		// engine still reports the original page as finished.
		c.interceptedRedirectURL = ""
		c.mu.Unlock()
		return
	}
	c.state = StateDone
	c.currentWebViewURL = url
	postLoad := c.postLoadScript
	c.postLoadScript = ""
	// The finish callback shows the webview itself; the readiness poll has
	// nothing left to gate.
	c.readyEpoch.Advance()
	c.mu.Unlock()

	if c.rules.IgnoresPageFinished(url) {
		return
	}

	c.log.Debug().Str("url", url).Msg("page finished")

	c.injectCSS(view)
	c.injectJS(view)
	c.host.ShowWebView()

	bridgeOK := c.rules.BridgeAllowed(url)
	if c.injector != nil && c.injector.HasBridgeLibrary() && bridgeOK {
		view.RunJavaScript(c.injector.BridgeLibraryScript())
		for _, cb := range []string{"median_library_ready", "gonative_library_ready"} {
			if js, err := webview.CallbackScript(cb, nil); err == nil {
				view.RunJavaScript(js)
			}
		}
	}

	if c.rules.LoginURL() != "" || c.rules.SignupURL() != "" {
		c.mu.Lock()
		c.visitedLoginOrSignup = URLsMatchOnPath(url, c.rules.LoginURL()) ||
			URLsMatchOnPath(url, c.rules.SignupURL())
		c.mu.Unlock()
	}
	c.checkLoginStatus(view)

	if c.configPostLoad != "" {
		view.RunJavaScript(c.configPostLoad)
	}
	if postLoad != "" {
		view.RunJavaScript(postLoad)
	}

	if c.pool != nil {
		c.pool.OnFinishedLoading(c.ctx)
	}

	if bridgeOK && c.deviceInfo != nil {
		info := c.deviceInfo()
		info["isFirstLaunch"] = c.isFirstLaunch
		if js, err := webview.MultiCallbackScript([]string{"median_device_info", "gonative_device_info"}, info); err == nil {
			view.RunJavaScript(js)
		}
	}

	c.applyInitialZoom(view)
}

// checkLoginStatus probes the login detection endpoint off-thread. The
// endpoint redirects unauthenticated clients to the login page; landing
// anywhere else means a session exists. The result is delivered to the page
// through the status callbacks.
func (c *Controller) checkLoginStatus(view webview.WebView) {
	detectionURL := c.rules.LoginDetectionURL()
	if detectionURL == "" || c.interceptor == nil || c.queue == nil {
		return
	}
	go func() {
		res := c.interceptor.InterceptHTML(c.ctx, detectionURL, "", true)
		if res == nil {
			return
		}
		loggedIn := !URLsMatchOnPath(res.FinalURL, c.rules.LoginURL())
		c.mu.Lock()
		c.loggedIn = loggedIn
		c.mu.Unlock()
		c.queue.Post(func() {
			status := map[string]any{"loggedIn": loggedIn, "finalUrl": res.FinalURL}
			if js, err := webview.MultiCallbackScript([]string{"median_statuschecker", "gonative_statuschecker"}, status); err == nil {
				view.RunJavaScript(js)
			}
		})
	}()
}

// LoggedIn reports the last login-status probe result.
func (c *Controller) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// OnPageCommitVisible implements webview.Client.
func (c *Controller) OnPageCommitVisible(url string) {
	c.mu.Lock()
	skip := c.interceptedRedirectURL == url
	c.mu.Unlock()
	if skip {
		return
	}
	if view := c.currentView(); view != nil {
		c.injectCSS(view)
	}
}

// DoUpdateVisitedHistory implements webview.Client.
func (c *Controller) DoUpdateVisitedHistory(view webview.WebView, url string, isReload bool) {
	c.mu.Lock()
	if c.state == StateStartLoad {
		c.state = StatePageStarted
		c.cancelLoadTimeoutLocked()
	}
	c.mu.Unlock()

	if !isReload && url != webview.OfflinePageURL && c.visits != nil {
		if err := c.visits.RecordVisit(c.ctx, url); err != nil {
			c.log.Warn().Err(err).Str("url", url).Msg("record visit failed")
		}
	}
}

// OnReceivedError implements webview.Client.
func (c *Controller) OnReceivedError(view webview.WebView, errorCode int, description, failingURL string) {
	if strings.Contains(description, "ERR_CACHE_MISS") {
		c.queue.Post(view.Reload)
		return
	}

	c.mu.Lock()
	loading := c.state == StatePageStarted || c.state == StateStartLoad
	c.mu.Unlock()

	if c.showOfflinePage && loading {
		disconnected := c.offline != nil && c.offline()
		hostLookup := errorCode == ErrCodeHostLookup && failingURL != "" && failingURL == view.URL()
		if disconnected || hostLookup {
			c.log.Info().Str("url", failingURL).Int("code", errorCode).Msg("load failed, showing offline page")
			c.queue.Post(func() {
				view.StopLoading()
				view.LoadURLDirect(webview.OfflinePageURL)
			})
			return
		}
	}

	c.host.ShowWebView()
}

// OnReceivedSSLError implements webview.Client. The engine already cancelled
// the load; translate the failure class into a user-readable reason.
func (c *Controller) OnReceivedSSLError(view webview.WebView, sslError webview.SSLError, failingURL string) {
	var msg string
	switch sslError {
	case webview.SSLExpired:
		msg = "the site's security certificate has expired"
	case webview.SSLDateInvalid, webview.SSLIDMismatch, webview.SSLNotYetValid, webview.SSLUntrusted:
		msg = "the site's security certificate is not trusted"
	default:
		msg = "could not establish a secure connection"
	}
	c.log.Error().Str("url", failingURL).Str("source_page", c.CurrentWebViewURL()).Msg(msg)
}

// OnFormResubmission implements webview.Client: resubmit, the answer the
// platform client gives so a back navigation onto a POST result works.
func (c *Controller) OnFormResubmission(view webview.WebView, dontResend, resend func()) {
	if c.queue != nil {
		c.queue.Post(resend)
		return
	}
	resend()
}

// OnDownloadStart marks a navigation that turned into a download: the page in
// view stays current, the pending-load state resolves, and blob: URLs are
// handed back to the page for serialization.
func (c *Controller) OnDownloadStart(view webview.WebView, url string) {
	c.mu.Lock()
	if c.state == StateStartLoad || c.state == StatePageStarted {
		c.state = StateDone
	}
	c.cancelLoadTimeoutLocked()
	c.mu.Unlock()

	c.log.Info().Str("url", url).Msg("download started")
	c.host.ShowWebView()

	if strings.HasPrefix(url, "blob:") && c.injector != nil && c.injector.HasBlobDownloader() {
		view.RunJavaScript(c.injector.BlobDownloadScript(url))
	}
}

func (c *Controller) injectCSS(view webview.WebView) {
	if c.injector == nil || !c.injector.HasCustomCSS() {
		return
	}
	c.mu.Lock()
	done := c.cssInjected
	c.mu.Unlock()
	if done {
		return
	}
	view.RunJavaScriptWithResult(c.injector.CustomCSSScript(), func(result string, err error) {
		if err != nil {
			c.log.Warn().Err(err).Msg("custom css injection failed")
			return
		}
		if strings.Trim(result, `"`) == "success" {
			c.mu.Lock()
			c.cssInjected = true
			c.mu.Unlock()
		}
	})
}

func (c *Controller) injectJS(view webview.WebView) {
	if c.injector == nil || !c.injector.HasCustomJS() {
		return
	}
	view.RunJavaScript(c.injector.CustomJSScript())
}

func (c *Controller) applyInitialZoom(view webview.WebView) {
	if c.initialZoom <= 0 {
		return
	}
	view.RunJavaScriptWithResult("window.devicePixelRatio", func(result string, err error) {
		if err != nil {
			return
		}
		base, perr := strconv.ParseFloat(strings.TrimSpace(result), 64)
		if perr != nil || base <= 0 {
			base = 1
		}
		view.SetZoom(base * c.initialZoom)
	})
}
