package shell

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/morntool/webshell/assets"
	"github.com/morntool/webshell/internal/config"
	"github.com/morntool/webshell/internal/dispatch"
	"github.com/morntool/webshell/internal/domain/repository"
	"github.com/morntool/webshell/internal/intercept"
	"github.com/morntool/webshell/internal/logging"
	"github.com/morntool/webshell/internal/navigation"
	"github.com/morntool/webshell/internal/persistence/sqlite"
	"github.com/morntool/webshell/internal/webview"
	"github.com/morntool/webshell/internal/window"
)

// App is the composition root: it owns the dispatch queue, the window
// registry, the webview pool and the persistence layer, and opens windows
// whose navigation controllers drive everything else.
type App struct {
	cfg     *config.Config
	version string
	log     zerolog.Logger
	ctx     context.Context

	queue       *dispatch.Loop
	windows     *window.Manager
	pool        *webview.Pool
	interceptor *intercept.Interceptor
	injector    *webview.Injector
	rules       *navigation.Ruleset
	opener      navigation.Shell

	db     *sql.DB
	states repository.WindowStateRepository
	visits repository.VisitRepository

	deviceInfo  navigation.DeviceInfoFunc
	offline     func() bool
	firstLaunch bool
	launchURL   string

	mu      sync.Mutex
	open    map[window.ID]*AppWindow
	root    *AppWindow
	closed  bool
	stopped chan struct{}
}

// NewApp wires an App from configuration. ctx carries the logger and bounds
// database setup.
func NewApp(ctx context.Context, cfg *config.Config, version string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logging.FromContext(ctx).With().Str("component", "app").Logger()

	rules, err := navigation.NewRuleset(cfg)
	if err != nil {
		return nil, fmt.Errorf("navigation rules: %w", err)
	}
	interceptor, err := intercept.New(cfg.Intercept, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("html interceptor: %w", err)
	}

	dataDir := config.DefaultDataDir()
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "webshell.db")
	}
	db, err := sqlite.NewConnection(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	installationID, firstLaunch, err := loadInstallationID(dataDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("installation id: %w", err)
	}

	a := &App{
		cfg:         cfg,
		version:     version,
		log:         log,
		ctx:         ctx,
		queue:       dispatch.NewLoop(),
		windows:     window.NewManager(cfg.Windows.MaxWindowsEnabled, cfg.Windows.NumWindows, cfg.Windows.AutoClose, *logging.FromContext(ctx)),
		interceptor: interceptor,
		injector:    buildInjector(cfg.Injection),
		rules:       rules,
		opener:      NewSystemOpener(ctx),
		db:          db,
		states:      sqlite.NewWindowStateRepository(db),
		visits:      sqlite.NewVisitRepository(db),
		deviceInfo:  deviceInfoFunc(installationID, firstLaunch, version),
		offline:     offlineProbe(cfg.App.InitialHost),
		firstLaunch: firstLaunch,
		open:        make(map[window.ID]*AppWindow),
		stopped:     make(chan struct{}),
	}
	a.pool = webview.NewPool(a.newWebView, cfg.Pool.Entries)
	return a, nil
}

func buildInjector(cfg config.InjectionConfig) *webview.Injector {
	// custom_css and custom_js arrive base64-encoded in config; the
	// injector re-encodes for transport itself.
	decode := func(s string) string {
		if b, err := base64.StdEncoding.DecodeString(s); err == nil {
			return string(b)
		}
		return s
	}
	var opts []webview.InjectorOption
	if cfg.CustomCSS != "" {
		opts = append(opts, webview.WithCustomCSS(decode(cfg.CustomCSS)))
	}
	if cfg.CustomJS != "" {
		opts = append(opts, webview.WithCustomJS(decode(cfg.CustomJS)))
	}
	if cfg.InjectBridgeJS {
		opts = append(opts, webview.WithBridgeLibrary(assets.BridgeLibrary))
		opts = append(opts, webview.WithBlobDownloader(assets.BlobDownloader))
	}
	if cfg.ForceViewportWidth > 0 {
		opts = append(opts, webview.WithViewportWidth(int(cfg.ForceViewportWidth)))
	}
	return webview.NewInjector(opts...)
}

// newWebView creates an engine instance carrying the configured user agent.
// Pool prewarms call it without a client; windows attach theirs afterward.
func (a *App) newWebView() webview.WebView {
	if a.cfg.App.WebviewEngine == "basic" {
		return webview.NewBasic(nil)
	}
	opts := []webview.HeadlessOption{
		webview.WithAutoComplete(),
		webview.WithOfflinePage(assets.OfflinePage),
		webview.WithInterceptFunc(a.interceptPage),
	}
	if a.cfg.App.UserAgent != "" {
		opts = append(opts, webview.WithUserAgent(a.cfg.App.UserAgent))
	}
	return webview.NewHeadless(nil, a.queue, opts...)
}

// interceptPage is the engine's pre-render hook: pages armed by the
// navigation decision are fetched out of band and the normalized document
// rendered in place of a native load. Misses and failures fall back to the
// native load.
func (a *App) interceptPage(url string, noCache bool) (string, bool) {
	if !a.interceptor.ShouldIntercept(url) {
		return "", false
	}
	res := a.interceptor.InterceptHTML(a.ctx, url, "", noCache)
	if res == nil {
		return "", false
	}
	return res.HTML, true
}

// Run opens the root window on the initial URL and blocks until ctx is
// cancelled or the last window closes.
func (a *App) Run(ctx context.Context) error {
	initial := a.rules.InitialURL()
	if initial == "" {
		return fmt.Errorf("no initial url configured")
	}
	a.log.Info().Str("url", initial).Bool("first_launch", a.firstLaunch).Msg("starting")

	go func() {
		if err := a.pool.Prewarm(a.ctx); err != nil {
			a.log.Warn().Err(err).Msg("pool prewarm failed")
		}
	}()

	a.queue.Post(func() {
		w := a.openWindow(nil, true, window.LevelUnknown, "", windowOptions{launchedViaAppLink: a.launchURL != ""})
		switch {
		case a.launchURL != "":
			w.LoadURL(a.launchURL)
		case !a.restoreWindowState(w):
			w.LoadURL(initial)
		}
	})

	select {
	case <-ctx.Done():
	case <-a.stopped:
	}
	return a.Close()
}

// SetLaunchURL stages a deep link delivered before startup: Run opens the
// root window on it instead of the initial URL. Must be called before Run.
func (a *App) SetLaunchURL(rawURL string) {
	a.launchURL = rawURL
}

// HandleURL routes an externally delivered URL (a deep link) through the
// root window's navigation decision.
func (a *App) HandleURL(rawURL string) {
	if _, err := url.Parse(rawURL); err != nil {
		a.log.Warn().Err(err).Str("url", rawURL).Msg("rejecting malformed url")
		return
	}
	a.queue.Post(func() {
		a.mu.Lock()
		root := a.root
		a.mu.Unlock()
		if root == nil {
			return
		}
		root.LoadURL(rawURL)
	})
}

// Close tears the app down. Safe to call more than once.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	windows := make([]*AppWindow, 0, len(a.open))
	for _, w := range a.open {
		windows = append(windows, w)
	}
	a.mu.Unlock()

	for _, w := range windows {
		a.saveWindowState(w)
	}
	a.pool.Close()
	a.queue.Close()
	err := a.db.Close()
	a.log.Info().Msg("stopped")
	return err
}

// ApplyConfig applies a reloaded configuration snapshot. Only the navigation
// rule tables swap at runtime; structural settings (database, pool, engine)
// still need a restart.
func (a *App) ApplyConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := a.rules.Reload(cfg); err != nil {
		return err
	}
	a.log.Info().Msg("navigation rules reloaded")
	return nil
}

// Visits exposes the visit history repository.
func (a *App) Visits() repository.VisitRepository { return a.visits }

// RootWindow returns the current root window, nil before Run opens it.
func (a *App) RootWindow() *AppWindow {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.root
}

// WindowCount returns the number of open windows.
func (a *App) WindowCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.open)
}

type windowOptions struct {
	finishOnExternalURL bool
	launchedViaAppLink  bool
}

// openWindow builds an AppWindow plus its controller and webview and
// registers it. Must run on the dispatch queue.
func (a *App) openWindow(parent *AppWindow, isRoot bool, parentURLLevel int, postLoadScript string, opts windowOptions) *AppWindow {
	w := &AppWindow{app: a, parent: parent, visible: true}
	w.id = a.windows.AddWindow(isRoot, func() {
		a.queue.Post(w.Close)
	})
	if parentURLLevel != window.LevelUnknown {
		a.windows.SetURLLevels(w.id, window.LevelUnknown, parentURLLevel)
	}

	ctx := logging.WithWindowID(a.ctx, string(w.id))
	w.ctrl = navigation.NewController(ctx, navigation.ControllerParams{
		Host:                w,
		Shell:               a.opener,
		Rules:               a.rules,
		Windows:             a.windows,
		Pool:                a.pool,
		Interceptor:         a.interceptor,
		Injector:            a.injector,
		Queue:               a.queue,
		Bridge:              navigation.BridgeHandlerFunc(a.handleBridgeURL),
		DeviceInfo:          a.deviceInfo,
		Visits:              a.visits,
		OfflineProbe:        a.offline,
		Config:              a.cfg,
		FinishOnExternalURL: opts.finishOnExternalURL,
		LaunchedViaAppLink:  opts.launchedViaAppLink,
		IsFirstLaunch:       a.firstLaunch,
	})
	if postLoadScript != "" {
		w.ctrl.SetPostLoadScript(postLoadScript)
	}

	view := a.newWebView()
	if cs, ok := view.(webview.ClientSetter); ok {
		cs.SetClient(w.ctrl)
	}
	w.view = view
	w.ctrl.SetWebView(view, false)

	a.mu.Lock()
	a.open[w.id] = w
	if isRoot || a.root == nil {
		a.root = w
	}
	a.mu.Unlock()
	return w
}

// handleBridgeURL receives median:// and gonative:// commands the navigation
// layer does not consume itself.
func (a *App) handleBridgeURL(u *url.URL) {
	a.log.Debug().Str("url", u.String()).Msg("bridge command")
	switch u.Host + u.Path {
	case "clearHistory", "webview/clearHistory":
		if err := a.visits.Clear(a.ctx); err != nil {
			a.log.Warn().Err(err).Msg("clear visit history failed")
		}
	default:
		// Commands outside the navigation surface are acknowledged and
		// dropped.
	}
}

// windowClosed removes w from the registry and stops the app when the last
// window goes away.
func (a *App) windowClosed(w *AppWindow) {
	a.mu.Lock()
	delete(a.open, w.id)
	if a.root == w {
		a.root = nil
		for _, other := range a.open {
			if a.windows.IsRoot(other.id) {
				a.root = other
				break
			}
		}
	}
	remaining := len(a.open)
	closed := a.closed
	a.mu.Unlock()

	if remaining == 0 && !closed {
		close(a.stopped)
	}
}

// saveWindowState persists w's history blob and levels so a later run can
// restore them.
func (a *App) saveWindowState(w *AppWindow) {
	if view := w.View(); view != nil {
		a.saveViewState(w, view)
	}
}

func (a *App) saveViewState(w *AppWindow, view webview.WebView) {
	if view.URL() == "" {
		return
	}
	blob, err := view.SaveState()
	if err != nil {
		if err != webview.ErrUnsupported {
			a.log.Warn().Err(err).Str("window_id", string(w.id)).Msg("save webview state failed")
		}
		return
	}
	if err := a.states.Save(a.ctx, w.stateEntity(view, blob)); err != nil {
		a.log.Warn().Err(err).Str("window_id", string(w.id)).Msg("save window state failed")
	}
}

// restoreWindowState reloads the root window's previous history blob, if one
// was saved. It reports whether a restore happened; a restored window skips
// the initial load.
func (a *App) restoreWindowState(w *AppWindow) bool {
	states, err := a.states.List(a.ctx)
	if err != nil || len(states) == 0 {
		return false
	}
	saved := states[0]
	for _, s := range states {
		if s.IsRoot {
			saved = s
			break
		}
	}
	// One shot: a stale blob should not resurrect on every launch.
	defer func() {
		if err := a.states.DeleteAll(a.ctx); err != nil {
			a.log.Warn().Err(err).Msg("clear saved window states failed")
		}
	}()

	if len(saved.WebViewState) == 0 {
		return false
	}
	view := w.View()
	if err := view.RestoreState(webview.StateBlob(saved.WebViewState)); err != nil {
		a.log.Warn().Err(err).Msg("restore webview state failed")
		return false
	}
	view.ScrollTo(saved.ScrollX, saved.ScrollY)
	w.ctrl.SetCurrentWebViewURL(view.URL())
	a.windows.SetURLLevels(w.id, saved.URLLevel, saved.ParentURLLevel)
	a.log.Info().Str("url", view.URL()).Msg("restored previous session")
	return true
}
