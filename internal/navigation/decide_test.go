package navigation

import (
	"context"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morntool/webshell/internal/config"
	"github.com/morntool/webshell/internal/dispatch"
	"github.com/morntool/webshell/internal/webview"
	"github.com/morntool/webshell/internal/window"
)

type openedWindow struct {
	url         string
	parentLevel int
	postLoad    string
}

type closedResult struct {
	url      string
	urlLevel int
	postLoad string
}

type switchedView struct {
	view   webview.WebView
	pooled bool
}

type fakeHost struct {
	id      window.ID
	root    bool
	onClose func()

	loads    []string
	opened   []openedWindow
	closed   int
	results  []closedResult
	switched []switchedView
	shown    int
	hidden   int
}

func (h *fakeHost) WindowID() window.ID { return h.id }
func (h *fakeHost) IsRoot() bool        { return h.root }
func (h *fakeHost) LoadURL(url string)  { h.loads = append(h.loads, url) }

func (h *fakeHost) OpenNewWindow(url string, parentURLLevel int, postLoadScript string) {
	h.opened = append(h.opened, openedWindow{url: url, parentLevel: parentURLLevel, postLoad: postLoadScript})
}

func (h *fakeHost) CloseWindow() {
	h.closed++
	if h.onClose != nil {
		h.onClose()
	}
}

func (h *fakeHost) CloseWindowWithResult(url string, urlLevel int, postLoadScript string) {
	h.results = append(h.results, closedResult{url: url, urlLevel: urlLevel, postLoad: postLoadScript})
	h.CloseWindow()
}

func (h *fakeHost) SwitchToWebView(view webview.WebView, isPooled bool) {
	h.switched = append(h.switched, switchedView{view: view, pooled: isPooled})
}

func (h *fakeHost) ShowWebView() { h.shown++ }
func (h *fakeHost) HideWebView() { h.hidden++ }

type fakeShell struct {
	external  []string
	forced    []bool
	appBrowse []string
	custom    []string
	customErr error
}

func (s *fakeShell) OpenExternalBrowser(u *url.URL, forceDefault bool) error {
	s.external = append(s.external, u.String())
	s.forced = append(s.forced, forceDefault)
	return nil
}

func (s *fakeShell) OpenAppBrowser(u *url.URL) error {
	s.appBrowse = append(s.appBrowse, u.String())
	return nil
}

func (s *fakeShell) OpenCustomScheme(u *url.URL) error {
	s.custom = append(s.custom, u.String())
	return s.customErr
}

type fakeVisits struct {
	urls []string
}

func (v *fakeVisits) RecordVisit(_ context.Context, url string) error {
	v.urls = append(v.urls, url)
	return nil
}

type harness struct {
	cfg         *config.Config
	queue       *dispatch.Manual
	windows     *window.Manager
	pool        *webview.Pool
	host        *fakeHost
	shell       *fakeShell
	visits      *fakeVisits
	ctrl        *Controller
	view        *webview.Headless
	bridgeCalls []string
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()

	cfg := &config.Config{}
	cfg.App.InitialURL = "https://app.example.com/"
	cfg.App.InitialHost = "app.example.com"
	cfg.Navigation.ShowOfflinePage = true
	cfg.Navigation.ConnectionOfflineTime = 10
	if mutate != nil {
		mutate(cfg)
	}

	rules, err := NewRuleset(cfg)
	require.NoError(t, err)

	h := &harness{
		cfg:     cfg,
		queue:   dispatch.NewManual(),
		windows: window.NewManager(cfg.Windows.MaxWindowsEnabled, cfg.Windows.NumWindows, cfg.Windows.AutoClose, zerolog.Nop()),
		host:    &fakeHost{root: true},
		shell:   &fakeShell{},
		visits:  &fakeVisits{},
	}
	h.host.id = h.windows.AddWindow(true, nil)
	h.pool = webview.NewPool(func() webview.WebView {
		return webview.NewHeadless(nil, h.queue)
	}, cfg.Pool.Entries)
	require.NoError(t, h.pool.Prewarm(context.Background()))

	h.ctrl = NewController(context.Background(), ControllerParams{
		Host:    h.host,
		Shell:   h.shell,
		Rules:   rules,
		Windows: h.windows,
		Pool:    h.pool,
		Injector: webview.NewInjector(
			webview.WithCustomCSS("body{}"),
			webview.WithCustomJS("void 0"),
		),
		Queue: h.queue,
		Bridge: BridgeHandlerFunc(func(u *url.URL) {
			h.bridgeCalls = append(h.bridgeCalls, u.String())
		}),
		DeviceInfo: func() map[string]any {
			return map[string]any{"platform": "android"}
		},
		Visits: h.visits,
		Config: cfg,
	})
	h.view = webview.NewHeadless(h.ctrl, h.queue)
	h.ctrl.SetWebView(h.view, false)
	return h
}

func TestDecidePassThroughURLs(t *testing.T) {
	h := newHarness(t, nil)

	assert.False(t, h.ctrl.ShouldOverrideURLLoading(h.view, "", false, false))
	assert.False(t, h.ctrl.ShouldOverrideURLLoading(h.view, webview.AssetURLPrefix+"offline.html", false, false))
	assert.False(t, h.ctrl.ShouldOverrideURLLoading(h.view, "blob:https://app.example.com/abc", false, false))
	assert.False(t, h.ctrl.ShouldOverrideURLLoading(h.view, dataURI("image/gif", gifBytes(1, 1)), false, false))

	assert.Empty(t, h.shell.external)
	assert.Empty(t, h.host.opened)
}

func TestDecideInternalURLLoads(t *testing.T) {
	h := newHarness(t, nil)

	got := h.ctrl.ShouldOverrideURLLoading(h.view, "https://app.example.com/page", false, false)

	assert.False(t, got)
	assert.Equal(t, StateStartLoad, h.ctrl.State())
	assert.Equal(t, 1, h.host.hidden, "webview hides until the page paints")
}

func TestDecideBridgeCommands(t *testing.T) {
	t.Run("pop closes non-root window", func(t *testing.T) {
		h := newHarness(t, nil)
		h.host.root = false

		got := h.ctrl.ShouldOverrideURLLoading(h.view, `gonative-bridge://?json=`+url.QueryEscape(`[{"command":"pop"}]`), false, false)

		assert.True(t, got)
		assert.Equal(t, 1, h.host.closed)
	})

	t.Run("pop ignored on root window", func(t *testing.T) {
		h := newHarness(t, nil)

		got := h.ctrl.ShouldOverrideURLLoading(h.view, `gonative-bridge://?json=`+url.QueryEscape(`[{"command":"pop"}]`), false, false)

		assert.True(t, got)
		assert.Zero(t, h.host.closed)
	})

	t.Run("clearPools flushes the pool", func(t *testing.T) {
		h := newHarness(t, func(cfg *config.Config) {
			cfg.Pool.Entries = []config.PoolEntryConfig{
				{URLs: []string{"https://app.example.com/warm"}, Disown: "never"},
			}
		})

		got := h.ctrl.ShouldOverrideURLLoading(h.view, `gonative-bridge://?json=`+url.QueryEscape(`[{"command":"clearPools"}]`), false, false)

		assert.True(t, got)
		v, _ := h.pool.WebViewForURL("https://app.example.com/warm")
		assert.Nil(t, v)
	})
}

func TestDecideNativeBridgeAuthorization(t *testing.T) {
	t.Run("internal page may call bridge", func(t *testing.T) {
		h := newHarness(t, nil)
		h.ctrl.SetCurrentWebViewURL("https://app.example.com/page")

		got := h.ctrl.ShouldOverrideURLLoading(h.view, "median://share?url=x", false, false)

		assert.True(t, got)
		assert.Len(t, h.bridgeCalls, 1)
	})

	t.Run("external page is rejected", func(t *testing.T) {
		h := newHarness(t, nil)
		h.ctrl.SetCurrentWebViewURL("https://evil.example.org/")

		got := h.ctrl.ShouldOverrideURLLoading(h.view, "gonative://share?url=x", false, false)

		assert.True(t, got, "the url is still consumed")
		assert.Empty(t, h.bridgeCalls)
	})

	t.Run("no current page may call bridge", func(t *testing.T) {
		h := newHarness(t, nil)

		got := h.ctrl.ShouldOverrideURLLoading(h.view, "median://ready", false, false)

		assert.True(t, got)
		assert.Len(t, h.bridgeCalls, 1)
	})
}

func TestDecideRedirectTable(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Navigation.Redirects = map[string]string{
			"https://app.example.com/old": "https://app.example.com/new",
		}
	})

	got := h.ctrl.ShouldOverrideURLLoading(h.view, "https://app.example.com/old", false, false)

	assert.True(t, got)
	h.queue.RunPending()
	assert.Equal(t, []string{"https://app.example.com/new"}, h.host.loads)
}

func TestDecideExternalRouting(t *testing.T) {
	t.Run("external http opens system browser", func(t *testing.T) {
		h := newHarness(t, nil)

		got := h.ctrl.ShouldOverrideURLLoading(h.view, "https://other.example.org/", false, false)

		assert.True(t, got)
		require.Len(t, h.shell.external, 1)
		assert.False(t, h.shell.forced[0])
	})

	t.Run("app link domain pins default browser", func(t *testing.T) {
		h := newHarness(t, func(cfg *config.Config) {
			cfg.App.AppLinkDomains = []string{"links.example.org"}
		})

		h.ctrl.ShouldOverrideURLLoading(h.view, "https://links.example.org/r/1", false, false)

		require.Len(t, h.shell.forced, 1)
		assert.True(t, h.shell.forced[0])
	})

	t.Run("app browser mode", func(t *testing.T) {
		h := newHarness(t, func(cfg *config.Config) {
			cfg.Navigation.RegexRules = []config.RegexRule{
				{Regex: `https://docs\.example\.org/.*`, Mode: ModeAppBrowser},
			}
		})

		got := h.ctrl.ShouldOverrideURLLoading(h.view, "https://docs.example.org/guide", false, false)

		assert.True(t, got)
		assert.Len(t, h.shell.appBrowse, 1)
		assert.Empty(t, h.shell.external)
	})

	t.Run("custom scheme", func(t *testing.T) {
		h := newHarness(t, nil)

		got := h.ctrl.ShouldOverrideURLLoading(h.view, "mailto:team@example.com", false, false)

		assert.True(t, got)
		assert.Len(t, h.shell.custom, 1)
	})

	t.Run("intent url with fallback when no handler", func(t *testing.T) {
		h := newHarness(t, nil)
		h.shell.customErr = ErrNoHandler

		got := h.ctrl.ShouldOverrideURLLoading(h.view,
			"intent://pay.example.org/x#Intent;scheme=payapp;S.browser_fallback_url=https%3A%2F%2Fpay.example.org%2Fweb;end",
			false, false)

		assert.True(t, got)
		assert.Equal(t, []string{"https://pay.example.org/web"}, h.host.loads)
	})

	t.Run("app link launch falls back to initial url", func(t *testing.T) {
		h := newHarness(t, nil)
		h2 := NewController(context.Background(), ControllerParams{
			Host:               h.host,
			Shell:              h.shell,
			Rules:              h.ctrl.rules,
			Queue:              h.queue,
			Config:             h.cfg,
			LaunchedViaAppLink: true,
		})

		got := h2.ShouldOverrideURLLoading(h.view, "https://other.example.org/deep", false, false)

		assert.True(t, got)
		assert.Equal(t, []string{"https://app.example.com/"}, h.host.loads)
	})
}

func TestDecideNavigationLevels(t *testing.T) {
	levelled := func(cfg *config.Config) {
		cfg.Navigation.LevelRules = []config.LevelRule{
			{Regex: `.*/detail/.*`, Level: 2},
			{Regex: `.*/list.*`, Level: 1},
		}
	}

	t.Run("higher level opens child window", func(t *testing.T) {
		h := newHarness(t, levelled)
		h.windows.SetURLLevels(h.host.id, 1, window.LevelUnknown)
		h.ctrl.SetPostLoadScript("afterLoad()")

		got := h.ctrl.ShouldOverrideURLLoading(h.view, "https://app.example.com/detail/42", false, false)

		assert.True(t, got)
		require.Len(t, h.host.opened, 1)
		assert.Equal(t, "https://app.example.com/detail/42", h.host.opened[0].url)
		assert.Equal(t, 1, h.host.opened[0].parentLevel)
		assert.Equal(t, "afterLoad()", h.host.opened[0].postLoad)
	})

	t.Run("lower level pops back to parent", func(t *testing.T) {
		h := newHarness(t, levelled)
		h.windows.SetURLLevels(h.host.id, 2, 1)

		got := h.ctrl.ShouldOverrideURLLoading(h.view, "https://app.example.com/list", false, false)

		assert.True(t, got)
		require.Len(t, h.host.results, 1)
		assert.Equal(t, "https://app.example.com/list", h.host.results[0].url)
		assert.Equal(t, 1, h.host.results[0].urlLevel)
	})

	t.Run("same level loads in place and records it", func(t *testing.T) {
		h := newHarness(t, levelled)
		h.windows.SetURLLevels(h.host.id, 1, window.LevelUnknown)

		got := h.ctrl.ShouldOverrideURLLoading(h.view, "https://app.example.com/list?page=2", false, false)

		assert.False(t, got)
		assert.Empty(t, h.host.opened)
		assert.Equal(t, 1, h.windows.URLLevel(h.host.id))
	})

	t.Run("unknown current level loads in place", func(t *testing.T) {
		h := newHarness(t, levelled)

		got := h.ctrl.ShouldOverrideURLLoading(h.view, "https://app.example.com/detail/42", false, false)

		assert.False(t, got)
		assert.Equal(t, 2, h.windows.URLLevel(h.host.id))
	})
}

func TestDecidePoolPolicies(t *testing.T) {
	warm := func(disown string) func(*config.Config) {
		return func(cfg *config.Config) {
			cfg.Pool.Entries = []config.PoolEntryConfig{
				{URLs: []string{"https://app.example.com/warm"}, Disown: disown},
			}
		}
	}

	t.Run("always disowns on hand-out", func(t *testing.T) {
		h := newHarness(t, warm("always"))

		got := h.ctrl.ShouldOverrideURLLoading(h.view, "https://app.example.com/warm", false, false)

		assert.True(t, got)
		h.queue.RunPending()
		require.Len(t, h.host.switched, 1)
		assert.False(t, h.host.switched[0].pooled)
		assert.False(t, h.pool.IsPooled(h.host.switched[0].view))
	})

	t.Run("never keeps pool ownership", func(t *testing.T) {
		h := newHarness(t, warm("never"))

		got := h.ctrl.ShouldOverrideURLLoading(h.view, "https://app.example.com/warm", false, false)

		assert.True(t, got)
		h.queue.RunPending()
		require.Len(t, h.host.switched, 1)
		assert.True(t, h.host.switched[0].pooled)
		assert.True(t, h.pool.IsPooled(h.host.switched[0].view))
	})

	t.Run("reload policy skips same page", func(t *testing.T) {
		h := newHarness(t, warm("reload"))
		h.ctrl.SetCurrentWebViewURL("https://app.example.com/warm")

		got := h.ctrl.ShouldOverrideURLLoading(h.view, "https://app.example.com/warm", false, false)

		assert.False(t, got, "same page reloads in the current view")
		assert.Empty(t, h.host.switched)
	})

	t.Run("reload policy switches for different page", func(t *testing.T) {
		h := newHarness(t, warm("reload"))
		h.ctrl.SetCurrentWebViewURL("https://app.example.com/elsewhere")

		got := h.ctrl.ShouldOverrideURLLoading(h.view, "https://app.example.com/warm", false, false)

		assert.True(t, got)
		h.queue.RunPending()
		require.Len(t, h.host.switched, 1)
		assert.True(t, h.host.switched[0].pooled)
	})

	t.Run("navigating a pooled view away disowns it", func(t *testing.T) {
		h := newHarness(t, warm("never"))

		pooled, _ := h.pool.WebViewForURL("https://app.example.com/warm")
		require.NotNil(t, pooled)
		h.ctrl.SetWebView(pooled, true)

		got := h.ctrl.ShouldOverrideURLLoading(pooled, "https://app.example.com/other", false, false)

		assert.False(t, got)
		assert.False(t, h.pool.IsPooled(pooled))
	})
}

func TestDecideMaxWindows(t *testing.T) {
	t.Run("auto close promotes to root and defers the load", func(t *testing.T) {
		h := newHarness(t, func(cfg *config.Config) {
			cfg.Windows.MaxWindowsEnabled = true
			cfg.Windows.NumWindows = 2
			cfg.Windows.AutoClose = true
		})
		var extra window.ID
		extra = h.windows.AddWindow(false, func() { h.windows.RemoveWindow(extra) })
		h.windows.SetURLLevels(h.host.id, 2, 1)

		got := h.ctrl.ShouldOverrideURLLoading(h.view, "https://app.example.com/", false, false)

		assert.True(t, got)
		assert.True(t, h.windows.IsRoot(h.host.id))
		assert.Equal(t, window.LevelUnknown, h.windows.URLLevel(h.host.id))
		assert.Equal(t, 1, h.windows.WindowCount())

		// The deferred load replays once the excess windows are gone.
		h.queue.RunPending()
		assert.Equal(t, "https://app.example.com/", h.view.URL())
	})

	t.Run("eviction removes oldest non-root and load proceeds", func(t *testing.T) {
		h := newHarness(t, func(cfg *config.Config) {
			cfg.Windows.MaxWindowsEnabled = true
			cfg.Windows.NumWindows = 2
			cfg.Windows.AutoClose = false
		})
		oldest := h.windows.AddWindow(false, nil)

		got := h.ctrl.ShouldOverrideURLLoading(h.view, "https://app.example.com/page", false, false)

		assert.False(t, got, "after eviction the load continues here")
		assert.Equal(t, 1, h.windows.WindowCount())
		assert.Equal(t, window.LevelUnknown, h.windows.URLLevel(oldest))
	})

	t.Run("ignore intercept flag suppresses one check", func(t *testing.T) {
		h := newHarness(t, func(cfg *config.Config) {
			cfg.Windows.MaxWindowsEnabled = true
			cfg.Windows.NumWindows = 1
			cfg.Windows.AutoClose = false
		})
		h.windows.AddWindow(false, nil)
		h.windows.SetIgnoreInterceptMaxWindows(h.host.id, true)

		h.ctrl.ShouldOverrideURLLoading(h.view, "https://app.example.com/page", false, false)

		assert.False(t, h.windows.IgnoreInterceptMaxWindows(h.host.id), "flag is consumed")
		assert.Equal(t, 2, h.windows.WindowCount(), "no eviction on the suppressed check")
	})
}

func TestNoActionAnswersWithoutSideEffects(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Navigation.Redirects = map[string]string{"https://app.example.com/old": "https://app.example.com/new"}
	})

	assert.True(t, h.ctrl.ShouldOverrideURLLoadingNoAction(h.view, "https://other.example.org/"))
	assert.True(t, h.ctrl.ShouldOverrideURLLoadingNoAction(h.view, "https://app.example.com/old"))
	assert.False(t, h.ctrl.ShouldOverrideURLLoadingNoAction(h.view, "https://app.example.com/page"))

	h.queue.RunPending()
	assert.Empty(t, h.shell.external)
	assert.Empty(t, h.host.loads)
}
