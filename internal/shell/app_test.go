package shell

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morntool/webshell/assets"
	"github.com/morntool/webshell/internal/config"
	"github.com/morntool/webshell/internal/logging"
	"github.com/morntool/webshell/internal/webview"
	"github.com/morntool/webshell/internal/window"
)

const testInitialURL = "https://app.example.com/"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App: config.AppConfig{
			InitialURL:  testInitialURL,
			InitialHost: "app.example.com",
		},
		Database: config.DatabaseConfig{
			Path: filepath.Join(t.TempDir(), "webshell.db"),
		},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	ctx := logging.WithContext(context.Background(), logging.NewFromConfigValues("debug", "console"))
	app, err := NewApp(ctx, cfg, "test")
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

// startApp runs the app in the background and waits for the root window to
// settle on the initial page.
func startApp(t *testing.T, app *App) (cancel context.CancelFunc, done chan error) {
	t.Helper()
	ctx, cancelRun := context.WithCancel(context.Background())
	done = make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	require.Eventually(t, func() bool {
		root := app.RootWindow()
		return root != nil && root.View() != nil && root.View().URL() != ""
	}, 2*time.Second, 10*time.Millisecond)
	return cancelRun, done
}

func waitRun(t *testing.T, cancel context.CancelFunc, done chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestRunOpensRootWindowOnInitialURL(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	cancel, done := startApp(t, app)
	defer waitRun(t, cancel, done)

	root := app.RootWindow()
	require.NotNil(t, root)
	assert.Equal(t, testInitialURL, root.View().URL())
	assert.True(t, root.IsRoot())
	assert.True(t, root.Visible())
	assert.Equal(t, 1, app.WindowCount())
}

func TestHandleURLRoutesThroughRootWindow(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	cancel, done := startApp(t, app)
	defer waitRun(t, cancel, done)

	app.HandleURL("https://app.example.com/inbox")
	require.Eventually(t, func() bool {
		return app.RootWindow().View().URL() == "https://app.example.com/inbox"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOpenAndCloseChildWindow(t *testing.T) {
	cfg := testConfig(t)
	cfg.Navigation.LevelRules = []config.LevelRule{
		{Regex: `https://app\.example\.com/item/.*`, Level: 2},
		{Regex: `https://app\.example\.com/.*`, Level: 1},
	}
	app := newTestApp(t, cfg)
	cancel, done := startApp(t, app)
	defer waitRun(t, cancel, done)

	root := app.RootWindow()
	// Deeper level opens a child window.
	app.HandleURL("https://app.example.com/item/42")
	require.Eventually(t, func() bool { return app.WindowCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	var child *AppWindow
	app.mu.Lock()
	for _, w := range app.open {
		if w != root {
			child = w
		}
	}
	app.mu.Unlock()
	require.NotNil(t, child)
	require.Eventually(t, func() bool {
		return child.View() != nil && child.View().URL() == "https://app.example.com/item/42"
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, child.IsRoot())

	// Shallower navigation in the child pops back to the parent.
	child.View().LoadURL("https://app.example.com/list")
	require.Eventually(t, func() bool {
		return app.WindowCount() == 1 && root.View().URL() == "https://app.example.com/list"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseIsIdempotentAndLastWindowStopsRun(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	cancel, done := startApp(t, app)
	defer cancel()

	root := app.RootWindow()
	root.Close()
	root.Close()
	assert.Equal(t, 0, app.WindowCount())
	assert.Nil(t, root.View())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after last window closed")
	}
}

func TestWindowStateRestoredOnNextRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "webshell.db")
	dataDir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataDir)
	ctx := logging.WithContext(context.Background(), logging.NewFromConfigValues("debug", "console"))

	cfg := testConfig(t)
	cfg.Database.Path = dbPath

	first, err := NewApp(ctx, cfg, "test")
	require.NoError(t, err)
	cancel, done := startApp(t, first)
	first.HandleURL("https://app.example.com/settings")
	require.Eventually(t, func() bool {
		return first.RootWindow().View().URL() == "https://app.example.com/settings"
	}, 2*time.Second, 10*time.Millisecond)
	waitRun(t, cancel, done)

	second, err := NewApp(ctx, cfg, "test")
	require.NoError(t, err)
	defer second.Close()
	cancel2, done2 := startApp(t, second)
	defer waitRun(t, cancel2, done2)

	root := second.RootWindow()
	assert.Equal(t, "https://app.example.com/settings", root.View().URL())
	assert.True(t, root.View().CanGoBack())

	// The saved blob is consumed; a third run starts fresh.
	states, err := second.states.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestFirstLaunchDetection(t *testing.T) {
	dir := t.TempDir()

	id1, first, err := loadInstallationID(dir)
	require.NoError(t, err)
	assert.True(t, first)
	assert.NotEmpty(t, id1)

	id2, again, err := loadInstallationID(dir)
	require.NoError(t, err)
	assert.False(t, again)
	assert.Equal(t, id1, id2)
}

func TestDeviceInfoPayload(t *testing.T) {
	info := deviceInfoFunc("install-1", true, "1.2.3")()
	assert.Equal(t, "install-1", info["installationId"])
	assert.Equal(t, true, info["isFirstLaunch"])
	assert.Equal(t, "1.2.3", info["appVersion"])
	assert.NotEmpty(t, info["platform"])
}

func TestOfflineProbe(t *testing.T) {
	assert.False(t, offlineProbe("")())
	// Nothing listens on port 1.
	assert.True(t, offlineProbe("127.0.0.1:1")())
}

func TestCloseWindowWithResultHandsURLToParent(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	cancel, done := startApp(t, app)
	defer waitRun(t, cancel, done)

	root := app.RootWindow()
	app.queue.Post(func() {
		root.OpenNewWindow("https://app.example.com/child", window.LevelUnknown, "")
	})
	require.Eventually(t, func() bool { return app.WindowCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	var child *AppWindow
	app.mu.Lock()
	for _, w := range app.open {
		if w != root {
			child = w
		}
	}
	app.mu.Unlock()
	require.NotNil(t, child)

	child.CloseWindowWithResult("https://app.example.com/result", 1, "")
	require.Eventually(t, func() bool {
		return app.WindowCount() == 1 && root.View().URL() == "https://app.example.com/result"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, app.windows.URLLevel(root.WindowID()))
}

// otherWindow returns the open window that is not w.
func otherWindow(app *App, w *AppWindow) *AppWindow {
	app.mu.Lock()
	defer app.mu.Unlock()
	for _, o := range app.open {
		if o != w {
			return o
		}
	}
	return nil
}

func TestChildWindowSurvivesFirstLoadAtMaxWindows(t *testing.T) {
	cfg := testConfig(t)
	cfg.Windows = config.WindowsConfig{MaxWindowsEnabled: true, NumWindows: 2}
	cfg.Navigation.LevelRules = []config.LevelRule{
		{Regex: `https://app\.example\.com/item/.*`, Level: 2},
		{Regex: `https://app\.example\.com/.*`, Level: 1},
	}
	app := newTestApp(t, cfg)
	cancel, done := startApp(t, app)
	defer waitRun(t, cancel, done)

	root := app.RootWindow()

	// Opening the child fills the window limit; its own first load must not
	// pick itself as the excess window.
	app.HandleURL("https://app.example.com/item/42")
	require.Eventually(t, func() bool {
		child := otherWindow(app, root)
		return app.WindowCount() == 2 && child != nil && child.View() != nil &&
			child.View().URL() == "https://app.example.com/item/42"
	}, 2*time.Second, 10*time.Millisecond)

	assert.Never(t, func() bool { return app.WindowCount() != 2 },
		300*time.Millisecond, 25*time.Millisecond)
	assert.NotNil(t, app.RootWindow())
}

func TestInterceptedPageRendersNormalizedHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("<html><body>caf\xe9</body></html>"))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.App.InitialURL = srv.URL + "/"
	cfg.App.InitialHost = "127.0.0.1"
	cfg.Intercept.Enabled = true
	app := newTestApp(t, cfg)
	cancel, done := startApp(t, app)
	defer waitRun(t, cancel, done)

	view := app.RootWindow().View().(*webview.Headless)
	require.Eventually(t, func() bool {
		return strings.Contains(view.PageHTML(), "café")
	}, 2*time.Second, 10*time.Millisecond, "legacy-charset page arrives decoded to UTF-8")
}

func TestOfflinePageRendersEmbeddedAsset(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	cancel, done := startApp(t, app)
	defer waitRun(t, cancel, done)

	view := app.RootWindow().View().(*webview.Headless)
	view.LoadURLDirect(webview.OfflinePageURL)

	require.NotEmpty(t, assets.OfflinePage)
	assert.Equal(t, assets.OfflinePage, view.PageHTML())
}

func TestApplyConfigSwapsNavigationRules(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	cancel, done := startApp(t, app)
	defer waitRun(t, cancel, done)

	next := testConfig(t)
	next.Navigation.Redirects = map[string]string{
		"https://app.example.com/old": "https://app.example.com/new",
	}
	require.NoError(t, app.ApplyConfig(next))

	app.HandleURL("https://app.example.com/old")
	require.Eventually(t, func() bool {
		return app.RootWindow().View().URL() == "https://app.example.com/new"
	}, 2*time.Second, 10*time.Millisecond)

	// A broken snapshot is rejected and the applied rules stay in effect.
	bad := testConfig(t)
	bad.Navigation.RegexRules = []config.RegexRule{{Regex: "(", Mode: "internal"}}
	require.Error(t, app.ApplyConfig(bad))
	_, ok := app.rules.RedirectFor("https://app.example.com/old")
	assert.True(t, ok)
}

func TestBasicEngineSelectedByConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.App.WebviewEngine = "basic"
	app := newTestApp(t, cfg)
	cancel, done := startApp(t, app)
	defer waitRun(t, cancel, done)

	root := app.RootWindow()
	require.IsType(t, (*webview.Basic)(nil), root.View())
	assert.Equal(t, testInitialURL, root.View().URL())
}
