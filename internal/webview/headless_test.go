package webview

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morntool/webshell/internal/dispatch"
)

type recordingClient struct {
	override  func(view WebView, url string, isReload, isRedirect bool) bool
	started   []string
	finished  []string
	committed []string
	visited   []string
	errors    []string
}

func (c *recordingClient) ShouldOverrideURLLoading(view WebView, url string, isReload, isRedirect bool) bool {
	if c.override != nil {
		return c.override(view, url, isReload, isRedirect)
	}
	return false
}

func (c *recordingClient) OnPageStarted(url string) { c.started = append(c.started, url) }

func (c *recordingClient) OnPageFinished(view WebView, url string) {
	c.finished = append(c.finished, url)
}

func (c *recordingClient) OnPageCommitVisible(url string) { c.committed = append(c.committed, url) }

func (c *recordingClient) DoUpdateVisitedHistory(view WebView, url string, isReload bool) {
	c.visited = append(c.visited, url)
}

func (c *recordingClient) OnReceivedError(view WebView, errorCode int, description, failingURL string) {
	c.errors = append(c.errors, failingURL)
}

func (c *recordingClient) OnReceivedSSLError(view WebView, sslError SSLError, failingURL string) {
	c.errors = append(c.errors, failingURL)
}

func (c *recordingClient) OnFormResubmission(view WebView, dontResend, resend func()) {
	resend()
}

func TestHeadlessLoadURLConsultsClient(t *testing.T) {
	queue := dispatch.NewManual()
	client := &recordingClient{
		override: func(_ WebView, url string, _, _ bool) bool {
			return url == "https://blocked.example.com/"
		},
	}
	view := NewHeadless(client, queue)

	view.LoadURL("https://blocked.example.com/")
	assert.Empty(t, view.URL(), "blocked load must not reach the engine")

	view.LoadURL("https://example.com/")
	assert.Equal(t, "https://example.com/", view.URL())
}

func TestHeadlessLoadURLJavascriptRunsDirectly(t *testing.T) {
	client := &recordingClient{
		override: func(WebView, string, bool, bool) bool { return true },
	}
	view := NewHeadless(client, dispatch.NewManual())

	view.LoadURL("javascript:doThing()")

	require.Len(t, view.ExecutedScripts(), 1)
	assert.Equal(t, "doThing()", view.ExecutedScripts()[0])
	assert.Empty(t, view.URL())
}

func TestHeadlessOfflineAliasNormalized(t *testing.T) {
	view := NewHeadless(&recordingClient{}, dispatch.NewManual())
	view.LoadURL(OfflinePageURLRaw)
	assert.Equal(t, OfflinePageURL, view.URL())
}

func TestHeadlessAutoCompleteLifecycleOrder(t *testing.T) {
	queue := dispatch.NewManual()
	client := &recordingClient{}
	view := NewHeadless(client, queue, WithAutoComplete())

	view.LoadURL("https://example.com/")
	queue.RunPending()

	assert.Equal(t, []string{"https://example.com/"}, client.started)
	assert.Equal(t, []string{"https://example.com/"}, client.visited)
	assert.Equal(t, []string{"https://example.com/"}, client.committed)
	assert.Equal(t, []string{"https://example.com/"}, client.finished)
}

func TestHeadlessHistorySkipsOfflinePage(t *testing.T) {
	view := NewHeadless(&recordingClient{}, dispatch.NewManual())
	view.LoadURLDirect("https://example.com/a")
	view.LoadURLDirect(OfflinePageURL)

	require.True(t, view.CanGoBack())
	view.GoBack()
	assert.Equal(t, "https://example.com/a", view.URL())

	// Forward traversal skips the interposed offline page.
	view.LoadURLDirect(OfflinePageURL)
	view.LoadURLDirect("https://example.com/b")
	view.GoBack()
	assert.Equal(t, "https://example.com/a", view.URL())
	require.True(t, view.CanGoForward())
	view.GoForward()
	assert.Equal(t, "https://example.com/b", view.URL())
}

func TestHeadlessGoBackReentersClientDecision(t *testing.T) {
	var decided []string
	client := &recordingClient{
		override: func(_ WebView, url string, _, _ bool) bool {
			decided = append(decided, url)
			return false
		},
	}
	view := NewHeadless(client, dispatch.NewManual())
	view.LoadURLDirect("https://example.com/a")
	view.LoadURLDirect("https://example.com/b")

	view.GoBack()

	assert.Equal(t, []string{"https://example.com/a"}, decided)
	assert.Equal(t, "https://example.com/a", view.URL())
}

func TestHeadlessFreshLoadTruncatesForwardHistory(t *testing.T) {
	view := NewHeadless(&recordingClient{}, dispatch.NewManual())
	view.LoadURLDirect("https://example.com/a")
	view.LoadURLDirect("https://example.com/b")
	view.GoBack()
	view.LoadURLDirect("https://example.com/c")

	assert.False(t, view.CanGoForward())
	view.GoBack()
	assert.Equal(t, "https://example.com/a", view.URL())
}

func TestHeadlessSaveRestoreState(t *testing.T) {
	view := NewHeadless(&recordingClient{}, dispatch.NewManual())
	view.LoadURLDirect("https://example.com/a")
	view.LoadURLDirect("https://example.com/b")
	view.ScrollTo(0, 420)
	view.SetZoom(1.5)

	blob, err := view.SaveState()
	require.NoError(t, err)

	restored := NewHeadless(&recordingClient{}, dispatch.NewManual())
	require.NoError(t, restored.RestoreState(blob))

	assert.Equal(t, "https://example.com/b", restored.URL())
	assert.Equal(t, 420, restored.ScrollY())
	assert.Equal(t, 1.5, restored.Zoom())
	assert.True(t, restored.CanGoBack())
}

func TestHeadlessShouldReloadPageConsumesMarker(t *testing.T) {
	view := NewHeadless(&recordingClient{}, dispatch.NewManual())
	view.LoadURLDirect("https://example.com/a")
	view.LoadURLDirect(OfflinePageURL)

	view.ReloadFromOfflinePage()
	require.Equal(t, "https://example.com/a", view.URL())

	assert.True(t, view.ShouldReloadPage("https://example.com/a"))
	// The marker is one-shot.
	assert.False(t, view.ShouldReloadPage("https://example.com/a"))
	assert.False(t, view.ShouldReloadPage("https://example.com/other"))
}

func TestHeadlessDestroyDropsScripts(t *testing.T) {
	view := NewHeadless(&recordingClient{}, dispatch.NewManual())
	view.Destroy()

	view.RunJavaScript("window.x = 1")
	view.LoadURL("https://example.com/")

	assert.True(t, view.IsDestroyed())
	assert.Empty(t, view.ExecutedScripts())
	assert.Empty(t, view.URL())
}

func TestBasicCapabilities(t *testing.T) {
	client := &recordingClient{
		override: func(_ WebView, url string, _, _ bool) bool {
			return url == "https://blocked.example.com/"
		},
	}
	view := NewBasic(client)

	view.LoadURL("https://blocked.example.com/")
	assert.Empty(t, view.URL())

	view.LoadURL("https://example.com/")
	assert.Equal(t, "https://example.com/", view.URL())
	assert.False(t, view.CanGoBack())

	_, err := view.SaveState()
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.ErrorIs(t, view.RestoreState(nil), ErrUnsupported)
}

func TestEngineLoadConsultsInterceptHook(t *testing.T) {
	var calls atomic.Int32
	view := NewHeadless(nil, dispatch.NewManual(), WithInterceptFunc(func(url string, noCache bool) (string, bool) {
		calls.Add(1)
		if url == "https://example.com/page" {
			return "<html>normalized</html>", true
		}
		return "", false
	}))

	view.LoadURLDirect("https://example.com/page")
	require.Eventually(t, func() bool {
		return view.PageHTML() == "<html>normalized</html>"
	}, time.Second, 5*time.Millisecond)

	// A miss falls back to the native load with no document of its own.
	view.LoadURLDirect("https://example.com/other")
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, view.PageHTML())
}

func TestOfflinePageRendersConfiguredDocument(t *testing.T) {
	view := NewHeadless(nil, dispatch.NewManual(), WithOfflinePage("<html>offline</html>"))

	view.LoadURLDirect(OfflinePageURL)
	assert.Equal(t, "<html>offline</html>", view.PageHTML())

	view.LoadURLDirect("https://example.com/")
	assert.Empty(t, view.PageHTML())
}
