package webview

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morntool/webshell/internal/config"
	"github.com/morntool/webshell/internal/dispatch"
)

func newTestPool(t *testing.T, entries []config.PoolEntryConfig) *Pool {
	t.Helper()
	pool := NewPool(func() WebView {
		return NewHeadless(nil, dispatch.NewManual())
	}, entries)
	require.NoError(t, pool.Prewarm(context.Background()))
	return pool
}

func TestPoolClaimedInstanceNotHandedOutTwice(t *testing.T) {
	pool := newTestPool(t, []config.PoolEntryConfig{
		{URLs: []string{"https://example.com/warm"}, Disown: "never"},
	})

	first, policy := pool.WebViewForURL("https://example.com/warm")
	require.NotNil(t, first)
	assert.Equal(t, DisownNever, policy)

	second, _ := pool.WebViewForURL("https://example.com/warm")
	assert.Nil(t, second, "claimed instance must stay exclusive")

	pool.Release(first)
	third, _ := pool.WebViewForURL("https://example.com/warm")
	assert.Same(t, first, third)
}

func TestPoolMatchesIgnoringTrailingSlash(t *testing.T) {
	pool := newTestPool(t, []config.PoolEntryConfig{
		{URLs: []string{"https://example.com/warm/"}, Disown: "always"},
	})

	view, policy := pool.WebViewForURL("https://example.com/warm")
	require.NotNil(t, view)
	assert.Equal(t, DisownAlways, policy)
}

func TestPoolDisownForgetsInstance(t *testing.T) {
	pool := newTestPool(t, []config.PoolEntryConfig{
		{URLs: []string{"https://example.com/warm"}, Disown: "always"},
	})

	view, _ := pool.WebViewForURL("https://example.com/warm")
	require.NotNil(t, view)
	pool.DisownWebView(view)

	assert.False(t, pool.IsPooled(view))
	again, _ := pool.WebViewForURL("https://example.com/warm")
	assert.Nil(t, again)

	// A new warm-up pass replaces the disowned instance.
	require.NoError(t, pool.Prewarm(context.Background()))
	replacement, _ := pool.WebViewForURL("https://example.com/warm")
	require.NotNil(t, replacement)
	assert.NotSame(t, view, replacement)
}

func TestPoolDefersWarmingWhileLoading(t *testing.T) {
	pool := NewPool(func() WebView {
		return NewHeadless(nil, dispatch.NewManual())
	}, []config.PoolEntryConfig{
		{URLs: []string{"https://example.com/warm"}},
	})

	pool.OnStartedLoading()
	require.NoError(t, pool.Prewarm(context.Background()))
	view, _ := pool.WebViewForURL("https://example.com/warm")
	assert.Nil(t, view, "no warming during a foreground load")

	pool.OnFinishedLoading(context.Background())
	view, policy := pool.WebViewForURL("https://example.com/warm")
	require.NotNil(t, view)
	assert.Equal(t, DisownReload, policy, "disown defaults to reload")
}

func TestPoolFlushDestroysUnclaimed(t *testing.T) {
	pool := newTestPool(t, []config.PoolEntryConfig{
		{URLs: []string{"https://example.com/a", "https://example.com/b"}, Disown: "never"},
	})

	claimed, _ := pool.WebViewForURL("https://example.com/a")
	require.NotNil(t, claimed)

	pool.FlushAll()

	assert.False(t, claimed.IsDestroyed(), "claimed instance survives a flush")
	other, _ := pool.WebViewForURL("https://example.com/b")
	assert.Nil(t, other)
}

func TestParseDisownPolicy(t *testing.T) {
	assert.Equal(t, DisownAlways, ParseDisownPolicy("always"))
	assert.Equal(t, DisownNever, ParseDisownPolicy("never"))
	assert.Equal(t, DisownReload, ParseDisownPolicy("reload"))
	assert.Equal(t, DisownReload, ParseDisownPolicy(""))
}
