package webview

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/morntool/webshell/internal/config"
	"github.com/morntool/webshell/internal/logging"
)

// DisownPolicy describes whether a pooled webview reverts to the pool after
// being claimed for a URL.
type DisownPolicy int

const (
	// DisownAlways hands ownership to the claimant immediately.
	DisownAlways DisownPolicy = iota
	// DisownNever keeps the view pool-owned across hand-outs.
	DisownNever
	// DisownReload keeps the view pool-owned but only re-serves it when the
	// requested path differs from the page it currently shows.
	DisownReload
)

func (p DisownPolicy) String() string {
	switch p {
	case DisownAlways:
		return "always"
	case DisownNever:
		return "never"
	case DisownReload:
		return "reload"
	default:
		return "unknown"
	}
}

// ParseDisownPolicy maps a config string to a policy. Empty defaults to reload,
// matching the warm-page use case.
func ParseDisownPolicy(s string) DisownPolicy {
	switch s {
	case "always":
		return DisownAlways
	case "never":
		return DisownNever
	default:
		return DisownReload
	}
}

type poolEntry struct {
	url     string
	policy  DisownPolicy
	view    WebView
	claimed bool
	warmed  bool
}

// Pool maintains pre-warmed webview instances keyed by URL. A claimed
// instance is never handed to a second navigation decision until returned.
type Pool struct {
	mu      sync.Mutex
	factory func() WebView
	entries []*poolEntry
	busy    bool // a foreground load is in flight; defer warming
	closed  atomic.Bool
}

// NewPool creates a pool producing instances from factory.
func NewPool(factory func() WebView, entries []config.PoolEntryConfig) *Pool {
	p := &Pool{factory: factory}
	for _, e := range entries {
		policy := ParseDisownPolicy(e.Disown)
		for _, u := range e.URLs {
			p.entries = append(p.entries, &poolEntry{url: u, policy: policy})
		}
	}
	return p
}

// Prewarm creates and loads webviews for every configured entry.
func (p *Pool) Prewarm(ctx context.Context) error {
	log := logging.FromContext(ctx)

	p.mu.Lock()
	if p.busy || p.closed.Load() {
		p.mu.Unlock()
		return nil
	}
	var todo []*poolEntry
	for _, e := range p.entries {
		if e.view == nil && !e.claimed {
			todo = append(todo, e)
		}
	}
	p.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for _, e := range todo {
		entry := e
		g.Go(func() error {
			view := p.factory()
			view.LoadURLDirect(entry.url)
			p.mu.Lock()
			if p.closed.Load() || entry.view != nil {
				p.mu.Unlock()
				view.Destroy()
				return nil
			}
			entry.view = view
			entry.warmed = true
			p.mu.Unlock()
			log.Debug().Str("url", entry.url).Str("policy", entry.policy.String()).Msg("prewarmed pool webview")
			return nil
		})
	}
	return g.Wait()
}

// WebViewForURL returns the pooled instance serving url plus its disown
// policy, or nil when no unclaimed instance matches.
func (p *Pool) WebViewForURL(url string) (WebView, DisownPolicy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.view == nil || e.claimed || e.view.IsDestroyed() {
			continue
		}
		if urlsEqualIgnoreTrailing(e.url, url) {
			e.claimed = true
			return e.view, e.policy
		}
	}
	return nil, DisownReload
}

// DisownWebView converts a pool-owned instance to caller-owned: the pool
// forgets it and will warm a replacement.
func (p *Pool) DisownWebView(view WebView) {
	if view == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.view == view {
			e.view = nil
			e.claimed = false
			e.warmed = false
			return
		}
	}
}

// Release returns a claimed, still pool-owned instance to circulation.
func (p *Pool) Release(view WebView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.view == view {
			e.claimed = false
			return
		}
	}
}

// IsPooled reports whether view is currently pool-owned.
func (p *Pool) IsPooled(view WebView) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.view == view {
			return true
		}
	}
	return false
}

// OnStartedLoading pauses background warming while a foreground load runs.
func (p *Pool) OnStartedLoading() {
	p.mu.Lock()
	p.busy = true
	p.mu.Unlock()
}

// OnFinishedLoading resumes background warming.
func (p *Pool) OnFinishedLoading(ctx context.Context) {
	p.mu.Lock()
	p.busy = false
	p.mu.Unlock()
	_ = p.Prewarm(ctx)
}

// FlushAll destroys every pool-owned instance. Claimed instances are left to
// their current owners.
func (p *Pool) FlushAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.view != nil && !e.claimed {
			e.view.Destroy()
			e.view = nil
			e.warmed = false
		}
	}
}

// Close flushes the pool and rejects further warming.
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.FlushAll()
}

func urlsEqualIgnoreTrailing(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}
