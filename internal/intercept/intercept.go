// Package intercept fetches internal pages over HTTP so their HTML can be
// normalized to UTF-8 before the webview renders it. Every failure is
// fail-open: callers fall back to a native load.
package intercept

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/morntool/webshell/internal/config"
	"github.com/morntool/webshell/internal/logging"
)

const (
	maxRedirects = 10
	maxBodyBytes = 10 << 20
)

// Result is a fetched, UTF-8-normalized HTML document. FinalURL differs from
// the requested URL when the server redirected.
type Result struct {
	HTML     string
	FinalURL string
	Charset  string
}

type uaRule struct {
	re *regexp.Regexp
	ua string
}

// Interceptor performs the fetch-and-normalize pass for URLs matching the
// current intercept target.
type Interceptor struct {
	client        *http.Client
	enabled       bool
	defaultUA     string
	uaRules       []uaRule
	customHeaders map[string]string

	mu           sync.Mutex
	interceptURL *url.URL
}

// New builds an Interceptor from config. User-agent rules with invalid
// regexes are rejected here rather than at match time.
func New(cfg config.InterceptConfig, app config.AppConfig) (*Interceptor, error) {
	i := &Interceptor{
		client: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		enabled:       cfg.Enabled,
		defaultUA:     app.UserAgent,
		customHeaders: app.CustomHeaders,
	}
	for _, r := range cfg.UserAgentRules {
		re, err := regexp.Compile(r.Regex)
		if err != nil {
			return nil, fmt.Errorf("compile user agent rule %q: %w", r.Regex, err)
		}
		i.uaRules = append(i.uaRules, uaRule{re: re, ua: r.UserAgent})
	}
	return i, nil
}

// SetInterceptURL records the page whose next load should be intercepted.
// Unparseable URLs clear the target.
func (i *Interceptor) SetInterceptURL(raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		u = nil
	}
	i.mu.Lock()
	i.interceptURL = u
	i.mu.Unlock()
}

// ShouldIntercept reports whether rawURL matches the recorded target. Hosts
// compare case-insensitively with an optional www prefix; paths compare
// ignoring a trailing slash.
func (i *Interceptor) ShouldIntercept(rawURL string) bool {
	if !i.enabled {
		return false
	}
	i.mu.Lock()
	target := i.interceptURL
	i.mu.Unlock()
	if target == nil {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return hostsMatch(target.Host, u.Host) && pathsMatch(target.Path, u.Path)
}

// UserAgentFor returns the user agent the rules assign to rawURL.
func (i *Interceptor) UserAgentFor(rawURL string) string {
	for _, r := range i.uaRules {
		if r.re.MatchString(rawURL) {
			return r.ua
		}
	}
	return i.defaultUA
}

// InterceptHTML fetches rawURL, following redirects manually, and returns the
// document decoded to UTF-8. A nil Result means load the URL natively: the
// response was not HTML, or the fetch failed. noCache forces revalidation,
// used on reloads.
func (i *Interceptor) InterceptHTML(ctx context.Context, rawURL, referer string, noCache bool) *Result {
	log := logging.FromContext(ctx)

	current := rawURL
	for redirects := 0; ; redirects++ {
		if redirects > maxRedirects {
			log.Warn().Str("url", rawURL).Msg("too many redirects, falling back to native load")
			return nil
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return nil
		}
		req.Header.Set("User-Agent", i.UserAgentFor(current))
		req.Header.Set("Accept", "text/html")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		if referer != "" {
			req.Header.Set("Referer", referer)
		}
		if noCache {
			req.Header.Set("Cache-Control", "no-cache")
		}
		for k, v := range i.customHeaders {
			req.Header.Set(k, v)
		}

		resp, err := i.client.Do(req)
		if err != nil {
			log.Debug().Err(err).Str("url", current).Msg("intercept fetch failed")
			return nil
		}

		switch resp.StatusCode {
		case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther, http.StatusTemporaryRedirect:
			next, err := resolveLocation(current, resp.Header.Get("Location"))
			resp.Body.Close()
			if err != nil {
				return nil
			}
			current = next
			continue
		}

		result, err := decodeHTML(resp, current)
		resp.Body.Close()
		if err != nil {
			if !errors.Is(err, errNotHTML) {
				log.Debug().Err(err).Str("url", current).Msg("intercept decode failed")
			}
			return nil
		}
		return result
	}
}

var errNotHTML = errors.New("response is not html")

func decodeHTML(resp *http.Response, finalURL string) (*Result, error) {
	contentType := resp.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "text/html" {
		return nil, errNotHTML
	}

	// charset.NewReader applies the WHATWG encoding lookup, so labels like
	// iso-8859-1 decode as windows-1252.
	r, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), contentType)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	cs := params["charset"]
	if cs == "" {
		cs = "utf-8"
	}
	return &Result{HTML: string(body), FinalURL: finalURL, Charset: strings.ToLower(cs)}, nil
}

func resolveLocation(base, location string) (string, error) {
	if location == "" {
		return "", errors.New("redirect without location")
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	loc, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(loc).String(), nil
}

func hostsMatch(a, b string) bool {
	a = strings.TrimPrefix(strings.ToLower(a), "www.")
	b = strings.TrimPrefix(strings.ToLower(b), "www.")
	return a == b
}

func pathsMatch(a, b string) bool {
	// An empty path and "/" are the same page.
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}
