// Package navigation implements the URL routing core: every load request is
// classified against the configured rule tables and either handled natively
// (bridge calls, external hand-off, window management) or passed to the
// webview.
package navigation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/morntool/webshell/internal/config"
)

// URL handling modes assigned by regex rules.
const (
	ModeInternal   = "internal"
	ModeAppBrowser = "app_browser"
	ModeExternal   = "external"
)

// LevelUnknown marks URLs no level rule matches.
const LevelUnknown = -1

type regexRule struct {
	re   *regexp.Regexp
	mode string
}

type levelRule struct {
	re    *regexp.Regexp
	level int
}

// ruleTables is one compiled, immutable snapshot of the rule configuration.
type ruleTables struct {
	initialURL        string
	initialHost       string
	initialURLHost    string
	appLinkDomains    []string
	regexRules        []regexRule
	levelRules        []levelRule
	redirects         map[string]string
	ignoreFinished    []*regexp.Regexp
	bridgeAllowList   []*regexp.Regexp
	loginURL          string
	signupURL         string
	loginDetectionURL string
}

// Ruleset holds the compiled navigation rule tables. Lookups are safe for
// concurrent use; Reload swaps the tables atomically so a config edit takes
// effect without restarting, with in-flight lookups keeping the tables they
// started with.
type Ruleset struct {
	tables atomic.Pointer[ruleTables]
}

// NewRuleset compiles the rule tables from config.
func NewRuleset(cfg *config.Config) (*Ruleset, error) {
	t, err := compileRules(cfg)
	if err != nil {
		return nil, err
	}
	rs := &Ruleset{}
	rs.tables.Store(t)
	return rs, nil
}

// Reload replaces the rule tables with ones compiled from cfg. On error the
// previous tables stay in effect.
func (rs *Ruleset) Reload(cfg *config.Config) error {
	t, err := compileRules(cfg)
	if err != nil {
		return err
	}
	rs.tables.Store(t)
	return nil
}

func compileRules(cfg *config.Config) (*ruleTables, error) {
	t := &ruleTables{
		initialURL:        cfg.App.InitialURL,
		initialHost:       strings.ToLower(cfg.App.InitialHost),
		appLinkDomains:    cfg.App.AppLinkDomains,
		redirects:         cfg.Navigation.Redirects,
		loginURL:          cfg.Navigation.LoginURL,
		signupURL:         cfg.Navigation.SignupURL,
		loginDetectionURL: cfg.Navigation.LoginDetectionURL,
	}

	if u, err := url.Parse(cfg.App.InitialURL); err == nil {
		t.initialURLHost = strings.ToLower(u.Hostname())
	}

	for _, r := range cfg.Navigation.RegexRules {
		re, err := regexp.Compile(r.Regex)
		if err != nil {
			return nil, fmt.Errorf("compile regex rule %q: %w", r.Regex, err)
		}
		t.regexRules = append(t.regexRules, regexRule{re: re, mode: r.Mode})
	}
	for _, r := range cfg.Navigation.LevelRules {
		re, err := regexp.Compile(r.Regex)
		if err != nil {
			return nil, fmt.Errorf("compile level rule %q: %w", r.Regex, err)
		}
		t.levelRules = append(t.levelRules, levelRule{re: re, level: r.Level})
	}
	for _, pattern := range cfg.Navigation.IgnorePageFinishedRegexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile ignore page finished regex %q: %w", pattern, err)
		}
		t.ignoreFinished = append(t.ignoreFinished, re)
	}
	for _, pattern := range cfg.Injection.BridgeAllowList {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile bridge allow list regex %q: %w", pattern, err)
		}
		t.bridgeAllowList = append(t.bridgeAllowList, re)
	}
	return t, nil
}

// InitialURL returns the app's configured start page.
func (rs *Ruleset) InitialURL() string { return rs.tables.Load().initialURL }

// LoginURL returns the configured login page.
func (rs *Ruleset) LoginURL() string { return rs.tables.Load().loginURL }

// SignupURL returns the configured signup page.
func (rs *Ruleset) SignupURL() string { return rs.tables.Load().signupURL }

// LoginDetectionURL returns the endpoint probed to determine login status, or
// "" when login detection is off.
func (rs *Ruleset) LoginDetectionURL() string { return rs.tables.Load().loginDetectionURL }

// Mode returns the handling mode of the first regex rule matching rawURL, or
// empty when none match.
func (rs *Ruleset) Mode(rawURL string) string {
	return rs.tables.Load().mode(rawURL)
}

func (t *ruleTables) mode(rawURL string) string {
	for _, r := range t.regexRules {
		if matchesFully(r.re, rawURL) {
			return r.mode
		}
	}
	return ""
}

// IsInternal reports whether rawURL belongs to the wrapped site. Only http
// and https URLs can be internal. Subdomains of the initial host count.
// When regex rules exist they take precedence, with one exception: a URL on
// the initial URL's own host stays internal even if a rule classifies it
// otherwise, so a misconfigured rule cannot route the app's own pages out of
// the webview.
func (rs *Ruleset) IsInternal(rawURL string) bool {
	t := rs.tables.Load()

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())

	if host != "" && t.initialHost != "" && hostWithin(host, t.initialHost) {
		return true
	}

	if len(t.regexRules) > 0 {
		if t.mode(rawURL) == ModeInternal {
			return true
		}
		if host != "" && t.initialURLHost != "" && hostWithin(host, t.initialURLHost) {
			return true
		}
		return false
	}

	return host != "" && t.initialHost != "" && hostWithin(host, t.initialHost)
}

// LevelForURL returns the structured navigation level of the first matching
// level rule, or LevelUnknown.
func (rs *Ruleset) LevelForURL(rawURL string) int {
	for _, r := range rs.tables.Load().levelRules {
		if matchesFully(r.re, rawURL) {
			return r.level
		}
	}
	return LevelUnknown
}

// RedirectFor looks up a configured redirect target for rawURL: an exact
// entry first, then the wildcard entry. Self-redirects are ignored.
func (rs *Ruleset) RedirectFor(rawURL string) (string, bool) {
	t := rs.tables.Load()
	if t.redirects == nil {
		return "", false
	}
	to, ok := t.redirects[rawURL]
	if !ok {
		to, ok = t.redirects["*"]
	}
	if !ok || to == rawURL {
		return "", false
	}
	return to, true
}

// IgnoresPageFinished reports whether page-finished processing is suppressed
// for rawURL.
func (rs *Ruleset) IgnoresPageFinished(rawURL string) bool {
	for _, re := range rs.tables.Load().ignoreFinished {
		if matchesFully(re, rawURL) {
			return true
		}
	}
	return false
}

// BridgeAllowed reports whether a page at currentURL may call the native
// bridge. With an allow list configured the URL must match an entry;
// otherwise any internal URL qualifies.
func (rs *Ruleset) BridgeAllowed(currentURL string) bool {
	t := rs.tables.Load()
	if len(t.bridgeAllowList) > 0 {
		for _, re := range t.bridgeAllowList {
			if matchesFully(re, currentURL) {
				return true
			}
		}
		return false
	}
	return rs.IsInternal(currentURL)
}

// IsAppLink reports whether rawURL's host is a configured app link domain.
func (rs *Ruleset) IsAppLink(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range rs.tables.Load().appLinkDomains {
		if host == strings.ToLower(d) {
			return true
		}
	}
	return false
}

// URLsMatchOnPath reports whether two URLs point at the same page: same host
// (a www prefix is ignored) and same path up to a trailing slash.
func URLsMatchOnPath(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	hostA := strings.TrimPrefix(strings.ToLower(ua.Hostname()), "www.")
	hostB := strings.TrimPrefix(strings.ToLower(ub.Hostname()), "www.")
	if hostA != hostB {
		return false
	}
	return strings.TrimSuffix(ua.Path, "/") == strings.TrimSuffix(ub.Path, "/")
}

// URLsMatchIgnoreTrailing reports whether two URLs are identical up to a
// trailing slash.
func URLsMatchIgnoreTrailing(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}

// matchesFully anchors the pattern the way the rule tables expect: the whole
// URL must match, not a substring.
func matchesFully(re *regexp.Regexp, s string) bool {
	loc := re.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

func hostWithin(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
