package config

import (
	"fmt"
	"net/url"
	"regexp"
)

// Validate checks configuration consistency. It compiles every regex the
// navigation controller will later depend on so a bad rule table fails fast
// at startup rather than mid-navigation.
func (c *Config) Validate() error {
	if c.App.InitialURL != "" {
		u, err := url.Parse(c.App.InitialURL)
		if err != nil {
			return fmt.Errorf("app.initial_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("app.initial_url: unsupported scheme %q", u.Scheme)
		}
	}

	switch c.App.WebviewEngine {
	case "", "full", "basic":
	default:
		return fmt.Errorf("app.webview_engine: unknown engine %q", c.App.WebviewEngine)
	}

	for i, rule := range c.Navigation.RegexRules {
		if _, err := regexp.Compile(rule.Regex); err != nil {
			return fmt.Errorf("navigation.regex_rules[%d]: %w", i, err)
		}
		switch rule.Mode {
		case "internal", "app_browser", "external":
		default:
			return fmt.Errorf("navigation.regex_rules[%d]: unknown mode %q", i, rule.Mode)
		}
	}

	for i, rule := range c.Navigation.LevelRules {
		if _, err := regexp.Compile(rule.Regex); err != nil {
			return fmt.Errorf("navigation.level_rules[%d]: %w", i, err)
		}
	}

	for i, expr := range c.Navigation.IgnorePageFinishedRegexes {
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("navigation.ignore_page_finished_regexes[%d]: %w", i, err)
		}
	}

	for i, expr := range c.Injection.BridgeAllowList {
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("injection.bridge_allow_list[%d]: %w", i, err)
		}
	}

	for i, rule := range c.Intercept.UserAgentRules {
		if _, err := regexp.Compile(rule.Regex); err != nil {
			return fmt.Errorf("intercept.user_agent_rules[%d]: %w", i, err)
		}
	}

	if c.Windows.MaxWindowsEnabled && c.Windows.NumWindows < 0 {
		return fmt.Errorf("windows.num_windows must be >= 0")
	}

	if c.Navigation.ConnectionOfflineTime < 0 {
		return fmt.Errorf("navigation.connection_offline_time must be >= 0")
	}

	for i, entry := range c.Pool.Entries {
		switch entry.Disown {
		case "", "always", "never", "reload":
		default:
			return fmt.Errorf("pool.entries[%d]: unknown disown policy %q", i, entry.Disown)
		}
	}

	return nil
}
