// Package config provides configuration management for webshell with Viper integration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// File permission constants
const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Config represents the complete configuration for webshell.
type Config struct {
	App        AppConfig        `mapstructure:"app" yaml:"app"`
	Navigation NavigationConfig `mapstructure:"navigation" yaml:"navigation"`
	Windows    WindowsConfig    `mapstructure:"windows" yaml:"windows"`
	Injection  InjectionConfig  `mapstructure:"injection" yaml:"injection"`
	Intercept  InterceptConfig  `mapstructure:"intercept" yaml:"intercept"`
	Pool       PoolConfig       `mapstructure:"pool" yaml:"pool"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// AppConfig identifies the wrapped site and how requests present themselves.
type AppConfig struct {
	InitialURL     string            `mapstructure:"initial_url" yaml:"initial_url"`
	InitialHost    string            `mapstructure:"initial_host" yaml:"initial_host"`
	UserAgent      string            `mapstructure:"user_agent" yaml:"user_agent"`
	UserAgentAdd   string            `mapstructure:"user_agent_add" yaml:"user_agent_add"`
	WebviewEngine  string            `mapstructure:"webview_engine" yaml:"webview_engine"` // full | basic
	CustomHeaders  map[string]string `mapstructure:"custom_headers" yaml:"custom_headers"`
	AppLinkDomains []string          `mapstructure:"app_link_domains" yaml:"app_link_domains"`
}

// RegexRule classifies URLs matching Regex into a handling mode.
type RegexRule struct {
	Regex string `mapstructure:"regex" yaml:"regex"`
	Mode  string `mapstructure:"mode" yaml:"mode"` // internal | app_browser | external
}

// LevelRule maps URLs matching Regex to a structured navigation level.
type LevelRule struct {
	Regex string `mapstructure:"regex" yaml:"regex"`
	Level int    `mapstructure:"level" yaml:"level"`
}

// NavigationConfig drives the URL navigation controller.
type NavigationConfig struct {
	RegexRules                []RegexRule       `mapstructure:"regex_rules" yaml:"regex_rules"`
	LevelRules                []LevelRule       `mapstructure:"level_rules" yaml:"level_rules"`
	Redirects                 map[string]string `mapstructure:"redirects" yaml:"redirects"`
	LoginDetectionURL         string            `mapstructure:"login_detection_url" yaml:"login_detection_url"`
	LoginURL                  string            `mapstructure:"login_url" yaml:"login_url"`
	SignupURL                 string            `mapstructure:"signup_url" yaml:"signup_url"`
	ShowOfflinePage           bool              `mapstructure:"show_offline_page" yaml:"show_offline_page"`
	ConnectionOfflineTime     float64           `mapstructure:"connection_offline_time" yaml:"connection_offline_time"` // seconds; 0 disables the timer
	InteractiveDelay          float64           `mapstructure:"interactive_delay" yaml:"interactive_delay"`             // seconds; > 0 reveals the page at readyState interactive after this delay, otherwise at complete
	IgnorePageFinishedRegexes []string          `mapstructure:"ignore_page_finished_regexes" yaml:"ignore_page_finished_regexes"`
}

// WindowsConfig limits concurrent logical windows.
type WindowsConfig struct {
	MaxWindowsEnabled bool `mapstructure:"max_windows_enabled" yaml:"max_windows_enabled"`
	NumWindows        int  `mapstructure:"num_windows" yaml:"num_windows"`
	AutoClose         bool `mapstructure:"auto_close" yaml:"auto_close"`
}

// InjectionConfig controls content injected into loaded pages.
type InjectionConfig struct {
	CustomCSS          string   `mapstructure:"custom_css" yaml:"custom_css"` // base64
	CustomJS           string   `mapstructure:"custom_js" yaml:"custom_js"`   // base64
	InjectBridgeJS     bool     `mapstructure:"inject_bridge_js" yaml:"inject_bridge_js"`
	PostLoadJavascript string   `mapstructure:"post_load_javascript" yaml:"post_load_javascript"`
	BridgeAllowList    []string `mapstructure:"bridge_allow_list" yaml:"bridge_allow_list"` // regexes; empty means internal URLs only
	ForceViewportWidth float64  `mapstructure:"force_viewport_width" yaml:"force_viewport_width"`
	InitialZoom        float64  `mapstructure:"initial_zoom" yaml:"initial_zoom"`
}

// UserAgentRule overrides the user agent for URLs matching Regex.
type UserAgentRule struct {
	Regex     string `mapstructure:"regex" yaml:"regex"`
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
}

// InterceptConfig controls the out-of-band HTML interceptor.
type InterceptConfig struct {
	Enabled        bool            `mapstructure:"enabled" yaml:"enabled"`
	UserAgentRules []UserAgentRule `mapstructure:"user_agent_rules" yaml:"user_agent_rules"`
}

// PoolEntryConfig pre-warms pooled webviews for a URL set.
type PoolEntryConfig struct {
	URLs   []string `mapstructure:"urls" yaml:"urls"`
	Disown string   `mapstructure:"disown" yaml:"disown"` // always | never | reload
}

// PoolConfig configures the webview pool.
type PoolConfig struct {
	Entries []PoolEntryConfig `mapstructure:"entries" yaml:"entries"`
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// Load reads configuration from the given path, falling back to defaults for
// any missing keys. An empty path resolves the default config location.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = DefaultConfigPath()
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WEBSHELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine: run on defaults + env.
		if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// defaultUserAgentBase is the engine user agent before any customization.
const defaultUserAgentBase = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/605.1.15 (KHTML, like Gecko) webshell"

// applyDerived fills fields computed from others.
func (c *Config) applyDerived() {
	if c.App.InitialHost == "" && c.App.InitialURL != "" {
		if u, err := url.Parse(c.App.InitialURL); err == nil {
			c.App.InitialHost = u.Host
		}
	}
	// user_agent replaces the whole string; user_agent_add appends a token
	// to the engine default.
	if c.App.UserAgent == "" {
		c.App.UserAgent = defaultUserAgentBase
		if c.App.UserAgentAdd != "" {
			c.App.UserAgent += " " + c.App.UserAgentAdd
		}
	}
}

// DefaultConfigPath returns the default config file location under
// XDG_CONFIG_HOME (or ~/.config).
func DefaultConfigPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "webshell.yaml"
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "webshell", "config.yaml")
}

// DefaultDataDir returns the default data directory under XDG_DATA_HOME
// (or ~/.local/share).
func DefaultDataDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "webshell")
}
