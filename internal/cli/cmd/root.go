// Package cmd provides the Cobra CLI commands for webshell.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/morntool/webshell/internal/config"
	"github.com/morntool/webshell/internal/logging"
)

var (
	cfgPath string
	verbose bool
	version = "dev"

	rootCmd = &cobra.Command{
		Use:   "webshell",
		Short: "Wrap a web app in a native-feeling navigation shell",
		Long: `Webshell wraps a single web application behind a navigation layer that
decides, per URL, whether a link loads in place, opens a structured child
window, or hands off to the system browser.

Features:
  - Internal/external URL classification with regex rule tables
  - Structured navigation levels mapped to window push/pop
  - Prewarmed webview pool for instant transitions
  - Out-of-band HTML interception with charset normalization
  - Offline fallback page with a connectivity timer
  - JavaScript bridge (median:// and gonative:// schemes)
  - Visit history and window state persisted in SQLite

Use 'webshell run' to start the shell, or explore the subcommands for
configuration and history operations.`,
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// SetVersion records the build version (called from main before Execute).
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default: XDG config dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// loadConfig reads the configured (or default) config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newContext builds the root context carrying the logger derived from cfg.
func newContext(cfg *config.Config) context.Context {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = lvl
	if cfg.Logging.Format != "" {
		logCfg.Format = cfg.Logging.Format
	}
	logCfg.Filename = cfg.Logging.Filename
	if cfg.Logging.MaxSize > 0 {
		logCfg.MaxSizeMB = cfg.Logging.MaxSize
	}
	if cfg.Logging.MaxBackups > 0 {
		logCfg.MaxBackups = cfg.Logging.MaxBackups
	}
	if cfg.Logging.MaxAge > 0 {
		logCfg.MaxAgeDays = cfg.Logging.MaxAge
	}
	logCfg.Compress = cfg.Logging.Compress
	return logging.WithContext(context.Background(), logging.New(logCfg))
}
