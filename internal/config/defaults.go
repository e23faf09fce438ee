package config

import (
	"path/filepath"

	"github.com/spf13/viper"
)

// setDefaults registers default values for all configuration keys.
func setDefaults(v *viper.Viper) {
	// app
	v.SetDefault("app.initial_url", "")
	v.SetDefault("app.user_agent", "")
	v.SetDefault("app.user_agent_add", "webshell")
	v.SetDefault("app.webview_engine", "full")
	v.SetDefault("app.app_link_domains", []string{})

	// navigation
	v.SetDefault("navigation.show_offline_page", false)
	v.SetDefault("navigation.connection_offline_time", 0.0)
	v.SetDefault("navigation.interactive_delay", 0.0)
	v.SetDefault("navigation.redirects", map[string]string{})

	// windows
	v.SetDefault("windows.max_windows_enabled", false)
	v.SetDefault("windows.num_windows", 0)
	v.SetDefault("windows.auto_close", false)

	// injection
	v.SetDefault("injection.inject_bridge_js", true)
	v.SetDefault("injection.initial_zoom", 0.0)
	v.SetDefault("injection.force_viewport_width", 0.0)

	// intercept
	v.SetDefault("intercept.enabled", false)

	// database
	v.SetDefault("database.path", filepath.Join(DefaultDataDir(), "webshell.db"))

	// logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 14)
	v.SetDefault("logging.compress", false)
}
