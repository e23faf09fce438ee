package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/morntool/webshell/internal/config"
	"github.com/morntool/webshell/internal/logging"
	"github.com/morntool/webshell/internal/shell"
)

var runURL string

var runCmd = &cobra.Command{
	Use:   "run [url]",
	Short: "Start the shell",
	Long: `Start the shell on the configured initial URL.

If a URL argument is given it is delivered as a deep link once the root
window is up, the way an app link launch would arrive.

Examples:
  webshell run                                 # open the initial URL
  webshell run https://app.example.com/inbox   # deep link into the app`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(_ *cobra.Command, args []string) error {
	if len(args) > 0 {
		runURL = args[0]
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := newContext(cfg)
	log := logging.FromContext(ctx)

	app, err := shell.NewApp(ctx, cfg, version)
	if err != nil {
		return err
	}

	// Live-reload navigation config edits; structural changes still need a
	// restart.
	watcher := config.NewWatcher(configFilePath(), cfg)
	watcher.OnChange(func(next *config.Config) {
		if err := app.ApplyConfig(next); err != nil {
			log.Warn().Err(err).Msg("reloaded configuration rejected, keeping previous rules")
		}
	})
	if err := watcher.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("config watcher failed to start")
	}
	defer watcher.Close()

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if runURL != "" {
		app.SetLaunchURL(runURL)
	}
	return app.Run(runCtx)
}

func configFilePath() string {
	if cfgPath != "" {
		return cfgPath
	}
	return config.DefaultConfigPath()
}
