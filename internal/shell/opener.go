package shell

import (
	"context"
	"errors"
	"net/url"
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/morntool/webshell/internal/logging"
	"github.com/morntool/webshell/internal/navigation"
)

// SystemOpener routes URLs to the desktop via xdg-open, the shell's analog
// of handing an intent to the platform.
type SystemOpener struct {
	log zerolog.Logger
}

// NewSystemOpener creates a SystemOpener logging through ctx.
func NewSystemOpener(ctx context.Context) *SystemOpener {
	return &SystemOpener{log: logging.FromContext(ctx).With().Str("component", "opener").Logger()}
}

// OpenExternalBrowser implements navigation.Shell.
func (o *SystemOpener) OpenExternalBrowser(u *url.URL, forceDefault bool) error {
	o.log.Info().Str("url", u.String()).Bool("force_default", forceDefault).Msg("opening external browser")
	return o.open(u)
}

// OpenAppBrowser implements navigation.Shell. Without an embedded browser
// surface the system browser stands in.
func (o *SystemOpener) OpenAppBrowser(u *url.URL) error {
	o.log.Info().Str("url", u.String()).Msg("opening app browser")
	return o.open(u)
}

// OpenCustomScheme implements navigation.Shell.
func (o *SystemOpener) OpenCustomScheme(u *url.URL) error {
	o.log.Info().Str("url", u.String()).Str("scheme", u.Scheme).Msg("opening custom scheme")
	return o.open(u)
}

func (o *SystemOpener) open(u *url.URL) error {
	cmd := exec.Command("xdg-open", u.String())
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return navigation.ErrNoHandler
		}
		return err
	}
	// Reap in the background; xdg-open's exit status reports whether a
	// handler existed.
	go func() {
		if err := cmd.Wait(); err != nil {
			o.log.Warn().Err(err).Str("url", u.String()).Msg("url handler exited with error")
		}
	}()
	return nil
}
