package shell

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/morntool/webshell/internal/navigation"
)

const installationIDFile = "installation_id"

// loadInstallationID returns the persistent installation identifier stored
// under dataDir, creating it on first run. The second return reports whether
// this run created it.
func loadInstallationID(dataDir string) (string, bool, error) {
	path := filepath.Join(dataDir, installationIDFile)
	if b, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(b)); id != "" {
			return id, false, nil
		}
	}
	id := uuid.NewString()
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return "", false, err
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", false, err
	}
	return id, true, nil
}

// deviceInfoFunc builds the callback payload delivered to trusted pages.
func deviceInfoFunc(installationID string, isFirstLaunch bool, appVersion string) navigation.DeviceInfoFunc {
	language := os.Getenv("LANG")
	if i := strings.IndexAny(language, "._"); i >= 0 {
		language = language[:i]
	}
	hostname, _ := os.Hostname()
	return func() map[string]any {
		return map[string]any{
			"platform":       runtime.GOOS,
			"os":             runtime.GOOS,
			"arch":           runtime.GOARCH,
			"model":          hostname,
			"appVersion":     appVersion,
			"language":       language,
			"installationId": installationID,
			"isFirstLaunch":  isFirstLaunch,
			"timeZone":       time.Now().Format("-07:00"),
		}
	}
}

// offlineProbe reports whether host is unreachable right now. host may carry
// a port; 443 is assumed otherwise.
func offlineProbe(host string) func() bool {
	if host == "" {
		return func() bool { return false }
	}
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, "443")
	}
	return func() bool {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err != nil {
			return true
		}
		conn.Close()
		return false
	}
}
