package navigation

import (
	"net/url"

	"github.com/tidwall/gjson"
)

// Bridge URL schemes handled natively instead of being loaded.
const (
	SchemeBridge       = "gonative-bridge"
	SchemeMedian       = "median"
	SchemeGoNativeLite = "gonative"
)

// BridgeCommand is one entry of a gonative-bridge command batch.
type BridgeCommand struct {
	Command string
	Data    gjson.Result
}

// ParseBridgeCommands extracts the command batch from a gonative-bridge URL.
// The commands travel as a JSON array in the json query parameter; malformed
// input yields an empty batch, never an error, because the URL was already
// consumed by claiming the navigation.
func ParseBridgeCommands(u *url.URL) []BridgeCommand {
	raw := u.Query().Get("json")
	if raw == "" || !gjson.Valid(raw) {
		return nil
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsArray() {
		return nil
	}
	var commands []BridgeCommand
	parsed.ForEach(func(_, entry gjson.Result) bool {
		if !entry.IsObject() {
			return true
		}
		cmd := entry.Get("command").Str
		if cmd == "" {
			return true
		}
		commands = append(commands, BridgeCommand{Command: cmd, Data: entry})
		return true
	})
	return commands
}

// BridgeHandler consumes median:// and gonative:// scheme URLs, the full
// native bridge surface beyond the navigation-owned commands.
type BridgeHandler interface {
	HandleBridgeURL(u *url.URL)
}

// BridgeHandlerFunc adapts a function to BridgeHandler.
type BridgeHandlerFunc func(u *url.URL)

// HandleBridgeURL implements BridgeHandler.
func (f BridgeHandlerFunc) HandleBridgeURL(u *url.URL) { f(u) }

// DeviceInfoFunc supplies the installation payload delivered to pages via the
// device info callbacks after each page finishes.
type DeviceInfoFunc func() map[string]any
