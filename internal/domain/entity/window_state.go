// Package entity defines the persisted domain objects.
package entity

import "time"

// WindowState is the restorable snapshot of one window: its place in the
// window hierarchy plus the serialized engine state.
type WindowState struct {
	WindowID       string    `json:"window_id"`
	IsRoot         bool      `json:"is_root"`
	URLLevel       int       `json:"url_level"`
	ParentURLLevel int       `json:"parent_url_level"`
	ScrollX        int       `json:"scroll_x"`
	ScrollY        int       `json:"scroll_y"`
	WebViewState   []byte    `json:"webview_state,omitempty"`
	SavedAt        time.Time `json:"saved_at"`
}

// Visit is one aggregated entry of the visited-page history.
type Visit struct {
	URL           string    `json:"url"`
	VisitCount    int64     `json:"visit_count"`
	LastVisitedAt time.Time `json:"last_visited_at"`
}
