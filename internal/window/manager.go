// Package window tracks open webview windows, their navigation levels, and
// the max-windows limit with its two reconciliation strategies.
package window

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ID identifies an open window.
type ID string

// NewID allocates a window identifier.
func NewID() ID { return ID(uuid.NewString()) }

// LevelUnknown is the url level of windows that never received one.
const LevelUnknown = -1

type window struct {
	id             ID
	seq            uint64
	root           bool
	urlLevel       int
	parentURLLevel int
	closeRequested func()

	// set when the window's next load must skip the max-windows check,
	// so a freshly spawned window cannot evict itself.
	ignoreIntercept bool
}

// Manager owns the window registry. All methods are safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	windows map[ID]*window
	seq     uint64

	maxEnabled bool
	numWindows int
	autoClose  bool

	// windows asked to close but not yet removed; draining the set fires
	// the excess-closed listener so a deferred load can proceed.
	notified       map[ID]bool
	onExcessClosed func()

	log zerolog.Logger
}

// NewManager creates a Manager enforcing the given limit. numWindows <= 0 or
// maxEnabled false disables the limit.
func NewManager(maxEnabled bool, numWindows int, autoClose bool, log zerolog.Logger) *Manager {
	return &Manager{
		windows:    make(map[ID]*window),
		notified:   make(map[ID]bool),
		maxEnabled: maxEnabled && numWindows > 0,
		numWindows: numWindows,
		autoClose:  autoClose,
		log:        log.With().Str("component", "window").Logger(),
	}
}

// AutoClose reports which reconciliation strategy is configured.
func (m *Manager) AutoClose() bool { return m.autoClose }

// AddWindow registers a window. closeRequested is invoked, outside the
// manager lock, when the window is asked to close itself.
func (m *Manager) AddWindow(isRoot bool, closeRequested func()) ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := NewID()
	m.seq++
	m.windows[id] = &window{
		id:             id,
		seq:            m.seq,
		root:           isRoot,
		urlLevel:       LevelUnknown,
		parentURLLevel: LevelUnknown,
		closeRequested: closeRequested,
	}
	m.log.Debug().Str("window_id", string(id)).Bool("root", isRoot).Int("count", len(m.windows)).Msg("window added")
	return id
}

// RemoveWindow unregisters a window. If the window had been asked to close
// and this removal drains the notified set, the excess-closed listener fires.
func (m *Manager) RemoveWindow(id ID) {
	m.mu.Lock()
	delete(m.windows, id)
	var fire func()
	if m.notified[id] {
		delete(m.notified, id)
		if len(m.notified) == 0 {
			fire = m.onExcessClosed
			m.onExcessClosed = nil
		}
	}
	count := len(m.windows)
	m.mu.Unlock()

	m.log.Debug().Str("window_id", string(id)).Int("count", count).Msg("window removed")
	if fire != nil {
		fire()
	}
}

// WindowCount returns the number of registered windows.
func (m *Manager) WindowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// SetURLLevels records the navigation levels of a window.
func (m *Manager) SetURLLevels(id ID, urlLevel, parentURLLevel int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.windows[id]; ok {
		w.urlLevel = urlLevel
		w.parentURLLevel = parentURLLevel
	}
}

// URLLevel returns the window's url level, LevelUnknown when unset.
func (m *Manager) URLLevel(id ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.windows[id]; ok {
		return w.urlLevel
	}
	return LevelUnknown
}

// ParentURLLevel returns the url level of the window that spawned this one.
func (m *Manager) ParentURLLevel(id ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.windows[id]; ok {
		return w.parentURLLevel
	}
	return LevelUnknown
}

// IsRoot reports whether the window is the designated root.
func (m *Manager) IsRoot(id ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[id]
	return ok && w.root
}

// SetAsNewRoot promotes the window to root and demotes every other window.
func (m *Manager) SetAsNewRoot(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.windows {
		w.root = w.id == id
	}
}

// MaxWindowsEnabled reports whether a window limit is configured.
func (m *Manager) MaxWindowsEnabled() bool { return m.maxEnabled }

// MaxWindowsReached reports whether opening another window would exceed the
// configured limit.
func (m *Manager) MaxWindowsReached() bool {
	if !m.maxEnabled {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows) >= m.numWindows
}

// ExcessWindow returns the oldest non-root window, the eviction candidate
// when the limit is hit without auto-close.
func (m *Manager) ExcessWindow() (ID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *window
	for _, w := range m.windows {
		if w.root {
			continue
		}
		if oldest == nil || w.seq < oldest.seq {
			oldest = w
		}
	}
	if oldest == nil {
		return "", false
	}
	return oldest.id, true
}

// SetOnExcessWindowClosedListener registers a one-shot listener fired when
// every window notified by NotifyMaxWindowsReached has been removed. A nil
// listener clears a pending one.
func (m *Manager) SetOnExcessWindowClosedListener(fn func()) {
	m.mu.Lock()
	m.onExcessClosed = fn
	m.mu.Unlock()
}

// NotifyMaxWindowsReached asks windows to close. An empty target notifies
// every non-root window; otherwise only the named window. Notified windows
// enter the pending set drained by RemoveWindow.
func (m *Manager) NotifyMaxWindowsReached(target ID) {
	m.mu.Lock()
	var callbacks []func()
	for _, w := range m.windows {
		if target == "" && w.root {
			continue
		}
		if target != "" && w.id != target {
			continue
		}
		m.notified[w.id] = true
		if w.closeRequested != nil {
			callbacks = append(callbacks, w.closeRequested)
		}
	}
	pending := len(m.notified)
	m.mu.Unlock()

	m.log.Info().Str("target", string(target)).Int("pending", pending).Msg("max windows reached, closing excess")
	for _, cb := range callbacks {
		cb()
	}
}

// HasPendingCloses reports whether notified windows are still open.
func (m *Manager) HasPendingCloses() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notified) > 0
}

// SetIgnoreInterceptMaxWindows toggles the window's one-shot flag suppressing
// max-windows handling: set on a window spawned while the limit is active and
// on the survivor of an auto-close reconciliation.
func (m *Manager) SetIgnoreInterceptMaxWindows(id ID, v bool) {
	m.mu.Lock()
	if w, ok := m.windows[id]; ok {
		w.ignoreIntercept = v
	}
	m.mu.Unlock()
}

// IgnoreInterceptMaxWindows reports whether max-windows handling is
// suppressed for the window.
func (m *Manager) IgnoreInterceptMaxWindows(id ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[id]
	return ok && w.ignoreIntercept
}
