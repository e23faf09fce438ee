package dispatch

import (
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic Queue for tests and synchronous embedding: tasks
// run only when the owner pumps the queue, and delayed tasks fire against a
// synthetic clock advanced explicitly.
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	pending []func()
	timers  []*manualTimer
	seq     int
}

type manualTimer struct {
	at        time.Duration
	seq       int
	fn        func()
	cancelled bool
}

// NewManual creates an empty manual queue.
func NewManual() *Manual {
	return &Manual{}
}

// Post implements Queue.
func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	m.pending = append(m.pending, fn)
	m.mu.Unlock()
}

// PostDelayed implements Queue.
func (m *Manual) PostDelayed(d time.Duration, fn func()) CancelFunc {
	m.mu.Lock()
	t := &manualTimer{at: m.now + d, seq: m.seq, fn: fn}
	m.seq++
	m.timers = append(m.timers, t)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		t.cancelled = true
		m.mu.Unlock()
	}
}

// RunPending runs all immediately runnable tasks, including tasks they post,
// and returns the number executed.
func (m *Manual) RunPending() int {
	n := 0
	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			return n
		}
		fn := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()
		fn()
		n++
	}
}

// AdvanceTime moves the synthetic clock forward, firing due timers in order,
// then drains the queue.
func (m *Manual) AdvanceTime(d time.Duration) {
	m.mu.Lock()
	m.now += d
	now := m.now

	var due []*manualTimer
	var rest []*manualTimer
	for _, t := range m.timers {
		if !t.cancelled && t.at <= now {
			due = append(due, t)
		} else if !t.cancelled {
			rest = append(rest, t)
		}
	}
	m.timers = rest
	sort.Slice(due, func(i, j int) bool {
		if due[i].at != due[j].at {
			return due[i].at < due[j].at
		}
		return due[i].seq < due[j].seq
	})
	m.mu.Unlock()

	for _, t := range due {
		m.mu.Lock()
		cancelled := t.cancelled
		m.mu.Unlock()
		if !cancelled {
			t.fn()
		}
	}
	m.RunPending()
}
