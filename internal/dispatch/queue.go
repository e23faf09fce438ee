// Package dispatch models the platform UI thread: a single serialized queue
// owning all navigation state, with cancellable delayed tasks.
package dispatch

import (
	"sync"
	"sync/atomic"
	"time"
)

// CancelFunc cancels a pending delayed task. Safe to call more than once and
// after the task has run.
type CancelFunc func()

// Queue serializes work the way the platform main loop does. All navigation
// state mutations must happen on queue tasks.
type Queue interface {
	// Post schedules fn to run on the queue.
	Post(fn func())
	// PostDelayed schedules fn to run on the queue after d. The returned
	// CancelFunc removes it if it has not run yet.
	PostDelayed(d time.Duration, fn func()) CancelFunc
}

// Loop is the production Queue: one goroutine drains tasks in order.
type Loop struct {
	tasks  chan func()
	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewLoop starts a queue goroutine.
func NewLoop() *Loop {
	l := &Loop{tasks: make(chan func(), 256)}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for fn := range l.tasks {
			fn()
		}
	}()
	return l
}

// Post implements Queue. Tasks posted after Close are dropped.
func (l *Loop) Post(fn func()) {
	if l.closed.Load() {
		return
	}
	defer func() {
		// Racing a concurrent Close: dropping the task matches platform
		// behavior after the owning window is destroyed.
		_ = recover()
	}()
	l.tasks <- fn
}

// PostDelayed implements Queue.
func (l *Loop) PostDelayed(d time.Duration, fn func()) CancelFunc {
	var cancelled atomic.Bool
	timer := time.AfterFunc(d, func() {
		if cancelled.Load() {
			return
		}
		l.Post(func() {
			if !cancelled.Load() {
				fn()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		timer.Stop()
	}
}

// Close stops the loop after draining queued tasks.
func (l *Loop) Close() {
	if l.closed.Swap(true) {
		return
	}
	close(l.tasks)
	l.wg.Wait()
}

// Epoch invalidates stale deferred callbacks without tracking every timer
// handle: capture Current before scheduling, Advance on any superseding state
// transition, and drop the callback when Valid fails.
type Epoch struct {
	n atomic.Uint64
}

// Current returns the current generation.
func (e *Epoch) Current() uint64 { return e.n.Load() }

// Advance starts a new generation, invalidating callbacks captured earlier.
func (e *Epoch) Advance() uint64 { return e.n.Add(1) }

// Valid reports whether a captured generation is still current.
func (e *Epoch) Valid(gen uint64) bool { return e.n.Load() == gen }
