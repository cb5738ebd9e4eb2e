// Package sched provides the single-handle, leading-edge timer discipline
// used for flush and debounce scheduling: one timer per key, armed on the
// first trigger after an idle period, with later triggers absorbed until it
// fires.
package sched

import (
	"sync"
	"time"
)

// Timer arms a callback once after a delay. Arming while already armed is a
// no-op, so a burst of triggers results in exactly one callback.
type Timer interface {
	// Arm schedules fn after d unless the timer is already armed.
	Arm(d time.Duration, fn func())
	// Armed reports whether a callback is pending.
	Armed() bool
	// Stop cancels any pending callback.
	Stop()
}

type wallTimer struct {
	mu    sync.Mutex
	t     *time.Timer
	armed bool
}

// NewTimer returns a wall-clock Timer. The callback runs on its own
// goroutine when the delay elapses.
func NewTimer() Timer {
	return &wallTimer{}
}

func (w *wallTimer) Arm(d time.Duration, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.armed {
		return
	}
	w.armed = true
	w.t = time.AfterFunc(d, func() {
		w.mu.Lock()
		w.armed = false
		w.mu.Unlock()
		fn()
	})
}

func (w *wallTimer) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

func (w *wallTimer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.t != nil {
		w.t.Stop()
	}
	w.armed = false
}

// Manual is a Timer fired explicitly by tests.
type Manual struct {
	fn    func()
	armed bool
}

// NewManual returns a test timer.
func NewManual() *Manual {
	return &Manual{}
}

// Arm records the callback unless already armed.
func (m *Manual) Arm(d time.Duration, fn func()) {
	if m.armed {
		return
	}
	m.armed = true
	m.fn = fn
}

// Armed reports whether Fire would run a callback.
func (m *Manual) Armed() bool { return m.armed }

// Stop drops the pending callback.
func (m *Manual) Stop() {
	m.armed = false
	m.fn = nil
}

// Fire runs the pending callback, if any, and disarms.
func (m *Manual) Fire() {
	if !m.armed {
		return
	}
	fn := m.fn
	m.armed = false
	m.fn = nil
	if fn != nil {
		fn()
	}
}
