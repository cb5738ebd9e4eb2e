// Package logcat buffers the high-frequency per-device line stream and
// flushes it in fixed-interval batches into bounded per-device ring buffers.
// Coalescing caps the downstream update rate at roughly one batch per flush
// interval regardless of input rate (backpressure by batching, not by
// dropping), while the visible-buffer cap bounds memory independent of
// session length.
package logcat

import (
	"sync"
	"time"

	"github.com/fleetdeck/fleetdeck/internal/infra/metrics"
	"github.com/fleetdeck/fleetdeck/internal/infra/sched"
)

const (
	// DefaultFlushInterval is how long after the first pending line a flush
	// fires. Arrivals while armed only append; they do not re-arm.
	DefaultFlushInterval = 120 * time.Millisecond

	// DefaultMaxVisible caps the per-device visible ring buffer.
	DefaultMaxVisible = 2000
)

// Line is one visible log line. IDs are per-device, strictly increasing for
// the lifetime of the session, and survive a clear: anything anchored to a
// specific line (search-match scrolling) would corrupt if ids were reused.
type Line struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// Config tunes a Buffer. Zero values fall back to the defaults above.
type Config struct {
	FlushInterval time.Duration
	MaxVisible    int
	Timer         sched.Timer
	// OnFlush is invoked after each flush with the serials that received new
	// lines. May be nil. Called without the buffer lock held.
	OnFlush func(serials []string)
}

// Buffer is the coalescing pipeline. One flush timer serves all devices.
type Buffer struct {
	mu sync.Mutex

	interval   time.Duration
	maxVisible int
	timer      sched.Timer
	onFlush    func([]string)

	pending map[string][]string
	visible map[string][]Line
	nextID  map[string]int64
}

// New creates a Buffer.
func New(cfg Config) *Buffer {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.MaxVisible <= 0 {
		cfg.MaxVisible = DefaultMaxVisible
	}
	if cfg.Timer == nil {
		cfg.Timer = sched.NewTimer()
	}
	return &Buffer{
		interval:   cfg.FlushInterval,
		maxVisible: cfg.MaxVisible,
		timer:      cfg.Timer,
		onFlush:    cfg.OnFlush,
		pending:    make(map[string][]string),
		visible:    make(map[string][]Line),
		nextID:     make(map[string]int64),
	}
}

// Append records one inbound line for a device. The first pending line after
// a flush arms the timer; further arrivals only append.
func (b *Buffer) Append(serial, line string) {
	b.mu.Lock()
	b.pending[serial] = append(b.pending[serial], line)
	b.mu.Unlock()
	b.timer.Arm(b.interval, b.Flush)
}

// Flush assigns ids to all pending lines, moves them into the visible ring
// buffers, and truncates each buffer to the configured cap. Exposed so
// shutdown can drain without waiting for the timer.
func (b *Buffer) Flush() {
	b.mu.Lock()
	var touched []string
	var moved int
	for serial, lines := range b.pending {
		if len(lines) == 0 {
			continue
		}
		vis := b.visible[serial]
		id := b.nextID[serial]
		for _, text := range lines {
			id++
			vis = append(vis, Line{ID: id, Text: text})
		}
		b.nextID[serial] = id
		if len(vis) > b.maxVisible {
			vis = vis[len(vis)-b.maxVisible:]
		}
		b.visible[serial] = vis
		touched = append(touched, serial)
		moved += len(lines)
	}
	b.pending = make(map[string][]string)
	cb := b.onFlush
	b.mu.Unlock()

	if len(touched) > 0 {
		metrics.CoalesceFlushes.Inc()
		metrics.CoalesceLines.Add(float64(moved))
		if cb != nil {
			cb(touched)
		}
	}
}

// Lines returns a copy of the visible lines for a device, optionally only
// those with ids greater than after (pass 0 for all).
func (b *Buffer) Lines(serial string, after int64) []Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	vis := b.visible[serial]
	start := 0
	for start < len(vis) && vis[start].ID <= after {
		start++
	}
	out := make([]Line, len(vis)-start)
	copy(out, vis[start:])
	return out
}

// Clear wipes both the pending and visible buffers for a device. The id
// counter is deliberately kept so ids stay unique for the session.
func (b *Buffer) Clear(serial string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, serial)
	delete(b.visible, serial)
}

// Serials lists devices that currently have visible lines.
func (b *Buffer) Serials() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.visible))
	for serial := range b.visible {
		out = append(out, serial)
	}
	return out
}

// Stop cancels any pending flush. Pending lines stay buffered; a final
// Flush can still drain them.
func (b *Buffer) Stop() {
	b.timer.Stop()
}
