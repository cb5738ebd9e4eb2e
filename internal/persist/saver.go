package persist

import (
	"time"

	"github.com/fleetdeck/fleetdeck/internal/infra/sched"
)

// DefaultDebounce is how long after the last state change a write fires.
// Rapid update bursts collapse into a single write.
const DefaultDebounce = 1200 * time.Millisecond

// Saver debounces snapshot writes. The write callback reads current state
// at fire time, so changes arriving while the timer is armed are covered by
// the pending write.
type Saver struct {
	timer sched.Timer
	delay time.Duration
	write func()
}

// NewSaver creates a Saver around the given write callback. A zero delay
// uses DefaultDebounce; a nil timer uses the wall clock.
func NewSaver(delay time.Duration, timer sched.Timer, write func()) *Saver {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if timer == nil {
		timer = sched.NewTimer()
	}
	return &Saver{timer: timer, delay: delay, write: write}
}

// MarkDirty schedules a write unless one is already pending.
func (s *Saver) MarkDirty() {
	s.timer.Arm(s.delay, s.write)
}

// Flush cancels any pending timer and writes immediately. Used on shutdown.
func (s *Saver) Flush() {
	s.timer.Stop()
	s.write()
}
