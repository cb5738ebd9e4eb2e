package correlate

import "github.com/fleetdeck/fleetdeck/internal/domain"

// tally tracks completion of one fan-out task.
type tally struct {
	total        int
	seen         map[string]bool
	hasError     bool
	hasCancelled bool
}

// Aggregator defers the task-level terminal transition of a fan-out task
// until every addressed device has individually reached a terminal state.
// A task must never show a terminal status while any device entry is still
// running.
type Aggregator struct {
	pending map[string]*tally
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{pending: make(map[string]*tally)}
}

// Track begins counting outcomes for a task addressed to total devices.
// Re-tracking an already tracked task is a no-op so a redelivered dispatch
// cannot reset progress.
func (a *Aggregator) Track(taskID string, total int) {
	if total <= 0 {
		return
	}
	if _, ok := a.pending[taskID]; ok {
		return
	}
	a.pending[taskID] = &tally{total: total, seen: make(map[string]bool, total)}
}

// Resolve records one device's terminal status. When the last distinct
// device resolves it returns the final task status (error beats cancelled
// beats success) and discards the counter. Duplicate deliveries for a serial
// are counted once; non-terminal statuses and untracked tasks are ignored.
func (a *Aggregator) Resolve(taskID, serial string, status domain.TaskStatus) (domain.TaskStatus, bool) {
	t, ok := a.pending[taskID]
	if !ok || !status.IsTerminal() || t.seen[serial] {
		return "", false
	}
	t.seen[serial] = true
	switch status {
	case domain.StatusError:
		t.hasError = true
	case domain.StatusCancelled:
		t.hasCancelled = true
	}
	if len(t.seen) < t.total {
		return "", false
	}
	delete(a.pending, taskID)
	switch {
	case t.hasError:
		return domain.StatusError, true
	case t.hasCancelled:
		return domain.StatusCancelled, true
	default:
		return domain.StatusSuccess, true
	}
}

// Tracked reports whether the task still has unresolved devices.
func (a *Aggregator) Tracked(taskID string) bool {
	_, ok := a.pending[taskID]
	return ok
}
