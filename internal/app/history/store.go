// Package history holds the ordered, bounded task collection and the pure
// state-transition functions that mutate it. Every reducer is total and
// idempotent under re-application: event delivery order across devices is
// not guaranteed and upstream pipes may redeliver, so each function only
// read-modify-writes the addressed task or device and never assumes prior
// state beyond a safe default.
package history

import (
	"time"

	"github.com/fleetdeck/fleetdeck/internal/domain"
)

// DefaultMaxItems is the history capacity used when none is configured.
const DefaultMaxItems = 50

// now is swapped out in tests.
var now = time.Now

// Snapshot is the bounded task collection, ordered newest-first. Reducers
// treat it as immutable: they return a new Snapshot and leave the receiver's
// backing data untouched, which keeps previous snapshots valid for diffing.
type Snapshot struct {
	MaxItems int
	Items    []domain.Task
}

// New returns an empty snapshot with the given capacity.
func New(maxItems int) Snapshot {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return Snapshot{MaxItems: maxItems}
}

// Get returns the task with the given id.
func (s Snapshot) Get(id string) (domain.Task, bool) {
	for _, t := range s.Items {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

// Add prepends the task and evicts the oldest entries beyond MaxItems.
func Add(s Snapshot, task domain.Task) Snapshot {
	items := make([]domain.Task, 0, len(s.Items)+1)
	items = append(items, task.Clone())
	items = append(items, s.Items...)
	if s.MaxItems > 0 && len(items) > s.MaxItems {
		items = items[:s.MaxItems]
	}
	return Snapshot{MaxItems: s.MaxItems, Items: items}
}

// SetTrace attaches a trace id to an existing task. No-op if the task has
// already rolled off the history.
func SetTrace(s Snapshot, id, traceID string) Snapshot {
	return patchTask(s, id, func(t domain.Task) domain.Task {
		t.TraceID = traceID
		return t
	})
}

// SetStatus sets the task-level status. A zero finishedAt means "now".
// Device entries are not touched.
//
// Transitions out of a terminal status are rejected: a finished task can
// still absorb late device metadata but never goes back to running, and a
// settled outcome is only overridden by error (the aggregator's escalation
// path). FinishedAt is written exactly once, at the transition that first
// sets a terminal status.
func SetStatus(s Snapshot, id string, status domain.TaskStatus, finishedAt time.Time) Snapshot {
	return patchTask(s, id, func(t domain.Task) domain.Task {
		if t.Status.IsTerminal() && status != domain.StatusError {
			return t
		}
		if t.Status.IsTerminal() && t.Status == status {
			return t
		}
		wasTerminal := t.Status.IsTerminal()
		t.Status = status
		if status.IsTerminal() && !wasTerminal && t.FinishedAt == nil {
			ts := finishedAt
			if ts.IsZero() {
				ts = now()
			}
			t.FinishedAt = &ts
		}
		return t
	})
}

// UpdateDevice merges the patch into the device entry for serial on the
// given task, creating a default running entry if the device has not been
// seen yet (tolerates late task/device binding). Other devices and the
// task-level status are never touched.
func UpdateDevice(s Snapshot, id, serial string, patch domain.DevicePatch) Snapshot {
	return patchTask(s, id, func(t domain.Task) domain.Task {
		entry, ok := t.Devices[serial]
		if !ok {
			entry = domain.DeviceTaskStatus{Serial: serial, Status: domain.StatusRunning}
		}
		t.Devices[serial] = patch.Apply(entry)
		return t
	})
}

// ClearCompleted retains only tasks whose task-level status is running.
func ClearCompleted(s Snapshot) Snapshot {
	items := make([]domain.Task, 0, len(s.Items))
	for _, t := range s.Items {
		if t.Status == domain.StatusRunning {
			items = append(items, t)
		}
	}
	return Snapshot{MaxItems: s.MaxItems, Items: items}
}

// ReplaceAll bulk-loads the collection, used on restore. A maxItems of zero
// keeps the current capacity.
func ReplaceAll(s Snapshot, items []domain.Task, maxItems int) Snapshot {
	if maxItems <= 0 {
		maxItems = s.MaxItems
	}
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	copied := make([]domain.Task, 0, len(items))
	for _, t := range items {
		copied = append(copied, t.Clone())
	}
	if len(copied) > maxItems {
		copied = copied[:maxItems]
	}
	return Snapshot{MaxItems: maxItems, Items: copied}
}

// patchTask rebuilds the item slice with fn applied to the task with the
// given id. Absent id is a no-op: the event may belong to a task that has
// rolled off the bounded history.
func patchTask(s Snapshot, id string, fn func(domain.Task) domain.Task) Snapshot {
	idx := -1
	for i, t := range s.Items {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return s
	}
	items := make([]domain.Task, len(s.Items))
	copy(items, s.Items)
	items[idx] = fn(items[idx].Clone())
	return Snapshot{MaxItems: s.MaxItems, Items: items}
}
