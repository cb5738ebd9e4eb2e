// Package recovery answers "which task of kind K should currently be shown"
// after a reload or an event-ordering anomaly.
package recovery

import (
	"github.com/fleetdeck/fleetdeck/internal/app/history"
	"github.com/fleetdeck/fleetdeck/internal/domain"
)

// Current picks the task of the given kind the control surface should
// display:
//
//  1. the preferred id, if it still refers to a task of that kind;
//  2. else the most recently started task of that kind that is still
//     running;
//  3. else the most recently started task of that kind regardless of status;
//  4. else none.
//
// Ties on StartedAt go to collection order (most recently added first).
func Current(s history.Snapshot, kind domain.TaskKind, preferredID string) (domain.Task, bool) {
	if preferredID != "" {
		if t, ok := s.Get(preferredID); ok && t.Kind == kind {
			return t, true
		}
	}

	if t, ok := newestOf(s, kind, stillRunning); ok {
		return t, true
	}
	return newestOf(s, kind, func(domain.Task) bool { return true })
}

// stillRunning treats a task-level terminal status with a device entry still
// marked running as running. That inconsistency can appear transiently when
// device events outrun the aggregator; recovery deliberately tolerates it
// instead of hiding the task.
// TODO: revisit once the upstream event pipe guarantees the aggregator runs
// before any task-level terminal write; then the device check can go.
func stillRunning(t domain.Task) bool {
	return t.Status == domain.StatusRunning || t.AnyDeviceRunning()
}

// newestOf scans in collection order (newest insertion first), so a strict
// StartedAt comparison makes ties resolve to the most recently added task.
func newestOf(s history.Snapshot, kind domain.TaskKind, match func(domain.Task) bool) (domain.Task, bool) {
	var best domain.Task
	found := false
	for _, t := range s.Items {
		if t.Kind != kind || !match(t) {
			continue
		}
		if !found || t.StartedAt.After(best.StartedAt) {
			best = t
			found = true
		}
	}
	return best, found
}
