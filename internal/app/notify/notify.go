// Package notify derives user-facing notifications from task snapshot
// transitions. A notification fires exactly once, at the moment a task goes
// from running to any terminal state.
package notify

import (
	"fmt"
	"time"

	"github.com/fleetdeck/fleetdeck/internal/app/history"
	"github.com/fleetdeck/fleetdeck/internal/domain"
)

// Notification is the derived payload. Everything is computed from the
// "next" snapshot only.
type Notification struct {
	TaskID    string            `json:"task_id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Status    domain.TaskStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// Diff returns the notifications produced by the transition from prev to
// next. A task qualifies iff its id exists in both snapshots, its previous
// status was running, and its next status is terminal. Re-evaluating the
// same pair never re-fires: a task already terminal in prev cannot qualify.
func Diff(prev, next history.Snapshot, now time.Time) []Notification {
	var out []Notification
	for _, t := range next.Items {
		if !t.Status.IsTerminal() {
			continue
		}
		before, ok := prev.Get(t.ID)
		if !ok || before.Status != domain.StatusRunning {
			continue
		}
		out = append(out, Notification{
			TaskID:    t.ID,
			Title:     t.Title,
			Body:      summarize(t),
			Status:    t.Status,
			CreatedAt: now,
		})
	}
	return out
}

func summarize(t domain.Task) string {
	label := "completed"
	switch t.Status {
	case domain.StatusError:
		label = "failed"
	case domain.StatusCancelled:
		label = "cancelled"
	}
	c := t.DeviceOutcomes()
	body := fmt.Sprintf("%s: %d ok, %d failed, %d cancelled", label, c.Success, c.Error, c.Cancelled)
	if c.Running > 0 {
		body += fmt.Sprintf(", %d running", c.Running)
	}
	return fmt.Sprintf("%s of %d device(s)", body, c.Total())
}
