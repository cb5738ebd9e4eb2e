// Package persist converts the in-memory task history to and from its
// size-bounded storage representation. Encode truncates free-form text and
// drops transient fields (progress, stdout, stderr) that are not needed for
// history display; Decode refuses pathological inputs outright and treats
// anything malformed as absent so a bad snapshot can never block startup.
// All three transforms are pure.
package persist

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetdeck/fleetdeck/internal/app/history"
	"github.com/fleetdeck/fleetdeck/internal/domain"
)

const (
	// MaxItemsFloor/Ceil clamp the persisted history capacity.
	MaxItemsFloor = 1
	MaxItemsCeil  = 200

	// Per-field truncation bounds for the persisted form.
	MaxTitleLen      = 160
	MaxMessageLen    = 240
	MaxOutputPathLen = 260

	// MaxPayloadLen is the decode-side size ceiling in bytes. Anything
	// larger is rejected before parsing.
	MaxPayloadLen = 800_000

	ellipsis = "…"
)

// State is the storage-bound projection of the task history.
type State struct {
	MaxItems int    `json:"max_items"`
	Items    []Item `json:"items"`
}

// Item is one persisted task.
type Item struct {
	ID         string            `json:"id"`
	TraceID    string            `json:"trace_id,omitempty"`
	Kind       string            `json:"kind"`
	Title      string            `json:"title"`
	Status     string            `json:"status"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Devices    map[string]Device `json:"devices"`
}

// Device is one persisted device entry. Progress, stdout and stderr are
// deliberately absent.
type Device struct {
	Serial     string `json:"serial"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
	ExitCode   *int   `json:"exit_code,omitempty"`
}

// Encode projects the snapshot into its persisted form and serializes it.
func Encode(s history.Snapshot) ([]byte, error) {
	state := State{
		MaxItems: clamp(s.MaxItems, MaxItemsFloor, MaxItemsCeil),
		Items:    make([]Item, 0, len(s.Items)),
	}
	for _, t := range s.Items {
		if len(state.Items) >= state.MaxItems {
			break
		}
		item := Item{
			ID:         t.ID,
			TraceID:    t.TraceID,
			Kind:       string(t.Kind),
			Title:      truncate(t.Title, MaxTitleLen),
			Status:     string(t.Status),
			StartedAt:  t.StartedAt,
			FinishedAt: t.FinishedAt,
			Devices:    make(map[string]Device, len(t.Devices)),
		}
		for serial, d := range t.Devices {
			item.Devices[serial] = Device{
				Serial:     d.Serial,
				Status:     string(d.Status),
				Message:    truncate(d.Message, MaxMessageLen),
				OutputPath: truncate(d.OutputPath, MaxOutputPathLen),
				ExitCode:   d.ExitCode,
			}
		}
		state.Items = append(state.Items, item)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	return data, nil
}

// Decode parses a persisted payload, returning nil for anything that should
// be treated as "no saved state": oversized input, malformed JSON, or a
// shape that fails validation. Recovery is discard-and-restart, never a
// partial repair.
func Decode(data []byte) *State {
	if len(data) == 0 || len(data) > MaxPayloadLen {
		return nil
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil
	}
	if state.MaxItems < MaxItemsFloor || state.MaxItems > MaxItemsCeil {
		return nil
	}
	for _, item := range state.Items {
		if item.ID == "" || !domain.TaskStatus(item.Status).Valid() {
			return nil
		}
		for _, d := range item.Devices {
			if !domain.TaskStatus(d.Status).Valid() {
				return nil
			}
		}
	}
	return &state
}

// Inflate reconstructs the runtime snapshot from a decoded state, filling
// the dropped fields with their zero defaults.
func Inflate(state *State) history.Snapshot {
	if state == nil {
		return history.New(0)
	}
	items := make([]domain.Task, 0, len(state.Items))
	for _, item := range state.Items {
		t := domain.Task{
			ID:         item.ID,
			TraceID:    item.TraceID,
			Kind:       domain.TaskKind(item.Kind),
			Title:      item.Title,
			Status:     domain.TaskStatus(item.Status),
			StartedAt:  item.StartedAt,
			FinishedAt: item.FinishedAt,
			Devices:    make(map[string]domain.DeviceTaskStatus, len(item.Devices)),
		}
		for serial, d := range item.Devices {
			t.Devices[serial] = domain.DeviceTaskStatus{
				Serial:     d.Serial,
				Status:     domain.TaskStatus(d.Status),
				Message:    d.Message,
				OutputPath: d.OutputPath,
				ExitCode:   d.ExitCode,
			}
		}
		items = append(items, t)
	}
	return history.ReplaceAll(history.New(state.MaxItems), items, state.MaxItems)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// truncate bounds s to max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + ellipsis
}
