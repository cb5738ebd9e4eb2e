// Package domain defines the core FleetDeck types: tasks, per-device task
// status, and the typed events exchanged with the execution layer.
package domain

import "time"

// TaskStatus tracks the lifecycle of a task, or of one device's share of it.
type TaskStatus string

const (
	StatusRunning   TaskStatus = "running"
	StatusSuccess   TaskStatus = "success"
	StatusError     TaskStatus = "error"
	StatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether s is a final status. Running is the only
// non-terminal state.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusCancelled
}

// Valid reports whether s is one of the four known statuses.
func (s TaskStatus) Valid() bool {
	return s == StatusRunning || s.IsTerminal()
}

// TaskKind categorizes the operation issued to the fleet.
type TaskKind string

const (
	KindShell       TaskKind = "shell"
	KindInstall     TaskKind = "install"
	KindBugreport   TaskKind = "bugreport"
	KindScreenshot  TaskKind = "screenshot"
	KindRecordStart TaskKind = "record-start"
	KindRecordStop  TaskKind = "record-stop"
	KindFilePull    TaskKind = "file-pull"
	KindFilePush    TaskKind = "file-push"
	KindFileMkdir   TaskKind = "file-mkdir"
	KindFileRename  TaskKind = "file-rename"
	KindFileDelete  TaskKind = "file-delete"
)

// SerialScoped reports whether operations of this kind are correlated by
// device serial for their whole duration. A serial can be mid-flight in at
// most one such operation per kind at a time, so the serial itself is a
// sufficient correlation key while the operation runs.
func (k TaskKind) SerialScoped() bool {
	return k == KindBugreport || k == KindRecordStart || k == KindRecordStop
}

// DeviceTaskStatus is one device's contribution to a task. Everything except
// the serial and status is optional and filled in as events arrive.
type DeviceTaskStatus struct {
	Serial     string     `json:"serial"`
	Status     TaskStatus `json:"status"`
	Progress   *int       `json:"progress,omitempty"` // 0..100
	Message    string     `json:"message,omitempty"`
	OutputPath string     `json:"output_path,omitempty"`
	Stdout     string     `json:"stdout,omitempty"`
	Stderr     string     `json:"stderr,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
}

// Task is one logical multi-device operation with a single overall outcome.
// The device membership set is fixed at creation.
type Task struct {
	ID         string                      `json:"id"`
	TraceID    string                      `json:"trace_id,omitempty"`
	Kind       TaskKind                    `json:"kind"`
	Title      string                      `json:"title"`
	Status     TaskStatus                  `json:"status"`
	StartedAt  time.Time                   `json:"started_at"`
	FinishedAt *time.Time                  `json:"finished_at,omitempty"`
	Devices    map[string]DeviceTaskStatus `json:"devices"`
}

// Clone returns a deep copy of the task. Reducers clone before mutating so
// previous snapshots stay valid for diffing.
func (t Task) Clone() Task {
	out := t
	if t.FinishedAt != nil {
		ts := *t.FinishedAt
		out.FinishedAt = &ts
	}
	out.Devices = make(map[string]DeviceTaskStatus, len(t.Devices))
	for serial, d := range t.Devices {
		out.Devices[serial] = d.clone()
	}
	return out
}

func (d DeviceTaskStatus) clone() DeviceTaskStatus {
	out := d
	if d.Progress != nil {
		p := *d.Progress
		out.Progress = &p
	}
	if d.ExitCode != nil {
		c := *d.ExitCode
		out.ExitCode = &c
	}
	return out
}

// AnyDeviceRunning reports whether at least one device entry is still running.
func (t Task) AnyDeviceRunning() bool {
	for _, d := range t.Devices {
		if d.Status == StatusRunning {
			return true
		}
	}
	return false
}

// OutcomeCounts is the per-status tally over a task's fixed device set.
type OutcomeCounts struct {
	Success   int `json:"success"`
	Error     int `json:"error"`
	Cancelled int `json:"cancelled"`
	Running   int `json:"running"`
}

// Total returns the size of the device set.
func (c OutcomeCounts) Total() int {
	return c.Success + c.Error + c.Cancelled + c.Running
}

// DeviceOutcomes tallies device statuses over the task's device set.
func (t Task) DeviceOutcomes() OutcomeCounts {
	var c OutcomeCounts
	for _, d := range t.Devices {
		switch d.Status {
		case StatusSuccess:
			c.Success++
		case StatusError:
			c.Error++
		case StatusCancelled:
			c.Cancelled++
		default:
			c.Running++
		}
	}
	return c
}

// DevicePatch is a partial DeviceTaskStatus update. Nil fields are left
// untouched by the merge; replaying the same patch is a no-op.
type DevicePatch struct {
	Status     *TaskStatus
	Progress   *int
	Message    *string
	OutputPath *string
	Stdout     *string
	Stderr     *string
	ExitCode   *int
}

// Apply merges the patch into d and returns the result.
func (p DevicePatch) Apply(d DeviceTaskStatus) DeviceTaskStatus {
	if p.Status != nil {
		d.Status = *p.Status
	}
	if p.Progress != nil {
		v := *p.Progress
		d.Progress = &v
	}
	if p.Message != nil {
		d.Message = *p.Message
	}
	if p.OutputPath != nil {
		d.OutputPath = *p.OutputPath
	}
	if p.Stdout != nil {
		d.Stdout = *p.Stdout
	}
	if p.Stderr != nil {
		d.Stderr = *p.Stderr
	}
	if p.ExitCode != nil {
		v := *p.ExitCode
		d.ExitCode = &v
	}
	return d
}
