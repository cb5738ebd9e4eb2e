// Package orchestrator owns the task state and applies inbound events to
// it. It is the single writer: every mutation goes through the pure
// reducers in app/history while one mutex keeps correlation lookups
// consistent with reducer application. Reducer calls are cheap and never
// block, so no finer-grained locking is needed.
package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetdeck/fleetdeck/internal/app/correlate"
	"github.com/fleetdeck/fleetdeck/internal/app/history"
	"github.com/fleetdeck/fleetdeck/internal/app/logcat"
	"github.com/fleetdeck/fleetdeck/internal/app/notify"
	"github.com/fleetdeck/fleetdeck/internal/app/recovery"
	"github.com/fleetdeck/fleetdeck/internal/domain"
	"github.com/fleetdeck/fleetdeck/internal/infra/metrics"
)

// Config wires an Orchestrator.
type Config struct {
	MaxItems int
	Log      *zap.SugaredLogger
	Logs     *logcat.Buffer
	// OnNotify receives each derived notification. Called outside the lock.
	OnNotify func(notify.Notification)
	// OnChange fires after every state mutation. Called outside the lock;
	// used for the persistence dirty-mark and the live update feed.
	OnChange func()
}

// Orchestrator is the single-writer owner of the task collection, the
// correlation maps, and the completion counters.
type Orchestrator struct {
	mu     sync.Mutex
	log    *zap.SugaredLogger
	snap   history.Snapshot
	router *correlate.Router
	agg    *correlate.Aggregator
	logs   *logcat.Buffer

	onNotify func(notify.Notification)
	onChange func()
}

// New creates an Orchestrator with an empty history.
func New(cfg Config) *Orchestrator {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	logs := cfg.Logs
	if logs == nil {
		logs = logcat.New(logcat.Config{})
	}
	return &Orchestrator{
		log:      log,
		snap:     history.New(cfg.MaxItems),
		router:   correlate.NewRouter(),
		agg:      correlate.NewAggregator(),
		logs:     logs,
		onNotify: cfg.OnNotify,
		onChange: cfg.OnChange,
	}
}

// Restore replaces the history with a recovered snapshot. Meant for
// startup, before any events flow; restored tasks fire no notifications.
func (o *Orchestrator) Restore(snap history.Snapshot) {
	o.mu.Lock()
	o.snap = history.ReplaceAll(o.snap, snap.Items, snap.MaxItems)
	o.mu.Unlock()
}

// ─── Dispatch-time API ──────────────────────────────────────────────────────

// BeginTask creates a task with every addressed device running and returns
// its id. Serial-scoped kinds are registered in the correlation layer so
// later events addressed by bare serial find their way back.
func (o *Orchestrator) BeginTask(kind domain.TaskKind, title string, serials []string) string {
	id := uuid.NewString()
	devices := make(map[string]domain.DeviceTaskStatus, len(serials))
	for _, s := range serials {
		devices[s] = domain.DeviceTaskStatus{Serial: s, Status: domain.StatusRunning}
	}
	task := domain.Task{
		ID:        id,
		Kind:      kind,
		Title:     title,
		Status:    domain.StatusRunning,
		StartedAt: time.Now(),
		Devices:   devices,
	}

	o.mu.Lock()
	prev := o.snap
	o.snap = history.Add(o.snap, task)
	o.agg.Track(id, len(serials))
	if kind.SerialScoped() {
		for _, s := range serials {
			o.router.BindSerial(kind, s, id)
		}
	}
	next := o.snap
	o.mu.Unlock()

	metrics.TasksStarted.WithLabelValues(string(kind)).Inc()
	o.log.Debugw("task started", "task", id, "kind", kind, "devices", len(serials))
	o.afterCommit(prev, next)
	return id
}

// BindTrace registers a trace-id correlation for a task and records the
// trace on the task itself. An empty traceID mints a fresh one; the id in
// effect is returned.
func (o *Orchestrator) BindTrace(taskID, traceID string) string {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	o.mu.Lock()
	prev := o.snap
	o.router.BindTrace(traceID, taskID)
	o.snap = history.SetTrace(o.snap, taskID, traceID)
	next := o.snap
	o.mu.Unlock()

	o.afterCommit(prev, next)
	return traceID
}

// BindSerialForKind registers a serial-scoped correlation, valid until that
// serial's entry in the task reaches a terminal state.
func (o *Orchestrator) BindSerialForKind(kind domain.TaskKind, serial, taskID string) {
	o.mu.Lock()
	o.router.BindSerial(kind, serial, taskID)
	o.mu.Unlock()
}

// ─── Event entrypoints ──────────────────────────────────────────────────────

// HandleLine feeds one log line into the coalescing pipeline. Lines bypass
// the task store entirely.
func (o *Orchestrator) HandleLine(ev domain.LineEvent) {
	metrics.EventsIngested.WithLabelValues("line").Inc()
	o.logs.Append(ev.Serial, ev.Line)
}

// HandleProgress applies an incremental progress event to the addressed
// device slot.
func (o *Orchestrator) HandleProgress(ev domain.ProgressEvent) {
	metrics.EventsIngested.WithLabelValues("progress").Inc()

	o.mu.Lock()
	taskID, serial, _, ok := o.resolveLocked(ev.TraceID, ev.Serial)
	if !ok {
		o.mu.Unlock()
		return
	}
	progress := clampProgress(ev.Progress)
	patch := domain.DevicePatch{Progress: &progress}
	if ev.Message != "" {
		msg := ev.Message
		patch.Message = &msg
	}
	prev := o.snap
	o.snap = history.UpdateDevice(o.snap, taskID, serial, patch)
	next := o.snap
	o.mu.Unlock()

	o.afterCommit(prev, next)
}

// HandleComplete applies a terminal outcome for one device's contribution,
// releases its correlation entries, and, once the last addressed device has
// resolved, settles the task-level status.
func (o *Orchestrator) HandleComplete(ev domain.CompleteEvent) {
	metrics.EventsIngested.WithLabelValues("complete").Inc()

	o.mu.Lock()
	taskID, serial, viaKind, ok := o.resolveLocked(ev.TraceID, ev.Serial)
	if !ok {
		o.mu.Unlock()
		return
	}

	status := ev.Result.Status()
	patch := domain.DevicePatch{Status: &status}
	if ev.Result.OutputPath != "" {
		v := ev.Result.OutputPath
		patch.OutputPath = &v
	}
	if ev.Result.Error != "" {
		v := ev.Result.Error
		patch.Message = &v
	}
	if ev.Result.Stdout != "" {
		v := ev.Result.Stdout
		patch.Stdout = &v
	}
	if ev.Result.Stderr != "" {
		v := ev.Result.Stderr
		patch.Stderr = &v
	}
	if ev.Result.ExitCode != nil {
		patch.ExitCode = ev.Result.ExitCode
	}

	prev := o.snap
	o.snap = history.UpdateDevice(o.snap, taskID, serial, patch)

	if ev.TraceID != "" {
		o.router.UnbindTrace(ev.TraceID)
	}
	if viaKind != "" {
		o.router.UnbindSerial(viaKind, serial)
	}

	if final, done := o.agg.Resolve(taskID, serial, status); done {
		o.snap = history.SetStatus(o.snap, taskID, final, time.Time{})
		metrics.TasksFinished.WithLabelValues(string(final)).Inc()
	}
	next := o.snap
	o.mu.Unlock()

	o.afterCommit(prev, next)
}

// resolveLocked maps an event's correlation key to (taskID, device serial).
// viaKind is non-empty when the serial-scoped map matched, so the caller
// can unregister the right entry. Misses are logged and dropped; the event
// may belong to a task that already rolled off the bounded history.
func (o *Orchestrator) resolveLocked(traceID, serial string) (taskID, slot string, viaKind domain.TaskKind, ok bool) {
	if traceID != "" {
		id, found := o.router.TaskByTrace(traceID)
		if !found {
			metrics.CorrelationMisses.WithLabelValues("trace").Inc()
			o.log.Debugw("dropping event for unknown trace", "trace", traceID)
			return "", "", "", false
		}
		slot = serial
		if slot == "" {
			slot = o.soleSerialLocked(id)
		} else if !o.deviceInTaskLocked(id, slot) {
			// The task's device set is fixed at dispatch; a trace event
			// naming a serial outside it is dropped, not added.
			metrics.CorrelationMisses.WithLabelValues("trace").Inc()
			o.log.Debugw("dropping trace event for serial outside the task", "trace", traceID, "task", id, "serial", slot)
			return "", "", "", false
		}
		if slot == "" {
			metrics.CorrelationMisses.WithLabelValues("trace").Inc()
			o.log.Debugw("dropping trace event without device slot", "trace", traceID, "task", id)
			return "", "", "", false
		}
		return id, slot, "", true
	}
	if serial != "" {
		kind, id, found := o.router.TaskForSerial(serial)
		if !found {
			metrics.CorrelationMisses.WithLabelValues("serial").Inc()
			o.log.Debugw("dropping event for unbound serial", "serial", serial)
			return "", "", "", false
		}
		return id, serial, kind, true
	}
	metrics.CorrelationMisses.WithLabelValues("none").Inc()
	return "", "", "", false
}

// deviceInTaskLocked reports whether serial is one of the task's addressed
// devices.
func (o *Orchestrator) deviceInTaskLocked(taskID, serial string) bool {
	t, ok := o.snap.Get(taskID)
	if !ok {
		return false
	}
	_, ok = t.Devices[serial]
	return ok
}

// soleSerialLocked returns the task's only device serial, or "" if the task
// is absent or addresses more than one device.
func (o *Orchestrator) soleSerialLocked(taskID string) string {
	t, ok := o.snap.Get(taskID)
	if !ok || len(t.Devices) != 1 {
		return ""
	}
	for s := range t.Devices {
		return s
	}
	return ""
}

// ─── Queries and actions ────────────────────────────────────────────────────

// Tasks returns the current collection, newest first.
func (o *Orchestrator) Tasks() []domain.Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.Task, len(o.snap.Items))
	for i, t := range o.snap.Items {
		out[i] = t.Clone()
	}
	return out
}

// Snapshot returns the current history snapshot for persistence. The
// snapshot is safe to read concurrently: reducers copy on write.
func (o *Orchestrator) Snapshot() history.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

// Current resolves which task of a kind the control surface should show.
func (o *Orchestrator) Current(kind domain.TaskKind, preferredID string) (domain.Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := recovery.Current(o.snap, kind, preferredID)
	if !ok {
		return domain.Task{}, false
	}
	return t.Clone(), true
}

// ClearCompleted drops every task that is not running.
func (o *Orchestrator) ClearCompleted() {
	o.mu.Lock()
	prev := o.snap
	o.snap = history.ClearCompleted(o.snap)
	next := o.snap
	o.mu.Unlock()
	o.afterCommit(prev, next)
}

// Logs exposes the coalescing pipeline for reads and view clears.
func (o *Orchestrator) Logs() *logcat.Buffer {
	return o.logs
}

// afterCommit runs change hooks and derives notifications from the
// transition. Must be called without the lock held.
func (o *Orchestrator) afterCommit(prev, next history.Snapshot) {
	running := 0
	for _, t := range next.Items {
		if t.Status == domain.StatusRunning {
			running++
		}
	}
	metrics.TasksRunning.Set(float64(running))

	for _, n := range notify.Diff(prev, next, time.Now()) {
		metrics.NotificationsDerived.Inc()
		o.log.Infow("task finished", "task", n.TaskID, "status", n.Status, "title", n.Title)
		if o.onNotify != nil {
			o.onNotify(n)
		}
	}
	if o.onChange != nil {
		o.onChange()
	}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
