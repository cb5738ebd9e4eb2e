package orchestrator

import (
	"testing"

	"github.com/fleetdeck/fleetdeck/internal/app/logcat"
	"github.com/fleetdeck/fleetdeck/internal/app/notify"
	"github.com/fleetdeck/fleetdeck/internal/domain"
	"github.com/fleetdeck/fleetdeck/internal/infra/sched"
)

type harness struct {
	orch    *Orchestrator
	timer   *sched.Manual
	notifs  []notify.Notification
	changes int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{timer: sched.NewManual()}
	logs := logcat.New(logcat.Config{Timer: h.timer})
	h.orch = New(Config{
		MaxItems: 20,
		Logs:     logs,
		OnNotify: func(n notify.Notification) { h.notifs = append(h.notifs, n) },
		OnChange: func() { h.changes++ },
	})
	return h
}

func (h *harness) task(t *testing.T, id string) domain.Task {
	t.Helper()
	task, ok := h.orch.Snapshot().Get(id)
	if !ok {
		t.Fatalf("task %s not found", id)
	}
	return task
}

func TestBeginTask_AllDevicesRunning(t *testing.T) {
	h := newHarness(t)
	id := h.orch.BeginTask(domain.KindShell, "Shell: ls", []string{"A", "B"})

	task := h.task(t, id)
	if task.Status != domain.StatusRunning || len(task.Devices) != 2 {
		t.Fatalf("task = %+v, want running with 2 devices", task)
	}
	for _, serial := range []string{"A", "B"} {
		if task.Devices[serial].Status != domain.StatusRunning {
			t.Errorf("device %s = %s, want running", serial, task.Devices[serial].Status)
		}
	}
	if h.changes == 0 {
		t.Error("OnChange not fired by BeginTask")
	}
}

func TestFanOut_ErrorWinsAfterAllDevicesResolve(t *testing.T) {
	h := newHarness(t)
	id := h.orch.BeginTask(domain.KindBugreport, "Bugreport", []string{"A", "B"})

	h.orch.HandleComplete(domain.CompleteEvent{
		Serial: "A",
		Result: domain.CompleteResult{Success: true, OutputPath: "/out/a.zip"},
	})
	if got := h.task(t, id); got.Status != domain.StatusRunning {
		t.Fatalf("task settled to %s with a device still running", got.Status)
	}

	h.orch.HandleComplete(domain.CompleteEvent{
		Serial: "B",
		Result: domain.CompleteResult{Error: "device went offline"},
	})
	got := h.task(t, id)
	if got.Status != domain.StatusError {
		t.Fatalf("task = %s, want error", got.Status)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt not set at terminal transition")
	}
	if got.Devices["A"].Status != domain.StatusSuccess || got.Devices["A"].OutputPath != "/out/a.zip" {
		t.Errorf("device A = %+v", got.Devices["A"])
	}
	if got.Devices["B"].Message != "device went offline" {
		t.Errorf("device B message = %q", got.Devices["B"].Message)
	}

	if len(h.notifs) != 1 || h.notifs[0].TaskID != id || h.notifs[0].Status != domain.StatusError {
		t.Fatalf("notifications = %+v, want one error notification", h.notifs)
	}
}

func TestTraceRoutedTransfer(t *testing.T) {
	h := newHarness(t)
	id := h.orch.BeginTask(domain.KindFilePull, "Pull /sdcard/log.txt", []string{"A"})
	trace := h.orch.BindTrace(id, "")
	if trace == "" {
		t.Fatal("BindTrace minted empty trace id")
	}
	if got := h.task(t, id); got.TraceID != trace {
		t.Errorf("TraceID = %q, want %q", got.TraceID, trace)
	}

	h.orch.HandleProgress(domain.ProgressEvent{TraceID: trace, Progress: 41})
	got := h.task(t, id)
	if p := got.Devices["A"].Progress; p == nil || *p != 41 {
		t.Fatalf("progress = %v, want 41 (sole device slot inferred)", p)
	}

	h.orch.HandleComplete(domain.CompleteEvent{
		TraceID: trace,
		Result:  domain.CompleteResult{Success: true, OutputPath: "/dl/log.txt"},
	})
	got = h.task(t, id)
	if got.Status != domain.StatusSuccess || got.Devices["A"].OutputPath != "/dl/log.txt" {
		t.Fatalf("task = %+v, want success with output path", got)
	}

	// The trace is released at terminal: replaying the complete is a miss.
	before := got
	h.orch.HandleComplete(domain.CompleteEvent{TraceID: trace, Result: domain.CompleteResult{Error: "late"}})
	after := h.task(t, id)
	if after.Status != before.Status || after.Devices["A"].Message != before.Devices["A"].Message {
		t.Error("replayed complete after unbind mutated the task")
	}
}

func TestCorrelationMiss_IsDropped(t *testing.T) {
	h := newHarness(t)
	id := h.orch.BeginTask(domain.KindShell, "Shell", []string{"A"})

	h.orch.HandleProgress(domain.ProgressEvent{TraceID: "never-bound", Progress: 50})
	h.orch.HandleComplete(domain.CompleteEvent{Serial: "ghost", Result: domain.CompleteResult{Success: true}})

	got := h.task(t, id)
	if got.Status != domain.StatusRunning {
		t.Errorf("unrelated events changed task to %s", got.Status)
	}
	if p := got.Devices["A"].Progress; p != nil {
		t.Errorf("unrelated progress reached device A: %v", *p)
	}
}

func TestTraceEvent_ForeignSerialIsDropped(t *testing.T) {
	h := newHarness(t)
	id := h.orch.BeginTask(domain.KindFilePull, "Pull", []string{"A"})
	trace := h.orch.BindTrace(id, "")

	// The device set is fixed at dispatch: a correlated trace event naming
	// a serial the task never addressed must not create an entry or count
	// toward completion.
	h.orch.HandleComplete(domain.CompleteEvent{
		TraceID: trace,
		Serial:  "ROGUE",
		Result:  domain.CompleteResult{Success: true},
	})

	got := h.task(t, id)
	if got.Status != domain.StatusRunning {
		t.Fatalf("task settled to %s on a foreign-serial event", got.Status)
	}
	if _, ok := got.Devices["ROGUE"]; ok {
		t.Fatalf("foreign serial added to device set: %v", got.Devices)
	}
	if got.Devices["A"].Status != domain.StatusRunning {
		t.Errorf("device A = %s, want running", got.Devices["A"].Status)
	}

	// Progress takes the same path.
	h.orch.HandleProgress(domain.ProgressEvent{TraceID: trace, Serial: "ROGUE", Progress: 80})
	if _, ok := h.task(t, id).Devices["ROGUE"]; ok {
		t.Error("foreign serial added by progress event")
	}

	// The member device still completes the task normally afterwards.
	h.orch.HandleComplete(domain.CompleteEvent{
		TraceID: trace,
		Serial:  "A",
		Result:  domain.CompleteResult{Success: true},
	})
	if got := h.task(t, id); got.Status != domain.StatusSuccess {
		t.Errorf("task = %s after member completion, want success", got.Status)
	}
}

func TestCancelledFanOut(t *testing.T) {
	h := newHarness(t)
	id := h.orch.BeginTask(domain.KindBugreport, "Bugreport", []string{"A", "B"})

	h.orch.HandleComplete(domain.CompleteEvent{Serial: "A", Result: domain.CompleteResult{Success: true}})
	h.orch.HandleComplete(domain.CompleteEvent{Serial: "B", Result: domain.CompleteResult{Cancelled: true}})

	got := h.task(t, id)
	if got.Status != domain.StatusCancelled {
		t.Errorf("task = %s, want cancelled", got.Status)
	}
}

func TestHandleLine_FlowsThroughCoalescer(t *testing.T) {
	h := newHarness(t)
	h.orch.HandleLine(domain.LineEvent{Serial: "A", Line: "first"})
	h.orch.HandleLine(domain.LineEvent{Serial: "A", Line: "second"})

	if lines := h.orch.Logs().Lines("A", 0); len(lines) != 0 {
		t.Fatalf("lines visible before flush: %v", lines)
	}
	h.timer.Fire()
	lines := h.orch.Logs().Lines("A", 0)
	if len(lines) != 2 || lines[0].ID != 1 || lines[1].Text != "second" {
		t.Fatalf("lines = %v", lines)
	}
}

func TestClearCompleted_KeepsRunning(t *testing.T) {
	h := newHarness(t)
	done := h.orch.BeginTask(domain.KindShell, "done", []string{"A"})
	running := h.orch.BeginTask(domain.KindShell, "running", []string{"A"})
	h.orch.BindSerialForKind(domain.KindShell, "A", done)
	h.orch.HandleComplete(domain.CompleteEvent{Serial: "A", Result: domain.CompleteResult{Success: true}})

	h.orch.ClearCompleted()
	tasks := h.orch.Tasks()
	if len(tasks) != 1 || tasks[0].ID != running {
		t.Fatalf("tasks = %+v, want only the running one", tasks)
	}
}

func TestCurrent_UsesRecoveryRules(t *testing.T) {
	h := newHarness(t)
	h.orch.BeginTask(domain.KindShell, "noise", []string{"A"})
	want := h.orch.BeginTask(domain.KindBugreport, "Bugreport", []string{"A"})

	got, ok := h.orch.Current(domain.KindBugreport, "")
	if !ok || got.ID != want {
		t.Errorf("Current = %q,%v, want %q", got.ID, ok, want)
	}
}

func TestRestore_FiresNoNotifications(t *testing.T) {
	h := newHarness(t)
	donor := newHarness(t)
	id := donor.orch.BeginTask(domain.KindShell, "old", []string{"A"})
	donor.orch.BindSerialForKind(domain.KindShell, "A", id)
	donor.orch.HandleComplete(domain.CompleteEvent{Serial: "A", Result: domain.CompleteResult{Success: true}})

	h.orch.Restore(donor.orch.Snapshot())
	if len(h.notifs) != 0 {
		t.Errorf("restore fired %d notifications", len(h.notifs))
	}
	if len(h.orch.Tasks()) != 1 {
		t.Errorf("restored %d tasks, want 1", len(h.orch.Tasks()))
	}
}
