package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fleetdeck/fleetdeck/internal/app/logcat"
	"github.com/fleetdeck/fleetdeck/internal/app/notify"
	"github.com/fleetdeck/fleetdeck/internal/app/orchestrator"
	"github.com/fleetdeck/fleetdeck/internal/domain"
	"github.com/fleetdeck/fleetdeck/internal/infra/sched"
	"github.com/fleetdeck/fleetdeck/internal/infra/sqlite"
)

type testEnv struct {
	srv   *httptest.Server
	timer *sched.Manual
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	timer := sched.NewManual()
	logs := logcat.New(logcat.Config{Timer: timer})
	// Mirror the daemon wiring: derived notifications land in sqlite.
	orch := orchestrator.New(orchestrator.Config{
		MaxItems: 20,
		Logs:     logs,
		OnNotify: func(n notify.Notification) { _, _ = db.InsertNotification(n) },
	})
	server := NewServer(orch, db, nil)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, timer: timer}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(e.srv.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (e *testEnv) getJSON(t *testing.T, path string, out any) {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func beginTask(t *testing.T, e *testEnv, kind string, serials ...string) string {
	t.Helper()
	resp := e.post(t, "/api/tasks", map[string]any{
		"kind": kind, "title": kind + " task", "serials": serials,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("begin task status = %d", resp.StatusCode)
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &created)
	return created.ID
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	var out map[string]string
	e.getJSON(t, "/health", &out)
	if out["status"] != "ok" {
		t.Errorf("status = %q, want ok", out["status"])
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	id := beginTask(t, e, "bugreport", "A", "B")

	// Device A succeeds, B errors; task settles once both resolve.
	for _, ev := range []map[string]any{
		{"serial": "A", "result": map[string]any{"success": true, "output_path": "/out/a.zip"}},
		{"serial": "B", "result": map[string]any{"success": false, "error": "offline"}},
	} {
		resp := e.post(t, "/api/events/complete", ev)
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("complete status = %d", resp.StatusCode)
		}
		resp.Body.Close()
	}

	var list struct {
		Items []domain.Task `json:"items"`
	}
	e.getJSON(t, "/api/tasks", &list)
	if len(list.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(list.Items))
	}
	task := list.Items[0]
	if task.ID != id || task.Status != domain.StatusError {
		t.Errorf("task = %s/%s, want %s/error", task.ID, task.Status, id)
	}

	// The derived notification is persisted as pending.
	var pending struct {
		Notifications []sqlite.StoredNotification `json:"notifications"`
	}
	e.getJSON(t, "/api/notifications", &pending)
	if len(pending.Notifications) != 1 || pending.Notifications[0].TaskID != id {
		t.Fatalf("notifications = %+v, want one for %s", pending.Notifications, id)
	}
}

func TestTraceBindingAndProgress(t *testing.T) {
	e := newTestEnv(t)
	id := beginTask(t, e, "file-pull", "A")

	resp := e.post(t, "/api/tasks/"+id+"/trace", map[string]string{})
	var bound struct {
		TraceID string `json:"trace_id"`
	}
	decodeBody(t, resp, &bound)
	if bound.TraceID == "" {
		t.Fatal("no trace id minted")
	}

	resp = e.post(t, "/api/events/progress", map[string]any{
		"trace_id": bound.TraceID, "progress": 55,
	})
	resp.Body.Close()

	var current domain.Task
	e.getJSON(t, "/api/tasks/current?kind=file-pull", &current)
	if current.ID != id {
		t.Fatalf("current = %s, want %s", current.ID, id)
	}
	if p := current.Devices["A"].Progress; p == nil || *p != 55 {
		t.Errorf("progress = %v, want 55", p)
	}
}

func TestLogsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	for _, line := range []string{"first", "second"} {
		resp := e.post(t, "/api/events/line", map[string]string{"serial": "A", "line": line})
		resp.Body.Close()
	}
	e.timer.Fire()

	var out struct {
		Serial string        `json:"serial"`
		Lines  []logcat.Line `json:"lines"`
	}
	e.getJSON(t, "/api/logs/A", &out)
	if len(out.Lines) != 2 || out.Lines[0].ID != 1 || out.Lines[1].Text != "second" {
		t.Fatalf("lines = %+v", out.Lines)
	}

	e.getJSON(t, "/api/logs/A?after=1", &out)
	if len(out.Lines) != 1 || out.Lines[0].ID != 2 {
		t.Fatalf("lines after anchor = %+v", out.Lines)
	}

	req, _ := http.NewRequest(http.MethodDelete, e.srv.URL+"/api/logs/A", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE logs: %v", err)
	}
	resp.Body.Close()

	e.getJSON(t, "/api/logs/A", &out)
	if len(out.Lines) != 0 {
		t.Errorf("lines after clear = %+v", out.Lines)
	}
}

func TestDeviceStateEvents(t *testing.T) {
	e := newTestEnv(t)
	resp := e.post(t, "/api/events/device-state", map[string]string{
		"serial": "SER1", "state": "device", "model": "Pixel 8",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("device-state status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	var out struct {
		Devices []sqlite.StoredDevice `json:"devices"`
	}
	e.getJSON(t, "/api/devices", &out)
	if len(out.Devices) != 1 || out.Devices[0].Serial != "SER1" {
		t.Fatalf("devices = %+v", out.Devices)
	}
}

func TestBeginTask_Validation(t *testing.T) {
	e := newTestEnv(t)
	resp := e.post(t, "/api/tasks", map[string]any{"kind": "", "serials": []string{}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}
