// Package api provides the HTTP server for FleetDeck. The execution layer
// posts inbound events here and registers correlations at dispatch time;
// the control surface reads tasks, device logs, devices, and notifications,
// and can follow live updates over SSE.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fleetdeck/fleetdeck/internal/app/orchestrator"
	"github.com/fleetdeck/fleetdeck/internal/domain"
	"github.com/fleetdeck/fleetdeck/internal/health"
	"github.com/fleetdeck/fleetdeck/internal/infra/sqlite"
)

// Server is the FleetDeck HTTP API server.
type Server struct {
	orch           *orchestrator.Orchestrator
	db             *sqlite.DB
	log            *zap.SugaredLogger
	hub            *Hub
	checker        *health.Checker
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(orch *orchestrator.Orchestrator, db *sqlite.DB, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{orch: orch, db: db, log: log, hub: NewHub()}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth attaches a self-check source so /health reports real statuses.
func (s *Server) SetHealth(c *health.Checker) { s.checker = c }

// Hub returns the live update hub (for broadcasting events).
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		// Dispatch-time registration
		r.Post("/tasks", s.handleBeginTask)
		r.Post("/tasks/clear-completed", s.handleClearCompleted)
		r.Post("/tasks/{id}/trace", s.handleBindTrace)
		r.Post("/tasks/{id}/bind-serial", s.handleBindSerial)
		r.Get("/tasks", s.handleListTasks)
		r.Get("/tasks/current", s.handleCurrentTask)

		// Inbound events from the execution layer
		r.Route("/events", func(r chi.Router) {
			r.Post("/line", s.handleLineEvent)
			r.Post("/progress", s.handleProgressEvent)
			r.Post("/complete", s.handleCompleteEvent)
			r.Post("/device-state", s.handleDeviceStateEvent)
		})

		// Coalesced device logs
		r.Get("/logs/{serial}", s.handleLogs)
		r.Delete("/logs/{serial}", s.handleClearLogs)

		// Device registry
		r.Get("/devices", s.handleListDevices)

		// Notifications
		r.Get("/notifications", s.handleNotifications)
		r.Post("/notifications/{id}/shown", s.handleNotificationShown)

		// Live update feed
		r.Get("/stream", s.hub.HandleSSE)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status := "ok"
	code := http.StatusOK
	if !s.checker.IsHealthy() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.checker.Statuses(),
	})
}

// ─── Task handlers ──────────────────────────────────────────────────────────

type beginTaskRequest struct {
	Kind    string   `json:"kind"`
	Title   string   `json:"title"`
	Serials []string `json:"serials"`
}

func (s *Server) handleBeginTask(w http.ResponseWriter, r *http.Request) {
	var req beginTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Kind == "" || len(req.Serials) == 0 {
		writeError(w, http.StatusBadRequest, "kind and serials are required")
		return
	}
	id := s.orch.BeginTask(domain.TaskKind(req.Kind), req.Title, req.Serials)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type bindTraceRequest struct {
	TraceID string `json:"trace_id"`
}

func (s *Server) handleBindTrace(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	var req bindTraceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	trace := s.orch.BindTrace(taskID, req.TraceID)
	writeJSON(w, http.StatusOK, map[string]string{"trace_id": trace})
}

type bindSerialRequest struct {
	Kind   string `json:"kind"`
	Serial string `json:"serial"`
}

func (s *Server) handleBindSerial(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	var req bindSerialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Serial == "" {
		writeError(w, http.StatusBadRequest, "serial is required")
		return
	}
	kind := domain.TaskKind(req.Kind)
	if req.Kind == "" {
		task, ok := s.orch.Snapshot().Get(taskID)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown task")
			return
		}
		kind = task.Kind
	}
	s.orch.BindSerialForKind(kind, req.Serial, taskID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "bound"})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.orch.Tasks()})
}

func (s *Server) handleClearCompleted(w http.ResponseWriter, r *http.Request) {
	s.orch.ClearCompleted()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleCurrentTask(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		writeError(w, http.StatusBadRequest, "kind is required")
		return
	}
	task, ok := s.orch.Current(domain.TaskKind(kind), r.URL.Query().Get("preferred"))
	if !ok {
		writeError(w, http.StatusNotFound, "no task of that kind")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ─── Event handlers ─────────────────────────────────────────────────────────

func (s *Server) handleLineEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.LineEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil || ev.Serial == "" {
		writeError(w, http.StatusBadRequest, "serial and line are required")
		return
	}
	s.orch.HandleLine(ev)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleProgressEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.ProgressEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.orch.HandleProgress(ev)
	// Accepted even on a correlation miss: stale events are dropped, not
	// surfaced as failures.
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCompleteEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.CompleteEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.orch.HandleComplete(ev)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDeviceStateEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.DeviceSummary
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil || ev.Serial == "" {
		writeError(w, http.StatusBadRequest, "serial is required")
		return
	}
	if err := s.db.UpsertDevice(ev); err != nil {
		s.log.Warnw("device summary not stored", "serial", ev.Serial, "err", err)
		writeError(w, http.StatusInternalServerError, "store failed")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ─── Log handlers ───────────────────────────────────────────────────────────

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	after := int64(0)
	if v := r.URL.Query().Get("after"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be an integer line id")
			return
		}
		after = parsed
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"serial": serial,
		"lines":  s.orch.Logs().Lines(serial, after),
	})
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	s.orch.Logs().Clear(chi.URLParam(r, "serial"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// ─── Device and notification handlers ───────────────────────────────────────

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.db.ListDevices()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list devices failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	pending, err := s.db.ListPendingNotifications(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list notifications failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": pending})
}

func (s *Server) handleNotificationShown(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	if err := s.db.MarkNotificationShown(id); err != nil {
		writeError(w, http.StatusInternalServerError, "mark shown failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "shown"})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
