// Package correlate maps inbound event identifiers to the task that owns
// them, and aggregates per-device outcomes of fan-out tasks into a single
// task-level outcome. Inbound events never carry a task id directly: file
// transfers are addressed by a trace id minted at dispatch time, and
// serial-scoped operations (bugreport and friends) are addressed by the
// device serial alone.
package correlate

import "github.com/fleetdeck/fleetdeck/internal/domain"

type serialKey struct {
	kind   domain.TaskKind
	serial string
}

// Router holds the two correlation maps. Registration happens at dispatch
// time, before any event can arrive; entries are removed when the correlated
// transfer or device reaches a terminal state. A lookup miss is not an
// error: the event may belong to a task that has rolled off the bounded
// history, or be a duplicate delivery.
//
// Router is not safe for concurrent use on its own; the orchestrator guards
// it with the same lock as the state store so registration and lookup stay
// consistent with reducer application.
type Router struct {
	byTrace  map[string]string
	bySerial map[serialKey]string
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{
		byTrace:  make(map[string]string),
		bySerial: make(map[serialKey]string),
	}
}

// BindTrace registers trace id ownership for a task.
func (r *Router) BindTrace(traceID, taskID string) {
	if traceID == "" {
		return
	}
	r.byTrace[traceID] = taskID
}

// TaskByTrace resolves a trace id to its owning task id.
func (r *Router) TaskByTrace(traceID string) (string, bool) {
	id, ok := r.byTrace[traceID]
	return id, ok
}

// UnbindTrace drops a trace registration.
func (r *Router) UnbindTrace(traceID string) {
	delete(r.byTrace, traceID)
}

// BindSerial registers a serial-scoped correlation for a kind. Valid until
// that serial's entry in the task reaches a terminal state.
func (r *Router) BindSerial(kind domain.TaskKind, serial, taskID string) {
	if serial == "" {
		return
	}
	r.bySerial[serialKey{kind: kind, serial: serial}] = taskID
}

// TaskBySerial resolves a (kind, serial) pair to its owning task id.
func (r *Router) TaskBySerial(kind domain.TaskKind, serial string) (string, bool) {
	id, ok := r.bySerial[serialKey{kind: kind, serial: serial}]
	return id, ok
}

// TaskForSerial resolves a serial across all kinds. Used for events that
// carry only a serial; at most one serial-scoped operation per kind can be
// mid-flight, and in practice a serial is bound for a single kind at a time.
func (r *Router) TaskForSerial(serial string) (domain.TaskKind, string, bool) {
	for key, id := range r.bySerial {
		if key.serial == serial {
			return key.kind, id, true
		}
	}
	return "", "", false
}

// UnbindSerial drops a serial-scoped registration.
func (r *Router) UnbindSerial(kind domain.TaskKind, serial string) {
	delete(r.bySerial, serialKey{kind: kind, serial: serial})
}
