// Package metrics provides Prometheus metrics for FleetDeck: counters and
// gauges for the event pipeline, correlation layer, coalescer, and snapshot
// persistence.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Events ─────────────────────────────────────────────────────────────────

// EventsIngested counts inbound events by type (line, progress, complete,
// device-state).
var EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fleetdeck",
	Name:      "events_ingested_total",
	Help:      "Total inbound events by type.",
}, []string{"type"})

// CorrelationMisses counts events whose trace id or serial had no registered
// task. These are dropped, not errors.
var CorrelationMisses = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fleetdeck",
	Name:      "correlation_misses_total",
	Help:      "Events dropped because no task owned their correlation key.",
}, []string{"key"})

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TasksStarted counts dispatched tasks by kind.
var TasksStarted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fleetdeck",
	Name:      "tasks_started_total",
	Help:      "Total tasks dispatched.",
}, []string{"kind"})

// TasksFinished counts terminal task transitions by final status.
var TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fleetdeck",
	Name:      "tasks_finished_total",
	Help:      "Total tasks that reached a terminal status.",
}, []string{"status"})

// TasksRunning tracks tasks currently in the running state.
var TasksRunning = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "fleetdeck",
	Name:      "tasks_running",
	Help:      "Number of tasks currently running.",
})

// NotificationsDerived counts notifications produced by terminal
// transitions.
var NotificationsDerived = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "fleetdeck",
	Name:      "notifications_derived_total",
	Help:      "Total notifications derived from task transitions.",
})

// ─── Log coalescing ─────────────────────────────────────────────────────────

// CoalesceFlushes counts flush cycles of the line pipeline.
var CoalesceFlushes = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "fleetdeck",
	Name:      "coalesce_flushes_total",
	Help:      "Total log line flush cycles.",
})

// CoalesceLines counts log lines moved into visible buffers.
var CoalesceLines = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "fleetdeck",
	Name:      "coalesce_lines_total",
	Help:      "Total log lines flushed into visible buffers.",
})

// ─── Persistence ────────────────────────────────────────────────────────────

// SnapshotWrites counts debounced history writes.
var SnapshotWrites = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "fleetdeck",
	Name:      "snapshot_writes_total",
	Help:      "Total task history snapshot writes.",
})

// SnapshotLoadFailures counts discarded snapshots at startup (oversized or
// malformed payloads).
var SnapshotLoadFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "fleetdeck",
	Name:      "snapshot_load_failures_total",
	Help:      "Total snapshot loads discarded as malformed or oversized.",
})
