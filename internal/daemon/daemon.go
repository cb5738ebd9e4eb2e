package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fleetdeck/fleetdeck/internal/api"
	"github.com/fleetdeck/fleetdeck/internal/app/logcat"
	"github.com/fleetdeck/fleetdeck/internal/app/notify"
	"github.com/fleetdeck/fleetdeck/internal/app/orchestrator"
	"github.com/fleetdeck/fleetdeck/internal/health"
	"github.com/fleetdeck/fleetdeck/internal/infra/logger"
	"github.com/fleetdeck/fleetdeck/internal/infra/metrics"
	"github.com/fleetdeck/fleetdeck/internal/infra/sqlite"
	"github.com/fleetdeck/fleetdeck/internal/persist"
)

// Daemon is the FleetDeck runtime. It wires together all services.
type Daemon struct {
	Config Config
	Log    *zap.SugaredLogger
	DB     *sqlite.DB
	Orch   *orchestrator.Orchestrator
	Logs   *logcat.Buffer
	Server *api.Server
	Saver  *persist.Saver
	Health *health.Checker

	cancel context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	db, err := sqlite.Open(fleetdeckHome())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	d := &Daemon{Config: cfg, Log: log, DB: db}

	logs := logcat.New(logcat.Config{
		FlushInterval: time.Duration(cfg.Logcat.FlushIntervalMS) * time.Millisecond,
		MaxVisible:    cfg.Logcat.MaxVisibleLines,
		OnFlush:       d.onLogFlush,
	})
	d.Logs = logs

	orch := orchestrator.New(orchestrator.Config{
		MaxItems: cfg.History.MaxItems,
		Log:      log,
		Logs:     logs,
		OnNotify: d.onNotify,
		OnChange: d.onChange,
	})
	d.Orch = orch

	// Recover the persisted task history. A malformed or oversized snapshot
	// is discarded; startup never fails on bad history.
	payload, ok, err := db.LoadHistory()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load history: %w", err)
	}
	if ok {
		if state := persist.Decode(payload); state != nil {
			orch.Restore(persist.Inflate(state))
		} else {
			metrics.SnapshotLoadFailures.Inc()
			log.Warnw("discarding malformed task history snapshot", "bytes", len(payload))
		}
	}

	d.Saver = persist.NewSaver(
		time.Duration(cfg.History.PersistDebounceMS)*time.Millisecond,
		nil,
		d.writeSnapshot,
	)

	d.Server = api.NewServer(orch, db, log)
	if cfg.API.Metrics {
		d.Server.EnableMetrics()
	}

	d.Health = health.NewChecker(db, fleetdeckHome(), log)
	d.Server.SetHealth(d.Health)

	return d, nil
}

// onChange is the orchestrator's mutation hook: schedule a debounced
// snapshot write and push the new task list to live subscribers.
func (d *Daemon) onChange() {
	d.Saver.MarkDirty()
	d.Server.Hub().Broadcast("tasks", map[string]any{"items": d.Orch.Tasks()})
}

// onNotify persists a derived notification and pushes it to subscribers.
func (d *Daemon) onNotify(n notify.Notification) {
	if _, err := d.DB.InsertNotification(n); err != nil {
		d.Log.Warnw("notification not stored", "task", n.TaskID, "err", err)
	}
	d.Server.Hub().Broadcast("notification", n)
}

// onLogFlush announces fresh coalesced lines for the given serials.
func (d *Daemon) onLogFlush(serials []string) {
	d.Server.Hub().Broadcast("logs", map[string]any{"serials": serials})
}

// writeSnapshot encodes the current history and stores it.
func (d *Daemon) writeSnapshot() {
	data, err := persist.Encode(d.Orch.Snapshot())
	if err != nil {
		d.Log.Errorw("snapshot encode failed", "err", err)
		return
	}
	if err := d.DB.SaveHistory(data); err != nil {
		d.Log.Errorw("snapshot write failed", "err", err)
		return
	}
	metrics.SnapshotWrites.Inc()
}

// Serve runs the HTTP server until the context is cancelled or a shutdown
// signal arrives. The final snapshot is flushed before the process exits.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // long for SSE streams
		IdleTimeout:  2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		d.Logs.Stop()
		d.Saver.Flush()
		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.DB.Close()
	}()

	d.Log.Infow("fleetdeck serving", "addr", addr, "metrics", d.Config.API.Metrics)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down daemon resources without serving. Used by CLI commands
// that construct a daemon for one-shot operations.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	d.Logs.Stop()
	d.Saver.Flush()
	_ = d.DB.Close()
	_ = d.Log.Sync()
}
