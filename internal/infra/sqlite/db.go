// Package sqlite provides SQLite-based persistent storage for FleetDeck.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/fleetdeck/fleetdeck/internal/app/notify"
	"github.com/fleetdeck/fleetdeck/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Debounced single-row snapshot of the task history. The payload is
		// the encoded projection produced by internal/persist.
		`CREATE TABLE IF NOT EXISTS task_history (
			id       INTEGER PRIMARY KEY CHECK (id = 0),
			payload  TEXT NOT NULL,
			saved_at INTEGER NOT NULL
		)`,

		// Notifications derived from running→terminal task transitions.
		`CREATE TABLE IF NOT EXISTS notifications (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id    TEXT NOT NULL,
			title      TEXT NOT NULL,
			body       TEXT NOT NULL,
			status     TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			shown      BOOLEAN DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notif_created ON notifications(created_at)`,

		// Best-effort device summaries from device-state events.
		`CREATE TABLE IF NOT EXISTS devices (
			serial    TEXT PRIMARY KEY,
			state     TEXT NOT NULL,
			model     TEXT NOT NULL DEFAULT '',
			product   TEXT NOT NULL DEFAULT '',
			last_seen INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_seen ON devices(last_seen)`,
	}

	for i, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// ─── Task history snapshot ──────────────────────────────────────────────────

// SaveHistory upserts the single snapshot row.
func (d *DB) SaveHistory(payload []byte) error {
	_, err := d.db.Exec(
		`INSERT INTO task_history (id, payload, saved_at) VALUES (0, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		string(payload), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// LoadHistory returns the stored snapshot payload, or ok=false if none has
// been written yet.
func (d *DB) LoadHistory() ([]byte, bool, error) {
	var payload string
	err := d.db.QueryRow(`SELECT payload FROM task_history WHERE id = 0`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load history: %w", err)
	}
	return []byte(payload), true, nil
}

// HistorySize returns the stored payload size in bytes (0 if absent).
func (d *DB) HistorySize() (int, error) {
	var n int
	err := d.db.QueryRow(`SELECT length(payload) FROM task_history WHERE id = 0`).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("history size: %w", err)
	}
	return n, nil
}

// ─── Notifications ──────────────────────────────────────────────────────────

// StoredNotification is a notification row.
type StoredNotification struct {
	ID        int64     `json:"id"`
	TaskID    string    `json:"task_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Shown     bool      `json:"shown"`
}

// InsertNotification stores a derived notification and returns its row id.
func (d *DB) InsertNotification(n notify.Notification) (int64, error) {
	res, err := d.db.Exec(
		`INSERT INTO notifications (task_id, title, body, status, created_at, shown)
		 VALUES (?, ?, ?, ?, ?, 0)`,
		n.TaskID, n.Title, n.Body, string(n.Status), n.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("notification id: %w", err)
	}
	return id, nil
}

// ListPendingNotifications returns unshown notifications, oldest first.
func (d *DB) ListPendingNotifications(limit int) ([]StoredNotification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.Query(
		`SELECT id, task_id, title, body, status, created_at, shown
		 FROM notifications WHERE shown = 0 ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []StoredNotification
	for rows.Next() {
		var n StoredNotification
		var created int64
		if err := rows.Scan(&n.ID, &n.TaskID, &n.Title, &n.Body, &n.Status, &created, &n.Shown); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.CreatedAt = time.Unix(created, 0)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationShown flips the shown flag.
func (d *DB) MarkNotificationShown(id int64) error {
	_, err := d.db.Exec(`UPDATE notifications SET shown = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark shown: %w", err)
	}
	return nil
}

// ─── Devices ────────────────────────────────────────────────────────────────

// StoredDevice is a device summary row.
type StoredDevice struct {
	Serial   string    `json:"serial"`
	State    string    `json:"state"`
	Model    string    `json:"model,omitempty"`
	Product  string    `json:"product,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

// UpsertDevice records the latest best-effort summary for a serial.
func (d *DB) UpsertDevice(s domain.DeviceSummary) error {
	_, err := d.db.Exec(
		`INSERT INTO devices (serial, state, model, product, last_seen)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(serial) DO UPDATE SET
		   state = excluded.state, model = excluded.model,
		   product = excluded.product, last_seen = excluded.last_seen`,
		s.Serial, s.State, s.Model, s.Product, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	return nil
}

// ListDevices returns all known device summaries, most recently seen first.
func (d *DB) ListDevices() ([]StoredDevice, error) {
	rows, err := d.db.Query(
		`SELECT serial, state, model, product, last_seen
		 FROM devices ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []StoredDevice
	for rows.Next() {
		var dev StoredDevice
		var seen int64
		if err := rows.Scan(&dev.Serial, &dev.State, &dev.Model, &dev.Product, &seen); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		dev.LastSeen = time.Unix(seen, 0)
		out = append(out, dev)
	}
	return out, rows.Err()
}
