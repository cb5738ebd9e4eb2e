package cli

import (
	"fmt"

	"github.com/fleetdeck/fleetdeck/internal/app/history"
	"github.com/fleetdeck/fleetdeck/internal/daemon"
	"github.com/fleetdeck/fleetdeck/internal/infra/sqlite"
	"github.com/fleetdeck/fleetdeck/internal/persist"
)

// openDB opens the daemon's data directory for a one-shot command.
func openDB() (*sqlite.DB, error) {
	db, err := sqlite.Open(daemon.Home())
	if err != nil {
		return nil, fmt.Errorf("open data dir %s: %w", daemon.Home(), err)
	}
	return db, nil
}

// loadSnapshot reads the persisted task history. A missing or malformed
// snapshot yields an empty history, same as daemon startup.
func loadSnapshot(db *sqlite.DB) (history.Snapshot, error) {
	payload, ok, err := db.LoadHistory()
	if err != nil {
		return history.Snapshot{}, err
	}
	if !ok {
		return history.New(0), nil
	}
	return persist.Inflate(persist.Decode(payload)), nil
}

// shortID trims a UUID to its first segment for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
