package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetdeck/fleetdeck/internal/app/history"
	"github.com/fleetdeck/fleetdeck/internal/persist"
)

func init() {
	rootCmd.AddCommand(clearCmd)
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove completed tasks from the history",
	Long: `Remove finished tasks from the persisted history. Run against a
stopped daemon; a running daemon overwrites the history on its next write.`,
	RunE: runClear,
}

func runClear(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	snap, err := loadSnapshot(db)
	if err != nil {
		return err
	}

	cleared := history.ClearCompleted(snap)
	removed := len(snap.Items) - len(cleared.Items)

	data, err := persist.Encode(cleared)
	if err != nil {
		return err
	}
	if err := db.SaveHistory(data); err != nil {
		return err
	}

	fmt.Printf("Removed %d completed task(s), %d remaining.\n", removed, len(cleared.Items))
	return nil
}
