package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fleetdeck/fleetdeck/internal/domain"
)

func init() {
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task and its per-device results",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	snap, err := loadSnapshot(db)
	if err != nil {
		return err
	}

	task, ok := findTask(snap.Items, args[0])
	if !ok {
		return fmt.Errorf("no task matching %q", args[0])
	}

	fmt.Printf("ID:       %s\n", task.ID)
	fmt.Printf("Kind:     %s\n", task.Kind)
	fmt.Printf("Title:    %s\n", task.Title)
	fmt.Printf("Status:   %s\n", task.Status)
	fmt.Printf("Started:  %s\n", task.StartedAt.Format("2006-01-02 15:04:05"))
	if task.FinishedAt != nil {
		fmt.Printf("Finished: %s\n", task.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	if task.TraceID != "" {
		fmt.Printf("Trace:    %s\n", task.TraceID)
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERIAL\tSTATUS\tMESSAGE\tOUTPUT")
	for serial, d := range task.Devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", serial, d.Status, d.Message, d.OutputPath)
	}
	return w.Flush()
}

// findTask matches by full id or unambiguous prefix.
func findTask(items []domain.Task, query string) (domain.Task, bool) {
	for _, t := range items {
		if t.ID == query {
			return t, true
		}
	}
	var match domain.Task
	var hits int
	for _, t := range items {
		if strings.HasPrefix(t.ID, query) {
			match = t
			hits++
		}
	}
	if hits == 1 {
		return match, true
	}
	return domain.Task{}, false
}
