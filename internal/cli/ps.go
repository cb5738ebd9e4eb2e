package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(psCmd)
}

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List tasks in the history",
	RunE:  runPs,
}

func runPs(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	snap, err := loadSnapshot(db)
	if err != nil {
		return err
	}
	if len(snap.Items) == 0 {
		fmt.Println("No tasks in history.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tDEVICES\tSTARTED\tTITLE")
	for _, task := range snap.Items {
		c := task.DeviceOutcomes()
		fmt.Fprintf(w, "%s\t%s\t%s\t%d ok/%d err/%d run\t%s\t%s\n",
			shortID(task.ID),
			task.Kind,
			task.Status,
			c.Success, c.Error, c.Running,
			task.StartedAt.Format("15:04:05"),
			task.Title,
		)
	}
	return w.Flush()
}
