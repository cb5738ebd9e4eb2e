package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	notificationsCmd.Flags().IntVar(&notificationsLimit, "limit", 20, "Maximum notifications to list")
	rootCmd.AddCommand(notificationsCmd)
}

var notificationsLimit int

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List pending task notifications",
	RunE:  runNotifications,
}

func runNotifications(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	pending, err := db.ListPendingNotifications(notificationsLimit)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("No pending notifications.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTASK\tSTATUS\tTITLE\tBODY")
	for _, n := range pending {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			n.ID, shortID(n.TaskID), n.Status, n.Title, n.Body,
		)
	}
	return w.Flush()
}
