package cli

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/fleetdeck/fleetdeck/internal/app/logcat"
	"github.com/fleetdeck/fleetdeck/internal/daemon"
)

func init() {
	logsCmd.Flags().Int64Var(&logsAfter, "after", 0, "Only lines with an id greater than this")
	logsCmd.Flags().BoolVar(&logsClear, "clear", false, "Clear the device's log view instead of printing it")
	rootCmd.AddCommand(logsCmd)
}

var (
	logsAfter int64
	logsClear bool
)

var logsCmd = &cobra.Command{
	Use:   "logs <serial>",
	Short: "Print a device's coalesced log lines from the running daemon",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogs,
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	base := fmt.Sprintf("http://%s:%d/api/logs/%s", cfg.API.Host, cfg.API.Port, args[0])

	if logsClear {
		req, err := http.NewRequest(http.MethodDelete, base, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("is the daemon running? %w", err)
		}
		defer resp.Body.Close()
		fmt.Println("Cleared.")
		return nil
	}

	resp, err := http.Get(fmt.Sprintf("%s?after=%d", base, logsAfter))
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Serial string        `json:"serial"`
		Lines  []logcat.Line `json:"lines"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}
	if len(body.Lines) == 0 {
		fmt.Println("No visible lines.")
		return nil
	}
	for _, line := range body.Lines {
		fmt.Printf("%6d  %s\n", line.ID, line.Text)
	}
	return nil
}
