package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fluid-gateway/internal/app"
)

var (
	historyAddress string
	historyType    string
	historyStatus  string
	historyLimit   int
	historyOut     string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the local transaction log",
}

var historyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the newest transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().ShowHistory(cmd.Context(), historyOptions(), cmd.OutOrStdout())
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export transactions as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ExportHistory(cmd.Context(), historyOptions(), historyOut, cmd.OutOrStdout())
	},
}

func historyOptions() app.HistoryOptions {
	return app.HistoryOptions{
		Address: historyAddress,
		Type:    historyType,
		Status:  historyStatus,
		Limit:   historyLimit,
	}
}

func init() {
	historyCmd.PersistentFlags().StringVar(&historyAddress, "address", "", "Account to inspect (defaults to the configured wallet)")
	historyCmd.PersistentFlags().StringVar(&historyType, "type", "", "Filter by type: purchase, claim, transfer, approve")
	historyCmd.PersistentFlags().StringVar(&historyStatus, "status", "", "Filter by status: pending, success, failed")

	historyShowCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of transactions to display")
	historyExportCmd.Flags().StringVar(&historyOut, "out", "", "CSV file to write (stdout when empty)")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyExportCmd)
}
