package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fluid-gateway/internal/app"
)

var (
	exportFrom      string
	exportTo        string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
	exportSymbol    string
)

var exportPricesCmd = &cobra.Command{
	Use:   "export-prices",
	Short: "Export stored price snapshots as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Symbol:    exportSymbol,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		if exportFrom != "" {
			from, err := time.Parse(time.RFC3339, exportFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		if exportTo != "" {
			to, err := time.Parse(time.RFC3339, exportTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = &to
		}

		return getApp().ExportPrices(cmd.Context(), opts)
	},
}

func init() {
	exportPricesCmd.Flags().StringVar(&exportSymbol, "symbol", "ETH", "Token symbol to export")
	exportPricesCmd.Flags().StringVar(&exportFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	exportPricesCmd.Flags().StringVar(&exportTo, "to", "", "End timestamp (RFC3339, exclusive)")
	exportPricesCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportPricesCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportPricesCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
