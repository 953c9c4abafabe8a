package cli

import (
	"github.com/spf13/cobra"

	"fluid-gateway/internal/app"
)

var pricesRemote string

var pricesCmd = &cobra.Command{
	Use:   "prices [SYMBOL...]",
	Short: "Fetch USD prices, using the fallback table when the provider fails",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Prices(cmd.Context(), app.PricesOptions{
			Symbols: args,
			Remote:  pricesRemote,
		}, cmd.OutOrStdout())
	},
}

func init() {
	pricesCmd.Flags().StringVar(&pricesRemote, "remote", "", "Base URL of a running gateway to query instead of the provider")
}
