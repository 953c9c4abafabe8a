package cli

import (
	"github.com/spf13/cobra"
)

var balancesChainID int64

var balancesCmd = &cobra.Command{
	Use:   "balances [ADDRESS]",
	Short: "Show native and ERC-20 balances of an address or the configured wallet",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := ""
		if len(args) == 1 {
			address = args[0]
		}
		return getApp().Balances(cmd.Context(), address, balancesChainID, cmd.OutOrStdout())
	},
}

func init() {
	balancesCmd.Flags().Int64Var(&balancesChainID, "chain-id", 0, "Chain to read; must be ethereum.chain_id or a key of ethereum.rpc_urls")
}
