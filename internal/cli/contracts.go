package cli

import (
	"github.com/spf13/cobra"
)

var claimFollow bool

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim the airdrop allocation of the configured wallet",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Claim(cmd.Context(), claimFollow, cmd.OutOrStdout())
	},
}

var airdropCmd = &cobra.Command{
	Use:   "airdrop [ADDRESS]",
	Short: "Show airdrop totals and the claim status of an address",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := ""
		if len(args) == 1 {
			address = args[0]
		}
		return getApp().Airdrop(cmd.Context(), address, cmd.OutOrStdout())
	},
}

var presaleCmd = &cobra.Command{
	Use:   "presale",
	Short: "Show presale totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Presale(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	claimCmd.Flags().BoolVar(&claimFollow, "follow", true, "Track the claim until it is confirmed")
}
