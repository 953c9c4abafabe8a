package cli

import (
	"github.com/spf13/cobra"
)

var trackOwner string

var trackCmd = &cobra.Command{
	Use:   "track HASH",
	Short: "Follow a transaction until it reaches the required confirmations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Track(cmd.Context(), args[0], trackOwner, cmd.OutOrStdout())
	},
}

func init() {
	trackCmd.Flags().StringVar(&trackOwner, "owner", "", "Account whose history record is settled (defaults to the configured wallet)")
}
