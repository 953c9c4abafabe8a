package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var purchaseCmd = &cobra.Command{
	Use:   "purchase",
	Short: "Quote or submit a presale purchase",
}

var purchaseQuoteCmd = &cobra.Command{
	Use:   "quote AMOUNT TOKEN",
	Short: "Value a payment in USD and FLD",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[0])
		if err != nil {
			return err
		}
		return getApp().Quote(cmd.Context(), amount, args[1], cmd.OutOrStdout())
	},
}

var purchaseSubmitCmd = &cobra.Command{
	Use:   "submit AMOUNT TOKEN",
	Short: "Record a presale purchase for the configured wallet",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[0])
		if err != nil {
			return err
		}
		return getApp().Purchase(cmd.Context(), amount, args[1], cmd.OutOrStdout())
	},
}

func parseAmount(v string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", v, err)
	}
	return amount, nil
}

func init() {
	purchaseCmd.AddCommand(purchaseQuoteCmd)
	purchaseCmd.AddCommand(purchaseSubmitCmd)
}
