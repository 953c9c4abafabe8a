package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fluid-gateway/internal/app"
	"fluid-gateway/internal/config"
	"fluid-gateway/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:   "fldgate",
	Short: "Fluid Network token gateway: prices, balances, presale and airdrop",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger := logging.NewLogger(cfg.Logging)
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pricesCmd)
	rootCmd.AddCommand(balancesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(purchaseCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(airdropCmd)
	rootCmd.AddCommand(presaleCmd)
	rootCmd.AddCommand(exportPricesCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
