package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/opensource-finance/lossim/internal/config"
	"github.com/opensource-finance/lossim/internal/domain"
	"github.com/opensource-finance/lossim/internal/logging"
)

var (
	configPath string
	envFile    string

	// cfg is resolved before any subcommand runs.
	cfg *domain.Config
)

var rootCmd = &cobra.Command{
	Use:   "lossim",
	Short: "Monte Carlo fraud-loss simulator",
	Long: `Lossim simulates monthly fraud losses of a payment portfolio, reports
expected loss, VaR and CVaR at 95% and budget breach probability, ranks the
drivers of loss and checks the results against risk-appetite policies.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		// Logs go to stderr so stdout stays machine-readable.
		logging.Init(cfg.Logging, os.Stderr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("LOSSIM_CONFIG"), "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(tornadoCmd)
	rootCmd.AddCommand(stressCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.Version = Version + " (" + Commit + ", " + BuildDate + ")"
}
