// Package commands implements the supercomparador CLI.
package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/maltedev/supercomparador/internal/config"
	"github.com/maltedev/supercomparador/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfg        *config.Config
	baseLogger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "supercomparador",
	Short: "Compare grocery prices across Spanish supermarkets",
	Long: `supercomparador scrapes supermarket search pages, normalizes the
listings and ranks them by price.

Examples:
  # Cheapest three results for a term across every retailer
  supercomparador scrape leche entera

  # One retailer, ten results, as CSV
  supercomparador scrape aceite --retailer Lidl --top 10 --format csv

  # HTTP API plus scheduled re-scrapes
  supercomparador serve --config config.yaml`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	path, _ := cmd.Flags().GetString("config")
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		loaded.Logging.Level = "debug"
	}

	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cfg = loaded
	baseLogger = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(baseLogger)

	return nil
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
