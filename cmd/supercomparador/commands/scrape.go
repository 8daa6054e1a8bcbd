package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/maltedev/supercomparador/internal/export"
	"github.com/maltedev/supercomparador/internal/logger"
	"github.com/maltedev/supercomparador/internal/models"
	"github.com/maltedev/supercomparador/internal/orchestrator"
	"github.com/maltedev/supercomparador/internal/storage"
	"github.com/spf13/cobra"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <term>",
	Short: "Scrape every retailer for a term and print the cheapest products",
	Long: `Scrape runs one search term against the configured retailers, one
browser session at a time, and prints the globally cheapest products.

Retailers that fail, time out or block the browser are reported in the
log and contribute no products.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	flags := scrapeCmd.Flags()
	flags.StringP("retailer", "r", "all", "retailer name or \"all\"")
	flags.IntP("top", "n", 0, "number of products to keep (default from config)")
	flags.StringP("format", "f", "json", "output format: json or csv")
	flags.StringP("output", "o", "-", "output file, - for stdout")
	flags.Bool("save", true, "overwrite the snapshot file with the result")
}

func runScrape(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	retailer, _ := flags.GetString("retailer")
	top, _ := flags.GetInt("top")
	format, _ := flags.GetString("format")
	output, _ := flags.GetString("output")
	save, _ := flags.GetBool("save")

	// stdout carries the results.
	baseLogger = logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

	format = strings.ToLower(format)
	if format != "json" && format != "csv" {
		return fmt.Errorf("unsupported format %q", format)
	}

	if top > 0 {
		cfg.Scraper.TopN = top
	}

	var sinks []orchestrator.Sink
	if save {
		store, err := storage.NewSnapshotStore(cfg.Snapshot.Path)
		if err != nil {
			return err
		}
		sinks = append(sinks, store)
	}

	o, err := newOrchestrator(cfg, nil, baseLogger, sinks...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rs, err := o.Run(ctx, orchestrator.Request{
		Query:    strings.Join(args, " "),
		Retailer: retailer,
	})
	if err != nil {
		return err
	}

	for _, outcome := range rs.Retailers {
		baseLogger.Info("retailer outcome",
			"retailer", outcome.Retailer,
			"status", outcome.Status,
			"kept", outcome.Kept,
			"duration", outcome.Duration)
	}

	w := cmd.OutOrStdout()
	if output != "-" && output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	return writeProducts(w, format, rs.Products)
}

func writeProducts(w io.Writer, format string, products []models.ProductRecord) error {
	if format == "csv" {
		return export.WriteCSV(w, products)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(products)
}
