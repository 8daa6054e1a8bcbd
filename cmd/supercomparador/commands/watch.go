package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/supercomparador/internal/events"
	"github.com/maltedev/supercomparador/internal/logger"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow finished scrape runs on the Redis stream",
	Long: `Watch joins a consumer group on the run stream that serve publishes
to and prints one line per finished run. Events are acknowledged once
printed, so several watchers in the same group share the stream.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	host, _ := os.Hostname()
	if host == "" {
		host = "watcher"
	}
	watchCmd.Flags().String("group", "supercomparador-watch", "consumer group name")
	watchCmd.Flags().String("consumer", host, "consumer name within the group")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	group, _ := cmd.Flags().GetString("group")
	consumerName, _ := cmd.Flags().GetString("consumer")

	baseLogger = logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newRedisClient(cfg)
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	w := cmd.OutOrStdout()
	consumer := events.NewConsumer(client, cfg.Redis.Stream, group, consumerName, baseLogger)
	err := consumer.Run(ctx, func(_ context.Context, p *events.ScrapeCompletedPayload) error {
		return writeEvent(w, p)
	})
	return ignoreCanceled(err)
}

func writeEvent(w io.Writer, p *events.ScrapeCompletedPayload) error {
	cheapest := "-"
	if p.Cheapest != nil {
		cheapest = fmt.Sprintf("%s %.2f € (%s)", p.Cheapest.Name, p.Cheapest.Price, p.Cheapest.Retailer)
	}

	_, err := fmt.Fprintf(w, "%s  %-20q  %3d products  %6s  %s\n",
		p.Timestamp.Local().Format(time.DateTime),
		p.Query,
		p.Products,
		(time.Duration(p.DurationMS) * time.Millisecond).Round(time.Second),
		cheapest)
	return err
}
