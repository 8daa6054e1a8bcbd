package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/supercomparador/internal/api"
	"github.com/maltedev/supercomparador/internal/cache"
	"github.com/maltedev/supercomparador/internal/database"
	"github.com/maltedev/supercomparador/internal/events"
	"github.com/maltedev/supercomparador/internal/metrics"
	"github.com/maltedev/supercomparador/internal/orchestrator"
	"github.com/maltedev/supercomparador/internal/queue"
	"github.com/maltedev/supercomparador/internal/ratelimit"
	"github.com/maltedev/supercomparador/internal/scheduler"
	"github.com/maltedev/supercomparador/internal/search"
	"github.com/maltedev/supercomparador/internal/storage"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scrape scheduler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("port", "", "listen port (overrides SERVER_PORT)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := baseLogger
	m := metrics.New()

	store, err := storage.NewSnapshotStore(cfg.Snapshot.Path)
	if err != nil {
		return err
	}
	catalog := search.NewCatalog(store, cfg.Snapshot.MaxAge)
	if err := catalog.Reload(); err != nil {
		if !errors.Is(err, storage.ErrNoSnapshot) {
			logger.Warn("failed to load snapshot", "path", store.Path(), "error", err)
		} else {
			logger.Info("no snapshot yet", "path", store.Path())
		}
	}

	sinks := []orchestrator.Sink{store, catalog}
	layers := []cache.Cache{cache.NewMemory(cfg.Cache.Size, cfg.Cache.TTL)}

	if cfg.Redis.Enabled {
		redisClient := newRedisClient(cfg)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}

		sinks = append(sinks, events.NewPublisher(redisClient, cfg.Redis.Stream, cfg.Redis.MaxLen, logger))
		layers = append(layers, cache.NewRedis(redisClient, cfg.Redis.Prefix+"search:", cfg.Cache.TTL, logger))
		logger.Info("redis enabled", "addr", cfg.Redis.Addr, "stream", cfg.Redis.Stream)
	}

	var runs api.RunHistory
	if cfg.Database.Enabled {
		db, err := database.New(ctx, database.Config{
			DSN:      cfg.Database.DSN(),
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		repo := database.NewRunRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}

		sinks = append(sinks, repo)
		runs = repo
		logger.Info("run history enabled", "host", cfg.Database.Host, "database", cfg.Database.DBName)
	}

	o, err := newOrchestrator(cfg, m, logger, sinks...)
	if err != nil {
		return err
	}

	svc := search.NewService(catalog, o, search.Config{
		Adapters:          o.Adapters(),
		Cache:             cache.NewTiered(layers...),
		Breaker:           ratelimit.NewBreaker(cfg.Search.BreakerFailures, cfg.Search.BreakerCooldown),
		Limiter:           ratelimit.NewTokenBucketRateLimiter(cfg.Search.FallbackBurst, cfg.Search.FallbackRefill),
		Metrics:           m,
		LiveFallback:      cfg.Search.LiveFallback,
		LiveScrapeTimeout: cfg.Search.LiveScrapeTimeout,
	}, logger)

	jobs := queue.NewInMemoryQueue()
	spacing := ratelimit.NewAdaptiveRateLimiter(cfg.Schedule.SpacingMin, cfg.Schedule.SpacingMax)
	worker := scheduler.NewWorker(jobs, o, spacing, logger)
	sched := scheduler.New(worker, scheduler.Options{
		Interval:   cfg.Schedule.Interval,
		Terms:      cfg.Schedule.Terms,
		RunOnStart: cfg.Schedule.RunOnStart,
	}, logger)

	handlers := api.NewHandlers(svc, worker, runs, o.Adapters(), logger)
	server := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: api.NewRouter(handlers, api.RouterOptions{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Timeout:        cfg.Search.LiveScrapeTimeout + cfg.Server.ReadTimeout,
			Metrics:        m.Handler(),
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCanceled(worker.Run(gctx))
	})

	g.Go(func() error {
		return ignoreCanceled(sched.Run(gctx))
	})

	g.Go(func() error {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		_ = jobs.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("server stopped")
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
