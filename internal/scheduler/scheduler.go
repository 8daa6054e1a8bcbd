// Package scheduler re-scrapes a fixed list of terms periodically and runs
// queued scrape jobs in the background.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maltedev/supercomparador/internal/adapter"
	"github.com/maltedev/supercomparador/internal/queue"
)

type Options struct {
	Interval   time.Duration
	Terms      []string
	RunOnStart bool
}

// Scheduler submits every configured term to the worker on each tick.
type Scheduler struct {
	worker *Worker
	opts   Options
	logger *slog.Logger
}

func New(worker *Worker, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		worker: worker,
		opts:   opts,
		logger: logger.With("component", "scheduler"),
	}
}

// Run blocks until ctx is done. A zero interval disables periodic runs.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.opts.Terms) == 0 {
		s.logger.Info("no scheduled terms configured")
		return nil
	}

	s.logger.Info("starting scheduler",
		"interval", s.opts.Interval,
		"terms", len(s.opts.Terms),
		"run_on_start", s.opts.RunOnStart)

	if s.opts.RunOnStart {
		s.enqueue()
	}

	if s.opts.Interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.enqueue()
		}
	}
}

func (s *Scheduler) enqueue() {
	queued := 0
	for _, term := range s.opts.Terms {
		_, err := s.worker.Submit(term, adapter.FilterAll, queue.PriorityScheduled)
		switch {
		case err == nil:
			queued++
		case errors.Is(err, queue.ErrDuplicate):
			s.logger.Debug("term already pending", "query", term)
		default:
			s.logger.Error("failed to queue scheduled term", "query", term, "error", err)
		}
	}
	s.logger.Info("scheduled terms queued", "queued", queued)
}
