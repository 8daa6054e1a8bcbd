// Package orchestrator runs one search term against every selected retailer,
// isolates their failures from each other and produces the globally ranked
// result set.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/supercomparador/internal/adapter"
	"github.com/maltedev/supercomparador/internal/metrics"
	"github.com/maltedev/supercomparador/internal/models"
	"github.com/maltedev/supercomparador/internal/normalize"
	"github.com/maltedev/supercomparador/internal/scraper"
	"golang.org/x/sync/errgroup"
)

var ErrEmptyQuery = errors.New("query is required")

// RetailerScraper loads and extracts one retailer's search results.
type RetailerScraper interface {
	Scrape(ctx context.Context, a adapter.Adapter, term string) ([]models.RawRecord, error)
}

// Sink receives every completed result set.
type Sink interface {
	Consume(ctx context.Context, rs *models.ResultSet) error
}

type Options struct {
	TopN            int
	Concurrency     int
	RetailerTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		TopN:            3,
		Concurrency:     1,
		RetailerTimeout: 3 * time.Minute,
	}
}

// Request selects what to scrape. ID, when set, becomes the result set ID.
type Request struct {
	ID       string
	Query    string
	Retailer string
}

type Orchestrator struct {
	adapters []adapter.Adapter
	scraper  RetailerScraper
	sinks    []Sink
	opts     Options
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func New(adapters []adapter.Adapter, s RetailerScraper, opts Options, m *metrics.Metrics, logger *slog.Logger, sinks ...Sink) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Orchestrator{
		adapters: adapters,
		scraper:  s,
		sinks:    sinks,
		opts:     opts,
		metrics:  m,
		logger:   logger.With("component", "orchestrator"),
		now:      time.Now,
	}
}

func (o *Orchestrator) Adapters() []adapter.Adapter {
	return o.adapters
}

// AddSink registers s for result sets produced after the call. Not safe to
// call concurrently with Run.
func (o *Orchestrator) AddSink(s Sink) {
	o.sinks = append(o.sinks, s)
}

type retailerResult struct {
	products []models.ProductRecord
	outcome  models.RetailerOutcome
}

// Run scrapes every retailer selected by req. A retailer that fails, panics or
// times out contributes no products; only an empty query or an unknown
// retailer filter is reported as an error.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*models.ResultSet, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	selected, err := adapter.Select(o.adapters, req.Retailer)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, req.Retailer)
	}

	rs := models.NewResultSet(query, strings.TrimSpace(req.Retailer))
	if req.ID != "" {
		rs.ID = req.ID
	}
	rs.StartedAt = o.now()
	logger := o.logger.With("run_id", rs.ID, "query", query)
	logger.Info("starting scrape run", "retailers", adapter.Names(selected))
	o.metrics.IncRun()

	results := make([]retailerResult, len(selected))

	g := new(errgroup.Group)
	g.SetLimit(o.opts.Concurrency)
	for i, a := range selected {
		g.Go(func() error {
			results[i] = o.runRetailer(ctx, a, query, rs.StartedAt, logger)
			return nil
		})
	}
	_ = g.Wait()

	merged := make([]models.ProductRecord, 0)
	for _, r := range results {
		merged = append(merged, r.products...)
		rs.Retailers = append(rs.Retailers, r.outcome)
	}

	rs.Products = normalize.Rank(merged, o.opts.TopN)
	rs.FinishedAt = o.now()

	logger.Info("scrape run finished",
		"candidates", len(merged),
		"kept", rs.Len(),
		"duration", rs.Duration(),
	)

	o.notify(ctx, rs, logger)

	return rs, nil
}

// runRetailer stamps every product with fetchedAt so a run's records share
// its start time.
func (o *Orchestrator) runRetailer(ctx context.Context, a adapter.Adapter, query string, fetchedAt time.Time, logger *slog.Logger) (result retailerResult) {
	logger = logger.With("retailer", a.Name)
	start := o.now()
	result.outcome.Retailer = a.Name

	defer func() {
		if r := recover(); r != nil {
			logger.Error("retailer scrape panicked", "panic", r)
			result.products = nil
			result.outcome.Status = models.StatusFailed
			result.outcome.Error = fmt.Sprintf("panic: %v", r)
		}
		result.outcome.Duration = o.now().Sub(start)
		o.metrics.ObserveRetailer(a.Name, string(result.outcome.Status), result.outcome.Duration)
	}()

	rctx := ctx
	if o.opts.RetailerTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, o.opts.RetailerTimeout)
		defer cancel()
	}

	raw, err := o.scraper.Scrape(rctx, a, query)
	if err == nil && rctx.Err() != nil {
		err = rctx.Err()
	}
	if err != nil {
		result.outcome.Status = scraper.Classify(err)
		result.outcome.Error = err.Error()
		logger.Warn("retailer returned no results", "status", result.outcome.Status, "error", err)
		return result
	}

	products, stats := normalize.Normalize(raw, a.Name, fetchedAt)
	o.metrics.AddProducts(a.Name, stats.Kept, stats.MissingName, stats.BadPrice)

	result.products = products
	result.outcome.Extracted = stats.Extracted
	result.outcome.Kept = stats.Kept
	result.outcome.Status = models.StatusOK
	if stats.Kept == 0 {
		result.outcome.Status = models.StatusEmpty
	}

	logger.Info("retailer scraped",
		"extracted", stats.Extracted,
		"kept", stats.Kept,
		"dropped", stats.Dropped(),
	)

	return result
}

func (o *Orchestrator) notify(ctx context.Context, rs *models.ResultSet, logger *slog.Logger) {
	for _, s := range o.sinks {
		if err := s.Consume(ctx, rs); err != nil {
			logger.Error("result sink failed", "sink", fmt.Sprintf("%T", s), "error", err)
		}
	}
}
