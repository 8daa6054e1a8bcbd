// Package search answers product queries from the stored catalog, a result
// cache and, as a last resort, a rate-limited live scrape.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/maltedev/supercomparador/internal/adapter"
	"github.com/maltedev/supercomparador/internal/cache"
	"github.com/maltedev/supercomparador/internal/metrics"
	"github.com/maltedev/supercomparador/internal/models"
	"github.com/maltedev/supercomparador/internal/normalize"
	"github.com/maltedev/supercomparador/internal/orchestrator"
	"github.com/maltedev/supercomparador/internal/ratelimit"
	"github.com/maltedev/supercomparador/internal/storage"
)

var (
	ErrInvalidQuery      = errors.New("invalid query")
	ErrFallbackThrottled = errors.New("live scrape fallback throttled")
)

// Result sources reported to metrics.
const (
	SourceSnapshot = "snapshot"
	SourceCache    = "cache"
	SourceLive     = "live"
	SourceNone     = "none"
)

type Query struct {
	Text     string `json:"q" validate:"required,max=100"`
	Retailer string `json:"supermercado"`
}

// Runner executes a scrape run.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) (*models.ResultSet, error)
}

type Config struct {
	Adapters          []adapter.Adapter
	Cache             cache.Cache
	Breaker           *ratelimit.Breaker
	Limiter           *ratelimit.TokenBucketRateLimiter
	Metrics           *metrics.Metrics
	LiveFallback      bool
	LiveScrapeTimeout time.Duration
}

type Service struct {
	catalog  *Catalog
	runner   Runner
	cfg      Config
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(catalog *Catalog, runner Runner, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalog:  catalog,
		runner:   runner,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger.With("component", "search"),
		now:      time.Now,
	}
}

func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Validate trims q and checks it against the configured retailers.
func (s *Service) Validate(q Query) (Query, error) {
	q.Text = strings.TrimSpace(q.Text)
	q.Retailer = strings.TrimSpace(q.Retailer)

	if err := s.validate.Struct(q); err != nil {
		return q, fmt.Errorf("%w: %s", ErrInvalidQuery, describe(err))
	}

	if _, err := adapter.Select(s.cfg.Adapters, q.Retailer); err != nil {
		return q, fmt.Errorf("%w: unknown retailer %q", ErrInvalidQuery, q.Retailer)
	}

	return q, nil
}

// Search returns the products matching q in ascending price order. An empty
// result is not an error.
func (s *Service) Search(ctx context.Context, q Query) ([]models.ProductRecord, error) {
	q, err := s.Validate(q)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("query", q.Text, "retailer", q.Retailer)

	now := s.now()
	if s.catalog.Stale(now) {
		if err := s.catalog.Reload(); err != nil && !errors.Is(err, storage.ErrNoSnapshot) {
			logger.Warn("failed to reload catalog", "error", err)
		}
	}
	s.cfg.Metrics.SetSnapshotAge(s.catalog.Age(now))

	if matches := normalize.Filter(s.catalog.Products(), q.Text, q.Retailer); len(matches) > 0 {
		s.cfg.Metrics.IncSearch(SourceSnapshot)
		return normalize.Rank(matches, 0), nil
	}

	key := cache.Key(q.Text, q.Retailer)
	if s.cfg.Cache != nil {
		if products, ok := s.cfg.Cache.Get(ctx, key); ok {
			s.cfg.Metrics.IncSearch(SourceCache)
			return products, nil
		}
	}

	products, err := s.live(ctx, q)
	if err != nil {
		if errors.Is(err, ErrFallbackThrottled) {
			logger.Info("skipping live scrape", "error", err)
		} else {
			logger.Warn("live scrape failed", "error", err)
		}
		s.cfg.Metrics.IncSearch(SourceNone)
		return make([]models.ProductRecord, 0), nil
	}

	if len(products) == 0 {
		s.cfg.Metrics.IncSearch(SourceNone)
		return products, nil
	}

	if s.cfg.Cache != nil {
		s.cfg.Cache.Set(ctx, key, products)
	}
	s.cfg.Metrics.IncSearch(SourceLive)
	return products, nil
}

func (s *Service) live(ctx context.Context, q Query) ([]models.ProductRecord, error) {
	if !s.cfg.LiveFallback || s.runner == nil {
		return nil, fmt.Errorf("%w: disabled", ErrFallbackThrottled)
	}

	if s.cfg.Limiter != nil && !s.cfg.Limiter.Allow() {
		return nil, fmt.Errorf("%w: rate limit", ErrFallbackThrottled)
	}

	if s.cfg.Breaker != nil && !s.cfg.Breaker.Allow() {
		return nil, fmt.Errorf("%w: circuit %s", ErrFallbackThrottled, s.cfg.Breaker.State())
	}

	if s.cfg.LiveScrapeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.LiveScrapeTimeout)
		defer cancel()
	}

	rs, err := s.runner.Run(ctx, orchestrator.Request{Query: q.Text, Retailer: q.Retailer})
	if err != nil || rs.Len() == 0 {
		if s.cfg.Breaker != nil {
			s.cfg.Breaker.RecordFailure()
		}
		if err != nil {
			return nil, err
		}
		return make([]models.ProductRecord, 0), nil
	}

	if s.cfg.Breaker != nil {
		s.cfg.Breaker.RecordSuccess()
	}
	return rs.Products, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, "query text is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("query text must be at most %s characters", fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
