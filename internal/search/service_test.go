package search

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maltedev/supercomparador/internal/adapter"
	"github.com/maltedev/supercomparador/internal/cache"
	"github.com/maltedev/supercomparador/internal/models"
	"github.com/maltedev/supercomparador/internal/orchestrator"
	"github.com/maltedev/supercomparador/internal/ratelimit"
	"github.com/maltedev/supercomparador/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	rs    *models.ResultSet
	err   error
	loads int
}

func (f *fakeLoader) Load() (*models.ResultSet, error) {
	f.loads++
	return f.rs, f.err
}

type fakeRunner struct {
	mu       sync.Mutex
	products []models.ProductRecord
	requests []orchestrator.Request
}

func (f *fakeRunner) Run(_ context.Context, req orchestrator.Request) (*models.ResultSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)

	rs := models.NewResultSet(req.Query, req.Retailer)
	rs.Products = append(rs.Products, f.products...)
	return rs, nil
}

func snapshot() *models.ResultSet {
	rs := models.NewResultSet("leche", "")
	rs.FinishedAt = time.Now()
	rs.Products = []models.ProductRecord{
		{Name: "Leche Entera 1L", Price: 0.79, Retailer: "Lidl", LinkURL: "#"},
		{Name: "Leche Semidesnatada", Price: 0.85, Retailer: "Mercadona", LinkURL: "#"},
		{Name: "Pan de molde", Price: 1.20, Retailer: "Mercadona", LinkURL: "#"},
	}
	return rs
}

func testAdapters() []adapter.Adapter {
	return []adapter.Adapter{
		{Name: "Mercadona", SearchURL: "https://tienda.mercadona.es/search-results?query="},
		{Name: "Lidl", SearchURL: "https://www.lidl.es/q/search?q="},
	}
}

func newService(loader SnapshotLoader, runner Runner, cfg Config) *Service {
	cfg.Adapters = testAdapters()
	return NewService(NewCatalog(loader, time.Minute), runner, cfg, slog.Default())
}

func TestSearchValidation(t *testing.T) {
	runner := &fakeRunner{}
	svc := newService(&fakeLoader{rs: snapshot()}, runner, Config{LiveFallback: true})

	for _, q := range []Query{
		{Text: ""},
		{Text: "   "},
		{Text: strings.Repeat("a", 101)},
		{Text: "leche", Retailer: "Aldi"},
	} {
		_, err := svc.Search(context.Background(), q)
		assert.ErrorIs(t, err, ErrInvalidQuery, "query %+v", q)
	}
	assert.Empty(t, runner.requests)

	_, err := svc.Search(context.Background(), Query{Text: strings.Repeat("ñ", 100), Retailer: "LIDL"})
	assert.NoError(t, err)
}

func TestSearchFromSnapshot(t *testing.T) {
	loader := &fakeLoader{rs: snapshot()}
	runner := &fakeRunner{}
	svc := newService(loader, runner, Config{LiveFallback: true})

	got, err := svc.Search(context.Background(), Query{Text: "lech"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Leche Entera 1L", got[0].Name)

	got, err = svc.Search(context.Background(), Query{Text: "LECHE", Retailer: "mercadona"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Mercadona", got[0].Retailer)

	assert.Equal(t, 1, loader.loads, "fresh catalog is not reloaded")
	assert.Empty(t, runner.requests)
}

func TestSearchReloadsStaleCatalog(t *testing.T) {
	loader := &fakeLoader{rs: snapshot()}
	svc := newService(loader, nil, Config{})

	clock := time.Now()
	svc.now = func() time.Time { return clock }
	svc.catalog.now = svc.now

	_, err := svc.Search(context.Background(), Query{Text: "pan"})
	require.NoError(t, err)
	assert.Equal(t, 1, loader.loads)

	clock = clock.Add(2 * time.Minute)
	_, err = svc.Search(context.Background(), Query{Text: "pan"})
	require.NoError(t, err)
	assert.Equal(t, 2, loader.loads)
}

func TestSearchWithoutSnapshot(t *testing.T) {
	svc := newService(&fakeLoader{err: storage.ErrNoSnapshot}, nil, Config{})

	got, err := svc.Search(context.Background(), Query{Text: "leche"})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSearchFromCache(t *testing.T) {
	runner := &fakeRunner{}
	memory := cache.NewMemory(10, time.Minute)
	cached := []models.ProductRecord{{Name: "Yogur natural", Price: 0.45, Retailer: "Lidl"}}
	memory.Set(context.Background(), cache.Key("yogur", ""), cached)

	svc := newService(&fakeLoader{rs: snapshot()}, runner, Config{Cache: memory, LiveFallback: true})

	got, err := svc.Search(context.Background(), Query{Text: "  Yogur "})
	require.NoError(t, err)
	assert.Equal(t, cached, got)
	assert.Empty(t, runner.requests)
}

func TestSearchLiveFallback(t *testing.T) {
	runner := &fakeRunner{products: []models.ProductRecord{
		{Name: "Huevos L", Price: 1.99, Retailer: "Lidl"},
	}}
	memory := cache.NewMemory(10, time.Minute)
	breaker := ratelimit.NewBreaker(2, time.Hour)

	svc := newService(&fakeLoader{rs: snapshot()}, runner, Config{
		Cache:             memory,
		Breaker:           breaker,
		Limiter:           ratelimit.NewTokenBucketRateLimiter(5, time.Minute),
		LiveFallback:      true,
		LiveScrapeTimeout: time.Second,
	})

	got, err := svc.Search(context.Background(), Query{Text: "huevos", Retailer: "Lidl"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []orchestrator.Request{{Query: "huevos", Retailer: "Lidl"}}, runner.requests)

	_, ok := memory.Get(context.Background(), cache.Key("huevos", "lidl"))
	assert.True(t, ok, "live results are cached")

	_, err = svc.Search(context.Background(), Query{Text: "Huevos", Retailer: "lidl"})
	require.NoError(t, err)
	assert.Len(t, runner.requests, 1, "second search served from cache")
	assert.Equal(t, ratelimit.StateClosed, breaker.State())
}

func TestSearchLiveFallbackOpensBreaker(t *testing.T) {
	runner := &fakeRunner{}
	breaker := ratelimit.NewBreaker(2, time.Hour)
	svc := newService(&fakeLoader{rs: snapshot()}, runner, Config{
		Breaker:      breaker,
		LiveFallback: true,
	})

	for range 4 {
		got, err := svc.Search(context.Background(), Query{Text: "azafrán"})
		require.NoError(t, err)
		assert.Empty(t, got)
	}

	assert.Len(t, runner.requests, 2, "empty live results trip the breaker")
	assert.Equal(t, ratelimit.StateOpen, breaker.State())
}

func TestSearchLiveFallbackRateLimited(t *testing.T) {
	runner := &fakeRunner{}
	svc := newService(&fakeLoader{rs: snapshot()}, runner, Config{
		Limiter:      ratelimit.NewTokenBucketRateLimiter(1, time.Hour),
		LiveFallback: true,
	})

	for range 3 {
		_, err := svc.Search(context.Background(), Query{Text: "café"})
		require.NoError(t, err)
	}
	assert.Len(t, runner.requests, 1)
}

func TestSearchLiveFallbackDisabled(t *testing.T) {
	runner := &fakeRunner{}
	svc := newService(&fakeLoader{rs: snapshot()}, runner, Config{LiveFallback: false})

	got, err := svc.Search(context.Background(), Query{Text: "café"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, runner.requests)
}

func TestCatalog(t *testing.T) {
	loader := &fakeLoader{rs: snapshot()}
	c := NewCatalog(loader, time.Minute)
	now := time.Now()

	assert.True(t, c.Stale(now))
	assert.Nil(t, c.Snapshot())
	assert.Nil(t, c.Products())

	require.NoError(t, c.Reload())
	assert.False(t, c.Stale(now))
	assert.True(t, c.Stale(now.Add(2*time.Minute)))
	assert.Len(t, c.Products(), 3)

	fresh := models.NewResultSet("pan", "")
	fresh.Products = []models.ProductRecord{{Name: "Pan", Price: 0.6, Retailer: "Lidl"}}
	require.NoError(t, c.Consume(context.Background(), fresh))
	assert.Same(t, fresh, c.Snapshot())
	assert.Equal(t, 2, c.Terms())
	assert.Len(t, c.Products(), 4, "other terms are kept")

	newer := models.NewResultSet("PAN ", "all")
	newer.Products = []models.ProductRecord{{Name: "Pan integral", Price: 0.9, Retailer: "Lidl"}}
	c.Replace(newer)
	assert.Equal(t, 2, c.Terms(), "same term replaces its entry")
	assert.Len(t, c.Products(), 4)
	fresh = newer

	overlap := models.NewResultSet("leche entera", "")
	overlap.Products = []models.ProductRecord{{Name: "Leche Entera 1L", Price: 0.75, Retailer: "Lidl", LinkURL: "#"}}
	c.Replace(overlap)
	assert.Equal(t, 3, c.Terms())
	assert.Len(t, c.Products(), 4, "a product under two terms is listed once")
	assert.Equal(t, 0.75, c.Products()[0].Price, "newest scrape wins")
	c.Replace(newer)

	loader.err = storage.ErrNoSnapshot
	assert.ErrorIs(t, c.Reload(), storage.ErrNoSnapshot)
	assert.Same(t, fresh, c.Snapshot(), "failed reload keeps contents")

	c.Replace(nil)
	assert.Same(t, fresh, c.Snapshot())
}

func TestSearchKeepsEveryScheduledTerm(t *testing.T) {
	runner := &fakeRunner{}
	svc := newService(&fakeLoader{err: storage.ErrNoSnapshot}, runner, Config{LiveFallback: true})

	leche := models.NewResultSet("leche", "")
	leche.Products = []models.ProductRecord{{Name: "Leche Entera 1L", Price: 0.79, Retailer: "Lidl"}}
	pan := models.NewResultSet("pan", "")
	pan.Products = []models.ProductRecord{{Name: "Pan de molde", Price: 1.20, Retailer: "Mercadona"}}

	require.NoError(t, svc.Catalog().Consume(context.Background(), leche))
	require.NoError(t, svc.Catalog().Consume(context.Background(), pan))

	got, err := svc.Search(context.Background(), Query{Text: "leche"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Leche Entera 1L", got[0].Name)

	got, err = svc.Search(context.Background(), Query{Text: "pan"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, runner.requests, "scheduled terms answer without a live scrape")
}

func TestCatalogWithoutMaxAge(t *testing.T) {
	c := NewCatalog(&fakeLoader{rs: snapshot()}, 0)
	require.NoError(t, c.Reload())
	assert.False(t, c.Stale(time.Now().Add(24*time.Hour)))
}

func TestNewServiceWithoutLogger(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewService(NewCatalog(&fakeLoader{err: storage.ErrNoSnapshot}, time.Minute), runner, Config{
		Adapters:     testAdapters(),
		LiveFallback: true,
	}, nil)

	got, err := svc.Search(context.Background(), Query{Text: "leche"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Len(t, runner.requests, 1, "live scrape logs through the default logger")
}
