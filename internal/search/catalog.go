package search

import (
	"context"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/maltedev/supercomparador/internal/cache"
	"github.com/maltedev/supercomparador/internal/models"
)

// DefaultCatalogTerms bounds how many distinct query results the catalog keeps.
const DefaultCatalogTerms = 256

// SnapshotLoader reads the persisted result set.
type SnapshotLoader interface {
	Load() (*models.ResultSet, error)
}

// Catalog holds the result sets searches are answered from, one per query and
// retailer filter. A completed run only replaces the entry for its own term.
// The stored snapshot is merged in again once the catalog is older than maxAge.
type Catalog struct {
	mu       sync.RWMutex
	loader   SnapshotLoader
	sets     *lru.Cache[string, *models.ResultSet]
	latest   *models.ResultSet
	loadedAt time.Time
	maxAge   time.Duration
	now      func() time.Time
}

func NewCatalog(loader SnapshotLoader, maxAge time.Duration) *Catalog {
	// lru.New only fails for a non-positive size.
	sets, _ := lru.New[string, *models.ResultSet](DefaultCatalogTerms)
	return &Catalog{
		loader: loader,
		sets:   sets,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Reload merges the stored snapshot into the catalog. On error the current
// contents are kept.
func (c *Catalog) Reload() error {
	rs, err := c.loader.Load()
	if err != nil {
		return err
	}
	c.Replace(rs)
	return nil
}

// Replace stores a result set under its query, leaving other terms intact.
func (c *Catalog) Replace(rs *models.ResultSet) {
	if rs == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets.Add(cache.Key(rs.Query, rs.Retailer), rs)
	c.latest = rs
	c.loadedAt = c.now()
}

func (c *Catalog) Consume(_ context.Context, rs *models.ResultSet) error {
	c.Replace(rs)
	return nil
}

// Stale reports whether the catalog was never loaded or was loaded more than
// maxAge before now. A zero maxAge never expires a loaded catalog.
func (c *Catalog) Stale(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.loadedAt.IsZero() {
		return true
	}
	return c.maxAge > 0 && now.Sub(c.loadedAt) > c.maxAge
}

// Snapshot returns the most recently stored result set, or nil if nothing was
// loaded. Callers must not modify it.
func (c *Catalog) Snapshot() *models.ResultSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

// Terms returns the number of result sets held.
func (c *Catalog) Terms() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sets.Len()
}

// Products returns the products of every stored result set, newest term
// first. A product listed under several terms appears once, as last scraped.
func (c *Catalog) Products() []models.ProductRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var products []models.ProductRecord
	seen := make(map[string]struct{})
	sets := c.sets.Values()
	for _, rs := range slices.Backward(sets) {
		for _, p := range rs.Products {
			id := p.Retailer + "|" + p.Name + "|" + p.LinkURL
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			products = append(products, p)
		}
	}
	return products
}

// Age is the time since the newest catalog contents were produced.
func (c *Catalog) Age(now time.Time) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.latest == nil {
		return 0
	}
	produced := c.latest.FinishedAt
	if produced.IsZero() {
		produced = c.loadedAt
	}
	return now.Sub(produced)
}
