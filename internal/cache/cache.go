// Package cache keeps recent live-search results so repeated queries do not
// trigger new scrapes.
package cache

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/maltedev/supercomparador/internal/adapter"
	"github.com/maltedev/supercomparador/internal/models"
	"github.com/maltedev/supercomparador/internal/normalize"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]models.ProductRecord, bool)
	Set(ctx context.Context, key string, products []models.ProductRecord)
}

// Key identifies a search independently of case, accents and spacing.
func Key(query, retailer string) string {
	retailer = strings.ToLower(strings.TrimSpace(retailer))
	if retailer == "" {
		retailer = adapter.FilterAll
	}
	return strings.Join(normalize.Tokens(query), " ") + "|" + retailer
}

// Memory is an in-process LRU with per-entry expiry.
type Memory struct {
	lru *lru.LRU[string, []models.ProductRecord]
}

func NewMemory(size int, ttl time.Duration) *Memory {
	return &Memory{
		lru: lru.NewLRU[string, []models.ProductRecord](size, nil, ttl),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]models.ProductRecord, bool) {
	return m.lru.Get(key)
}

func (m *Memory) Set(_ context.Context, key string, products []models.ProductRecord) {
	m.lru.Add(key, products)
}

func (m *Memory) Purge() {
	m.lru.Purge()
}

func (m *Memory) Len() int {
	return m.lru.Len()
}

// Tiered reads through its layers in order and back-fills the faster layers
// on a hit further down.
type Tiered struct {
	layers []Cache
}

func NewTiered(layers ...Cache) *Tiered {
	return &Tiered{layers: layers}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]models.ProductRecord, bool) {
	for i, layer := range t.layers {
		products, ok := layer.Get(ctx, key)
		if !ok {
			continue
		}
		for _, faster := range t.layers[:i] {
			faster.Set(ctx, key, products)
		}
		return products, true
	}
	return nil, false
}

func (t *Tiered) Set(ctx context.Context, key string, products []models.ProductRecord) {
	for _, layer := range t.layers {
		layer.Set(ctx, key, products)
	}
}
