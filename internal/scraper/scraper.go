// Package scraper drives a browser through a retailer's search page and
// extracts the product tiles it finds.
package scraper

import (
	"context"
	"log/slog"

	"github.com/maltedev/supercomparador/internal/adapter"
	"github.com/maltedev/supercomparador/internal/browser"
	"github.com/maltedev/supercomparador/internal/extract"
	"github.com/maltedev/supercomparador/internal/models"
)

// Scraper combines the page driver with extraction.
type Scraper struct {
	driver *Driver
	logger *slog.Logger
}

func New(launcher browser.Launcher, opts Options, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scraper{
		driver: NewDriver(launcher, opts, logger),
		logger: logger.With("component", "scraper"),
	}
}

// Scrape returns the raw product records of one retailer for term. No
// products is a valid result and not an error.
func (s *Scraper) Scrape(ctx context.Context, a adapter.Adapter, term string) ([]models.RawRecord, error) {
	loaded, err := s.driver.Load(ctx, a, term)
	if err != nil {
		return nil, err
	}

	records, err := extract.ExtractHTML(loaded.HTML, loaded.URL, a.Selectors)
	if err != nil {
		return nil, err
	}

	s.logger.Info("extracted products", "retailer", a.Name, "count", len(records))
	return records, nil
}
