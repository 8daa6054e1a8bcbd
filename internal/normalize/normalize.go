// Package normalize turns raw extracted records into ranked product records
// and implements the loose text matching used when serving searches.
package normalize

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/maltedev/supercomparador/internal/models"
	"github.com/maltedev/supercomparador/internal/parser"
)

var quantities = parser.NewQuantityParser()

// Stats counts what happened to a retailer's raw records.
type Stats struct {
	Extracted   int `json:"extracted"`
	Kept        int `json:"kept"`
	MissingName int `json:"missing_name"`
	BadPrice    int `json:"bad_price"`
}

func (s Stats) Dropped() int {
	return s.MissingName + s.BadPrice
}

// Normalize builds product records for one retailer. Records without a
// usable name or price are dropped rather than defaulted.
func Normalize(raw []models.RawRecord, retailer string, fetchedAt time.Time) ([]models.ProductRecord, Stats) {
	stats := Stats{Extracted: len(raw)}
	products := make([]models.ProductRecord, 0, len(raw))

	for _, r := range raw {
		name := strings.TrimSpace(r.Name)
		if name == "" || name == models.UnavailableName {
			stats.MissingName++
			continue
		}

		priceRaw := strings.TrimSpace(r.PriceText)
		price, err := ParsePrice(priceRaw)
		if err != nil {
			stats.BadPrice++
			continue
		}

		link := strings.TrimSpace(r.LinkURL)
		if link == "" {
			link = models.PlaceholderLink
		}

		record := models.ProductRecord{
			Name:      name,
			Price:     price,
			PriceRaw:  priceRaw,
			ImageURL:  strings.TrimSpace(r.ImageURL),
			LinkURL:   link,
			Retailer:  retailer,
			FetchedAt: fetchedAt,
		}
		if q, err := quantities.Parse(name); err == nil {
			record.UnitPrice = parser.UnitPrice(price, q)
			record.Unit = q.Unit
		}

		products = append(products, record)
	}

	stats.Kept = len(products)
	return products, stats
}

// Rank returns a copy of records sorted by ascending price, keeping input
// order for equal prices, truncated to topN. A topN of zero or less keeps
// every record.
func Rank(records []models.ProductRecord, topN int) []models.ProductRecord {
	ranked := slices.Clone(records)
	if ranked == nil {
		ranked = make([]models.ProductRecord, 0)
	}

	slices.SortStableFunc(ranked, func(a, b models.ProductRecord) int {
		return cmp.Compare(a.Price, b.Price)
	})

	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}

	return ranked
}
