package normalize

import (
	"testing"
	"time"

	"github.com/maltedev/supercomparador/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"1.234,56 €", 1234.56},
		{"5,90 €", 5.90},
		{"1,25", 1.25},
		{"0,99 €/ud.", 0.99},
		{"€ 3", 3},
		{"2.49", 2.49},
		{"1,234.56", 1234.56},
		{"1.234.567", 1234567},
		{"1.000.000,5", 1000000.5},
		{",50", 0.5},
		{"12,", 12},
		{"  7,00 € ", 7},
		{"-3,10", 3.10},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePrice(tt.input)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestParsePriceInvalid(t *testing.T) {
	for _, input := range []string{"", "N/A", "€", "Agotado", ",.", "..."} {
		t.Run(input, func(t *testing.T) {
			_, err := ParsePrice(input)
			assert.ErrorIs(t, err, ErrInvalidPrice)
		})
	}
}

func TestNormalize(t *testing.T) {
	fetchedAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	raw := []models.RawRecord{
		{Name: " Leche entera 1L ", PriceText: "0,99 €", LinkURL: "https://example.es/p/1", ImageURL: "https://example.es/1.jpg", Position: 0},
		{Name: "Leche sin lactosa", PriceText: "N/A", Position: 1},
		{Name: models.UnavailableName, PriceText: "1,00 €", Position: 2},
		{Name: "Leche semidesnatada", PriceText: " 1,05 € ", Position: 3},
	}

	products, stats := Normalize(raw, "Mercadona", fetchedAt)

	assert.Equal(t, Stats{Extracted: 4, Kept: 2, MissingName: 1, BadPrice: 1}, stats)
	assert.Equal(t, 2, stats.Dropped())
	require.Len(t, products, 2)

	first := products[0]
	assert.Equal(t, "Leche entera 1L", first.Name)
	assert.InDelta(t, 0.99, first.Price, 1e-9)
	assert.Equal(t, "0,99 €", first.PriceRaw)
	assert.Equal(t, "https://example.es/p/1", first.LinkURL)
	assert.Equal(t, "Mercadona", first.Retailer)
	assert.Equal(t, fetchedAt, first.FetchedAt)
	assert.Empty(t, first.Validate())
	assert.InDelta(t, 0.99, first.UnitPrice, 1e-9)
	assert.Equal(t, "l", first.Unit)

	second := products[1]
	assert.Equal(t, models.PlaceholderLink, second.LinkURL)
	assert.Empty(t, second.ImageURL)
	assert.Equal(t, "1,05 €", second.PriceRaw)
	assert.Zero(t, second.UnitPrice, "no pack size in the name")
	assert.Empty(t, second.Unit)

	// the raw input is left untouched
	assert.Equal(t, " Leche entera 1L ", raw[0].Name)
}

func TestRankIsStableAndIdempotent(t *testing.T) {
	records := []models.ProductRecord{
		{Name: "a", Price: 2, Retailer: "Lidl"},
		{Name: "b", Price: 1, Retailer: "Lidl"},
		{Name: "c", Price: 2, Retailer: "Carrefour"},
		{Name: "d", Price: 1, Retailer: "Mercadona"},
		{Name: "e", Price: 0.5, Retailer: "Carrefour"},
	}

	once := Rank(records, 0)
	twice := Rank(once, 0)

	assert.Equal(t, []string{"e", "b", "d", "a", "c"}, names(once))
	assert.Equal(t, once, twice)
	assert.Equal(t, "a", records[0].Name, "input must not be reordered")
}

func TestRankTruncatesAfterMerge(t *testing.T) {
	var merged []models.ProductRecord
	for _, price := range []float64{1, 2, 3, 4, 5} {
		merged = append(merged, models.ProductRecord{Name: "A", Price: price, Retailer: "A"})
	}
	merged = append(merged, models.ProductRecord{Name: "B", Price: 0.5, Retailer: "B"})

	top := Rank(merged, 3)

	require.Len(t, top, 3)
	assert.Equal(t, []float64{0.5, 1, 2}, prices(top))
	assert.Equal(t, []string{"B", "A", "A"}, retailers(top))
}

func TestRankEdgeCases(t *testing.T) {
	assert.NotNil(t, Rank(nil, 3))
	assert.Empty(t, Rank(nil, 3))

	records := []models.ProductRecord{{Name: "x", Price: 3}, {Name: "y", Price: 1}}
	assert.Len(t, Rank(records, 10), 2)
	assert.Len(t, Rank(records, -1), 2)
}

func names(records []models.ProductRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Name)
	}
	return out
}

func prices(records []models.ProductRecord) []float64 {
	out := make([]float64, 0, len(records))
	for _, r := range records {
		out = append(out, r.Price)
	}
	return out
}

func retailers(records []models.ProductRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Retailer)
	}
	return out
}
