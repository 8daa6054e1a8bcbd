// Package export renders product lists for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/maltedev/supercomparador/internal/models"
)

// Filename is the suggested name for a downloaded shopping list.
const Filename = "lista_compra.csv"

var header = []string{"Producto", "Precio", "Supermercado", "Enlace"}

// WriteCSV writes products with a header row, prices with two decimals and a
// placeholder for missing links.
func WriteCSV(w io.Writer, products []models.ProductRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, p := range products {
		link := p.LinkURL
		if link == "" {
			link = models.PlaceholderLink
		}

		record := []string{
			p.Name,
			strconv.FormatFloat(p.Price, 'f', 2, 64),
			p.Retailer,
			link,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
