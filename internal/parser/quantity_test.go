package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuantity(t *testing.T) {
	parser := NewQuantityParser()

	tests := []struct {
		name     string
		input    string
		value    float64
		unit     string
		packs    int
		hasError bool
	}{
		{name: "litre", input: "Leche entera Hacendado 1L", value: 1, unit: UnitLitre},
		{name: "decimal comma", input: "Arroz redondo 1,5 kg", value: 1.5, unit: UnitKilogram},
		{name: "grams", input: "Queso rallado 200 g", value: 0.2, unit: UnitKilogram},
		{name: "grams abbreviated", input: "Jamón cocido 150gr", value: 0.15, unit: UnitKilogram},
		{name: "thousands grams", input: "Harina de trigo 1.000 g", value: 1, unit: UnitKilogram},
		{name: "centilitres", input: "Cerveza lata 33 cl", value: 0.33, unit: UnitLitre},
		{name: "millilitres", input: "Aceite de oliva 750 ml", value: 0.75, unit: UnitLitre},
		{name: "multipack", input: "Leche semidesnatada 6 x 1 L", value: 6, unit: UnitLitre, packs: 6},
		{name: "multipack no spaces", input: "Agua mineral 6x1,5L", value: 9, unit: UnitLitre, packs: 6},
		{name: "multipack grams", input: "Yogur natural 4 x 125 g", value: 0.5, unit: UnitKilogram, packs: 4},
		{name: "pack of bottles", input: "Pack de 6 botellas agua 1,5 l", value: 9, unit: UnitLitre, packs: 6},
		{name: "units", input: "Huevos camperos 12 uds.", value: 12, unit: UnitPiece},
		{name: "pack count", input: "Pack 4 yogures griegos", value: 4, unit: UnitPiece},
		{name: "upper case", input: "ACEITE GIRASOL 5 LITROS", value: 5, unit: UnitLitre},
		{name: "no quantity", input: "Pan de molde integral", hasError: true},
		{name: "word after number", input: "Huevos 12 grandes", hasError: true},
		{name: "zero", input: "Refresco 0 l", hasError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := parser.Parse(tt.input)
			if tt.hasError {
				assert.ErrorIs(t, err, ErrNoQuantity)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.value, q.Value, 1e-9)
			assert.Equal(t, tt.unit, q.Unit)
			assert.Equal(t, tt.packs, q.Packs)
		})
	}
}

func TestUnitPrice(t *testing.T) {
	assert.InDelta(t, 4.8, UnitPrice(2.40, &Quantity{Value: 0.5, Unit: UnitKilogram}), 1e-9)
	assert.InDelta(t, 0.99, UnitPrice(0.99, &Quantity{Value: 1, Unit: UnitLitre}), 1e-9)
	assert.InDelta(t, 0.6, UnitPrice(3.60, &Quantity{Value: 6, Unit: UnitLitre}), 1e-9)
	assert.Zero(t, UnitPrice(1, nil))
	assert.Zero(t, UnitPrice(1, &Quantity{}))
}

func TestQuantityString(t *testing.T) {
	assert.Equal(t, "1.5 kg", Quantity{Value: 1.5, Unit: UnitKilogram}.String())
	assert.Equal(t, "12 ud", Quantity{Value: 12, Unit: UnitPiece}.String())
}
