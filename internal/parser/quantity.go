package parser

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var ErrNoQuantity = errors.New("no quantity found")

// Base units a quantity is normalized to.
const (
	UnitKilogram = "kg"
	UnitLitre    = "l"
	UnitPiece    = "ud"
)

// Quantity is the net content of a product expressed in a base unit.
type Quantity struct {
	Value float64 `json:"valor"`
	Unit  string  `json:"unidad"`
	Packs int     `json:"packs,omitempty"`
}

func (q Quantity) String() string {
	return strconv.FormatFloat(q.Value, 'f', -1, 64) + " " + q.Unit
}

// QuantityParser pulls pack sizes out of product names such as
// "Leche entera 6 x 1 L" or "Arroz redondo 1,5 kg".
type QuantityParser struct {
	multipackPatterns []*regexp.Regexp
	measurePatterns   []*regexp.Regexp
	countPatterns     []*regexp.Regexp
}

const measureUnits = `(kg|kilos?|gr|g|mg|ml|cl|l|litros?)`

func NewQuantityParser() *QuantityParser {
	return &QuantityParser{
		multipackPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(\d+)\s*[x×]\s*(\d+(?:[,.]\d+)?)\s*` + measureUnits + `\b`),
			regexp.MustCompile(`(?i)pack\s*(?:de\s*)?(\d+)\D{0,20}?(\d+(?:[,.]\d+)?)\s*` + measureUnits + `\b`),
		},
		measurePatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(\d+(?:[,.]\d+)?)\s*` + measureUnits + `\b`),
		},
		countPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(\d+)\s*(?:uds?|unidades|piezas)\b`),
			regexp.MustCompile(`(?i)(?:pack|caja)\s*(?:de\s*)?(\d+)\b`),
		},
	}
}

// Parse returns the net quantity named in a product title. Multipacks
// multiply out, weights convert to kg and volumes to litres.
func (p *QuantityParser) Parse(name string) (*Quantity, error) {
	for _, pattern := range p.multipackPatterns {
		if m := pattern.FindStringSubmatch(name); m != nil {
			packs, err := strconv.Atoi(m[1])
			if err != nil || packs <= 0 {
				continue
			}
			q, err := measure(m[2], m[3])
			if err != nil {
				continue
			}
			q.Value *= float64(packs)
			q.Packs = packs
			return q, nil
		}
	}

	for _, pattern := range p.measurePatterns {
		if m := pattern.FindStringSubmatch(name); m != nil {
			if q, err := measure(m[1], m[2]); err == nil {
				return q, nil
			}
		}
	}

	for _, pattern := range p.countPatterns {
		if m := pattern.FindStringSubmatch(name); m != nil {
			count, err := strconv.Atoi(m[1])
			if err != nil || count <= 0 {
				continue
			}
			return &Quantity{Value: float64(count), Unit: UnitPiece}, nil
		}
	}

	return nil, fmt.Errorf("%w in %q", ErrNoQuantity, name)
}

// UnitPrice returns the price per base unit rounded to cents, or zero when
// the quantity is unusable.
func UnitPrice(price float64, q *Quantity) float64 {
	if q == nil || q.Value <= 0 || price < 0 {
		return 0
	}
	return math.Round(price/q.Value*100) / 100
}

func measure(number, unit string) (*Quantity, error) {
	unit = strings.ToLower(unit)
	value, err := parseFloat(number, unit)
	if err != nil {
		return nil, err
	}
	if value <= 0 {
		return nil, fmt.Errorf("non-positive quantity %q", number)
	}

	base, divisor := normalizeUnit(unit)
	return &Quantity{Value: value / divisor, Unit: base}, nil
}

// parseFloat accepts both decimal separators. For gram and millilitre
// amounts a separator followed by exactly three digits groups thousands.
func parseFloat(s, unit string) (float64, error) {
	if i := strings.IndexAny(s, ",."); i >= 0 && len(s)-i-1 == 3 && smallUnit(unit) {
		s = s[:i] + s[i+1:]
	}
	s = strings.Replace(s, ",", ".", 1)
	return strconv.ParseFloat(s, 64)
}

func smallUnit(unit string) bool {
	switch unit {
	case "g", "gr", "mg", "ml":
		return true
	}
	return false
}

func normalizeUnit(unit string) (string, float64) {
	switch unit {
	case "kg", "kilo", "kilos":
		return UnitKilogram, 1
	case "g", "gr":
		return UnitKilogram, 1000
	case "mg":
		return UnitKilogram, 1000000
	case "l", "litro", "litros":
		return UnitLitre, 1
	case "cl":
		return UnitLitre, 100
	case "ml":
		return UnitLitre, 1000
	default:
		return unit, 1
	}
}
