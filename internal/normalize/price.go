package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidPrice = errors.New("invalid price")

// ParsePrice converts a locale-formatted price such as "1.234,56 €" into a
// number of currency major units.
//
// Everything except digits, ',' and '.' is dropped first. When both
// separators appear, the last one is the decimal point. A ',' on its own is
// always decimal; a lone '.' is decimal only when it appears once.
func ParsePrice(s string) (float64, error) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			return r
		}
		return -1
	}, s)
	cleaned = strings.TrimRight(cleaned, ",.")

	if !strings.ContainsAny(cleaned, "0123456789") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}

	decimal := decimalIndex(cleaned)

	whole, fraction := cleaned, ""
	if decimal >= 0 {
		whole, fraction = cleaned[:decimal], cleaned[decimal+1:]
	}

	whole = strings.NewReplacer(",", "", ".", "").Replace(whole)
	if whole == "" {
		whole = "0"
	}

	number := whole
	if fraction != "" {
		number += "." + fraction
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}

	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}

	return value, nil
}

// decimalIndex returns the position of the decimal separator in a string of
// digits and separators, or -1 when every separator groups thousands.
func decimalIndex(s string) int {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		return max(lastComma, lastDot)
	case lastComma >= 0:
		return lastComma
	case lastDot >= 0 && strings.Count(s, ".") == 1:
		return lastDot
	default:
		return -1
	}
}
