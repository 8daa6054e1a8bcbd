package normalize

import (
	"strings"
	"unicode"

	"github.com/maltedev/supercomparador/internal/adapter"
	"github.com/maltedev/supercomparador/internal/models"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Tokens lower-cases s, strips diacritics, drops every character that is not
// a letter, digit or space and splits the rest on whitespace. "Coca-Cola"
// becomes the single token "cocacola".
func Tokens(s string) []string {
	folded := strings.ToLower(foldDiacritics(s))
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, folded)
	return strings.Fields(cleaned)
}

// Matches reports whether any query token is a substring of any name token.
// "lech" matches "Leche Entera 1L"; so does "le".
func Matches(query, name string) bool {
	return matchTokens(Tokens(query), Tokens(name))
}

// Filter returns the records of the given retailer ("" or "all" for any)
// whose name matches query. Input order is preserved.
func Filter(records []models.ProductRecord, query, retailer string) []models.ProductRecord {
	queryTokens := Tokens(query)
	matched := make([]models.ProductRecord, 0)
	if len(queryTokens) == 0 {
		return matched
	}

	retailer = strings.TrimSpace(retailer)
	anyRetailer := retailer == "" || strings.EqualFold(retailer, adapter.FilterAll)

	for _, r := range records {
		if !anyRetailer && !strings.EqualFold(r.Retailer, retailer) {
			continue
		}
		if matchTokens(queryTokens, Tokens(r.Name)) {
			matched = append(matched, r)
		}
	}

	return matched
}

func matchTokens(query, name []string) bool {
	for _, q := range query {
		for _, n := range name {
			if strings.Contains(n, q) {
				return true
			}
		}
	}
	return false
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}
