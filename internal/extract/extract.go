// Package extract turns a rendered search-results page into raw product
// records. It works on an HTML snapshot so it can run without a browser.
package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/supercomparador/internal/adapter"
	"github.com/maltedev/supercomparador/internal/models"
)

// identityPrefix is how much of an element's outer HTML identifies it when
// the same tile matches several product selectors.
const identityPrefix = 200

// FirstMatch returns the first alternative that matches inside root, or an
// empty selection when none does.
func FirstMatch(root *goquery.Selection, alternatives adapter.Alternatives) *goquery.Selection {
	for _, selector := range alternatives {
		found := root.Find(selector)
		if found.Length() > 0 {
			return found.First()
		}
	}
	return root.Slice(0, 0)
}

// ExtractHTML parses html and runs Extract on it.
func ExtractHTML(html, pageURL string, selectors adapter.Selectors) ([]models.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return Extract(doc, pageURL, selectors), nil
}

// Extract resolves every product tile in doc into a RawRecord. Tiles whose
// name cannot be resolved are skipped; price parsing is left to the caller.
func Extract(doc *goquery.Document, pageURL string, selectors adapter.Selectors) []models.RawRecord {
	base, _ := url.Parse(pageURL)

	records := make([]models.RawRecord, 0)
	for _, item := range candidates(doc, selectors.Product) {
		record := extractRecord(item, base, selectors)
		if record.Name == models.UnavailableName {
			continue
		}
		record.Position = len(records)
		records = append(records, record)
	}

	return records
}

// candidates unions the matches of every product selector in declaration
// order, dropping elements already seen under another selector.
func candidates(doc *goquery.Document, product adapter.Alternatives) []*goquery.Selection {
	var items []*goquery.Selection
	seen := make(map[string]bool)

	for _, selector := range product {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			key := identity(s)
			if seen[key] {
				return
			}
			seen[key] = true
			items = append(items, s)
		})
	}

	return items
}

func identity(s *goquery.Selection) string {
	html, err := goquery.OuterHtml(s)
	if err != nil {
		return ""
	}
	if len(html) > identityPrefix {
		return html[:identityPrefix]
	}
	return html
}

func extractRecord(item *goquery.Selection, base *url.URL, selectors adapter.Selectors) models.RawRecord {
	record := models.RawRecord{
		Name: models.UnavailableName,
	}

	if name := cleanText(FirstMatch(item, selectors.Name).Text()); name != "" {
		record.Name = name
	}

	record.PriceText = cleanText(FirstMatch(item, selectors.Price).Text())

	if img := FirstMatch(item, selectors.Image); img.Length() > 0 {
		record.ImageURL = resolve(base, imageSource(img))
	}

	record.LinkURL = resolve(base, linkTarget(item, selectors.Link))

	return record
}

func imageSource(img *goquery.Selection) string {
	if src := strings.TrimSpace(img.AttrOr("src", "")); src != "" && !strings.HasPrefix(src, "data:") {
		return src
	}
	return strings.TrimSpace(img.AttrOr("data-src", ""))
}

// linkTarget prefers a configured link selector and falls back to the
// nearest enclosing anchor of the tile.
func linkTarget(item *goquery.Selection, alternatives adapter.Alternatives) string {
	if link := FirstMatch(item, alternatives); link.Length() > 0 {
		if href := strings.TrimSpace(link.AttrOr("href", "")); href != "" {
			return href
		}
	}

	if anchor := item.Closest("a"); anchor.Length() > 0 {
		return strings.TrimSpace(anchor.AttrOr("href", ""))
	}

	return ""
}

func resolve(base *url.URL, ref string) string {
	if ref == "" || strings.HasPrefix(ref, "javascript:") {
		return ""
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}

	if !parsed.IsAbs() && base != nil {
		parsed = base.ResolveReference(parsed)
	}

	return parsed.String()
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
