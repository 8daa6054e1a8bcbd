// Package adapter holds the declarative per-retailer descriptions used by the
// scraper: where to search and which selectors locate each product field.
package adapter

import (
	"errors"
	"net/url"
	"strings"
)

var ErrUnknownRetailer = errors.New("unknown retailer")

// FilterAll selects every configured retailer.
const FilterAll = "all"

// queryPlaceholder may appear in a search URL; otherwise the term is appended.
const queryPlaceholder = "{query}"

// Alternatives is an ordered list of candidate CSS selectors. The first one
// that matches wins.
type Alternatives []string

// Selectors groups the candidate selectors for every field of a product tile
// plus the interactive elements the driver has to deal with.
type Selectors struct {
	Product         Alternatives `yaml:"product" validate:"required,min=1,dive,required"`
	Name            Alternatives `yaml:"name" validate:"required,min=1,dive,required"`
	Price           Alternatives `yaml:"price" validate:"required,min=1,dive,required"`
	Image           Alternatives `yaml:"image" validate:"dive,required"`
	Link            Alternatives `yaml:"link" validate:"dive,required"`
	Consent         Alternatives `yaml:"consent" validate:"dive,required"`
	Locality        Alternatives `yaml:"locality" validate:"dive,required"`
	LocalityConfirm Alternatives `yaml:"locality_confirm" validate:"dive,required"`
	Block           Alternatives `yaml:"block" validate:"dive,required"`
}

// Adapter describes how to reach and parse one retailer's search results.
type Adapter struct {
	Name                 string    `yaml:"name" validate:"required"`
	SearchURL            string    `yaml:"search_url" validate:"required,url,startswith=http"`
	LocalityCode         string    `yaml:"locality_code" validate:"omitempty,numeric"`
	Selectors            Selectors `yaml:"selectors"`
	ConsentTexts         []string  `yaml:"consent_texts"`
	LocalityConfirmTexts []string  `yaml:"locality_confirm_texts"`
	BlockKeywords        []string  `yaml:"block_keywords"`
}

var defaultConsentSelectors = Alternatives{
	"button#onetrust-accept-btn-handler",
	"#onetrust-accept-btn-handler",
	"button.cookie-accept",
	".accept-cookies",
	`[data-testid="cookie-accept"]`,
	`[data-qa="accept-necessary-cookies-button"]`,
	`button[aria-label="Aceptar"]`,
	`button[aria-label="Aceptar todo"]`,
}

var defaultConsentTexts = []string{
	"Aceptar todo",
	"Aceptar todos",
	"Aceptar",
	"Acepto",
	"Consentir",
	"Accept all",
	"Accept",
}

// Only challenge markers count. The invisible reCAPTCHA badge and its iframes
// sit on many ordinary shop pages.
var defaultBlockSelectors = Alternatives{
	`iframe[src*="recaptcha/api2/bframe"]:visible`,
	`iframe[src*="hcaptcha.com"][src*="frame=challenge"]:visible`,
	`iframe[src*="challenges.cloudflare.com"]`,
	"#challenge-form",
	"#challenge-running",
	"#px-captcha",
	`.g-recaptcha:not([data-size="invisible"]):visible`,
	`[data-testid="captcha"]`,
}

var defaultBlockKeywords = []string{
	"complete the captcha",
	"solve the captcha",
	"completa el captcha",
	"resuelve el captcha",
	"access denied",
	"acceso denegado",
	"are you a robot",
	"verify you are human",
	"verifica que eres humano",
	"unusual traffic",
	"tráfico inusual",
}

// SearchURLFor builds the retailer search URL for term. The term is encoded
// as a URI component, so reserved characters such as & + = never leak into
// the query string.
func (a Adapter) SearchURLFor(term string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(strings.TrimSpace(term)), "+", "%20")
	if strings.Contains(a.SearchURL, queryPlaceholder) {
		return strings.ReplaceAll(a.SearchURL, queryPlaceholder, escaped)
	}
	return a.SearchURL + escaped
}

// ConsentSelectors returns the retailer's consent selectors followed by the
// generic ones.
func (a Adapter) ConsentSelectors() Alternatives {
	return merge(a.Selectors.Consent, defaultConsentSelectors)
}

func (a Adapter) ConsentButtonTexts() []string {
	return merge(a.ConsentTexts, defaultConsentTexts)
}

func (a Adapter) BlockSelectors() Alternatives {
	return merge(a.Selectors.Block, defaultBlockSelectors)
}

func (a Adapter) BlockMarkers() []string {
	return merge(a.BlockKeywords, defaultBlockKeywords)
}

// HasLocalityGate reports whether the driver should try to fill in a postal
// code before waiting for products.
func (a Adapter) HasLocalityGate() bool {
	return a.LocalityCode != "" && len(a.Selectors.Locality) > 0
}

// Select returns the adapters matching filter. An empty filter or "all"
// selects everything; otherwise names are compared case-insensitively.
func Select(adapters []Adapter, filter string) ([]Adapter, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" || strings.EqualFold(filter, FilterAll) {
		return adapters, nil
	}

	for _, a := range adapters {
		if strings.EqualFold(a.Name, filter) {
			return []Adapter{a}, nil
		}
	}

	return nil, ErrUnknownRetailer
}

// Names lists adapter names in configuration order.
func Names(adapters []Adapter) []string {
	names := make([]string, 0, len(adapters))
	for _, a := range adapters {
		names = append(names, a.Name)
	}
	return names
}

func merge[T ~[]string](first, second T) T {
	out := make(T, 0, len(first)+len(second))
	seen := make(map[string]bool, len(first)+len(second))
	for _, list := range []T{first, second} {
		for _, s := range list {
			if seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
