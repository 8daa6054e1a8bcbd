package models

import (
	"time"

	"github.com/google/uuid"
)

// UnavailableName marks a tile whose name could not be resolved.
const UnavailableName = "No disponible"

// PlaceholderLink is used when no product link could be resolved.
const PlaceholderLink = "#"

// ProductRecord is a normalized product listing from one retailer.
type ProductRecord struct {
	Name      string    `json:"nombre"`
	Price     float64   `json:"precio"`
	PriceRaw  string    `json:"precioStr"`
	ImageURL  string    `json:"imagen,omitempty"`
	LinkURL   string    `json:"enlace"`
	Retailer  string    `json:"supermercado"`
	FetchedAt time.Time `json:"fetchedAt"`

	// Set only when the name carries a pack size.
	UnitPrice float64 `json:"precioUnidad,omitempty"`
	Unit      string  `json:"unidad,omitempty"`
}

// RawRecord holds the field values pulled out of a product tile before any
// parsing happens.
type RawRecord struct {
	Name      string `json:"name"`
	PriceText string `json:"price_text"`
	ImageURL  string `json:"image_url,omitempty"`
	LinkURL   string `json:"link_url,omitempty"`
	Position  int    `json:"position"`
}

type RetailerStatus string

const (
	StatusOK         RetailerStatus = "ok"
	StatusEmpty      RetailerStatus = "empty"
	StatusBlocked    RetailerStatus = "blocked"
	StatusNoProducts RetailerStatus = "no_products"
	StatusTimeout    RetailerStatus = "timeout"
	StatusFailed     RetailerStatus = "failed"
)

// RetailerOutcome summarizes one retailer's part of a scrape run.
type RetailerOutcome struct {
	Retailer  string         `json:"retailer"`
	Status    RetailerStatus `json:"status"`
	Extracted int            `json:"extracted"`
	Kept      int            `json:"kept"`
	Error     string         `json:"error,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

// ResultSet is the ranked output of one scrape run.
type ResultSet struct {
	ID         string            `json:"id"`
	Query      string            `json:"query"`
	Retailer   string            `json:"retailer,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Products   []ProductRecord   `json:"products"`
	Retailers  []RetailerOutcome `json:"retailers"`
}

func NewResultSet(query, retailer string) *ResultSet {
	return &ResultSet{
		ID:        uuid.New().String(),
		Query:     query,
		Retailer:  retailer,
		StartedAt: time.Now(),
		Products:  make([]ProductRecord, 0),
		Retailers: make([]RetailerOutcome, 0),
	}
}

// Len returns the number of products, treating a nil set as empty.
func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Products)
}

func (r *ResultSet) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Validate reports invariant violations of a single record.
func (p *ProductRecord) Validate() []string {
	var errors []string

	if p.Name == "" || p.Name == UnavailableName {
		errors = append(errors, "name is required")
	}

	if p.Price < 0 {
		errors = append(errors, "price must be non-negative")
	}

	if p.Retailer == "" {
		errors = append(errors, "retailer is required")
	}

	return errors
}
