package scraper

import (
	"context"
	"errors"

	"github.com/maltedev/supercomparador/internal/models"
)

var (
	// ErrNavigation and ErrLocality are only logged; the scrape carries on.
	ErrNavigation = errors.New("navigation did not complete")
	ErrLocality   = errors.New("locality gate failed")

	ErrBlocked    = errors.New("blocked by anti-bot protection")
	ErrNoProducts = errors.New("no product containers found")
	ErrSession    = errors.New("browser session failed")
)

// Classify maps a scrape error onto the status reported for a retailer. A nil
// error is StatusOK; the caller decides whether an empty result is StatusEmpty.
func Classify(err error) models.RetailerStatus {
	switch {
	case err == nil:
		return models.StatusOK
	case errors.Is(err, ErrBlocked):
		return models.StatusBlocked
	case errors.Is(err, ErrNoProducts):
		return models.StatusNoProducts
	case errors.Is(err, context.DeadlineExceeded):
		return models.StatusTimeout
	default:
		return models.StatusFailed
	}
}
