// Package api exposes product search, CSV export and background scrape runs
// over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterOptions struct {
	AllowedOrigins []string
	Timeout        time.Duration
	Metrics        http.Handler
}

func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:*", "https://localhost:*"}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	// Searches may fall back to a live scrape, so they get the long timeout.
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(opts.Timeout))

		r.Get("/productos", h.SearchProducts)
		r.Get("/productos/export", h.ExportProducts)

		r.Post("/scrape", h.CreateScrape)
		r.Get("/scrape/{runID}", h.GetScrape)

		r.Get("/snapshot", h.GetSnapshot)
		r.Get("/retailers", h.ListRetailers)

		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{runID}", h.GetRun)
	})

	return r
}
