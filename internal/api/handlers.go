package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/supercomparador/internal/adapter"
	"github.com/maltedev/supercomparador/internal/database"
	"github.com/maltedev/supercomparador/internal/export"
	"github.com/maltedev/supercomparador/internal/models"
	"github.com/maltedev/supercomparador/internal/queue"
	"github.com/maltedev/supercomparador/internal/scheduler"
	"github.com/maltedev/supercomparador/internal/search"
	"github.com/maltedev/supercomparador/internal/storage"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// RunHistory is the stored run log. It is optional.
type RunHistory interface {
	RecentRuns(ctx context.Context, limit int) ([]database.RunSummary, error)
	GetRun(ctx context.Context, id string) (*models.ResultSet, error)
}

type Handlers struct {
	search   *search.Service
	worker   *scheduler.Worker
	runs     RunHistory
	adapters []adapter.Adapter
	logger   *slog.Logger
}

func NewHandlers(svc *search.Service, worker *scheduler.Worker, runs RunHistory, adapters []adapter.Adapter, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		search:   svc,
		worker:   worker,
		runs:     runs,
		adapters: adapters,
		logger:   logger.With("component", "api"),
	}
}

// ScrapeRequest asks for a background scrape run.
type ScrapeRequest struct {
	Query    string `json:"query"`
	Retailer string `json:"supermercado"`
}

type ScrapeResponse struct {
	RunID string             `json:"run_id"`
	State scheduler.JobState `json:"state"`
}

// SearchProducts handles GET /api/productos?q=&supermercado=
func (h *Handlers) SearchProducts(w http.ResponseWriter, r *http.Request) {
	products, ok := h.searchFromRequest(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, products)
}

// ExportProducts handles GET /api/productos/export and returns the same list
// as SearchProducts as a CSV download.
func (h *Handlers) ExportProducts(w http.ResponseWriter, r *http.Request) {
	products, ok := h.searchFromRequest(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.WriteHeader(http.StatusOK)
	if err := export.WriteCSV(w, products); err != nil {
		h.logger.Error("failed to write csv", "error", err)
	}
}

func (h *Handlers) searchFromRequest(w http.ResponseWriter, r *http.Request) ([]models.ProductRecord, bool) {
	q := search.Query{
		Text:     r.URL.Query().Get("q"),
		Retailer: r.URL.Query().Get("supermercado"),
	}

	products, err := h.search.Search(r.Context(), q)
	if err != nil {
		if errors.Is(err, search.ErrInvalidQuery) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return nil, false
		}
		h.logger.Error("search failed", "query", q.Text, "error", err)
		h.respondError(w, http.StatusInternalServerError, "search failed")
		return nil, false
	}

	return products, true
}

// CreateScrape handles POST /api/scrape
func (h *Handlers) CreateScrape(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q, err := h.search.Validate(search.Query{Text: req.Query, Retailer: req.Retailer})
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.worker.Submit(q.Text, q.Retailer, queue.PriorityManual)
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrDuplicate):
			h.respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, queue.ErrQueueClosed):
			h.respondError(w, http.StatusServiceUnavailable, "scrape queue is shutting down")
		default:
			h.logger.Error("failed to queue scrape", "query", q.Text, "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to queue scrape")
		}
		return
	}

	h.respondJSON(w, http.StatusAccepted, ScrapeResponse{RunID: job.ID, State: job.State})
}

// GetScrape handles GET /api/scrape/{runID}
func (h *Handlers) GetScrape(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	job, ok := h.worker.Job(runID)
	if !ok {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

// GetSnapshot handles GET /api/snapshot
func (h *Handlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	catalog := h.search.Catalog()
	if catalog.Stale(time.Now()) {
		if err := catalog.Reload(); err != nil && !errors.Is(err, storage.ErrNoSnapshot) {
			h.logger.Warn("failed to reload catalog", "error", err)
		}
	}

	rs := catalog.Snapshot()
	if rs == nil {
		h.respondError(w, http.StatusNotFound, "no snapshot available")
		return
	}

	h.respondJSON(w, http.StatusOK, rs)
}

// ListRetailers handles GET /api/retailers
func (h *Handlers) ListRetailers(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, adapter.Names(h.adapters))
}

// ListRuns handles GET /api/runs?limit=
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.respondError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	h.respondJSON(w, http.StatusOK, runs)
}

// GetRun handles GET /api/runs/{runID}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.respondError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}

	rs, err := h.runs.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			h.respondError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("failed to get run", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	h.respondJSON(w, http.StatusOK, rs)
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	catalog := h.search.Catalog()

	health := map[string]interface{}{
		"status": "ok",
		"snapshot": map[string]interface{}{
			"products":    len(catalog.Products()),
			"terms":       catalog.Terms(),
			"age_seconds": int64(catalog.Age(now).Seconds()),
			"stale":       catalog.Stale(now),
		},
		"retailers": len(h.adapters),
	}

	h.respondJSON(w, http.StatusOK, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
