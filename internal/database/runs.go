package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/supercomparador/internal/models"
)

var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS search_runs (
	id            UUID PRIMARY KEY,
	query         TEXT NOT NULL,
	retailer      TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL,
	product_count INTEGER NOT NULL,
	products      JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_search_runs_query ON search_runs (lower(query), finished_at DESC);

CREATE TABLE IF NOT EXISTS search_run_retailers (
	run_id      UUID NOT NULL REFERENCES search_runs(id) ON DELETE CASCADE,
	retailer    TEXT NOT NULL,
	status      TEXT NOT NULL,
	extracted   INTEGER NOT NULL,
	kept        INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL,
	PRIMARY KEY (run_id, retailer)
);`

// RunSummary is one row of the run history.
type RunSummary struct {
	ID           string    `json:"id"`
	Query        string    `json:"query"`
	Retailer     string    `json:"retailer,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	ProductCount int       `json:"product_count"`
}

// RunRepository records every scrape run in Postgres.
type RunRepository struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// InsertRun stores the run and its per-retailer outcomes in one transaction.
func (r *RunRepository) InsertRun(ctx context.Context, rs *models.ResultSet) error {
	products, err := json.Marshal(rs.Products)
	if err != nil {
		return fmt.Errorf("failed to marshal products: %w", err)
	}

	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO search_runs (id, query, retailer, started_at, finished_at, product_count, products)
			VALUES ($1::uuid, $2, $3, $4, $5, $6, $7::jsonb)`,
			rs.ID, rs.Query, rs.Retailer, rs.StartedAt, rs.FinishedAt, rs.Len(), string(products),
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		batch := &pgx.Batch{}
		for _, o := range rs.Retailers {
			batch.Queue(`
				INSERT INTO search_run_retailers (run_id, retailer, status, extracted, kept, error, duration_ms)
				VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)`,
				rs.ID, o.Retailer, string(o.Status), o.Extracted, o.Kept, o.Error, o.Duration.Milliseconds(),
			)
		}

		if batch.Len() == 0 {
			return nil
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert retailer outcomes: %w", err)
		}

		return nil
	})
}

// Consume records rs in the run history.
func (r *RunRepository) Consume(ctx context.Context, rs *models.ResultSet) error {
	return r.InsertRun(ctx, rs)
}

func (r *RunRepository) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id::text, query, retailer, started_at, finished_at, product_count
		FROM search_runs
		ORDER BY finished_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]RunSummary, 0)
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.ID, &s.Query, &s.Retailer, &s.StartedAt, &s.FinishedAt, &s.ProductCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, s)
	}

	return runs, rows.Err()
}

// GetRun loads a stored run with its products and retailer outcomes. An id
// that is not a UUID reports ErrRunNotFound without querying.
func (r *RunRepository) GetRun(ctx context.Context, id string) (*models.ResultSet, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrRunNotFound
	}
	id = parsed.String()

	rs := &models.ResultSet{}
	var products []byte

	err = r.db.QueryRow(ctx, `
		SELECT id::text, query, retailer, started_at, finished_at, products
		FROM search_runs
		WHERE id = $1::uuid`, id,
	).Scan(&rs.ID, &rs.Query, &rs.Retailer, &rs.StartedAt, &rs.FinishedAt, &products)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if err := json.Unmarshal(products, &rs.Products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT retailer, status, extracted, kept, error, duration_ms
		FROM search_run_retailers
		WHERE run_id = $1::uuid
		ORDER BY retailer`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query retailer outcomes: %w", err)
	}
	defer rows.Close()

	rs.Retailers = make([]models.RetailerOutcome, 0)
	for rows.Next() {
		var o models.RetailerOutcome
		var status string
		var durationMS int64
		if err := rows.Scan(&o.Retailer, &status, &o.Extracted, &o.Kept, &o.Error, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan retailer outcome: %w", err)
		}
		o.Status = models.RetailerStatus(status)
		o.Duration = time.Duration(durationMS) * time.Millisecond
		rs.Retailers = append(rs.Retailers, o)
	}

	return rs, rows.Err()
}
