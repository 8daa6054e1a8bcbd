package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/supercomparador/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Test database not configured")
	}

	ctx := context.Background()
	db, err := New(ctx, Config{DSN: dsn, MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, NewRunRepository(db).EnsureSchema(ctx))
	return db
}

func TestGetRunRejectsMalformedID(t *testing.T) {
	repo := NewRunRepository(nil)

	for _, id := range []string{"", "missing", "run-42", "123e4567-e89b-12d3-a456"} {
		_, err := repo.GetRun(context.Background(), id)
		assert.ErrorIs(t, err, ErrRunNotFound, id)
	}
}

func TestRunRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	rs := models.NewResultSet("leche-"+uuid.NewString()[:8], "all")
	rs.FinishedAt = rs.StartedAt.Add(2 * time.Minute)
	rs.Products = []models.ProductRecord{
		{Name: "Leche entera", Price: 0.79, PriceRaw: "0,79 €", LinkURL: "#", Retailer: "Lidl"},
	}
	rs.Retailers = []models.RetailerOutcome{
		{Retailer: "Carrefour", Status: models.StatusBlocked, Error: "blocked", Duration: 3 * time.Second},
		{Retailer: "Lidl", Status: models.StatusOK, Extracted: 12, Kept: 10, Duration: 40 * time.Second},
	}

	require.NoError(t, repo.Consume(ctx, rs))

	loaded, err := repo.GetRun(ctx, rs.ID)
	require.NoError(t, err)
	assert.Equal(t, rs.Query, loaded.Query)
	require.Len(t, loaded.Products, 1)
	assert.Equal(t, "Leche entera", loaded.Products[0].Name)
	require.Len(t, loaded.Retailers, 2)
	assert.Equal(t, models.StatusBlocked, loaded.Retailers[0].Status)
	assert.Equal(t, 40*time.Second, loaded.Retailers[1].Duration)

	runs, err := repo.RecentRuns(ctx, 50)
	require.NoError(t, err)
	found := false
	for _, r := range runs {
		if r.ID == rs.ID {
			found = true
			assert.Equal(t, 1, r.ProductCount)
		}
	}
	assert.True(t, found)

	_, err = repo.GetRun(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrRunNotFound)
}
