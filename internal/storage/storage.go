package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maltedev/supercomparador/internal/models"
)

var ErrNoSnapshot = errors.New("no snapshot stored")

// SnapshotStore keeps the latest result set in a single JSON file that is
// replaced wholesale on every save.
type SnapshotStore struct {
	mu       sync.RWMutex
	filename string
}

func NewSnapshotStore(filename string) (*SnapshotStore, error) {
	if filename == "" {
		return nil, fmt.Errorf("snapshot filename is required")
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	return &SnapshotStore{filename: filename}, nil
}

func (s *SnapshotStore) Path() string {
	return s.filename
}

func (s *SnapshotStore) Save(rs *models.ResultSet) error {
	if rs == nil {
		return fmt.Errorf("result set is required")
	}

	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write to temp file first for atomicity
	tmpFile := s.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmpFile, s.filename)
}

// Load reads the stored result set. A file holding a bare JSON array of
// products is accepted as well.
func (s *SnapshotStore) Load() (*models.ResultSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrNoSnapshot
	}

	if data[0] == '[' {
		return s.loadProductList(data)
	}

	var rs models.ResultSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if rs.Products == nil {
		rs.Products = make([]models.ProductRecord, 0)
	}

	return &rs, nil
}

func (s *SnapshotStore) loadProductList(data []byte) (*models.ResultSet, error) {
	var products []models.ProductRecord
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	rs := &models.ResultSet{
		Products:  products,
		Retailers: make([]models.RetailerOutcome, 0),
	}

	if info, err := os.Stat(s.filename); err == nil {
		rs.StartedAt = info.ModTime()
		rs.FinishedAt = info.ModTime()
	}

	return rs, nil
}

// Consume stores rs as the new snapshot.
func (s *SnapshotStore) Consume(_ context.Context, rs *models.ResultSet) error {
	return s.Save(rs)
}

// ModTime returns when the snapshot file was last written.
func (s *SnapshotStore) ModTime() (time.Time, error) {
	info, err := os.Stat(s.filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, ErrNoSnapshot
		}
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
