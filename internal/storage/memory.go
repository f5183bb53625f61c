// Package storage contains the in-memory issuance ledger used when no database
// is configured.
package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dharsanguruparan/imagesigner/internal/model"
)

var (
	// ErrNotFound is returned for unknown issuance ids.
	ErrNotFound = errors.New("issuance not found")
)

// MemoryStore keeps issuances in a map guarded by an RWMutex.
type MemoryStore struct {
	mu        sync.RWMutex
	issuances map[string]*model.Issuance
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		issuances: make(map[string]*model.Issuance),
	}
}

// Create inserts or replaces a record.
func (m *MemoryStore) Create(_ context.Context, rec *model.Issuance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	copy := *rec
	m.issuances[rec.ID] = &copy
	return nil
}

// MarkIssued records the expiry and, for async jobs, the manifest location.
func (m *MemoryStore) MarkIssued(_ context.Context, id string, expiresAt time.Time, manifestKey string) error {
	return m.update(id, func(rec *model.Issuance) {
		rec.Status = model.StatusIssued
		rec.ExpiresAt = expiresAt.UTC()
		rec.ManifestKey = manifestKey
		rec.Message = ""
	})
}

// MarkFailed records why an issuance could not complete.
func (m *MemoryStore) MarkFailed(_ context.Context, id string, msg string) error {
	return m.update(id, func(rec *model.Issuance) {
		rec.Status = model.StatusFailed
		rec.Message = msg
	})
}

// Get returns a copy of the record.
func (m *MemoryStore) Get(_ context.Context, id string) (*model.Issuance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.issuances[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *rec
	return &copy, nil
}

func (m *MemoryStore) update(id string, fn func(*model.Issuance)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.issuances[id]
	if !ok {
		return ErrNotFound
	}
	fn(rec)
	rec.UpdatedAt = time.Now().UTC()
	return nil
}
