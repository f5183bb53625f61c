package storage

import (
	"context"
	"sync"
)

// ManifestStore keeps published manifests in memory. It stands in for object
// storage in single-process deployments.
type ManifestStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewManifestStore constructs a ManifestStore.
func NewManifestStore() *ManifestStore {
	return &ManifestStore{objects: make(map[string][]byte)}
}

// PutManifest stores a copy of data under key.
func (m *ManifestStore) PutManifest(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

// GetManifest returns the manifest stored under key.
func (m *ManifestStore) GetManifest(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}
