package cache

import (
	"context"
	"sync"
	"time"

	"github.com/minjaeyoo/wardrobe-weather-service/internal/models"
)

// InMemoryStore implements Store with a mutex-guarded map. Entries live until
// overwritten or process exit; the eviction-hint TTL is ignored because the
// ForecastCache judges freshness from UpdatedAt.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]models.ForecastEntry
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]models.ForecastEntry)}
}

// Get returns the stored entry for a zone, if any.
func (s *InMemoryStore) Get(ctx context.Context, zoneID string) (models.ForecastEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.data[zoneID]
	return entry, ok, nil
}

// Set stores a full snapshot for a zone, overwriting any prior entry.
func (s *InMemoryStore) Set(ctx context.Context, zoneID string, entry models.ForecastEntry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[zoneID] = entry
	return nil
}
