package cache

import (
	"context"
	"sync"

	"github.com/minjaeyoo/wardrobe-weather-service/internal/models"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/observability"
)

// inFlightRefresh tracks a single upstream refresh that multiple callers may
// wait for.
type inFlightRefresh struct {
	mu      sync.Mutex
	result  models.ForecastEntry
	err     error
	done    bool
	waiters []chan struct{}
}

// refreshCoalescer deduplicates concurrent refreshes per zone. Without it two
// requests racing an expired entry would both hit upstream; the fetch is
// idempotent, so this is purely a cost optimization made explicit.
type refreshCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRefresh
}

func newRefreshCoalescer() *refreshCoalescer {
	return &refreshCoalescer{inFlight: make(map[string]*inFlightRefresh)}
}

// GetOrDo runs fn for key unless a refresh for the same key is already in
// flight, in which case it waits for that result. Waiting respects context
// cancellation; the refresh itself runs to completion regardless so the
// winning snapshot still lands in the store.
func (rc *refreshCoalescer) GetOrDo(ctx context.Context, key string, fn func() (models.ForecastEntry, error)) (models.ForecastEntry, error) {
	rc.mu.Lock()
	req, exists := rc.inFlight[key]
	if exists {
		notify := make(chan struct{})
		req.mu.Lock()
		if req.done {
			result, err := req.result, req.err
			req.mu.Unlock()
			rc.mu.Unlock()
			return result, err
		}
		req.waiters = append(req.waiters, notify)
		req.mu.Unlock()
		rc.mu.Unlock()

		observability.RefreshCoalescedTotal.Inc()
		select {
		case <-notify:
			req.mu.Lock()
			result, err := req.result, req.err
			req.mu.Unlock()
			return result, err
		case <-ctx.Done():
			return models.ForecastEntry{}, ctx.Err()
		}
	}

	req = &inFlightRefresh{}
	rc.inFlight[key] = req
	rc.mu.Unlock()

	result, err := fn()

	req.mu.Lock()
	req.result = result
	req.err = err
	req.done = true
	waiters := req.waiters
	req.waiters = nil
	req.mu.Unlock()

	for _, notify := range waiters {
		close(notify)
	}

	rc.mu.Lock()
	delete(rc.inFlight, key)
	rc.mu.Unlock()

	return result, err
}
