package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minjaeyoo/wardrobe-weather-service/internal/observability"
)

// Warmer pre-populates forecast entries for a list of zones so the first
// request after startup (or after TTL expiry) does not pay the live-fetch
// cost. It has no correctness role.
type Warmer struct {
	cache  *ForecastCache
	logger *zap.Logger
}

// NewWarmer creates a Warmer over the given cache.
func NewWarmer(cache *ForecastCache, logger *zap.Logger) *Warmer {
	return &Warmer{cache: cache, logger: logger}
}

// Warm fetches the forecast for each zone concurrently. Returns an aggregated
// error if any zone failed; callers log it and move on.
func (w *Warmer) Warm(ctx context.Context, zones []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming forecast cache", zap.Int("zones", len(zones)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(zones))
	for _, zone := range zones {
		zone := zone
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.cache.GetForecast(ctx, zone); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", zone, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("forecast warming complete", zap.Int("zones", len(zones)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		return fmt.Errorf("forecast warming: %v", errs)
	}
	return nil
}
