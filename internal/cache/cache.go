package cache

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/minjaeyoo/wardrobe-weather-service/internal/models"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/observability"
)

// DefaultTTL is how long a zone's forecast stays fresh, measured from the
// entry's UpdatedAt. It matches the upstream 3-hourly issue schedule.
const DefaultTTL = 3 * time.Hour

// Store is the backing key-value store for forecast entries. Freshness is
// judged by the ForecastCache, not the store; the TTL passed to Set is an
// eviction hint for backends that support it.
type Store interface {
	Get(ctx context.Context, zoneID string) (models.ForecastEntry, bool, error)
	Set(ctx context.Context, zoneID string, entry models.ForecastEntry, ttl time.Duration) error
}

// Fetcher is implemented by the upstream client. Declared here to avoid a
// dependency on the kma package.
type Fetcher interface {
	FetchForecast(ctx context.Context, zoneID string) ([]models.ForecastRow, error)
}

// ZoneNamer resolves a zone id to its human-readable name for the cached
// entry. Implemented by the region directory.
type ZoneNamer interface {
	ZoneName(zoneID string) string
}

// ForecastCache serves per-zone forecast entries with get-or-fetch semantics.
// Concurrent refreshes for the same zone are coalesced so a burst of misses
// produces a single upstream call. Writes are last-write-wins full snapshots.
type ForecastCache struct {
	store     Store
	fetcher   Fetcher
	names     ZoneNamer
	ttl       time.Duration
	clock     clockwork.Clock
	logger    *zap.Logger
	coalescer *refreshCoalescer
}

// NewForecastCache creates a ForecastCache. A nil clock defaults to the real
// clock; ttl <= 0 defaults to DefaultTTL.
func NewForecastCache(store Store, fetcher Fetcher, names ZoneNamer, ttl time.Duration, clock clockwork.Clock, logger *zap.Logger) *ForecastCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ForecastCache{
		store:     store,
		fetcher:   fetcher,
		names:     names,
		ttl:       ttl,
		clock:     clock,
		logger:    logger,
		coalescer: newRefreshCoalescer(),
	}
}

// GetForecast returns the cached entry for a zone when it is present,
// non-empty, and younger than the TTL; otherwise it refreshes from upstream.
// An upstream failure still yields an entry, with an empty item list and a
// fresh-but-empty snapshot that the next call will retry (empty entries are
// never treated as fresh).
func (c *ForecastCache) GetForecast(ctx context.Context, zoneID string) (models.ForecastEntry, error) {
	entry, ok, err := c.store.Get(ctx, zoneID)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("forecast store get failed", zap.String("zone", zoneID), zap.Error(err))
		}
	} else if ok && len(entry.Items) > 0 && c.clock.Since(entry.UpdatedAt) < c.ttl {
		observability.CacheHitsTotal.WithLabelValues("forecast").Inc()
		return entry, nil
	}

	observability.CacheMissesTotal.WithLabelValues("forecast").Inc()
	return c.coalescer.GetOrDo(ctx, zoneID, func() (models.ForecastEntry, error) {
		return c.refresh(ctx, zoneID)
	})
}

func (c *ForecastCache) refresh(ctx context.Context, zoneID string) (models.ForecastEntry, error) {
	rows, err := c.fetcher.FetchForecast(ctx, zoneID)
	if err != nil {
		// Fail-soft: a forecast gap must not break the pipeline. Degrade to
		// an empty item list, log, and let the next call retry.
		if c.logger != nil {
			c.logger.Warn("forecast fetch failed, caching empty entry", zap.String("zone", zoneID), zap.Error(err))
		}
		rows = nil
	}

	name := zoneID
	if c.names != nil {
		name = c.names.ZoneName(zoneID)
	}
	entry := models.ForecastEntry{
		ZoneID:    zoneID,
		Name:      name,
		UpdatedAt: c.clock.Now(),
		Items:     rows,
	}
	if err := c.store.Set(ctx, zoneID, entry, c.ttl); err != nil {
		if c.logger != nil {
			c.logger.Warn("forecast store set failed", zap.String("zone", zoneID), zap.Error(err))
		}
	}
	return entry, nil
}
