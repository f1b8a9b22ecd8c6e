package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/minjaeyoo/wardrobe-weather-service/internal/models"
)

const keyPrefix = "forecast:"

// MemcachedStore implements Store using memcached. Useful when several
// service instances should share one warm forecast pool; in-memory remains
// the default backend.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns configure the client; both use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (s *MemcachedStore) key(zoneID string) string {
	return keyPrefix + zoneID
}

// Get implements Store.Get. Returns false, nil on cache miss; false, err on
// any other error.
func (s *MemcachedStore) Get(ctx context.Context, zoneID string) (models.ForecastEntry, bool, error) {
	if ctx.Err() != nil {
		return models.ForecastEntry{}, false, ctx.Err()
	}
	item, err := s.client.Get(s.key(zoneID))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return models.ForecastEntry{}, false, nil
		}
		return models.ForecastEntry{}, false, err
	}
	var entry models.ForecastEntry
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		return models.ForecastEntry{}, false, err
	}
	return entry, true, nil
}

// Set implements Store.Set. The TTL doubles as the memcached expiration so
// stale entries age out on their own.
func (s *MemcachedStore) Set(ctx context.Context, zoneID string, entry models.ForecastEntry, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	expSec := int32(ttl.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = int32(DefaultTTL.Seconds())
	}
	return s.client.Set(&memcache.Item{
		Key:        s.key(zoneID),
		Value:      raw,
		Expiration: expSec,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (s *MemcachedStore) Ping() error {
	return s.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
