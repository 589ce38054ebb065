package storage

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/foliotrace/foliotrace/pkg/observability"
	"github.com/foliotrace/foliotrace/pkg/session"
)

const snapshotCacheName = "snapshot"

// CachedStore is a read-through snapshot cache in front of another Store.
// Report serving reads the same session repeatedly while it stays hot; the
// cache absorbs those reads. Writes and deletes invalidate the entry, so a
// cached read is never staler than the last completed save.
type CachedStore struct {
	Store

	cache   *expirable.LRU[string, *session.Snapshot]
	metrics *observability.Metrics
}

// WithCache wraps store with an expiring LRU of at most size snapshots.
// A non-positive size or ttl falls back to the defaults.
func WithCache(store Store, size int, ttl time.Duration, metrics *observability.Metrics) *CachedStore {
	def := DefaultConfig()
	if size <= 0 {
		size = def.CacheSize
	}
	if ttl <= 0 {
		ttl = def.CacheTTL
	}

	c := &CachedStore{Store: store, metrics: metrics}
	c.cache = expirable.NewLRU[string, *session.Snapshot](size, c.onEvict, ttl)
	return c
}

// Unwrap returns the wrapped store.
func (c *CachedStore) Unwrap() Store { return c.Store }

func (c *CachedStore) onEvict(string, *session.Snapshot) {
	if c.metrics != nil {
		c.metrics.CacheEvictionsTotal.WithLabelValues(snapshotCacheName).Inc()
	}
}

func (c *CachedStore) setEntriesGauge() {
	if c.metrics != nil {
		c.metrics.CacheEntries.WithLabelValues(snapshotCacheName).Set(float64(c.cache.Len()))
	}
}

// Save writes through to the underlying store and invalidates the cached
// entry on success.
func (c *CachedStore) Save(ctx context.Context, snap *session.Snapshot) error {
	if err := c.Store.Save(ctx, snap); err != nil {
		return err
	}
	c.cache.Remove(snap.ID)
	c.setEntriesGauge()
	return nil
}

// Get serves from cache when possible. Cached snapshots are cloned on the
// way out so callers cannot mutate shared state.
func (c *CachedStore) Get(ctx context.Context, id string) (*session.Snapshot, error) {
	if snap, ok := c.cache.Get(id); ok {
		if c.metrics != nil {
			c.metrics.CacheHitsTotal.WithLabelValues(snapshotCacheName).Inc()
		}
		return snap.Clone(), nil
	}
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(snapshotCacheName).Inc()
	}

	snap, err := c.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, snap.Clone())
	c.setEntriesGauge()
	return snap, nil
}

// Delete removes the snapshot from the underlying store and the cache.
func (c *CachedStore) Delete(ctx context.Context, id string) error {
	err := c.Store.Delete(ctx, id)
	// Invalidate even on ErrNotFound: the backend no longer has the entry.
	c.cache.Remove(id)
	c.setEntriesGauge()
	return err
}

// Close purges the cache and closes the underlying store.
func (c *CachedStore) Close() error {
	c.cache.Purge()
	c.setEntriesGauge()
	return c.Store.Close()
}
