// Package cache is the read-through cart cache sitting beneath the checkout
// read path. Entries expire lazily on read; there is no background sweeper.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/freshcart/order-engine/internal/domain"
	"github.com/freshcart/order-engine/internal/observability"
)

//go:generate mockgen -source internal/cache/cache.go -destination=internal/cache/cache_mock_test.go -package=cache

// Fetcher is the authoritative cart store, consulted on miss or expiry.
type Fetcher interface {
	Snapshot(ctx context.Context, userID string) (*domain.CartSnapshot, error)
}

type entry struct {
	snap      domain.CartSnapshot
	expiresAt time.Time
}

type Cache struct {
	lru     *lru.Cache[string, entry]
	ttl     time.Duration
	fetcher Fetcher
	group   singleflight.Group
	logger  *zap.Logger
	metrics observability.Metrics
}

func New(size int, ttl time.Duration, fetcher Fetcher, logger *zap.Logger, metrics observability.Metrics) (*Cache, error) {
	l, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{
		lru:     l,
		ttl:     ttl,
		fetcher: fetcher,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// GetCart returns the cached snapshot when present and unexpired, otherwise
// fetches from the authoritative store, repopulates and returns the fresh
// value. Concurrent misses for the same user are coalesced into a single
// fetch.
func (c *Cache) GetCart(ctx context.Context, userID string) (*domain.CartSnapshot, error) {
	if e, ok := c.lru.Get(userID); ok {
		if time.Now().Before(e.expiresAt) {
			c.metrics.IncCacheHit()
			snap := e.snap
			return &snap, nil
		}
		// lazy TTL expiry
		c.lru.Remove(userID)
	}
	c.metrics.IncCacheMiss()

	v, err, _ := c.group.Do(userID, func() (any, error) {
		snap, err := c.fetcher.Snapshot(ctx, userID)
		if err != nil {
			return nil, err
		}
		c.Put(userID, snap, c.ttl)
		return snap, nil
	})
	if err != nil {
		c.logger.Warn("cart fetch failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}

	snap := *(v.(*domain.CartSnapshot))
	return &snap, nil
}

// Put stores a snapshot copy with the given TTL; ttl <= 0 falls back to the
// configured default.
func (c *Cache) Put(userID string, snap *domain.CartSnapshot, ttl time.Duration) {
	if snap == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	cp := *snap
	cp.Items = append([]domain.CartItem(nil), snap.Items...)
	c.lru.Add(userID, entry{
		snap:      cp,
		expiresAt: time.Now().Add(ttl),
	})
}

// Invalidate drops the entry for the user. Every cart mutation path must call
// it before (or atomically with) the authoritative write; a stale read after
// a known mutation is a correctness bug, not an acceptable staleness window.
func (c *Cache) Invalidate(userID string) {
	c.lru.Remove(userID)
}
