package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

// SnapshotCache implements domain.GemSnapshotCache: the previous cycle's
// buy-order book per gem, serialised as JSON under a TTL. The TTL keeps a
// long outage from dampening against a book that is hours stale.
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying(), ttl: ttl}
}

func snapshotKey(name string) string {
	return "gemsnap:" + name
}

// Set stores the buy-order book for a gem, replacing any previous snapshot.
func (sc *SnapshotCache) Set(ctx context.Context, name string, orders []domain.BuyOrder) error {
	data, err := json.Marshal(orders)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", name, err)
	}
	if err := sc.rdb.Set(ctx, snapshotKey(name), data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", name, err)
	}
	return nil
}

// Get returns the cached book for a gem, or domain.ErrNotFound when no
// snapshot exists (never stored, or expired).
func (sc *SnapshotCache) Get(ctx context.Context, name string) ([]domain.BuyOrder, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey(name)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get snapshot %s: %w", name, err)
	}

	var orders []domain.BuyOrder
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, fmt.Errorf("redis: decode snapshot %s: %w", name, err)
	}
	return orders, nil
}

// Compile-time interface check.
var _ domain.GemSnapshotCache = (*SnapshotCache)(nil)
