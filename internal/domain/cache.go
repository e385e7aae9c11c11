package domain

import (
	"context"
	"time"
)

// GemSnapshotCache holds the previous cycle's buy-order snapshot per gem,
// used for change dampening before a fresh snapshot is persisted.
type GemSnapshotCache interface {
	Set(ctx context.Context, name string, orders []BuyOrder) error
	// Get returns ErrNotFound when no snapshot exists for the gem.
	Get(ctx context.Context, name string) ([]BuyOrder, error)
}

// LockManager provides distributed locking. A cycle lock prevents two bot
// instances from fetching through the same proxy account concurrently.
type LockManager interface {
	// Acquire returns ErrLockHeld when another party holds the lock. The
	// returned unlock func is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter is the global floor on outbound request rate, shared across
// workers and processes. Per-worker pacing stays local to each worker.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
