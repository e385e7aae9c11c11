package domain

import (
	"context"
	"time"
)

// ItemStore persists observed listings, keyed by listing id.
type ItemStore interface {
	Upsert(ctx context.Context, item Item) error
	GetByID(ctx context.Context, id string) (Item, error)
	ListInWindow(ctx context.Context, w FetchWindow) ([]Item, error)
}

// GemStore persists gem buy-order state, keyed by qualified gem name.
type GemStore interface {
	Upsert(ctx context.Context, gem Gem) error
	GetByName(ctx context.Context, name string) (Gem, error)
}

// VerdictStore persists at most one live verdict per item id.
type VerdictStore interface {
	Upsert(ctx context.Context, v Verdict) error
	// Delete removes the verdict for the item id; deleting an absent row is
	// not an error.
	Delete(ctx context.Context, itemID string) error
	GetByItemID(ctx context.Context, itemID string) (Verdict, error)
	ListProfitable(ctx context.Context) ([]Verdict, error)
}

// WindowStore persists completed fetch windows, append-only, latest wins.
type WindowStore interface {
	Save(ctx context.Context, w FetchWindow) error
	Latest(ctx context.Context) (FetchWindow, error)
}

// ListingStore keeps the raw listing payloads the purchase path needs.
type ListingStore interface {
	Upsert(ctx context.Context, l Listing) error
	GetByID(ctx context.Context, id string) (Listing, error)
	// ListBefore returns raw listings fetched strictly before the cutoff,
	// for archival, and DeleteBefore prunes them once archived.
	ListBefore(ctx context.Context, before time.Time) ([]Listing, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
