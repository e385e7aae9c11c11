package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves aged raw listings out of the primary store into cold
// storage. Pruning happens only after the archive upload succeeded.
type Archiver interface {
	ArchiveListings(ctx context.Context, before time.Time) (int64, error)
}

// VerdictArchiver keeps an audit copy of a superseded verdict before it is
// deleted from the live set.
type VerdictArchiver interface {
	ArchiveVerdict(ctx context.Context, v Verdict) error
}
