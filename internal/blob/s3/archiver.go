package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

// archivedListing is the JSONL record shape for one archived raw listing.
type archivedListing struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Price         float64         `json:"price"`
	SubtotalCents int64           `json:"subtotal_cents"`
	FeeCents      int64           `json:"fee_cents"`
	GemHTML       []string        `json:"gem_html,omitempty"`
	Raw           json.RawMessage `json:"raw,omitempty"`
	FetchedAt     time.Time       `json:"fetched_at"`
}

// archivedVerdict is the JSON record shape for one superseded verdict.
type archivedVerdict struct {
	ItemID           string    `json:"item_id"`
	ItemPrice        float64   `json:"item_price"`
	PrismaticPrice   float64   `json:"prismatic_price,omitempty"`
	EtherealPrice    float64   `json:"ethereal_price,omitempty"`
	CombinedGemPrice float64   `json:"combined_gem_price"`
	ExpectedProfit   float64   `json:"expected_profit"`
	Profitable       bool      `json:"profitable"`
	EvaluatedAt      time.Time `json:"evaluated_at"`
}

// Archiver implements domain.Archiver: aged raw listings are serialised to
// JSONL, uploaded to cold storage, and only then pruned from the primary
// store. A failed upload leaves the rows in place for the next run.
type Archiver struct {
	writer   domain.BlobWriter
	listings domain.ListingStore
}

// NewArchiver creates a new Archiver over the given writer and listing
// store.
func NewArchiver(writer domain.BlobWriter, listings domain.ListingStore) *Archiver {
	return &Archiver{writer: writer, listings: listings}
}

// ArchiveListings archives and prunes raw listings fetched strictly before
// the cutoff. It returns the number of listings archived.
func (a *Archiver) ArchiveListings(ctx context.Context, before time.Time) (int64, error) {
	listings, err := a.listings.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive listings query: %w", err)
	}
	if len(listings) == 0 {
		return 0, nil
	}

	records := make([]archivedListing, 0, len(listings))
	for _, l := range listings {
		records = append(records, archivedListing{
			ID:            l.ID,
			Name:          l.Name,
			Price:         l.Price,
			SubtotalCents: l.SubtotalCents,
			FeeCents:      l.FeeCents,
			GemHTML:       l.GemHTML,
			Raw:           json.RawMessage(l.Raw),
			FetchedAt:     l.FetchedAt,
		})
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive listings marshal: %w", err)
	}

	path := archivePath("listings", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive listings upload: %w", err)
	}

	if _, err := a.listings.DeleteBefore(ctx, before); err != nil {
		return int64(len(listings)), fmt.Errorf("s3blob: archive listings prune: %w", err)
	}

	return int64(len(listings)), nil
}

// ArchiveVerdict uploads a single superseded verdict before the caller
// deletes it, keyed by item id and evaluation time so successive verdicts for
// the same item never collide.
func (a *Archiver) ArchiveVerdict(ctx context.Context, v domain.Verdict) error {
	buf, err := json.Marshal(archivedVerdict{
		ItemID:           v.ItemID,
		ItemPrice:        v.ItemPrice,
		PrismaticPrice:   v.PrismaticPrice,
		EtherealPrice:    v.EtherealPrice,
		CombinedGemPrice: v.CombinedGemPrice,
		ExpectedProfit:   v.ExpectedProfit,
		Profitable:       v.Profitable,
		EvaluatedAt:      v.EvaluatedAt,
	})
	if err != nil {
		return fmt.Errorf("s3blob: archive verdict marshal: %w", err)
	}

	path := fmt.Sprintf("archive/verdicts/%s/%s-%d.json",
		v.EvaluatedAt.Format("2006-01"), v.ItemID, v.EvaluatedAt.Unix())
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive verdict upload: %w", err)
	}
	return nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/listings/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line each.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface checks.
var (
	_ domain.Archiver        = (*Archiver)(nil)
	_ domain.VerdictArchiver = (*Archiver)(nil)
)
