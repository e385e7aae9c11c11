package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL. It keeps the
// raw Steam payloads the purchase path and the archiver need.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a new ListingStore backed by the given connection
// pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

// Upsert inserts or replaces a raw listing.
func (s *ListingStore) Upsert(ctx context.Context, l domain.Listing) error {
	gemHTML, err := json.Marshal(l.GemHTML)
	if err != nil {
		return fmt.Errorf("postgres: marshal gem html for %s: %w", l.ID, err)
	}
	raw := l.Raw
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	const query = `
		INSERT INTO raw_listings (
			id, name, price, subtotal_cents, fee_cents, gem_html, raw, fetched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name           = EXCLUDED.name,
			price          = EXCLUDED.price,
			subtotal_cents = EXCLUDED.subtotal_cents,
			fee_cents      = EXCLUDED.fee_cents,
			gem_html       = EXCLUDED.gem_html,
			raw            = EXCLUDED.raw,
			fetched_at     = EXCLUDED.fetched_at`

	_, err = s.pool.Exec(ctx, query,
		l.ID, l.Name, l.Price, l.SubtotalCents, l.FeeCents, gemHTML, raw, l.FetchedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert listing %s: %w", l.ID, err)
	}
	return nil
}

const listingCols = `id, name, price, subtotal_cents, fee_cents, gem_html, raw, fetched_at`

// GetByID retrieves a raw listing by id.
func (s *ListingStore) GetByID(ctx context.Context, id string) (domain.Listing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingCols+` FROM raw_listings WHERE id = $1`, id)

	l, err := scanListing(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("postgres: get listing %s: %w", id, err)
	}
	return l, nil
}

// ListBefore returns raw listings fetched strictly before the cutoff, oldest
// first.
func (s *ListingStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+listingCols+` FROM raw_listings
		 WHERE fetched_at < $1 ORDER BY fetched_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings before %s: %w", before, err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list listings rows: %w", err)
	}
	return listings, nil
}

// DeleteBefore prunes raw listings fetched strictly before the cutoff and
// returns the number of rows removed.
func (s *ListingStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM raw_listings WHERE fetched_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete listings before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

func scanListing(row pgx.Row) (domain.Listing, error) {
	var l domain.Listing
	var gemHTML []byte
	err := row.Scan(&l.ID, &l.Name, &l.Price,
		&l.SubtotalCents, &l.FeeCents, &gemHTML, &l.Raw, &l.FetchedAt)
	if err != nil {
		return domain.Listing{}, err
	}
	if err := json.Unmarshal(gemHTML, &l.GemHTML); err != nil {
		return domain.Listing{}, fmt.Errorf("decode gem html: %w", err)
	}
	return l, nil
}
