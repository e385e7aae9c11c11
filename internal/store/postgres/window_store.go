package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

// WindowStore implements domain.WindowStore using PostgreSQL. Windows are
// append-only; the latest row is the active freshness predicate.
type WindowStore struct {
	pool *pgxpool.Pool
}

// NewWindowStore creates a new WindowStore backed by the given connection
// pool.
func NewWindowStore(pool *pgxpool.Pool) *WindowStore {
	return &WindowStore{pool: pool}
}

// Save appends a completed fetch window.
func (s *WindowStore) Save(ctx context.Context, w domain.FetchWindow) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fetch_windows (start_at, end_at) VALUES ($1, $2)`,
		w.Start, w.End)
	if err != nil {
		return fmt.Errorf("postgres: save fetch window: %w", err)
	}
	return nil
}

// Latest returns the most recently recorded fetch window, or ErrNotFound
// when no cycle has ever completed.
func (s *WindowStore) Latest(ctx context.Context) (domain.FetchWindow, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT start_at, end_at FROM fetch_windows ORDER BY id DESC LIMIT 1`)

	var w domain.FetchWindow
	if err := row.Scan(&w.Start, &w.End); err != nil {
		if err == pgx.ErrNoRows {
			return domain.FetchWindow{}, domain.ErrNotFound
		}
		return domain.FetchWindow{}, fmt.Errorf("postgres: latest fetch window: %w", err)
	}
	return w, nil
}
