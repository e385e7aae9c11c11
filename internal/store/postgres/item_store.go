package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

// ItemStore implements domain.ItemStore using PostgreSQL.
type ItemStore struct {
	pool *pgxpool.Pool
}

// NewItemStore creates a new ItemStore backed by the given connection pool.
func NewItemStore(pool *pgxpool.Pool) *ItemStore {
	return &ItemStore{pool: pool}
}

// Upsert inserts or updates an observed item, keyed by listing id.
func (s *ItemStore) Upsert(ctx context.Context, item domain.Item) error {
	const query = `
		INSERT INTO items (
			id, name, price, prismatic_gem, ethereal_gem, observed_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name          = EXCLUDED.name,
			price         = EXCLUDED.price,
			prismatic_gem = EXCLUDED.prismatic_gem,
			ethereal_gem  = EXCLUDED.ethereal_gem,
			observed_at   = EXCLUDED.observed_at,
			updated_at    = NOW()`

	_, err := s.pool.Exec(ctx, query,
		item.ID, item.Name, item.Price,
		item.PrismaticGem, item.EtherealGem, item.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert item %s: %w", item.ID, err)
	}
	return nil
}

const itemCols = `id, name, price, prismatic_gem, ethereal_gem, observed_at`

// GetByID retrieves an item by its listing id.
func (s *ItemStore) GetByID(ctx context.Context, id string) (domain.Item, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+itemCols+` FROM items WHERE id = $1`, id)

	var item domain.Item
	err := row.Scan(&item.ID, &item.Name, &item.Price,
		&item.PrismaticGem, &item.EtherealGem, &item.ObservedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Item{}, domain.ErrNotFound
		}
		return domain.Item{}, fmt.Errorf("postgres: get item %s: %w", id, err)
	}
	return item, nil
}

// ListInWindow returns items observed inside the fetch window, bounds
// inclusive, oldest first.
func (s *ItemStore) ListInWindow(ctx context.Context, w domain.FetchWindow) ([]domain.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+itemCols+` FROM items
		 WHERE observed_at >= $1 AND observed_at <= $2
		 ORDER BY observed_at`, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("postgres: list items in window: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.Price,
			&item.PrismaticGem, &item.EtherealGem, &item.ObservedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list items rows: %w", err)
	}
	return items, nil
}
