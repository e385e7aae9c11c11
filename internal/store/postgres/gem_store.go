package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

// GemStore implements domain.GemStore using PostgreSQL. Buy-order books are
// stored as JSONB, one row per qualified gem name.
type GemStore struct {
	pool *pgxpool.Pool
}

// NewGemStore creates a new GemStore backed by the given connection pool.
func NewGemStore(pool *pgxpool.Pool) *GemStore {
	return &GemStore{pool: pool}
}

// Upsert inserts or replaces the buy-order state for a gem.
func (s *GemStore) Upsert(ctx context.Context, gem domain.Gem) error {
	orders, err := json.Marshal(gem.BuyOrders)
	if err != nil {
		return fmt.Errorf("postgres: marshal buy orders for %s: %w", gem.Name, err)
	}

	const query = `
		INSERT INTO gems (name, buy_orders, depth, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			buy_orders = EXCLUDED.buy_orders,
			depth      = EXCLUDED.depth,
			updated_at = EXCLUDED.updated_at`

	_, err = s.pool.Exec(ctx, query, gem.Name, orders, gem.Depth, gem.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert gem %s: %w", gem.Name, err)
	}
	return nil
}

// GetByName retrieves a gem by its qualified name.
func (s *GemStore) GetByName(ctx context.Context, name string) (domain.Gem, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT name, buy_orders, depth, updated_at FROM gems WHERE name = $1`, name)

	var gem domain.Gem
	var orders []byte
	err := row.Scan(&gem.Name, &orders, &gem.Depth, &gem.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Gem{}, domain.ErrNotFound
		}
		return domain.Gem{}, fmt.Errorf("postgres: get gem %s: %w", name, err)
	}
	if err := json.Unmarshal(orders, &gem.BuyOrders); err != nil {
		return domain.Gem{}, fmt.Errorf("postgres: decode buy orders for %s: %w", name, err)
	}
	return gem, nil
}
