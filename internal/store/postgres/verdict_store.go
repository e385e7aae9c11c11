package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

// VerdictStore implements domain.VerdictStore using PostgreSQL. The item_id
// primary key enforces the at-most-one-live-verdict rule.
type VerdictStore struct {
	pool *pgxpool.Pool
}

// NewVerdictStore creates a new VerdictStore backed by the given connection
// pool.
func NewVerdictStore(pool *pgxpool.Pool) *VerdictStore {
	return &VerdictStore{pool: pool}
}

// Upsert inserts or replaces the verdict for an item.
func (s *VerdictStore) Upsert(ctx context.Context, v domain.Verdict) error {
	const query = `
		INSERT INTO verdicts (
			item_id, item_price, prismatic_price, ethereal_price,
			combined_gem_price, expected_profit, profitable, evaluated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (item_id) DO UPDATE SET
			item_price         = EXCLUDED.item_price,
			prismatic_price    = EXCLUDED.prismatic_price,
			ethereal_price     = EXCLUDED.ethereal_price,
			combined_gem_price = EXCLUDED.combined_gem_price,
			expected_profit    = EXCLUDED.expected_profit,
			profitable         = EXCLUDED.profitable,
			evaluated_at       = EXCLUDED.evaluated_at`

	_, err := s.pool.Exec(ctx, query,
		v.ItemID, v.ItemPrice, v.PrismaticPrice, v.EtherealPrice,
		v.CombinedGemPrice, v.ExpectedProfit, v.Profitable, v.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert verdict %s: %w", v.ItemID, err)
	}
	return nil
}

// Delete removes the verdict for the item id. Deleting an absent row is not
// an error.
func (s *VerdictStore) Delete(ctx context.Context, itemID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM verdicts WHERE item_id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("postgres: delete verdict %s: %w", itemID, err)
	}
	return nil
}

const verdictCols = `item_id, item_price, prismatic_price, ethereal_price,
	combined_gem_price, expected_profit, profitable, evaluated_at`

// GetByItemID retrieves the verdict for an item.
func (s *VerdictStore) GetByItemID(ctx context.Context, itemID string) (domain.Verdict, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+verdictCols+` FROM verdicts WHERE item_id = $1`, itemID)

	v, err := scanVerdict(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Verdict{}, domain.ErrNotFound
		}
		return domain.Verdict{}, fmt.Errorf("postgres: get verdict %s: %w", itemID, err)
	}
	return v, nil
}

// ListProfitable returns all live profitable verdicts, best profit first.
func (s *VerdictStore) ListProfitable(ctx context.Context) ([]domain.Verdict, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+verdictCols+` FROM verdicts
		 WHERE profitable ORDER BY expected_profit DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list profitable verdicts: %w", err)
	}
	defer rows.Close()

	var verdicts []domain.Verdict
	for rows.Next() {
		v, err := scanVerdict(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan verdict: %w", err)
		}
		verdicts = append(verdicts, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list profitable rows: %w", err)
	}
	return verdicts, nil
}

func scanVerdict(row pgx.Row) (domain.Verdict, error) {
	var v domain.Verdict
	err := row.Scan(
		&v.ItemID, &v.ItemPrice, &v.PrismaticPrice, &v.EtherealPrice,
		&v.CombinedGemPrice, &v.ExpectedProfit, &v.Profitable, &v.EvaluatedAt,
	)
	if err != nil {
		return domain.Verdict{}, err
	}
	return v, nil
}
