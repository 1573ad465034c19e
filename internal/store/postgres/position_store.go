package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kterrell/tradegate/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. Rows are
// never deleted; closing orders accumulate in closing_order_ids.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Upsert inserts or refreshes a position snapshot. The closing-order list is
// preserved on conflict: broker syncs must not drop local links.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, symbol, side, quantity, entry_price, unrealized_pnl,
			closing_order_ids, opened_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			entry_price = EXCLUDED.entry_price,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			updated_at = EXCLUDED.updated_at`

	closingIDs := p.ClosingOrderIDs
	if closingIDs == nil {
		closingIDs = []string{}
	}
	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Symbol, string(p.Side), p.Quantity, p.EntryPrice, p.UnrealizedPnL,
		closingIDs, p.OpenedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", p.ID, err)
	}
	return nil
}

const positionSelectCols = `id, symbol, side, quantity, entry_price,
	unrealized_pnl, closing_order_ids, opened_at, updated_at`

func scanPositionFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Position, error) {
	var p domain.Position
	var side string

	err := scanner.Scan(
		&p.ID, &p.Symbol, &side, &p.Quantity, &p.EntryPrice,
		&p.UnrealizedPnL, &p.ClosingOrderIDs, &p.OpenedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.Side(side)
	return p, nil
}

// GetByID retrieves a single position.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPositionFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// List returns positions with pagination.
func (s *PositionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions ORDER BY opened_at DESC`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return positions, nil
}

// LinkClosingOrder appends orderID to the position's closing-order list.
// Appending the same id twice is a no-op.
func (s *PositionStore) LinkClosingOrder(ctx context.Context, positionID, orderID string) error {
	const query = `
		UPDATE positions SET
			closing_order_ids = array_append(closing_order_ids, $1),
			updated_at = NOW()
		WHERE id = $2 AND NOT ($1 = ANY(closing_order_ids))`

	tag, err := s.pool.Exec(ctx, query, orderID, positionID)
	if err != nil {
		return fmt.Errorf("postgres: link closing order %s to %s: %w", orderID, positionID, err)
	}
	if tag.RowsAffected() == 0 {
		// Either the position is missing or the link already exists.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM positions WHERE id = $1)", positionID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check position %s: %w", positionID, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
	}
	return nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
