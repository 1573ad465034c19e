package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kterrell/tradegate/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a new order.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, broker_order_id, symbol, side, order_type,
			quantity, price, stop_price,
			stop_loss_price, take_profit_price, trailing_offset, reference_price,
			validity, description, status, reason, filled_quantity,
			linked_position_id, linked_opposite_order_id,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15, $16, $17,
			$18, $19,
			$20, $21
		)`

	req := o.Resolved.Request
	_, err := s.pool.Exec(ctx, query,
		o.ID, nilIfEmpty(o.BrokerOrderID), req.Symbol, string(req.Side), string(req.Type),
		req.Quantity, req.Price, req.StopPrice,
		o.Resolved.StopLossPrice, o.Resolved.TakeProfitPrice, o.Resolved.TrailingOffset, o.Resolved.ReferencePrice,
		string(req.Validity), req.Description, string(o.Status), o.Reason, o.FilledQuantity,
		nilIfEmpty(o.LinkedPositionID), nilIfEmpty(o.LinkedOppositeOrderID),
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateStatus records a lifecycle transition.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, brokerOrderID, reason string, filledQty float64) error {
	const query = `
		UPDATE orders SET
			status = $1,
			broker_order_id = COALESCE(NULLIF($2, ''), broker_order_id),
			reason = COALESCE(NULLIF($3, ''), reason),
			filled_quantity = GREATEST(filled_quantity, $4),
			updated_at = NOW()
		WHERE id = $5`

	tag, err := s.pool.Exec(ctx, query, string(status), brokerOrderID, reason, filledQty, id)
	if err != nil {
		return fmt.Errorf("postgres: update order status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const orderSelectCols = `id, broker_order_id, symbol, side, order_type,
	quantity, price, stop_price,
	stop_loss_price, take_profit_price, trailing_offset, reference_price,
	validity, description, status, reason, filled_quantity,
	linked_position_id, linked_opposite_order_id,
	created_at, updated_at`

func scanOrderFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var (
		o                                        domain.Order
		side, orderType, status, validity        string
		brokerID, linkedPosition, linkedOpposite *string
	)

	req := &o.Resolved.Request
	err := scanner.Scan(
		&o.ID, &brokerID, &req.Symbol, &side, &orderType,
		&req.Quantity, &req.Price, &req.StopPrice,
		&o.Resolved.StopLossPrice, &o.Resolved.TakeProfitPrice, &o.Resolved.TrailingOffset, &o.Resolved.ReferencePrice,
		&validity, &req.Description, &status, &o.Reason, &o.FilledQuantity,
		&linkedPosition, &linkedOpposite,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	req.Side = domain.Side(side)
	req.Type = domain.OrderType(orderType)
	req.Validity = domain.Validity(validity)
	o.Status = domain.OrderStatus(status)
	if brokerID != nil {
		o.BrokerOrderID = *brokerID
	}
	if linkedPosition != nil {
		o.LinkedPositionID = *linkedPosition
	}
	if linkedOpposite != nil {
		o.LinkedOppositeOrderID = *linkedOpposite
	}
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetByID retrieves a single order by its local id.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// GetByBrokerID retrieves a single order by the broker-assigned id.
func (s *OrderStore) GetByBrokerID(ctx context.Context, brokerOrderID string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE broker_order_id = $1`, brokerOrderID)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order by broker id %s: %w", brokerOrderID, err)
	}
	return o, nil
}

// List returns orders with pagination and optional time filtering.
func (s *OrderStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders: %w", err)
	}
	return orders, nil
}

// ListOpen returns all orders not in a terminal status.
func (s *OrderStore) ListOpen(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE status IN ('pending', 'submitted', 'accepted', 'partially_filled')
		 ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open orders: %w", err)
	}
	return orders, nil
}

// ListClosing returns the closing orders linked to a position, oldest first.
func (s *OrderStore) ListClosing(ctx context.Context, positionID string) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE linked_position_id = $1
		 ORDER BY created_at ASC`, positionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closing orders for %s: %w", positionID, err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closing orders: %w", err)
	}
	return orders, nil
}

// LinkOpposite records the closing order that neutralised an entry order.
func (s *OrderStore) LinkOpposite(ctx context.Context, orderID, oppositeOrderID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET linked_opposite_order_id = $1, updated_at = NOW() WHERE id = $2`,
		oppositeOrderID, orderID)
	if err != nil {
		return fmt.Errorf("postgres: link opposite order %s: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
