// Package orders houses the order engine: submission validation, the
// PENDING order book, and fill execution against the ledger.
package orders

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/domain"
)

// orderColumns is the list of columns for the orders table
const orderColumns = `id, portfolio_id, instrument_id, side, order_type, quantity, limit_price, status, created_at, executed_at, executed_price, failure_reason, idempotency_key`

// OrderRepository handles order database operations. Status transitions are
// guarded at the SQL level: every terminal update carries a
// status = 'PENDING' predicate, so a second attempt affects zero rows.
type OrderRepository struct {
	ledgerDB *sql.DB // ledger.db - orders table
	log      zerolog.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(ledgerDB *sql.DB, log zerolog.Logger) *OrderRepository {
	return &OrderRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "order").Logger(),
	}
}

// Create persists a newly accepted order in PENDING state
func (r *OrderRepository) Create(order domain.Order) error {
	if order.Status != domain.OrderStatusPending {
		return fmt.Errorf("new orders must be PENDING, got %s", order.Status)
	}

	_, err := r.ledgerDB.Exec(
		`INSERT INTO orders (id, portfolio_id, instrument_id, side, order_type, quantity, limit_price, status, created_at, idempotency_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.PortfolioID,
		order.InstrumentID,
		string(order.Side),
		string(order.OrderType),
		order.Quantity,
		order.LimitPrice,
		string(order.Status),
		order.CreatedAt.Unix(),
		order.IdempotencyKey,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

// GetByID retrieves an order by ID. Returns (nil, nil) if not found.
func (r *OrderRepository) GetByID(id string) (*domain.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE id = ?"

	order, err := scanOrder(r.ledgerDB.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return &order, nil
}

// GetByPortfolio retrieves orders for a portfolio, most recent first
func (r *OrderRepository) GetByPortfolio(portfolioID string, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT " + orderColumns + ` FROM orders
		WHERE portfolio_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	rows, err := r.ledgerDB.Query(query, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// GetRecent retrieves the most recent orders across all portfolios,
// optionally filtered by status
func (r *OrderRepository) GetRecent(status string, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT " + orderColumns + ` FROM orders
		ORDER BY created_at DESC, id DESC
		LIMIT ?`
	args := []interface{}{limit}

	if status != "" {
		query = "SELECT " + orderColumns + ` FROM orders
			WHERE status = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?`
		args = []interface{}{status, limit}
	}

	rows, err := r.ledgerDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// GetPending retrieves all PENDING orders, oldest first. Used at startup to
// re-enqueue fills interrupted by a shutdown.
func (r *OrderRepository) GetPending() ([]domain.Order, error) {
	query := "SELECT " + orderColumns + ` FROM orders
		WHERE status = 'PENDING'
		ORDER BY created_at ASC, id ASC`

	rows, err := r.ledgerDB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// MarkExecutedTx flips a PENDING order to EXECUTED inside the fill
// transaction. Returns false when the order was no longer PENDING, which
// makes a duplicate fill attempt a no-op.
func (r *OrderRepository) MarkExecutedTx(tx *sql.Tx, orderID string, price float64, at time.Time) (bool, error) {
	res, err := tx.Exec(
		`UPDATE orders
		 SET status = 'EXECUTED', executed_price = ?, executed_at = ?
		 WHERE id = ? AND status = 'PENDING'`,
		price, at.Unix(), orderID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark order executed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check order update: %w", err)
	}

	return affected == 1, nil
}

// MarkFailed flips a PENDING order to FAILED with a reason. Returns false
// when the order was already terminal.
func (r *OrderRepository) MarkFailed(orderID, reason string, at time.Time) (bool, error) {
	res, err := r.ledgerDB.Exec(
		`UPDATE orders
		 SET status = 'FAILED', failure_reason = ?, executed_at = ?
		 WHERE id = ? AND status = 'PENDING'`,
		reason, at.Unix(), orderID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark order failed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check order update: %w", err)
	}

	return affected == 1, nil
}

func collectOrders(rows *sql.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row scanner) (domain.Order, error) {
	var order domain.Order
	var side, orderType, status string
	var limitPrice, executedPrice sql.NullFloat64
	var createdAt int64
	var executedAt sql.NullInt64
	var failureReason sql.NullString

	if err := row.Scan(
		&order.ID,
		&order.PortfolioID,
		&order.InstrumentID,
		&side,
		&orderType,
		&order.Quantity,
		&limitPrice,
		&status,
		&createdAt,
		&executedAt,
		&executedPrice,
		&failureReason,
		&order.IdempotencyKey,
	); err != nil {
		return domain.Order{}, err
	}

	order.Side = domain.OrderSide(side)
	order.OrderType = domain.OrderType(orderType)
	order.Status = domain.OrderStatus(status)
	order.CreatedAt = time.Unix(createdAt, 0).UTC()
	if limitPrice.Valid {
		order.LimitPrice = &limitPrice.Float64
	}
	if executedAt.Valid {
		at := time.Unix(executedAt.Int64, 0).UTC()
		order.ExecutedAt = &at
	}
	if executedPrice.Valid {
		order.ExecutedPrice = &executedPrice.Float64
	}
	if failureReason.Valid {
		order.FailureReason = failureReason.String
	}

	return order, nil
}
