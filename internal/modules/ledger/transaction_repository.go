// Package ledger records the immutable financial trail: transactions created
// by order fills and append-only audit events.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/domain"
)

// transactionColumns is the list of columns for the transactions table
const transactionColumns = `id, order_id, portfolio_id, instrument_id, type, quantity, price, amount, executed_at`

// TransactionRepository handles transaction database operations.
// Transactions are write-once: created inside the fill transaction, never
// updated or deleted afterward.
type TransactionRepository struct {
	ledgerDB *sql.DB // ledger.db - transactions table
	log      zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(ledgerDB *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "transaction").Logger(),
	}
}

// CreateTx inserts a transaction record inside a fill transaction.
// The UNIQUE constraint on order_id enforces exactly one transaction per
// executed order.
func (r *TransactionRepository) CreateTx(tx *sql.Tx, txn domain.Transaction) error {
	_, err := tx.Exec(
		`INSERT INTO transactions (id, order_id, portfolio_id, instrument_id, type, quantity, price, amount, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.OrderID,
		txn.PortfolioID,
		txn.InstrumentID,
		string(txn.Type),
		txn.Quantity,
		txn.Price,
		txn.Amount,
		txn.ExecutedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetByOrderID retrieves the transaction for an order. Returns (nil, nil)
// when the order has not produced a fill.
func (r *TransactionRepository) GetByOrderID(orderID string) (*domain.Transaction, error) {
	query := "SELECT " + transactionColumns + " FROM transactions WHERE order_id = ?"

	txn, err := scanTransaction(r.ledgerDB.QueryRow(query, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction by order id: %w", err)
	}

	return &txn, nil
}

// GetByPortfolio retrieves transactions for a portfolio, most recent first
func (r *TransactionRepository) GetByPortfolio(portfolioID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT " + transactionColumns + ` FROM transactions
		WHERE portfolio_id = ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?`

	rows, err := r.ledgerDB.Query(query, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (domain.Transaction, error) {
	var txn domain.Transaction
	var txnType string
	var executedAt int64

	if err := row.Scan(
		&txn.ID,
		&txn.OrderID,
		&txn.PortfolioID,
		&txn.InstrumentID,
		&txnType,
		&txn.Quantity,
		&txn.Price,
		&txn.Amount,
		&executedAt,
	); err != nil {
		return domain.Transaction{}, err
	}

	txn.Type = domain.OrderSide(txnType)
	txn.ExecutedAt = time.Unix(executedAt, 0).UTC()
	return txn, nil
}
