// Package portfolio manages portfolio cash and holdings state. The mutation
// methods that take a *sql.Tx exist so the order fill can change cash, the
// holding, the transaction record, and the order status as one atomic unit.
package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/domain"
)

// portfolioColumns is the list of columns for the portfolios table
const portfolioColumns = `id, client_id, cash, base_currency, created_at, updated_at`

// PortfolioRepository handles portfolio database operations (the cash ledger)
type PortfolioRepository struct {
	ledgerDB *sql.DB // ledger.db - portfolios table
	log      zerolog.Logger
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(ledgerDB *sql.DB, log zerolog.Logger) *PortfolioRepository {
	return &PortfolioRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "portfolio").Logger(),
	}
}

// Create inserts a new portfolio
func (r *PortfolioRepository) Create(p domain.Portfolio) error {
	if p.Cash < 0 {
		return fmt.Errorf("failed to create portfolio: negative cash %.2f", p.Cash)
	}

	currency := p.BaseCurrency
	if currency == "" {
		currency = "EUR"
	}

	now := time.Now().Unix()
	_, err := r.ledgerDB.Exec(
		`INSERT INTO portfolios (id, client_id, cash, base_currency, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.ClientID, p.Cash, currency, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}

	r.log.Info().Str("portfolio_id", p.ID).Str("client_id", p.ClientID).Msg("Portfolio created")
	return nil
}

// GetByID retrieves a portfolio by ID. Returns (nil, nil) when not found.
func (r *PortfolioRepository) GetByID(id string) (*domain.Portfolio, error) {
	query := "SELECT " + portfolioColumns + " FROM portfolios WHERE id = ?"

	p, err := scanPortfolio(r.ledgerDB.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}

	return &p, nil
}

// GetByClient returns all portfolios belonging to a client
func (r *PortfolioRepository) GetByClient(clientID string) ([]domain.Portfolio, error) {
	query := "SELECT " + portfolioColumns + " FROM portfolios WHERE client_id = ? ORDER BY created_at"

	rows, err := r.ledgerDB.Query(query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []domain.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	return portfolios, nil
}

// GetAll returns every portfolio. Used by the drift snapshot job.
func (r *PortfolioRepository) GetAll() ([]domain.Portfolio, error) {
	query := "SELECT " + portfolioColumns + " FROM portfolios ORDER BY created_at"

	rows, err := r.ledgerDB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []domain.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	return portfolios, nil
}

// AdjustCashTx applies a cash delta inside a fill transaction. The CHECK
// constraint on the cash column backstops the sufficiency check: a delta
// that would take cash negative fails the whole transaction.
func (r *PortfolioRepository) AdjustCashTx(tx *sql.Tx, portfolioID string, delta float64) error {
	result, err := tx.Exec(
		"UPDATE portfolios SET cash = cash + ?, updated_at = ? WHERE id = ?",
		delta, time.Now().Unix(), portfolioID,
	)
	if err != nil {
		return fmt.Errorf("failed to adjust cash: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check cash adjustment result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("failed to adjust cash: portfolio %s not found", portfolioID)
	}

	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPortfolio(row scanner) (domain.Portfolio, error) {
	var p domain.Portfolio
	var createdAt, updatedAt int64

	if err := row.Scan(&p.ID, &p.ClientID, &p.Cash, &p.BaseCurrency, &createdAt, &updatedAt); err != nil {
		return domain.Portfolio{}, err
	}

	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return p, nil
}
