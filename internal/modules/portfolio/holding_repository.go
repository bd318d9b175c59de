package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/domain"
)

// holdingColumns is the list of columns for the holdings table
const holdingColumns = `portfolio_id, instrument_id, quantity, average_cost, last_updated`

// HoldingRepository handles holding database operations (the holdings book)
type HoldingRepository struct {
	ledgerDB *sql.DB // ledger.db - holdings table
	log      zerolog.Logger
}

// NewHoldingRepository creates a new holding repository
func NewHoldingRepository(ledgerDB *sql.DB, log zerolog.Logger) *HoldingRepository {
	return &HoldingRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "holding").Logger(),
	}
}

// Get retrieves one holding. Returns (nil, nil) when the position does not exist.
func (r *HoldingRepository) Get(portfolioID, instrumentID string) (*domain.Holding, error) {
	query := "SELECT " + holdingColumns + " FROM holdings WHERE portfolio_id = ? AND instrument_id = ?"

	h, err := scanHolding(r.ledgerDB.QueryRow(query, portfolioID, instrumentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holding: %w", err)
	}

	return &h, nil
}

// GetByPortfolio returns all holdings of a portfolio
func (r *HoldingRepository) GetByPortfolio(portfolioID string) ([]domain.Holding, error) {
	query := "SELECT " + holdingColumns + " FROM holdings WHERE portfolio_id = ? ORDER BY instrument_id"

	rows, err := r.ledgerDB.Query(query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return holdings, nil
}

// ApplyBuyTx applies a BUY fill to the holdings book inside a fill
// transaction. Creates the holding on first buy; otherwise blends the
// average cost with the quantity-weighted formula.
func (r *HoldingRepository) ApplyBuyTx(tx *sql.Tx, portfolioID, instrumentID string, quantity int64, fillPrice float64) error {
	existing, err := getHoldingTx(tx, portfolioID, instrumentID)
	if err != nil {
		return err
	}

	now := time.Now().Unix()

	if existing == nil {
		_, err := tx.Exec(
			`INSERT INTO holdings (portfolio_id, instrument_id, quantity, average_cost, last_updated)
			 VALUES (?, ?, ?, ?, ?)`,
			portfolioID, instrumentID, quantity, fillPrice, now,
		)
		if err != nil {
			return fmt.Errorf("failed to create holding: %w", err)
		}
		return nil
	}

	newQuantity := existing.Quantity + quantity
	newAverageCost := existing.BlendAverageCost(quantity, fillPrice)

	_, err = tx.Exec(
		`UPDATE holdings SET quantity = ?, average_cost = ?, last_updated = ?
		 WHERE portfolio_id = ? AND instrument_id = ?`,
		newQuantity, newAverageCost, now, portfolioID, instrumentID,
	)
	if err != nil {
		return fmt.Errorf("failed to update holding: %w", err)
	}

	return nil
}

// ApplySellTx applies a SELL fill to the holdings book inside a fill
// transaction. Average cost is unchanged by sells; a sell that empties the
// position deletes the row so no zero-quantity holding ever persists.
// Selling without a position, or more than is held, is a contract violation
// upstream and returns an error rather than corrupting the book.
func (r *HoldingRepository) ApplySellTx(tx *sql.Tx, portfolioID, instrumentID string, quantity int64) error {
	existing, err := getHoldingTx(tx, portfolioID, instrumentID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("no holding for instrument %s in portfolio %s", instrumentID, portfolioID)
	}
	if quantity > existing.Quantity {
		return fmt.Errorf("sell quantity %d exceeds held quantity %d", quantity, existing.Quantity)
	}

	newQuantity := existing.Quantity - quantity

	if newQuantity <= 0 {
		_, err := tx.Exec(
			"DELETE FROM holdings WHERE portfolio_id = ? AND instrument_id = ?",
			portfolioID, instrumentID,
		)
		if err != nil {
			return fmt.Errorf("failed to delete emptied holding: %w", err)
		}
		return nil
	}

	_, err = tx.Exec(
		`UPDATE holdings SET quantity = ?, last_updated = ?
		 WHERE portfolio_id = ? AND instrument_id = ?`,
		newQuantity, time.Now().Unix(), portfolioID, instrumentID,
	)
	if err != nil {
		return fmt.Errorf("failed to update holding: %w", err)
	}

	return nil
}

// getHoldingTx reads a holding within a transaction
func getHoldingTx(tx *sql.Tx, portfolioID, instrumentID string) (*domain.Holding, error) {
	query := "SELECT " + holdingColumns + " FROM holdings WHERE portfolio_id = ? AND instrument_id = ?"

	h, err := scanHolding(tx.QueryRow(query, portfolioID, instrumentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holding in tx: %w", err)
	}

	return &h, nil
}

func scanHolding(row scanner) (domain.Holding, error) {
	var h domain.Holding
	var lastUpdated int64

	if err := row.Scan(&h.PortfolioID, &h.InstrumentID, &h.Quantity, &h.AverageCost, &lastUpdated); err != nil {
		return domain.Holding{}, err
	}

	h.LastUpdated = time.Unix(lastUpdated, 0).UTC()
	return h, nil
}
