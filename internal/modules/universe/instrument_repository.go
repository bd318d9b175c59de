// Package universe manages the catalog of tradable instruments, client risk
// profiles, and model portfolios.
package universe

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/domain"
)

// instrumentColumns is the list of columns for the instruments table.
// Used to avoid SELECT * which can break when schema changes.
// Column order must match scanInstrument expectations.
const instrumentColumns = `id, symbol, name, asset_class, current_price, risk_rating, last_synced`

// InstrumentRepository handles instrument database operations
type InstrumentRepository struct {
	universeDB *sql.DB // universe.db - instruments table
	log        zerolog.Logger
}

// NewInstrumentRepository creates a new instrument repository
func NewInstrumentRepository(universeDB *sql.DB, log zerolog.Logger) *InstrumentRepository {
	return &InstrumentRepository{
		universeDB: universeDB,
		log:        log.With().Str("repo", "instrument").Logger(),
	}
}

// Create inserts a new instrument
func (r *InstrumentRepository) Create(inst domain.Instrument) error {
	if !inst.AssetClass.Valid() {
		return fmt.Errorf("failed to create instrument: invalid asset class %q", inst.AssetClass)
	}
	if inst.CurrentPrice < 0 {
		return fmt.Errorf("failed to create instrument: negative price %.4f", inst.CurrentPrice)
	}

	query := `
		INSERT INTO instruments (id, symbol, name, asset_class, current_price, risk_rating, last_synced)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var lastSynced interface{}
	if inst.LastSynced != nil {
		lastSynced = inst.LastSynced.Unix()
	}

	_, err := r.universeDB.Exec(query,
		inst.ID,
		strings.ToUpper(strings.TrimSpace(inst.Symbol)),
		inst.Name,
		string(inst.AssetClass),
		inst.CurrentPrice,
		inst.RiskRating,
		lastSynced,
	)
	if err != nil {
		return fmt.Errorf("failed to create instrument: %w", err)
	}

	r.log.Info().
		Str("symbol", inst.Symbol).
		Str("asset_class", string(inst.AssetClass)).
		Msg("Instrument created")

	return nil
}

// GetByID retrieves an instrument by ID. Returns (nil, nil) when not found.
func (r *InstrumentRepository) GetByID(id string) (*domain.Instrument, error) {
	query := "SELECT " + instrumentColumns + " FROM instruments WHERE id = ?"

	inst, err := scanInstrument(r.universeDB.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument by id: %w", err)
	}

	return &inst, nil
}

// GetBySymbol retrieves an instrument by symbol. Returns (nil, nil) when not found.
func (r *InstrumentRepository) GetBySymbol(symbol string) (*domain.Instrument, error) {
	query := "SELECT " + instrumentColumns + " FROM instruments WHERE symbol = ?"

	inst, err := scanInstrument(r.universeDB.QueryRow(query, strings.ToUpper(strings.TrimSpace(symbol))))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument by symbol: %w", err)
	}

	return &inst, nil
}

// GetAll returns all instruments ordered by symbol
func (r *InstrumentRepository) GetAll() ([]domain.Instrument, error) {
	query := "SELECT " + instrumentColumns + " FROM instruments ORDER BY symbol"

	rows, err := r.universeDB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()

	var instruments []domain.Instrument
	for rows.Next() {
		inst, err := scanInstrumentFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		instruments = append(instruments, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instruments: %w", err)
	}

	return instruments, nil
}

// GetByIDs returns the instruments for the given IDs, keyed by ID.
// Missing IDs are simply absent from the result.
func (r *InstrumentRepository) GetByIDs(ids []string) (map[string]domain.Instrument, error) {
	result := make(map[string]domain.Instrument, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	query := "SELECT " + instrumentColumns + " FROM instruments WHERE id IN (" + placeholders + ")"

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.universeDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		inst, err := scanInstrumentFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		result[inst.ID] = inst
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instruments: %w", err)
	}

	return result, nil
}

// UpdatePrice sets the current price of an instrument and stamps last_synced
func (r *InstrumentRepository) UpdatePrice(id string, price float64) error {
	if price < 0 {
		return fmt.Errorf("failed to update price: negative price %.4f", price)
	}

	result, err := r.universeDB.Exec(
		"UPDATE instruments SET current_price = ?, last_synced = ? WHERE id = ?",
		price, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update price: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check price update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("failed to update price: instrument %s not found", id)
	}

	return nil
}

// Delete removes an instrument from the catalog
func (r *InstrumentRepository) Delete(id string) error {
	_, err := r.universeDB.Exec("DELETE FROM instruments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete instrument: %w", err)
	}

	r.log.Info().Str("id", id).Msg("Instrument deleted")
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanInstrument(row scanner) (domain.Instrument, error) {
	var inst domain.Instrument
	var assetClass string
	var lastSynced sql.NullInt64

	if err := row.Scan(
		&inst.ID,
		&inst.Symbol,
		&inst.Name,
		&assetClass,
		&inst.CurrentPrice,
		&inst.RiskRating,
		&lastSynced,
	); err != nil {
		return domain.Instrument{}, err
	}

	inst.AssetClass = domain.AssetClass(assetClass)
	if lastSynced.Valid {
		t := time.Unix(lastSynced.Int64, 0).UTC()
		inst.LastSynced = &t
	}

	return inst, nil
}

func scanInstrumentFromRows(rows *sql.Rows) (domain.Instrument, error) {
	return scanInstrument(rows)
}
