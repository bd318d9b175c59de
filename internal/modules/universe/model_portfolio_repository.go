package universe

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/domain"
)

// ModelPortfolioRepository handles model portfolio database operations.
// Models are reference data: seeded at startup, read by the drift service.
type ModelPortfolioRepository struct {
	universeDB *sql.DB // universe.db - model_portfolios table
	log        zerolog.Logger
}

// NewModelPortfolioRepository creates a new model portfolio repository
func NewModelPortfolioRepository(universeDB *sql.DB, log zerolog.Logger) *ModelPortfolioRepository {
	return &ModelPortfolioRepository{
		universeDB: universeDB,
		log:        log.With().Str("repo", "model_portfolio").Logger(),
	}
}

// GetAll returns all model portfolios ordered by risk band
func (r *ModelPortfolioRepository) GetAll() ([]domain.ModelPortfolio, error) {
	query := "SELECT name, description, risk_min, risk_max, targets FROM model_portfolios ORDER BY risk_min"

	rows, err := r.universeDB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query model portfolios: %w", err)
	}
	defer rows.Close()

	var models []domain.ModelPortfolio
	for rows.Next() {
		var model domain.ModelPortfolio
		var targetsJSON string

		if err := rows.Scan(&model.Name, &model.Description, &model.RiskMin, &model.RiskMax, &targetsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan model portfolio: %w", err)
		}

		if err := json.Unmarshal([]byte(targetsJSON), &model.Targets); err != nil {
			return nil, fmt.Errorf("failed to decode targets for model %s: %w", model.Name, err)
		}

		models = append(models, model)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating model portfolios: %w", err)
	}

	return models, nil
}

// Upsert creates or replaces a model portfolio
func (r *ModelPortfolioRepository) Upsert(model domain.ModelPortfolio) error {
	if model.RiskMin > model.RiskMax {
		return fmt.Errorf("failed to upsert model portfolio: inverted risk band [%d, %d]", model.RiskMin, model.RiskMax)
	}

	targetsJSON, err := json.Marshal(model.Targets)
	if err != nil {
		return fmt.Errorf("failed to encode targets for model %s: %w", model.Name, err)
	}

	query := `
		INSERT INTO model_portfolios (name, description, risk_min, risk_max, targets)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			risk_min = excluded.risk_min,
			risk_max = excluded.risk_max,
			targets = excluded.targets
	`

	_, err = r.universeDB.Exec(query, model.Name, model.Description, model.RiskMin, model.RiskMax, string(targetsJSON))
	if err != nil {
		return fmt.Errorf("failed to upsert model portfolio: %w", err)
	}

	return nil
}

// SeedDefaults installs the built-in model portfolios when none exist.
// The three bands partition the 0-10 risk score range with no gaps and no
// overlaps, so exactly one model matches any valid score.
func (r *ModelPortfolioRepository) SeedDefaults() error {
	var count int
	if err := r.universeDB.QueryRow("SELECT COUNT(*) FROM model_portfolios").Scan(&count); err != nil {
		return fmt.Errorf("failed to count model portfolios: %w", err)
	}
	if count > 0 {
		return nil
	}

	defaults := []domain.ModelPortfolio{
		{
			Name:        "Capital Preservation",
			Description: "Income and stability for conservative investors",
			RiskMin:     0,
			RiskMax:     3,
			Targets: map[domain.AssetClass]float64{
				domain.AssetClassFixedIncome: 50,
				domain.AssetClassCash:        25,
				domain.AssetClassEquity:      20,
				domain.AssetClassRealEstate:  5,
			},
		},
		{
			Name:        "Balanced Growth",
			Description: "Growth with a meaningful defensive sleeve",
			RiskMin:     4,
			RiskMax:     6,
			Targets: map[domain.AssetClass]float64{
				domain.AssetClassEquity:      50,
				domain.AssetClassFixedIncome: 30,
				domain.AssetClassCash:        10,
				domain.AssetClassRealEstate:  10,
			},
		},
		{
			Name:        "Aggressive Growth",
			Description: "Maximum long-term growth for high risk tolerance",
			RiskMin:     7,
			RiskMax:     10,
			Targets: map[domain.AssetClass]float64{
				domain.AssetClassEquity:      70,
				domain.AssetClassAlternative: 15,
				domain.AssetClassRealEstate:  10,
				domain.AssetClassCash:        5,
			},
		},
	}

	for _, model := range defaults {
		if err := r.Upsert(model); err != nil {
			return err
		}
	}

	r.log.Info().Int("count", len(defaults)).Msg("Seeded default model portfolios")
	return nil
}
