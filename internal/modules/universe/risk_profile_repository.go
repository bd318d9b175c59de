package universe

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/domain"
)

// RiskProfileRepository handles risk profile database operations
type RiskProfileRepository struct {
	universeDB *sql.DB // universe.db - risk_profiles table
	log        zerolog.Logger
}

// NewRiskProfileRepository creates a new risk profile repository
func NewRiskProfileRepository(universeDB *sql.DB, log zerolog.Logger) *RiskProfileRepository {
	return &RiskProfileRepository{
		universeDB: universeDB,
		log:        log.With().Str("repo", "risk_profile").Logger(),
	}
}

// GetByClient retrieves a client's risk profile. Returns (nil, nil) when not found.
func (r *RiskProfileRepository) GetByClient(clientID string) (*domain.RiskProfile, error) {
	query := "SELECT client_id, score, category, last_updated FROM risk_profiles WHERE client_id = ?"

	var profile domain.RiskProfile
	var lastUpdated sql.NullInt64

	err := r.universeDB.QueryRow(query, clientID).Scan(
		&profile.ClientID,
		&profile.Score,
		&profile.Category,
		&lastUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get risk profile: %w", err)
	}

	if lastUpdated.Valid {
		profile.LastUpdated = time.Unix(lastUpdated.Int64, 0).UTC()
	}

	return &profile, nil
}

// Upsert creates or replaces a client's risk profile
func (r *RiskProfileRepository) Upsert(profile domain.RiskProfile) error {
	if profile.Score < 0 || profile.Score > 10 {
		return fmt.Errorf("failed to upsert risk profile: score %d out of range", profile.Score)
	}

	query := `
		INSERT INTO risk_profiles (client_id, score, category, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			score = excluded.score,
			category = excluded.category,
			last_updated = excluded.last_updated
	`

	_, err := r.universeDB.Exec(query,
		profile.ClientID,
		profile.Score,
		profile.Category,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert risk profile: %w", err)
	}

	r.log.Info().
		Str("client_id", profile.ClientID).
		Int("score", profile.Score).
		Msg("Risk profile saved")

	return nil
}
