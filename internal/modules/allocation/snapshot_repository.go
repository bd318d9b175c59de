package allocation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot is a point-in-time capture of a portfolio's allocation, stored
// for the dashboard's history view. Ephemeral cache data.
type Snapshot struct {
	PortfolioID string            `msgpack:"-" json:"portfolio_id"`
	CapturedAt  time.Time         `msgpack:"-" json:"captured_at"`
	TotalValue  float64           `msgpack:"total_value" json:"total_value"`
	Allocations []ClassAllocation `msgpack:"allocations" json:"allocations"`
	Drift       float64           `msgpack:"drift" json:"drift"`
	ModelName   string            `msgpack:"model_name" json:"model_name"`
}

// SnapshotRepository persists allocation snapshots in the cache database,
// msgpack-encoded to keep rows small.
type SnapshotRepository struct {
	cacheDB *sql.DB // cache.db - allocation_snapshots table
	log     zerolog.Logger
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(cacheDB *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		cacheDB: cacheDB,
		log:     log.With().Str("repo", "allocation_snapshot").Logger(),
	}
}

// Save stores a snapshot
func (r *SnapshotRepository) Save(snapshot Snapshot) error {
	payload, err := msgpack.Marshal(&snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	capturedAt := snapshot.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}

	_, err = r.cacheDB.Exec(
		`INSERT INTO allocation_snapshots (portfolio_id, captured_at, payload) VALUES (?, ?, ?)`,
		snapshot.PortfolioID, capturedAt.Unix(), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

// GetRecent returns the most recent snapshots for a portfolio, newest first
func (r *SnapshotRepository) GetRecent(portfolioID string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 30
	}

	rows, err := r.cacheDB.Query(
		`SELECT portfolio_id, captured_at, payload
		 FROM allocation_snapshots
		 WHERE portfolio_id = ?
		 ORDER BY captured_at DESC, id DESC
		 LIMIT ?`,
		portfolioID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var snapshot Snapshot
		var capturedAt int64
		var payload []byte

		if err := rows.Scan(&snapshot.PortfolioID, &capturedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		if err := msgpack.Unmarshal(payload, &snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}

		snapshot.CapturedAt = time.Unix(capturedAt, 0).UTC()
		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// Prune deletes snapshots older than the retention window
func (r *SnapshotRepository) Prune(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).Unix()

	result, err := r.cacheDB.Exec("DELETE FROM allocation_snapshots WHERE captured_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned snapshots: %w", err)
	}

	if deleted > 0 {
		r.log.Info().Int64("deleted", deleted).Msg("Pruned allocation snapshots")
	}

	return deleted, nil
}
