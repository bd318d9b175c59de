package allocation

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steward-fi/steward/internal/domain"
	stewardtesting "github.com/steward-fi/steward/internal/testing"
)

func TestSnapshotRepositoryRoundTrip(t *testing.T) {
	db, cleanup := stewardtesting.NewTestDB(t, "cache")
	defer cleanup()

	repo := NewSnapshotRepository(db.Conn(), zerolog.Nop())

	snapshot := Snapshot{
		PortfolioID: "p1",
		CapturedAt:  time.Now(),
		TotalValue:  3000,
		Drift:       12.5,
		ModelName:   "Balanced Growth",
		Allocations: []ClassAllocation{
			{AssetClass: domain.AssetClassEquity, Value: 2000, Percentage: 66.67},
			{AssetClass: domain.AssetClassCash, Value: 1000, Percentage: 33.33},
		},
	}
	require.NoError(t, repo.Save(snapshot))

	got, err := repo.GetRecent("p1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].PortfolioID)
	assert.Equal(t, 3000.0, got[0].TotalValue)
	assert.Equal(t, 12.5, got[0].Drift)
	assert.Equal(t, "Balanced Growth", got[0].ModelName)
	require.Len(t, got[0].Allocations, 2)
	assert.Equal(t, domain.AssetClassEquity, got[0].Allocations[0].AssetClass)
}

func TestSnapshotRepositoryOrderingAndLimit(t *testing.T) {
	db, cleanup := stewardtesting.NewTestDB(t, "cache")
	defer cleanup()

	repo := NewSnapshotRepository(db.Conn(), zerolog.Nop())

	base := time.Now().Add(-3 * time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Save(Snapshot{
			PortfolioID: "p1",
			CapturedAt:  base.Add(time.Duration(i) * time.Hour),
			TotalValue:  float64(1000 * (i + 1)),
		}))
	}

	got, err := repo.GetRecent("p1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Newest first
	assert.Equal(t, 3000.0, got[0].TotalValue)
	assert.Equal(t, 2000.0, got[1].TotalValue)
}

func TestSnapshotRepositoryPrune(t *testing.T) {
	db, cleanup := stewardtesting.NewTestDB(t, "cache")
	defer cleanup()

	repo := NewSnapshotRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.Save(Snapshot{PortfolioID: "p1", CapturedAt: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, repo.Save(Snapshot{PortfolioID: "p1", CapturedAt: time.Now()}))

	deleted, err := repo.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := repo.GetRecent("p1", 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
