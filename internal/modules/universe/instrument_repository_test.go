package universe

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steward-fi/steward/internal/domain"
	stewardtesting "github.com/steward-fi/steward/internal/testing"
)

func newTestInstrumentRepo(t *testing.T) (*InstrumentRepository, func()) {
	t.Helper()
	db, cleanup := stewardtesting.NewTestDB(t, "universe")
	return NewInstrumentRepository(db.Conn(), zerolog.Nop()), cleanup
}

func TestInstrumentRepositoryCreateAndGet(t *testing.T) {
	repo, cleanup := newTestInstrumentRepo(t)
	defer cleanup()

	inst := domain.Instrument{
		ID:           "inst-1",
		Symbol:       "vwce",
		Name:         "Vanguard FTSE All-World",
		AssetClass:   domain.AssetClassEquity,
		CurrentPrice: 105.32,
		RiskRating:   5,
	}
	require.NoError(t, repo.Create(inst))

	got, err := repo.GetByID("inst-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "VWCE", got.Symbol) // symbols are normalized to upper case
	assert.Equal(t, domain.AssetClassEquity, got.AssetClass)
	assert.Equal(t, 105.32, got.CurrentPrice)

	bySymbol, err := repo.GetBySymbol("vwce")
	require.NoError(t, err)
	require.NotNil(t, bySymbol)
	assert.Equal(t, "inst-1", bySymbol.ID)
}

func TestInstrumentRepositoryNotFound(t *testing.T) {
	repo, cleanup := newTestInstrumentRepo(t)
	defer cleanup()

	got, err := repo.GetByID("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInstrumentRepositoryRejectsInvalidInput(t *testing.T) {
	repo, cleanup := newTestInstrumentRepo(t)
	defer cleanup()

	t.Run("invalid asset class", func(t *testing.T) {
		err := repo.Create(domain.Instrument{ID: "x", Symbol: "X", Name: "X", AssetClass: "CRYPTO", CurrentPrice: 1})
		assert.Error(t, err)
	})

	t.Run("negative price", func(t *testing.T) {
		err := repo.Create(domain.Instrument{ID: "y", Symbol: "Y", Name: "Y", AssetClass: domain.AssetClassEquity, CurrentPrice: -1})
		assert.Error(t, err)
	})
}

func TestInstrumentRepositoryUpdatePrice(t *testing.T) {
	repo, cleanup := newTestInstrumentRepo(t)
	defer cleanup()

	require.NoError(t, repo.Create(domain.Instrument{
		ID: "inst-1", Symbol: "AGGH", Name: "Global Aggregate Bond",
		AssetClass: domain.AssetClassFixedIncome, CurrentPrice: 5.10, RiskRating: 2,
	}))

	require.NoError(t, repo.UpdatePrice("inst-1", 5.25))

	got, err := repo.GetByID("inst-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 5.25, got.CurrentPrice)
	assert.NotNil(t, got.LastSynced)

	t.Run("unknown instrument", func(t *testing.T) {
		assert.Error(t, repo.UpdatePrice("missing", 10))
	})

	t.Run("negative price", func(t *testing.T) {
		assert.Error(t, repo.UpdatePrice("inst-1", -0.5))
	})
}

func TestInstrumentRepositoryGetByIDs(t *testing.T) {
	repo, cleanup := newTestInstrumentRepo(t)
	defer cleanup()

	require.NoError(t, repo.Create(domain.Instrument{
		ID: "a", Symbol: "AAA", Name: "A", AssetClass: domain.AssetClassEquity, CurrentPrice: 10,
	}))
	require.NoError(t, repo.Create(domain.Instrument{
		ID: "b", Symbol: "BBB", Name: "B", AssetClass: domain.AssetClassRealEstate, CurrentPrice: 20,
	}))

	got, err := repo.GetByIDs([]string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "AAA", got["a"].Symbol)
	assert.Equal(t, "BBB", got["b"].Symbol)

	empty, err := repo.GetByIDs(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
