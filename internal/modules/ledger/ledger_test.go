package ledger

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steward-fi/steward/internal/domain"
	stewardtesting "github.com/steward-fi/steward/internal/testing"
)

func seedOrder(t *testing.T, db *sql.DB, orderID, portfolioID string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO orders (id, portfolio_id, instrument_id, side, order_type, quantity, status, created_at, idempotency_key)
		 VALUES (?, ?, 'inst-1', 'BUY', 'MARKET', 10, 'PENDING', ?, ?)`,
		orderID, portfolioID, time.Now().Unix(), "key-"+orderID,
	)
	require.NoError(t, err)
}

func TestTransactionRepositoryExactlyOncePerOrder(t *testing.T) {
	db, cleanup := stewardtesting.NewTestDB(t, "ledger")
	defer cleanup()

	stewardtesting.SeedPortfolio(t, db.Conn(), domain.Portfolio{ID: "p1", ClientID: "c1", Cash: 1000})
	seedOrder(t, db.Conn(), "o1", "p1")

	repo := NewTransactionRepository(db.Conn(), zerolog.Nop())

	txn := domain.Transaction{
		ID:           "t1",
		OrderID:      "o1",
		PortfolioID:  "p1",
		InstrumentID: "inst-1",
		Type:         domain.OrderSideBuy,
		Quantity:     10,
		Price:        50,
		Amount:       500,
		ExecutedAt:   time.Now(),
	}

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.CreateTx(tx, txn))
	require.NoError(t, tx.Commit())

	// A second transaction for the same order violates the unique constraint
	txn.ID = "t2"
	tx, err = db.Begin()
	require.NoError(t, err)
	err = repo.CreateTx(tx, txn)
	assert.Error(t, err)
	_ = tx.Rollback()

	got, err := repo.GetByOrderID("o1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, 500.0, got.Amount)
}

func TestTransactionRepositoryGetByPortfolio(t *testing.T) {
	db, cleanup := stewardtesting.NewTestDB(t, "ledger")
	defer cleanup()

	stewardtesting.SeedPortfolio(t, db.Conn(), domain.Portfolio{ID: "p1", ClientID: "c1", Cash: 1000})
	repo := NewTransactionRepository(db.Conn(), zerolog.Nop())

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"o1", "o2", "o3"} {
		seedOrder(t, db.Conn(), id, "p1")
		tx, err := db.Begin()
		require.NoError(t, err)
		require.NoError(t, repo.CreateTx(tx, domain.Transaction{
			ID: "t-" + id, OrderID: id, PortfolioID: "p1", InstrumentID: "inst-1",
			Type: domain.OrderSideBuy, Quantity: 1, Price: 10, Amount: 10,
			ExecutedAt: base.Add(time.Duration(i) * time.Minute),
		}))
		require.NoError(t, tx.Commit())
	}

	transactions, err := repo.GetByPortfolio("p1", 2)
	require.NoError(t, err)
	require.Len(t, transactions, 2)
	// Newest first
	assert.Equal(t, "t-o3", transactions[0].ID)
	assert.Equal(t, "t-o2", transactions[1].ID)

	none, err := repo.GetByPortfolio("other", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAuditRepositoryAppendAndQuery(t *testing.T) {
	db, cleanup := stewardtesting.NewTestDB(t, "ledger")
	defer cleanup()

	repo := NewAuditRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.Append(domain.AuditOrderCreated, "engine", "c1", map[string]interface{}{"order_id": "o1"}))
	require.NoError(t, repo.Append(domain.AuditOrderExecuted, "worker", "c1", map[string]interface{}{"order_id": "o1"}))
	require.NoError(t, repo.Append(domain.AuditRebalanceSuggested, "scheduler", "c2", nil))

	recent, err := repo.GetRecent(10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	// Newest first
	assert.Equal(t, domain.AuditRebalanceSuggested, recent[0].Type)
	assert.Equal(t, "{}", recent[0].Detail)

	byClient, err := repo.GetByClient("c1", 10)
	require.NoError(t, err)
	require.Len(t, byClient, 2)
	assert.Contains(t, byClient[1].Detail, "o1")
}
