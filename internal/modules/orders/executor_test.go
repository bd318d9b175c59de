package orders

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steward-fi/steward/internal/domain"
	"github.com/steward-fi/steward/internal/events"
	"github.com/steward-fi/steward/internal/modules/ledger"
	"github.com/steward-fi/steward/internal/modules/portfolio"
	"github.com/steward-fi/steward/internal/modules/universe"
	stewardtesting "github.com/steward-fi/steward/internal/testing"
)

type executorFixture struct {
	*engineFixture
	universeConn *sql.DB
	ledgerConn   *sql.DB
	portfolios   *portfolio.PortfolioRepository
	holdings     *portfolio.HoldingRepository
	transactions *ledger.TransactionRepository
	instruments  *universe.InstrumentRepository
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()

	universeDB, cleanupUniverse := stewardtesting.NewTestDB(t, "universe")
	ledgerDB, cleanupLedger := stewardtesting.NewTestDB(t, "ledger")

	log := zerolog.Nop()

	instruments := universe.NewInstrumentRepository(universeDB.Conn(), log)
	profiles := universe.NewRiskProfileRepository(universeDB.Conn(), log)
	portfolios := portfolio.NewPortfolioRepository(ledgerDB.Conn(), log)
	holdings := portfolio.NewHoldingRepository(ledgerDB.Conn(), log)
	transactions := ledger.NewTransactionRepository(ledgerDB.Conn(), log)
	audit := ledger.NewAuditRepository(ledgerDB.Conn(), log)
	orderRepo := NewOrderRepository(ledgerDB.Conn(), log)
	eventManager := events.NewManager(log)
	queue := &recordingQueue{}

	engine := NewEngine(orderRepo, portfolios, holdings, instruments, profiles, audit, eventManager, queue, 25, log)
	executor := NewExecutor(ledgerDB.Conn(), orderRepo, portfolios, portfolios, holdings, transactions, instruments, audit, eventManager, log)

	stewardtesting.SeedInstrument(t, universeDB.Conn(), domain.Instrument{
		ID: "inst-equity", Symbol: "VWCE", Name: "FTSE All-World", AssetClass: domain.AssetClassEquity, CurrentPrice: 50,
	})
	stewardtesting.SeedRiskProfile(t, universeDB.Conn(), domain.RiskProfile{ClientID: "client-1", Score: 5, Category: "Balanced"})
	stewardtesting.SeedPortfolio(t, ledgerDB.Conn(), domain.Portfolio{ID: "port-1", ClientID: "client-1", Cash: 10000})

	return &executorFixture{
		engineFixture: &engineFixture{
			engine:   engine,
			executor: executor,
			queue:    queue,
			orders:   orderRepo,
			cleanup: func() {
				cleanupLedger()
				cleanupUniverse()
			},
		},
		universeConn: universeDB.Conn(),
		ledgerConn:   ledgerDB.Conn(),
		portfolios:   portfolios,
		holdings:     holdings,
		transactions: transactions,
		instruments:  instruments,
	}
}

func (f *executorFixture) submit(t *testing.T, req SubmitRequest) *domain.Order {
	t.Helper()

	order, err := f.engine.Submit(req)
	require.NoError(t, err)
	return order
}

func TestExecuteBuySettlesLedger(t *testing.T) {
	f := newExecutorFixture(t)
	defer f.cleanup()

	order := f.submit(t, SubmitRequest{
		PortfolioID: "port-1", InstrumentID: "inst-equity",
		Side: domain.OrderSideBuy, OrderType: domain.OrderTypeMarket, Quantity: 10,
	})

	require.NoError(t, f.executor.Execute(order.ID))

	port, err := f.portfolios.GetByID("port-1")
	require.NoError(t, err)
	assert.InDelta(t, 9500, port.Cash, 0.001)

	holding, err := f.holdings.Get("port-1", "inst-equity")
	require.NoError(t, err)
	require.NotNil(t, holding)
	assert.Equal(t, int64(10), holding.Quantity)
	assert.InDelta(t, 50, holding.AverageCost, 0.001)

	txn, err := f.transactions.GetByOrderID(order.ID)
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, domain.OrderSideBuy, txn.Type)
	assert.InDelta(t, 500, txn.Amount, 0.001)

	settled, err := f.orders.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusExecuted, settled.Status)
	require.NotNil(t, settled.ExecutedPrice)
	assert.InDelta(t, 50, *settled.ExecutedPrice, 0.001)
}

func TestExecuteIsIdempotent(t *testing.T) {
	f := newExecutorFixture(t)
	defer f.cleanup()

	order := f.submit(t, SubmitRequest{
		PortfolioID: "port-1", InstrumentID: "inst-equity",
		Side: domain.OrderSideBuy, OrderType: domain.OrderTypeMarket, Quantity: 10,
	})

	require.NoError(t, f.executor.Execute(order.ID))
	require.NoError(t, f.executor.Execute(order.ID))
	require.NoError(t, f.executor.Execute(order.ID))

	// Cash debited exactly once
	port, err := f.portfolios.GetByID("port-1")
	require.NoError(t, err)
	assert.InDelta(t, 9500, port.Cash, 0.001)

	holding, err := f.holdings.Get("port-1", "inst-equity")
	require.NoError(t, err)
	require.NotNil(t, holding)
	assert.Equal(t, int64(10), holding.Quantity)
}

func TestExecuteSellCreditsCashAndRemovesEmptiedPosition(t *testing.T) {
	f := newExecutorFixture(t)
	defer f.cleanup()

	stewardtesting.SeedHolding(t, f.ledgerConn, domain.Holding{
		PortfolioID: "port-1", InstrumentID: "inst-equity", Quantity: 10, AverageCost: 40,
	})

	order := f.submit(t, SubmitRequest{
		PortfolioID: "port-1", InstrumentID: "inst-equity",
		Side: domain.OrderSideSell, OrderType: domain.OrderTypeMarket, Quantity: 10,
	})
	require.NoError(t, f.executor.Execute(order.ID))

	port, err := f.portfolios.GetByID("port-1")
	require.NoError(t, err)
	assert.InDelta(t, 10500, port.Cash, 0.001)

	holding, err := f.holdings.Get("port-1", "inst-equity")
	require.NoError(t, err)
	assert.Nil(t, holding, "fully sold position must be removed")

	txn, err := f.transactions.GetByOrderID(order.ID)
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, domain.OrderSideSell, txn.Type)
}

func TestExecutePartialSellKeepsAverageCost(t *testing.T) {
	f := newExecutorFixture(t)
	defer f.cleanup()

	stewardtesting.SeedHolding(t, f.ledgerConn, domain.Holding{
		PortfolioID: "port-1", InstrumentID: "inst-equity", Quantity: 10, AverageCost: 40,
	})

	order := f.submit(t, SubmitRequest{
		PortfolioID: "port-1", InstrumentID: "inst-equity",
		Side: domain.OrderSideSell, OrderType: domain.OrderTypeMarket, Quantity: 4,
	})
	require.NoError(t, f.executor.Execute(order.ID))

	holding, err := f.holdings.Get("port-1", "inst-equity")
	require.NoError(t, err)
	require.NotNil(t, holding)
	assert.Equal(t, int64(6), holding.Quantity)
	assert.InDelta(t, 40, holding.AverageCost, 0.001, "selling never moves average cost")
}

func TestExecuteBuyBlendsAverageCost(t *testing.T) {
	f := newExecutorFixture(t)
	defer f.cleanup()

	stewardtesting.SeedHolding(t, f.ledgerConn, domain.Holding{
		PortfolioID: "port-1", InstrumentID: "inst-equity", Quantity: 10, AverageCost: 20,
	})

	order := f.submit(t, SubmitRequest{
		PortfolioID: "port-1", InstrumentID: "inst-equity",
		Side: domain.OrderSideBuy, OrderType: domain.OrderTypeMarket, Quantity: 5,
	})
	require.NoError(t, f.executor.Execute(order.ID))

	// (10*20 + 5*50) / 15 = 30
	holding, err := f.holdings.Get("port-1", "inst-equity")
	require.NoError(t, err)
	require.NotNil(t, holding)
	assert.Equal(t, int64(15), holding.Quantity)
	assert.InDelta(t, 30, holding.AverageCost, 0.001)
}

func TestExecuteLimitOrderFillsAtLimitPrice(t *testing.T) {
	f := newExecutorFixture(t)
	defer f.cleanup()

	limit := 45.0
	order := f.submit(t, SubmitRequest{
		PortfolioID: "port-1", InstrumentID: "inst-equity",
		Side: domain.OrderSideBuy, OrderType: domain.OrderTypeLimit, Quantity: 10, LimitPrice: &limit,
	})
	require.NoError(t, f.executor.Execute(order.ID))

	settled, err := f.orders.GetByID(order.ID)
	require.NoError(t, err)
	require.NotNil(t, settled.ExecutedPrice)
	assert.InDelta(t, 45, *settled.ExecutedPrice, 0.001)

	port, err := f.portfolios.GetByID("port-1")
	require.NoError(t, err)
	assert.InDelta(t, 9550, port.Cash, 0.001)
}

func TestExecuteFailsWhenInstrumentDisappears(t *testing.T) {
	f := newExecutorFixture(t)
	defer f.cleanup()

	order := f.submit(t, SubmitRequest{
		PortfolioID: "port-1", InstrumentID: "inst-equity",
		Side: domain.OrderSideBuy, OrderType: domain.OrderTypeMarket, Quantity: 10,
	})

	require.NoError(t, f.instruments.Delete("inst-equity"))
	require.NoError(t, f.executor.Execute(order.ID))

	settled, err := f.orders.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFailed, settled.Status)
	assert.NotEmpty(t, settled.FailureReason)

	// Ledger untouched
	port, err := f.portfolios.GetByID("port-1")
	require.NoError(t, err)
	assert.InDelta(t, 10000, port.Cash, 0.001)

	txn, err := f.transactions.GetByOrderID(order.ID)
	require.NoError(t, err)
	assert.Nil(t, txn)
}

func TestExecuteFailedFillLeavesLedgerUntouched(t *testing.T) {
	f := newExecutorFixture(t)
	defer f.cleanup()

	order := f.submit(t, SubmitRequest{
		PortfolioID: "port-1", InstrumentID: "inst-equity",
		Side: domain.OrderSideBuy, OrderType: domain.OrderTypeMarket, Quantity: 40,
	})

	// The market moves between validation and fill; the purchase no
	// longer fits the available cash and the CHECK constraint aborts the
	// whole fill transaction.
	require.NoError(t, f.instruments.UpdatePrice("inst-equity", 50000))
	require.NoError(t, f.executor.Execute(order.ID))

	settled, err := f.orders.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFailed, settled.Status)

	port, err := f.portfolios.GetByID("port-1")
	require.NoError(t, err)
	assert.InDelta(t, 10000, port.Cash, 0.001)

	holding, err := f.holdings.Get("port-1", "inst-equity")
	require.NoError(t, err)
	assert.Nil(t, holding)
}

func TestExecuteUnknownOrderErrors(t *testing.T) {
	f := newExecutorFixture(t)
	defer f.cleanup()

	assert.Error(t, f.executor.Execute("no-such-order"))
}
