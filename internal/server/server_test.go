package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steward-fi/steward/internal/database"
	"github.com/steward-fi/steward/internal/domain"
	"github.com/steward-fi/steward/internal/events"
	ledgermod "github.com/steward-fi/steward/internal/modules/ledger"
	"github.com/steward-fi/steward/internal/modules/allocation"
	"github.com/steward-fi/steward/internal/modules/orders"
	portfoliomod "github.com/steward-fi/steward/internal/modules/portfolio"
	"github.com/steward-fi/steward/internal/modules/rebalancing"
	universemod "github.com/steward-fi/steward/internal/modules/universe"
	stewardtesting "github.com/steward-fi/steward/internal/testing"
)

// inlineQueue executes orders synchronously, which makes HTTP tests
// deterministic without a running worker
type inlineQueue struct {
	executor *orders.Executor
}

func (q *inlineQueue) Enqueue(orderID string) error {
	return q.executor.Execute(orderID)
}

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()

	universeDB, cleanupUniverse := stewardtesting.NewTestDB(t, "universe")
	ledgerDB, cleanupLedger := stewardtesting.NewTestDB(t, "ledger")
	cacheDB, cleanupCache := stewardtesting.NewTestDB(t, "cache")

	log := zerolog.Nop()

	instruments := universemod.NewInstrumentRepository(universeDB.Conn(), log)
	profiles := universemod.NewRiskProfileRepository(universeDB.Conn(), log)
	models := universemod.NewModelPortfolioRepository(universeDB.Conn(), log)
	portfolios := portfoliomod.NewPortfolioRepository(ledgerDB.Conn(), log)
	holdings := portfoliomod.NewHoldingRepository(ledgerDB.Conn(), log)
	transactions := ledgermod.NewTransactionRepository(ledgerDB.Conn(), log)
	audit := ledgermod.NewAuditRepository(ledgerDB.Conn(), log)
	orderRepo := orders.NewOrderRepository(ledgerDB.Conn(), log)
	snapshots := allocation.NewSnapshotRepository(cacheDB.Conn(), log)
	eventManager := events.NewManager(log)

	require.NoError(t, models.SeedDefaults())

	executor := orders.NewExecutor(ledgerDB.Conn(), orderRepo, portfolios, portfolios, holdings, transactions, instruments, audit, eventManager, log)
	engine := orders.NewEngine(orderRepo, portfolios, holdings, instruments, profiles, audit, eventManager, &inlineQueue{executor: executor}, 25, log)
	rebalanceService := rebalancing.NewService(portfolios, holdings, instruments, profiles, models, 8.0, log)
	priceSync := universemod.NewPriceSyncService(instruments, nil, eventManager, log)

	stewardtesting.SeedInstrument(t, universeDB.Conn(), domain.Instrument{
		ID: "inst-equity", Symbol: "VWCE", Name: "FTSE All-World", AssetClass: domain.AssetClassEquity, CurrentPrice: 50,
	})
	stewardtesting.SeedRiskProfile(t, universeDB.Conn(), domain.RiskProfile{ClientID: "client-1", Score: 5, Category: "Balanced"})
	stewardtesting.SeedPortfolio(t, ledgerDB.Conn(), domain.Portfolio{ID: "port-1", ClientID: "client-1", Cash: 10000})

	srv := New(Config{
		Log:     log,
		Port:    0,
		DevMode: true,
		Databases: map[string]*database.DB{
			"universe": universeDB,
			"ledger":   ledgerDB,
			"cache":    cacheDB,
		},
		UniverseHandlers:    universemod.NewHandlers(instruments, profiles, models, priceSync, log),
		PortfolioHandlers:   portfoliomod.NewHandlers(portfolios, holdings, log),
		OrderHandlers:       orders.NewHandlers(engine, orderRepo, log),
		RebalancingHandlers: rebalancing.NewHandlers(rebalanceService, snapshots, log),
		LedgerHandlers:      ledgermod.NewHandlers(transactions, audit, log),
		EventStream:         NewEventStreamHandler(log),
	})

	return srv, func() {
		cleanupCache()
		cleanupLedger()
		cleanupUniverse()
	}
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	rec := doJSON(t, srv, http.MethodPost, "/api/orders", map[string]interface{}{
		"portfolio_id":  "port-1",
		"instrument_id": "inst-equity",
		"side":          "BUY",
		"order_type":    "MARKET",
		"quantity":      10,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var order domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	require.NotEmpty(t, order.ID)

	// The inline queue settled the order synchronously
	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/orders/%s", order.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var settled domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settled))
	assert.Equal(t, domain.OrderStatusExecuted, settled.Status)

	// Cash, holdings and transactions reflect the fill
	rec = doJSON(t, srv, http.MethodGet, "/api/portfolios/port-1/holdings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "inst-equity")

	rec = doJSON(t, srv, http.MethodGet, "/api/portfolios/port-1/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), order.ID)

	// The order appears in the recent-orders listing, filterable by status
	rec = doJSON(t, srv, http.MethodGet, "/api/orders?status=EXECUTED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), order.ID)

	rec = doJSON(t, srv, http.MethodGet, "/api/orders?status=FAILED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), order.ID)
}

func TestOrderRejectionStatusCodes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	// Unknown portfolio -> 404
	rec := doJSON(t, srv, http.MethodPost, "/api/orders", map[string]interface{}{
		"portfolio_id":  "port-missing",
		"instrument_id": "inst-equity",
		"side":          "BUY",
		"order_type":    "MARKET",
		"quantity":      1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Insufficient cash -> 422
	rec = doJSON(t, srv, http.MethodPost, "/api/orders", map[string]interface{}{
		"portfolio_id":  "port-1",
		"instrument_id": "inst-equity",
		"side":          "BUY",
		"order_type":    "MARKET",
		"quantity":      1000,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "INSUFFICIENT_CASH")

	// Malformed order -> 400
	rec = doJSON(t, srv, http.MethodPost, "/api/orders", map[string]interface{}{
		"portfolio_id":  "port-1",
		"instrument_id": "inst-equity",
		"side":          "BUY",
		"order_type":    "MARKET",
		"quantity":      0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAllocationAndDriftEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	rec := doJSON(t, srv, http.MethodGet, "/api/portfolios/port-1/allocation", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report rebalancing.AllocationReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.InDelta(t, 10000, report.TotalValue, 0.001)

	rec = doJSON(t, srv, http.MethodGet, "/api/portfolios/port-1/drift", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var drift rebalancing.DriftReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &drift))
	assert.Equal(t, "Balanced Growth", drift.ModelName)

	rec = doJSON(t, srv, http.MethodGet, "/api/portfolios/port-missing/allocation", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInstrumentAndModelEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	rec := doJSON(t, srv, http.MethodGet, "/api/instruments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "VWCE")

	rec = doJSON(t, srv, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Balanced Growth")

	rec = doJSON(t, srv, http.MethodPost, "/api/instruments", map[string]interface{}{
		"symbol":        "aggh",
		"name":          "Global Aggregate Bond",
		"asset_class":   "FIXED_INCOME",
		"current_price": 5.2,
		"risk_rating":   2,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "AGGH", "symbols are stored uppercased")
}

func TestAuditTrailEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	rec := doJSON(t, srv, http.MethodPost, "/api/orders", map[string]interface{}{
		"portfolio_id":  "port-1",
		"instrument_id": "inst-equity",
		"side":          "BUY",
		"order_type":    "MARKET",
		"quantity":      5,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), domain.AuditOrderCreated)
	assert.Contains(t, rec.Body.String(), domain.AuditOrderExecuted)
}
