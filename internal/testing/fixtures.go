package testing

import (
	"database/sql"
	"testing"
	"time"

	"github.com/steward-fi/steward/internal/domain"
)

// SeedInstrument inserts an instrument row into a universe test database
func SeedInstrument(t *testing.T, db *sql.DB, inst domain.Instrument) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO instruments (id, symbol, name, asset_class, current_price, risk_rating, last_synced)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.Symbol, inst.Name, string(inst.AssetClass), inst.CurrentPrice, inst.RiskRating, time.Now().Unix(),
	)
	if err != nil {
		t.Fatalf("Failed to seed instrument %s: %v", inst.Symbol, err)
	}
}

// SeedRiskProfile inserts a risk profile row into a universe test database
func SeedRiskProfile(t *testing.T, db *sql.DB, profile domain.RiskProfile) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO risk_profiles (client_id, score, category, last_updated) VALUES (?, ?, ?, ?)`,
		profile.ClientID, profile.Score, profile.Category, time.Now().Unix(),
	)
	if err != nil {
		t.Fatalf("Failed to seed risk profile %s: %v", profile.ClientID, err)
	}
}

// SeedPortfolio inserts a portfolio row into a ledger test database
func SeedPortfolio(t *testing.T, db *sql.DB, portfolio domain.Portfolio) {
	t.Helper()

	now := time.Now().Unix()
	currency := portfolio.BaseCurrency
	if currency == "" {
		currency = "EUR"
	}

	_, err := db.Exec(
		`INSERT INTO portfolios (id, client_id, cash, base_currency, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		portfolio.ID, portfolio.ClientID, portfolio.Cash, currency, now, now,
	)
	if err != nil {
		t.Fatalf("Failed to seed portfolio %s: %v", portfolio.ID, err)
	}
}

// SeedHolding inserts a holding row into a ledger test database
func SeedHolding(t *testing.T, db *sql.DB, holding domain.Holding) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO holdings (portfolio_id, instrument_id, quantity, average_cost, last_updated)
		 VALUES (?, ?, ?, ?, ?)`,
		holding.PortfolioID, holding.InstrumentID, holding.Quantity, holding.AverageCost, time.Now().Unix(),
	)
	if err != nil {
		t.Fatalf("Failed to seed holding %s/%s: %v", holding.PortfolioID, holding.InstrumentID, err)
	}
}
