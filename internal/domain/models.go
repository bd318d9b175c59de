// Package domain contains the core business entities for the order and
// portfolio engine. The domain layer is pure: no database, HTTP, or logging
// dependencies, so the invariants here are testable in isolation.
package domain

import (
	"fmt"
	"time"
)

// AssetClass categorizes instruments for allocation and suitability purposes
type AssetClass string

const (
	AssetClassEquity      AssetClass = "EQUITY"
	AssetClassFixedIncome AssetClass = "FIXED_INCOME"
	AssetClassCash        AssetClass = "CASH"
	AssetClassAlternative AssetClass = "ALTERNATIVE"
	AssetClassRealEstate  AssetClass = "REAL_ESTATE"
)

// AllAssetClasses lists every valid asset class in display order
var AllAssetClasses = []AssetClass{
	AssetClassEquity,
	AssetClassFixedIncome,
	AssetClassCash,
	AssetClassAlternative,
	AssetClassRealEstate,
}

// RequiredRiskScore returns the minimum client risk score needed to trade
// instruments of this asset class. Cash-like classes are open to everyone;
// alternatives demand the highest tolerance.
func (c AssetClass) RequiredRiskScore() int {
	switch c {
	case AssetClassCash:
		return 0
	case AssetClassFixedIncome:
		return 2
	case AssetClassEquity:
		return 4
	case AssetClassRealEstate:
		return 6
	case AssetClassAlternative:
		return 7
	default:
		// Unknown classes are treated as maximally risky
		return 10
	}
}

// Valid reports whether the asset class is one of the known values
func (c AssetClass) Valid() bool {
	switch c {
	case AssetClassEquity, AssetClassFixedIncome, AssetClassCash, AssetClassAlternative, AssetClassRealEstate:
		return true
	}
	return false
}

// OrderSide represents buy or sell
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Valid reports whether the side is BUY or SELL
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderType represents market or limit order
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Valid reports whether the order type is MARKET or LIMIT
func (t OrderType) Valid() bool {
	return t == OrderTypeMarket || t == OrderTypeLimit
}

// OrderStatus represents the order lifecycle state.
// PENDING is the only non-terminal state; an order transitions exactly once
// to EXECUTED or FAILED and is immutable afterward.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusExecuted OrderStatus = "EXECUTED"
	OrderStatusFailed   OrderStatus = "FAILED"
)

// Terminal reports whether the status permits no further transitions
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusExecuted || s == OrderStatusFailed
}

// Instrument represents a tradable instrument in the universe.
// Immutable except CurrentPrice, which is refreshed by the price sync job.
type Instrument struct {
	ID           string     `json:"id"`
	Symbol       string     `json:"symbol"`
	Name         string     `json:"name"`
	AssetClass   AssetClass `json:"asset_class"`
	CurrentPrice float64    `json:"current_price"`
	RiskRating   int        `json:"risk_rating"`
	LastSynced   *time.Time `json:"last_synced,omitempty"`
}

// RiskProfile is a client's stated risk tolerance. Read-only input to the
// suitability check and the model portfolio selector.
type RiskProfile struct {
	ClientID    string    `json:"client_id"`
	Score       int       `json:"score"` // 0 (most conservative) to 10
	Category    string    `json:"category"`
	LastUpdated time.Time `json:"last_updated"`
}

// Portfolio tracks a client's cash position. Cash is mutated only by order
// fills and must never go negative after a committed operation.
type Portfolio struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id"`
	Cash         float64   `json:"cash"`
	BaseCurrency string    `json:"base_currency"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Holding is a position in one instrument, unique per (portfolio, instrument).
// Quantity is always > 0 for a persisted holding; a fill reducing it to zero
// deletes the row.
type Holding struct {
	PortfolioID  string    `json:"portfolio_id"`
	InstrumentID string    `json:"instrument_id"`
	Quantity     int64     `json:"quantity"`
	AverageCost  float64   `json:"average_cost"`
	LastUpdated  time.Time `json:"last_updated"`
}

// MarketValue returns the holding's value at the given price
func (h Holding) MarketValue(price float64) float64 {
	return float64(h.Quantity) * price
}

// CostBasis returns quantity times average cost
func (h Holding) CostBasis() float64 {
	return float64(h.Quantity) * h.AverageCost
}

// BlendAverageCost returns the quantity-weighted average cost after buying
// addQty shares at fillPrice on top of the existing position. The numerator
// is computed before the division; reordering loses precision.
func (h Holding) BlendAverageCost(addQty int64, fillPrice float64) float64 {
	newQty := h.Quantity + addQty
	if newQty <= 0 {
		return h.AverageCost
	}
	return (float64(h.Quantity)*h.AverageCost + float64(addQty)*fillPrice) / float64(newQty)
}

// Order is a trade request moving through the PENDING -> EXECUTED | FAILED
// state machine. Validation rejections never become orders; only accepted
// submissions are persisted.
type Order struct {
	ID             string      `json:"id"`
	PortfolioID    string      `json:"portfolio_id"`
	InstrumentID   string      `json:"instrument_id"`
	Side           OrderSide   `json:"side"`
	OrderType      OrderType   `json:"order_type"`
	Quantity       int64       `json:"quantity"`
	LimitPrice     *float64    `json:"limit_price,omitempty"`
	Status         OrderStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	ExecutedAt     *time.Time  `json:"executed_at,omitempty"`
	ExecutedPrice  *float64    `json:"executed_price,omitempty"`
	FailureReason  string      `json:"failure_reason,omitempty"`
	IdempotencyKey string      `json:"idempotency_key"`
}

// Validate checks the structural invariants of an order
func (o *Order) Validate() error {
	if o.PortfolioID == "" {
		return fmt.Errorf("order has no portfolio id")
	}
	if o.InstrumentID == "" {
		return fmt.Errorf("order has no instrument id")
	}
	if !o.Side.Valid() {
		return fmt.Errorf("invalid order side: %q", o.Side)
	}
	if !o.OrderType.Valid() {
		return fmt.Errorf("invalid order type: %q", o.OrderType)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("order quantity must be positive, got %d", o.Quantity)
	}
	if o.OrderType == OrderTypeLimit && (o.LimitPrice == nil || *o.LimitPrice <= 0) {
		return fmt.Errorf("limit order requires a positive limit price")
	}
	if o.OrderType == OrderTypeMarket && o.LimitPrice != nil {
		return fmt.Errorf("market order must not carry a limit price")
	}
	return nil
}

// MarkExecuted transitions the order to EXECUTED. Only valid from PENDING.
func (o *Order) MarkExecuted(price float64, at time.Time) error {
	if o.Status != OrderStatusPending {
		return fmt.Errorf("cannot execute order %s in status %s", o.ID, o.Status)
	}
	o.Status = OrderStatusExecuted
	o.ExecutedPrice = &price
	o.ExecutedAt = &at
	return nil
}

// MarkFailed transitions the order to FAILED. Only valid from PENDING.
func (o *Order) MarkFailed(reason string, at time.Time) error {
	if o.Status != OrderStatusPending {
		return fmt.Errorf("cannot fail order %s in status %s", o.ID, o.Status)
	}
	o.Status = OrderStatusFailed
	o.FailureReason = reason
	o.ExecutedAt = &at
	return nil
}

// Transaction is the immutable record of one executed order, created exactly
// once per fill (order_id is unique in the ledger).
type Transaction struct {
	ID           string    `json:"id"`
	OrderID      string    `json:"order_id"`
	PortfolioID  string    `json:"portfolio_id"`
	InstrumentID string    `json:"instrument_id"`
	Type         OrderSide `json:"type"`
	Quantity     int64     `json:"quantity"`
	Price        float64   `json:"price"`
	Amount       float64   `json:"amount"`
	ExecutedAt   time.Time `json:"executed_at"`
}

// ModelPortfolio is a named target allocation associated with a risk band.
// Bands partition the 0-10 score range with no gaps and no overlaps, so
// exactly one model matches any valid score.
type ModelPortfolio struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	RiskMin     int                    `json:"risk_min"`
	RiskMax     int                    `json:"risk_max"`
	Targets     map[AssetClass]float64 `json:"targets"` // percentages summing to 100
}

// Matches reports whether the given risk score falls in this model's band
func (m ModelPortfolio) Matches(score int) bool {
	return score >= m.RiskMin && score <= m.RiskMax
}

// AuditEvent is an append-only log entry. Never mutated or deleted.
type AuditEvent struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Actor     string    `json:"actor"`
	ClientID  string    `json:"client_id,omitempty"`
	Detail    string    `json:"detail"` // free-form JSON payload
	CreatedAt time.Time `json:"created_at"`
}

// Audit event types recorded by the engine
const (
	AuditOrderCreated       = "ORDER_CREATED"
	AuditOrderExecuted      = "ORDER_EXECUTED"
	AuditOrderFailed        = "ORDER_FAILED"
	AuditRebalanceSuggested = "REBALANCE_SUGGESTED"
)
