package orders

import (
	"fmt"

	"github.com/steward-fi/steward/internal/domain"
)

// EstimatedPrice returns the price used for pre-trade checks: the limit
// price for LIMIT orders, the instrument's current price for MARKET orders.
// The same rule prices the eventual fill, so LIMIT orders carry no slippage
// between validation and execution.
func EstimatedPrice(order domain.Order, inst domain.Instrument) float64 {
	if order.OrderType == domain.OrderTypeLimit && order.LimitPrice != nil {
		return *order.LimitPrice
	}
	return inst.CurrentPrice
}

// SuitabilityResult is the outcome of the client suitability check
type SuitabilityResult struct {
	Suitable      bool   `json:"suitable"`
	ClientScore   int    `json:"client_score"`
	RequiredScore int    `json:"required_score"`
	Reason        string `json:"reason,omitempty"`
}

// CheckSuitability compares the client's risk score against the minimum
// score the instrument's asset class demands. A client with no risk profile
// on file is treated as maximally conservative (score 0).
func CheckSuitability(profile *domain.RiskProfile, inst domain.Instrument) SuitabilityResult {
	score := 0
	if profile != nil {
		score = profile.Score
	}

	required := inst.AssetClass.RequiredRiskScore()
	if score < required {
		return SuitabilityResult{
			Suitable:      false,
			ClientScore:   score,
			RequiredScore: required,
			Reason:        fmt.Sprintf("asset class %s requires risk score >= %d, client has %d", inst.AssetClass, required, score),
		}
	}

	return SuitabilityResult{Suitable: true, ClientScore: score, RequiredScore: required}
}

// CashResult is the outcome of the cash sufficiency check for a BUY
type CashResult struct {
	Sufficient bool    `json:"sufficient"`
	Available  float64 `json:"available"`
	Required   float64 `json:"required"`
}

// CheckCash verifies the portfolio holds enough cash to cover the estimated
// cost of a BUY
func CheckCash(cash, estimatedCost float64) CashResult {
	return CashResult{
		Sufficient: cash >= estimatedCost,
		Available:  cash,
		Required:   estimatedCost,
	}
}

// ConcentrationResult is the outcome of the single-position concentration
// check for a BUY
type ConcentrationResult struct {
	Acceptable          bool    `json:"acceptable"`
	ResultingPercentage float64 `json:"resulting_percentage"`
	Limit               float64 `json:"limit"`
}

// CheckConcentration projects the portfolio past the fill and verifies the
// bought position would not exceed limitPct of total portfolio value. The
// bought instrument is valued at the estimated fill price; every other
// holding at its current price. Cash counts toward the total, net of the
// purchase cost.
func CheckConcentration(
	order domain.Order,
	inst domain.Instrument,
	portfolio domain.Portfolio,
	holdings []domain.Holding,
	prices map[string]domain.Instrument,
	limitPct float64,
) ConcentrationResult {
	price := EstimatedPrice(order, inst)
	cost := float64(order.Quantity) * price

	positionQty := order.Quantity
	total := portfolio.Cash - cost

	for _, h := range holdings {
		if h.InstrumentID == inst.ID {
			positionQty += h.Quantity
			continue
		}
		other, ok := prices[h.InstrumentID]
		if !ok {
			// Unpriceable holdings are excluded from the total, which
			// makes the check strictly more conservative.
			continue
		}
		total += h.MarketValue(other.CurrentPrice)
	}

	positionValue := float64(positionQty) * price
	total += positionValue

	if total <= 0 {
		return ConcentrationResult{Acceptable: false, ResultingPercentage: 100, Limit: limitPct}
	}

	pct := positionValue / total * 100
	return ConcentrationResult{
		Acceptable:          pct <= limitPct,
		ResultingPercentage: pct,
		Limit:               limitPct,
	}
}

// CheckSellQuantity verifies a SELL does not exceed the held quantity.
// Absent or short positions are rejected at submission rather than left to
// fail at execution.
func CheckSellQuantity(holding *domain.Holding, quantity int64) *domain.Rejection {
	if holding == nil {
		return domain.NewRejection(domain.RejectSellExceedsHolding, "no position to sell")
	}
	if quantity > holding.Quantity {
		return domain.NewRejection(domain.RejectSellExceedsHolding,
			"sell quantity %d exceeds held quantity %d", quantity, holding.Quantity)
	}
	return nil
}
