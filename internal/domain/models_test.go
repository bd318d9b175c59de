package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStateMachine(t *testing.T) {
	now := time.Now()

	t.Run("pending order can be executed", func(t *testing.T) {
		order := Order{ID: "o1", Status: OrderStatusPending}
		err := order.MarkExecuted(50.0, now)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusExecuted, order.Status)
		require.NotNil(t, order.ExecutedPrice)
		assert.Equal(t, 50.0, *order.ExecutedPrice)
		assert.NotNil(t, order.ExecutedAt)
	})

	t.Run("pending order can be failed", func(t *testing.T) {
		order := Order{ID: "o1", Status: OrderStatusPending}
		err := order.MarkFailed("Instrument not found", now)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusFailed, order.Status)
		assert.Equal(t, "Instrument not found", order.FailureReason)
	})

	t.Run("executed order is immutable", func(t *testing.T) {
		order := Order{ID: "o1", Status: OrderStatusPending}
		require.NoError(t, order.MarkExecuted(50.0, now))

		assert.Error(t, order.MarkExecuted(60.0, now))
		assert.Error(t, order.MarkFailed("late failure", now))
		assert.Equal(t, 50.0, *order.ExecutedPrice)
	})

	t.Run("failed order is immutable", func(t *testing.T) {
		order := Order{ID: "o1", Status: OrderStatusPending}
		require.NoError(t, order.MarkFailed("gone", now))

		assert.Error(t, order.MarkExecuted(50.0, now))
		assert.Error(t, order.MarkFailed("again", now))
	})

	t.Run("terminal states", func(t *testing.T) {
		assert.False(t, OrderStatusPending.Terminal())
		assert.True(t, OrderStatusExecuted.Terminal())
		assert.True(t, OrderStatusFailed.Terminal())
	})
}

func TestOrderValidate(t *testing.T) {
	limitPrice := 42.0
	base := Order{
		PortfolioID:  "p1",
		InstrumentID: "i1",
		Side:         OrderSideBuy,
		OrderType:    OrderTypeMarket,
		Quantity:     10,
	}

	t.Run("valid market order", func(t *testing.T) {
		order := base
		assert.NoError(t, order.Validate())
	})

	t.Run("valid limit order", func(t *testing.T) {
		order := base
		order.OrderType = OrderTypeLimit
		order.LimitPrice = &limitPrice
		assert.NoError(t, order.Validate())
	})

	t.Run("zero quantity rejected", func(t *testing.T) {
		order := base
		order.Quantity = 0
		assert.Error(t, order.Validate())
	})

	t.Run("negative quantity rejected", func(t *testing.T) {
		order := base
		order.Quantity = -5
		assert.Error(t, order.Validate())
	})

	t.Run("limit order without limit price rejected", func(t *testing.T) {
		order := base
		order.OrderType = OrderTypeLimit
		assert.Error(t, order.Validate())
	})

	t.Run("market order with limit price rejected", func(t *testing.T) {
		order := base
		order.LimitPrice = &limitPrice
		assert.Error(t, order.Validate())
	})

	t.Run("bad side rejected", func(t *testing.T) {
		order := base
		order.Side = OrderSide("SHORT")
		assert.Error(t, order.Validate())
	})
}

func TestBlendAverageCost(t *testing.T) {
	t.Run("weighted average of two buys", func(t *testing.T) {
		holding := Holding{Quantity: 10, AverageCost: 50.0}
		// 10 @ 50 + 5 @ 80 -> (500 + 400) / 15 = 60
		assert.InDelta(t, 60.0, holding.BlendAverageCost(5, 80.0), 1e-9)
	})

	t.Run("commutative for sequential buys", func(t *testing.T) {
		q1, p1 := int64(7), 33.5
		q2, p2 := int64(13), 91.25

		a := Holding{Quantity: q1, AverageCost: p1}
		b := Holding{Quantity: q2, AverageCost: p2}

		assert.InDelta(t, a.BlendAverageCost(q2, p2), b.BlendAverageCost(q1, p1), 1e-9)
	})

	t.Run("matches closed-form", func(t *testing.T) {
		holding := Holding{Quantity: 3, AverageCost: 10.0}
		got := holding.BlendAverageCost(2, 25.0)
		want := (3*10.0 + 2*25.0) / 5.0
		assert.InDelta(t, want, got, 1e-9)
	})
}

func TestRequiredRiskScore(t *testing.T) {
	assert.Equal(t, 0, AssetClassCash.RequiredRiskScore())
	assert.Equal(t, 2, AssetClassFixedIncome.RequiredRiskScore())
	assert.Equal(t, 4, AssetClassEquity.RequiredRiskScore())
	assert.Equal(t, 6, AssetClassRealEstate.RequiredRiskScore())
	assert.Equal(t, 7, AssetClassAlternative.RequiredRiskScore())
	// Unknown classes are maximally risky
	assert.Equal(t, 10, AssetClass("CRYPTO").RequiredRiskScore())
}

func TestModelPortfolioMatches(t *testing.T) {
	model := ModelPortfolio{Name: "Balanced Growth", RiskMin: 4, RiskMax: 6}

	assert.False(t, model.Matches(3))
	assert.True(t, model.Matches(4))
	assert.True(t, model.Matches(5))
	assert.True(t, model.Matches(6))
	assert.False(t, model.Matches(7))
}
