package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/domain"
	"github.com/steward-fi/steward/internal/events"
)

// InstrumentProvider supplies instruments from the universe
type InstrumentProvider interface {
	GetByID(id string) (*domain.Instrument, error)
	GetByIDs(ids []string) (map[string]domain.Instrument, error)
}

// RiskProfileProvider supplies client risk profiles
type RiskProfileProvider interface {
	GetByClient(clientID string) (*domain.RiskProfile, error)
}

// PortfolioProvider supplies portfolios and their positions from the ledger
type PortfolioProvider interface {
	GetByID(id string) (*domain.Portfolio, error)
}

// HoldingProvider supplies current positions
type HoldingProvider interface {
	Get(portfolioID, instrumentID string) (*domain.Holding, error)
	GetByPortfolio(portfolioID string) ([]domain.Holding, error)
}

// AuditSink records append-only audit events
type AuditSink interface {
	Append(eventType, actor, clientID string, detail map[string]interface{}) error
}

// Enqueuer schedules an accepted order for asynchronous execution
type Enqueuer interface {
	Enqueue(orderID string) error
}

// SubmitRequest is an order submission. Nothing is persisted until every
// validation gate passes.
type SubmitRequest struct {
	PortfolioID  string           `json:"portfolio_id"`
	InstrumentID string           `json:"instrument_id"`
	Side         domain.OrderSide `json:"side"`
	OrderType    domain.OrderType `json:"order_type"`
	Quantity     int64            `json:"quantity"`
	LimitPrice   *float64         `json:"limit_price,omitempty"`
}

// Engine validates order submissions and hands accepted orders to the
// execution queue. Rejections are returned as *domain.Rejection; any other
// error is an infrastructure failure.
type Engine struct {
	orders      *OrderRepository
	portfolios  PortfolioProvider
	holdings    HoldingProvider
	instruments InstrumentProvider
	profiles    RiskProfileProvider
	audit       AuditSink
	events      *events.Manager
	queue       Enqueuer

	concentrationLimit float64
	now                func() time.Time
	log                zerolog.Logger
}

// NewEngine creates an order engine
func NewEngine(
	orders *OrderRepository,
	portfolios PortfolioProvider,
	holdings HoldingProvider,
	instruments InstrumentProvider,
	profiles RiskProfileProvider,
	audit AuditSink,
	eventManager *events.Manager,
	queue Enqueuer,
	concentrationLimitPct float64,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		orders:             orders,
		portfolios:         portfolios,
		holdings:           holdings,
		instruments:        instruments,
		profiles:           profiles,
		audit:              audit,
		events:             eventManager,
		queue:              queue,
		concentrationLimit: concentrationLimitPct,
		now:                time.Now,
		log:                log.With().Str("module", "orders").Logger(),
	}
}

// Submit runs the validation pipeline and, on acceptance, persists a PENDING
// order and schedules its fill. The returned order is the persisted record;
// execution happens asynchronously.
func (e *Engine) Submit(req SubmitRequest) (*domain.Order, error) {
	order := domain.Order{
		PortfolioID:  req.PortfolioID,
		InstrumentID: req.InstrumentID,
		Side:         req.Side,
		OrderType:    req.OrderType,
		Quantity:     req.Quantity,
		LimitPrice:   req.LimitPrice,
		Status:       domain.OrderStatusPending,
	}
	if err := order.Validate(); err != nil {
		return nil, domain.NewRejection(domain.RejectInvalidOrder, "%s", err.Error())
	}

	portfolio, err := e.portfolios.GetByID(req.PortfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}
	if portfolio == nil {
		return nil, domain.NewRejection(domain.RejectPortfolioNotFound, "portfolio %s not found", req.PortfolioID)
	}

	inst, err := e.instruments.GetByID(req.InstrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instrument: %w", err)
	}
	if inst == nil {
		return nil, domain.NewRejection(domain.RejectInstrumentNotFound, "instrument %s not found", req.InstrumentID)
	}

	profile, err := e.profiles.GetByClient(portfolio.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load risk profile: %w", err)
	}
	if suit := CheckSuitability(profile, *inst); !suit.Suitable {
		return nil, domain.NewRejection(domain.RejectUnsuitable, "%s", suit.Reason)
	}

	switch order.Side {
	case domain.OrderSideBuy:
		if rej, err := e.checkBuy(order, *inst, *portfolio); err != nil {
			return nil, err
		} else if rej != nil {
			return nil, rej
		}
	case domain.OrderSideSell:
		holding, err := e.holdings.Get(order.PortfolioID, order.InstrumentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load holding: %w", err)
		}
		if rej := CheckSellQuantity(holding, order.Quantity); rej != nil {
			return nil, rej
		}
	}

	order.ID = uuid.New().String()
	order.IdempotencyKey = uuid.New().String()
	order.CreatedAt = e.now().UTC()

	if err := e.orders.Create(order); err != nil {
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}

	e.recordCreated(order, portfolio.ClientID, *inst)

	if err := e.queue.Enqueue(order.ID); err != nil {
		// The order stays PENDING; startup recovery re-enqueues it.
		e.log.Error().Err(err).Str("order_id", order.ID).Msg("Failed to enqueue order for execution")
	}

	return &order, nil
}

func (e *Engine) checkBuy(order domain.Order, inst domain.Instrument, portfolio domain.Portfolio) (*domain.Rejection, error) {
	cost := float64(order.Quantity) * EstimatedPrice(order, inst)

	if cash := CheckCash(portfolio.Cash, cost); !cash.Sufficient {
		return domain.NewRejection(domain.RejectInsufficientCash,
			"order requires %.2f but only %.2f is available", cash.Required, cash.Available), nil
	}

	holdings, err := e.holdings.GetByPortfolio(order.PortfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}

	ids := make([]string, 0, len(holdings))
	for _, h := range holdings {
		ids = append(ids, h.InstrumentID)
	}
	prices, err := e.instruments.GetByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load holding prices: %w", err)
	}

	conc := CheckConcentration(order, inst, portfolio, holdings, prices, e.concentrationLimit)
	if !conc.Acceptable {
		return domain.NewRejection(domain.RejectConcentrationExceeded,
			"position would be %.1f%% of portfolio, limit is %.1f%%", conc.ResultingPercentage, conc.Limit), nil
	}

	return nil, nil
}

func (e *Engine) recordCreated(order domain.Order, clientID string, inst domain.Instrument) {
	detail := map[string]interface{}{
		"order_id":     order.ID,
		"portfolio_id": order.PortfolioID,
		"symbol":       inst.Symbol,
		"side":         string(order.Side),
		"order_type":   string(order.OrderType),
		"quantity":     order.Quantity,
	}
	if order.LimitPrice != nil {
		detail["limit_price"] = *order.LimitPrice
	}

	if err := e.audit.Append(domain.AuditOrderCreated, "engine", clientID, detail); err != nil {
		e.log.Warn().Err(err).Str("order_id", order.ID).Msg("Failed to append audit event")
	}

	e.events.Emit(events.OrderCreated, "orders", detail)
}
