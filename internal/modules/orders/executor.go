package orders

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/domain"
	"github.com/steward-fi/steward/internal/events"
)

// CashMutator adjusts portfolio cash inside a fill transaction
type CashMutator interface {
	AdjustCashTx(tx *sql.Tx, portfolioID string, delta float64) error
}

// PositionMutator applies fills to holdings inside a fill transaction
type PositionMutator interface {
	ApplyBuyTx(tx *sql.Tx, portfolioID, instrumentID string, quantity int64, fillPrice float64) error
	ApplySellTx(tx *sql.Tx, portfolioID, instrumentID string, quantity int64) error
}

// TransactionWriter records the fill in the immutable transaction log
type TransactionWriter interface {
	CreateTx(tx *sql.Tx, txn domain.Transaction) error
}

// Executor fills accepted orders. Every ledger mutation of a fill (cash,
// holding, transaction record, order status) happens in one SQL transaction,
// and the status flip re-checks PENDING inside that transaction, so a fill
// either lands exactly once or not at all.
type Executor struct {
	ledgerDB     *sql.DB
	orders       *OrderRepository
	portfolios   PortfolioProvider
	cash         CashMutator
	positions    PositionMutator
	transactions TransactionWriter
	instruments  InstrumentProvider
	audit        AuditSink
	events       *events.Manager

	now func() time.Time
	log zerolog.Logger
}

// NewExecutor creates a fill executor
func NewExecutor(
	ledgerDB *sql.DB,
	orders *OrderRepository,
	portfolios PortfolioProvider,
	cash CashMutator,
	positions PositionMutator,
	transactions TransactionWriter,
	instruments InstrumentProvider,
	audit AuditSink,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Executor {
	return &Executor{
		ledgerDB:     ledgerDB,
		orders:       orders,
		portfolios:   portfolios,
		cash:         cash,
		positions:    positions,
		transactions: transactions,
		instruments:  instruments,
		audit:        audit,
		events:       eventManager,
		now:          time.Now,
		log:          log.With().Str("module", "executor").Logger(),
	}
}

// Execute fills one order by ID. An order that is already terminal is a
// no-op, so re-delivering the same order ID is harmless. A fill that cannot
// complete flips the order to FAILED and leaves the ledger untouched.
func (x *Executor) Execute(orderID string) error {
	order, err := x.orders.GetByID(orderID)
	if err != nil {
		return fmt.Errorf("failed to load order for execution: %w", err)
	}
	if order == nil {
		return fmt.Errorf("order %s does not exist", orderID)
	}
	if order.Status.Terminal() {
		x.log.Debug().Str("order_id", orderID).Str("status", string(order.Status)).Msg("Order already terminal, skipping")
		return nil
	}

	inst, err := x.instruments.GetByID(order.InstrumentID)
	if err != nil {
		return fmt.Errorf("failed to load instrument for fill: %w", err)
	}
	if inst == nil {
		return x.fail(*order, "instrument no longer exists")
	}

	price := EstimatedPrice(*order, *inst)
	if price <= 0 {
		return x.fail(*order, fmt.Sprintf("no usable price for %s", inst.Symbol))
	}

	executed, err := x.fill(*order, price)
	if err != nil {
		// The transaction rolled back; the ledger is untouched. Record
		// the failure on the order itself.
		x.log.Warn().Err(err).Str("order_id", order.ID).Msg("Fill rolled back")
		return x.fail(*order, err.Error())
	}
	if !executed {
		// Lost the PENDING re-check inside the transaction: another
		// attempt already settled this order.
		x.log.Debug().Str("order_id", order.ID).Msg("Order settled by a concurrent attempt")
		return nil
	}

	x.recordExecuted(*order, *inst, price)
	return nil
}

// fill runs the single-transaction ledger mutation. Returns false when the
// order was no longer PENDING at commit time.
func (x *Executor) fill(order domain.Order, price float64) (bool, error) {
	at := x.now().UTC()
	amount := float64(order.Quantity) * price

	tx, err := x.ledgerDB.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin fill transaction: %w", err)
	}
	defer tx.Rollback()

	claimed, err := x.orders.MarkExecutedTx(tx, order.ID, price, at)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	switch order.Side {
	case domain.OrderSideBuy:
		if err := x.cash.AdjustCashTx(tx, order.PortfolioID, -amount); err != nil {
			return false, err
		}
		if err := x.positions.ApplyBuyTx(tx, order.PortfolioID, order.InstrumentID, order.Quantity, price); err != nil {
			return false, err
		}
	case domain.OrderSideSell:
		if err := x.positions.ApplySellTx(tx, order.PortfolioID, order.InstrumentID, order.Quantity); err != nil {
			return false, err
		}
		if err := x.cash.AdjustCashTx(tx, order.PortfolioID, amount); err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("unknown order side %q", order.Side)
	}

	txn := domain.Transaction{
		ID:           uuid.New().String(),
		OrderID:      order.ID,
		PortfolioID:  order.PortfolioID,
		InstrumentID: order.InstrumentID,
		Type:         order.Side,
		Quantity:     order.Quantity,
		Price:        price,
		Amount:       amount,
		ExecutedAt:   at,
	}
	if err := x.transactions.CreateTx(tx, txn); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit fill: %w", err)
	}

	return true, nil
}

// fail flips the order to FAILED outside any ledger transaction
func (x *Executor) fail(order domain.Order, reason string) error {
	flipped, err := x.orders.MarkFailed(order.ID, reason, x.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record order failure: %w", err)
	}
	if !flipped {
		return nil
	}

	detail := map[string]interface{}{
		"order_id":     order.ID,
		"portfolio_id": order.PortfolioID,
		"reason":       reason,
	}
	if err := x.audit.Append(domain.AuditOrderFailed, "engine", x.clientID(order.PortfolioID), detail); err != nil {
		x.log.Warn().Err(err).Str("order_id", order.ID).Msg("Failed to append audit event")
	}
	x.events.Emit(events.OrderFailed, "executor", detail)

	return nil
}

func (x *Executor) recordExecuted(order domain.Order, inst domain.Instrument, price float64) {
	detail := map[string]interface{}{
		"order_id":     order.ID,
		"portfolio_id": order.PortfolioID,
		"symbol":       inst.Symbol,
		"side":         string(order.Side),
		"quantity":     order.Quantity,
		"price":        price,
		"amount":       float64(order.Quantity) * price,
	}
	if err := x.audit.Append(domain.AuditOrderExecuted, "engine", x.clientID(order.PortfolioID), detail); err != nil {
		x.log.Warn().Err(err).Str("order_id", order.ID).Msg("Failed to append audit event")
	}
	x.events.Emit(events.OrderExecuted, "executor", detail)
}

func (x *Executor) clientID(portfolioID string) string {
	p, err := x.portfolios.GetByID(portfolioID)
	if err != nil || p == nil {
		return ""
	}
	return p.ClientID
}
