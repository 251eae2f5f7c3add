// Package paper implements a simulated broker. It reuses a real data source
// for prices but keeps its own virtual balance and position book, so the
// rest of the bot runs unchanged in either mode.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/tradebot/internal/domain"
	"github.com/alejandrodnm/tradebot/internal/ports"
)

// PaperBroker wraps a data source broker (used only for ticks and prices)
// and simulates execution: MARKET orders fill instantly at the last cached
// price, LIMIT orders stay PENDING until cancelled.
type PaperBroker struct {
	data ports.Broker
	log  *slog.Logger

	mu        sync.Mutex
	available float64
	initial   float64
	realized  float64
	positions map[string]domain.Position
	orders    map[string]domain.Order
}

// New creates a paper broker with the given starting balance.
func New(data ports.Broker, balance float64, log *slog.Logger) *PaperBroker {
	return &PaperBroker{
		data:      data,
		log:       log,
		available: balance,
		initial:   balance,
		positions: make(map[string]domain.Position),
		orders:    make(map[string]domain.Order),
	}
}

// Connect opens the underlying data source session.
func (p *PaperBroker) Connect(ctx context.Context) error {
	if err := p.data.Connect(ctx); err != nil {
		return fmt.Errorf("paper.Connect: data source: %w", err)
	}
	p.log.Info("paper broker connected", "balance", p.initial)
	return nil
}

// Disconnect closes the data source and logs the session summary.
func (p *PaperBroker) Disconnect() {
	p.data.Disconnect()

	p.mu.Lock()
	realized := p.realized
	open := len(p.positions)
	p.mu.Unlock()

	returnPct := 0.0
	if p.initial > 0 {
		returnPct = realized / p.initial * 100
	}
	p.log.Info("paper session closed",
		"realized_pnl", realized,
		"open_positions", open,
		"return_pct", returnPct,
	)
}

// IsConnected reports the data source session state.
func (p *PaperBroker) IsConnected() bool { return p.data.IsConnected() }

// SubscribeTicks delegates to the data source.
func (p *PaperBroker) SubscribeTicks(ctx context.Context, symbols []string, handler ports.TickHandler) error {
	return p.data.SubscribeTicks(ctx, symbols, handler)
}

// LivePrice delegates to the data source cache.
func (p *PaperBroker) LivePrice(symbol string) (float64, bool) {
	return p.data.LivePrice(symbol)
}

// PlaceOrder simulates execution. MARKET fills at the cached price; a missing
// price is a backend fault. LIMIT orders are accepted as PENDING.
func (p *PaperBroker) PlaceOrder(ctx context.Context, symbol string, side domain.Side, quantity int64, orderType domain.OrderType, limitPrice float64) (domain.Order, error) {
	if !p.data.IsConnected() {
		return domain.Order{}, domain.NewExecutionError("place_order", symbol, domain.ErrNotConnected)
	}
	if quantity <= 0 {
		return domain.Order{}, domain.NewExecutionError("place_order", symbol, fmt.Errorf("invalid quantity %d", quantity))
	}

	order := domain.Order{
		ID:         "PAPER_" + uuid.NewString()[:8],
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Type:       orderType,
		LimitPrice: limitPrice,
		Status:     domain.StatusPending,
		CreatedAt:  time.Now(),
	}

	if orderType == domain.OrderLimit {
		p.mu.Lock()
		p.orders[order.ID] = order
		p.mu.Unlock()
		p.log.Debug("limit order accepted", "order_id", order.ID, "symbol", symbol, "limit", limitPrice)
		return order, nil
	}

	price, ok := p.data.LivePrice(symbol)
	if !ok {
		return domain.Order{}, domain.NewExecutionError("place_order", symbol, domain.ErrNoPrice)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if side == domain.SideBuy && price*float64(quantity) > p.available {
		order.Status = domain.StatusRejected
		p.orders[order.ID] = order
		p.log.Warn("paper order rejected: insufficient balance",
			"symbol", symbol, "cost", price*float64(quantity), "available", p.available)
		return order, nil
	}

	order.Status = domain.StatusFilled
	order.FilledPrice = price
	order.FilledQuantity = quantity
	p.orders[order.ID] = order
	p.applyFill(order)

	p.log.Info("paper fill",
		"order_id", order.ID, "symbol", symbol, "side", side,
		"quantity", quantity, "price", price)
	return order, nil
}

// applyFill updates the virtual book. Caller holds the mutex.
func (p *PaperBroker) applyFill(order domain.Order) {
	qty := order.FilledQuantity
	if order.Side == domain.SideSell {
		qty = -qty
	}
	cash := order.FilledPrice * float64(order.FilledQuantity)
	if order.Side == domain.SideBuy {
		p.available -= cash
	} else {
		p.available += cash
	}

	pos, exists := p.positions[order.Symbol]
	if !exists {
		p.positions[order.Symbol] = domain.Position{
			Symbol:    order.Symbol,
			Quantity:  qty,
			AvgPrice:  order.FilledPrice,
			EntryTime: order.CreatedAt,
		}
		return
	}

	if (pos.Quantity > 0) == (qty > 0) {
		// Same direction: weighted average entry
		total := pos.Quantity + qty
		pos.AvgPrice = (pos.AvgPrice*float64(abs64(pos.Quantity)) + order.FilledPrice*float64(abs64(qty))) / float64(abs64(total))
		pos.Quantity = total
		p.positions[order.Symbol] = pos
		return
	}

	// Opposite direction: close (partially) and realize
	closed := abs64(qty)
	if closed > abs64(pos.Quantity) {
		closed = abs64(pos.Quantity)
	}
	if pos.Quantity > 0 {
		p.realized += (order.FilledPrice - pos.AvgPrice) * float64(closed)
	} else {
		p.realized += (pos.AvgPrice - order.FilledPrice) * float64(closed)
	}
	pos.Quantity += qty
	if pos.Quantity == 0 {
		delete(p.positions, order.Symbol)
		return
	}
	if (pos.Quantity > 0) != (pos.Quantity-qty > 0) {
		// Flipped through zero: the remainder opens a fresh position
		pos.AvgPrice = order.FilledPrice
		pos.EntryTime = order.CreatedAt
	}
	p.positions[order.Symbol] = pos
}

// CancelOrder cancels a PENDING order. Terminal orders return false, nil.
func (p *PaperBroker) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return false, fmt.Errorf("paper.CancelOrder: unknown order %s", orderID)
	}
	if order.Status.Terminal() {
		return false, nil
	}
	order.Status = domain.StatusCancelled
	p.orders[orderID] = order
	return true, nil
}

// OrderStatus returns the stored order state.
func (p *PaperBroker) OrderStatus(ctx context.Context, orderID string) (domain.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("paper.OrderStatus: unknown order %s", orderID)
	}
	return order, nil
}

// Positions returns a snapshot of the virtual book.
func (p *PaperBroker) Positions(ctx context.Context) ([]domain.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	return out, nil
}

// Balance returns the virtual balance. Used is the notional tied up in
// open positions.
func (p *PaperBroker) Balance(ctx context.Context) (domain.BalanceSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var used float64
	for _, pos := range p.positions {
		used += pos.Notional()
	}
	return domain.BalanceSnapshot{
		Available: p.available,
		Used:      used,
		Total:     p.available + used,
	}, nil
}

// PnL returns realized plus marked-to-market unrealized profit.
func (p *PaperBroker) PnL(ctx context.Context) (domain.PnLSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var unrealized float64
	for _, pos := range p.positions {
		if price, ok := p.data.LivePrice(pos.Symbol); ok {
			unrealized += pos.UnrealizedPnL(price)
		}
	}
	return domain.PnLSnapshot{
		Realized:   p.realized,
		Unrealized: unrealized,
		Total:      p.realized + unrealized,
	}, nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
