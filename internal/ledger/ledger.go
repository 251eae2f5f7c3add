package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/tradebot/internal/domain"
)

// Ledger is the authoritative in-process view of open exposure: one position
// per symbol plus in-flight order bookkeeping. All mutation goes through
// explicit calls under a single mutex; fill application is all-or-nothing.
type Ledger struct {
	mu        sync.Mutex
	positions map[string]domain.Position
	inflight  map[string]domain.Order // symbol → pending order
	applied   map[string]bool         // order IDs already applied as fills
	realized  float64
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		positions: make(map[string]domain.Position),
		inflight:  make(map[string]domain.Order),
		applied:   make(map[string]bool),
	}
}

// Track registers an in-flight order for its symbol. At most one order may
// be pending per symbol; a second one is rejected, not queued.
func (l *Ledger) Track(order domain.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.inflight[order.Symbol]; ok {
		return fmt.Errorf("ledger.Track: order %s already in flight for %s", existing.ID, order.Symbol)
	}
	l.inflight[order.Symbol] = order
	return nil
}

// InFlight reports whether the symbol has a pending order.
func (l *Ledger) InFlight(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.inflight[symbol]
	return ok
}

// Resolve clears the in-flight slot once the order reaches a terminal state.
func (l *Ledger) Resolve(order domain.Order) {
	if !order.Status.Terminal() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if pending, ok := l.inflight[order.Symbol]; ok && pending.ID == order.ID {
		delete(l.inflight, order.Symbol)
	}
}

// ApplyFill folds a FILLED order into the position book and returns the
// realized PnL of the fill (zero for opens and adds). The ledger is left
// unchanged on any rejection.
func (l *Ledger) ApplyFill(order domain.Order) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if order.Status != domain.StatusFilled {
		return 0, fmt.Errorf("ledger.ApplyFill: order %s is %s, not FILLED", order.ID, order.Status)
	}
	if order.FilledQuantity <= 0 {
		return 0, fmt.Errorf("ledger.ApplyFill: order %s has non-positive filled quantity", order.ID)
	}
	if l.applied[order.ID] {
		return 0, fmt.Errorf("ledger.ApplyFill: order %s already applied", order.ID)
	}

	delta := order.FilledQuantity
	if order.Side == domain.SideSell {
		delta = -delta
	}

	pos, exists := l.positions[order.Symbol]
	fillPrice := order.FilledPrice

	var realized float64
	switch {
	case !exists || pos.Quantity == 0:
		// Opening exposure
		pos = domain.Position{
			Symbol:    order.Symbol,
			Quantity:  delta,
			AvgPrice:  fillPrice,
			EntryTime: order.CreatedAt,
		}
		if pos.EntryTime.IsZero() {
			pos.EntryTime = time.Now()
		}

	case sameSign(pos.Quantity, delta):
		// Adding in the same direction: quantity-weighted average
		oldQty := absInt(pos.Quantity)
		addQty := absInt(delta)
		pos.AvgPrice = (pos.AvgPrice*float64(oldQty) + fillPrice*float64(addQty)) / float64(oldQty+addQty)
		pos.Quantity += delta

	default:
		// Closing against existing exposure. Over-closes are rejected:
		// the orchestrator only ever closes up to the open quantity.
		closeQty := absInt(delta)
		openQty := absInt(pos.Quantity)
		if closeQty > openQty {
			return 0, fmt.Errorf("ledger.ApplyFill: close of %d exceeds open quantity %d for %s",
				closeQty, openQty, order.Symbol)
		}

		if pos.Quantity > 0 {
			realized = (fillPrice - pos.AvgPrice) * float64(closeQty)
		} else {
			realized = (pos.AvgPrice - fillPrice) * float64(closeQty)
		}
		// Partial closes keep the average entry price; only quantity shrinks.
		pos.Quantity += delta
	}

	l.applied[order.ID] = true
	l.realized += realized

	if pos.Quantity == 0 {
		delete(l.positions, order.Symbol)
	} else {
		l.positions[order.Symbol] = pos
	}
	return realized, nil
}

// Position returns the open position for a symbol, if any.
func (l *Ledger) Position(symbol string) (domain.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	return pos, ok
}

// Positions returns a copy of all open positions.
func (l *Ledger) Positions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, pos)
	}
	return out
}

// OpenOrders returns a copy of all in-flight orders.
func (l *Ledger) OpenOrders() []domain.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Order, 0, len(l.inflight))
	for _, order := range l.inflight {
		out = append(out, order)
	}
	return out
}

// RealizedPnL returns the accumulated realized PnL for the session.
func (l *Ledger) RealizedPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.realized
}

// UnrealizedPnL marks every open position against the prices returned by
// the lookup. Symbols without a price contribute zero.
func (l *Ledger) UnrealizedPnL(price func(symbol string) (float64, bool)) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0.0
	for _, pos := range l.positions {
		if mark, ok := price(pos.Symbol); ok {
			total += pos.UnrealizedPnL(mark)
		}
	}
	return total
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func absInt(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
