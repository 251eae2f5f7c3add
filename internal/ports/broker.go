package ports

import (
	"context"

	"github.com/alejandrodnm/tradebot/internal/domain"
)

// TickHandler recibe cada tick del feed. Se invoca desde la goroutine de
// entrega del broker, una llamada por tick, en orden de llegada por símbolo.
type TickHandler func(domain.Tick)

// Broker is the execution backend contract. Live and paper variants are
// interchangeable behind this interface; callers never hold a concrete type.
type Broker interface {
	// Connect establishes the session. Idempotent; returns an error on
	// auth/network failure instead of failing silently.
	Connect(ctx context.Context) error

	// Disconnect releases resources. Safe to call when already disconnected.
	Disconnect()

	// IsConnected reports whether the session is alive.
	IsConnected() bool

	// SubscribeTicks registers the push handler for the given symbols.
	// At most one active subscription per symbol set.
	SubscribeTicks(ctx context.Context, symbols []string, handler TickHandler) error

	// LivePrice returns the last cached price for a symbol. Pure cache
	// read — never blocks on network.
	LivePrice(symbol string) (float64, bool)

	// PlaceOrder submits an order. MARKET orders fill immediately in the
	// paper variant; the live variant returns a PENDING order whose fill
	// is reconciled via OrderStatus polling. Backend faults come back as
	// *domain.ExecutionError.
	PlaceOrder(ctx context.Context, symbol string, side domain.Side, quantity int64, orderType domain.OrderType, limitPrice float64) (domain.Order, error)

	// CancelOrder cancels a pending order. Returns false without error if
	// the order is already terminal.
	CancelOrder(ctx context.Context, orderID string) (bool, error)

	// OrderStatus returns the current state of an order.
	OrderStatus(ctx context.Context, orderID string) (domain.Order, error)

	// Positions returns the venue's view of open positions. May diverge
	// from the ledger's view; the ledger is authoritative in-session.
	Positions(ctx context.Context) ([]domain.Position, error)

	// Balance returns a point-in-time balance snapshot.
	Balance(ctx context.Context) (domain.BalanceSnapshot, error)

	// PnL returns realized/unrealized profit for the session.
	PnL(ctx context.Context) (domain.PnLSnapshot, error)
}
