package paper

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/tradebot/internal/domain"
	"github.com/alejandrodnm/tradebot/internal/ports"
)

// fakeFeed is a minimal data source: connected flag plus a static price map.
type fakeFeed struct {
	connected bool
	prices    map[string]float64
}

func (f *fakeFeed) Connect(ctx context.Context) error { f.connected = true; return nil }
func (f *fakeFeed) Disconnect()                       { f.connected = false }
func (f *fakeFeed) IsConnected() bool                 { return f.connected }
func (f *fakeFeed) SubscribeTicks(ctx context.Context, symbols []string, handler ports.TickHandler) error {
	return nil
}
func (f *fakeFeed) LivePrice(symbol string) (float64, bool) {
	p, ok := f.prices[symbol]
	return p, ok
}
func (f *fakeFeed) PlaceOrder(ctx context.Context, symbol string, side domain.Side, quantity int64, orderType domain.OrderType, limitPrice float64) (domain.Order, error) {
	return domain.Order{}, errors.New("data source does not execute")
}
func (f *fakeFeed) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return false, nil
}
func (f *fakeFeed) OrderStatus(ctx context.Context, orderID string) (domain.Order, error) {
	return domain.Order{}, nil
}
func (f *fakeFeed) Positions(ctx context.Context) ([]domain.Position, error) { return nil, nil }
func (f *fakeFeed) Balance(ctx context.Context) (domain.BalanceSnapshot, error) {
	return domain.BalanceSnapshot{}, nil
}
func (f *fakeFeed) PnL(ctx context.Context) (domain.PnLSnapshot, error) {
	return domain.PnLSnapshot{}, nil
}

func newBroker(t *testing.T, balance float64) (*PaperBroker, *fakeFeed) {
	t.Helper()
	feed := &fakeFeed{prices: map[string]float64{"WIPRO": 100}}
	b := New(feed, balance, slog.Default())
	require.NoError(t, b.Connect(context.Background()))
	return b, feed
}

func TestMarketBuyFillsAtCachedPrice(t *testing.T) {
	b, _ := newBroker(t, 50000)
	ctx := context.Background()

	order, err := b.PlaceOrder(ctx, "WIPRO", domain.SideBuy, 100, domain.OrderMarket, 0)
	require.NoError(t, err)

	assert.True(t, order.Filled())
	assert.Equal(t, 100.0, order.FilledPrice)
	assert.Contains(t, order.ID, "PAPER_")

	bal, err := b.Balance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 40000.0, bal.Available, 0.001)
	assert.InDelta(t, 10000.0, bal.Used, 0.001)

	positions, err := b.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(100), positions[0].Quantity)
}

func TestRoundTripRealizesPnL(t *testing.T) {
	b, feed := newBroker(t, 50000)
	ctx := context.Background()

	_, err := b.PlaceOrder(ctx, "WIPRO", domain.SideBuy, 100, domain.OrderMarket, 0)
	require.NoError(t, err)

	feed.prices["WIPRO"] = 110
	order, err := b.PlaceOrder(ctx, "WIPRO", domain.SideSell, 100, domain.OrderMarket, 0)
	require.NoError(t, err)
	assert.True(t, order.Filled())

	pnl, err := b.PnL(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, pnl.Realized, 0.001)
	assert.Zero(t, pnl.Unrealized)

	positions, err := b.Positions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	bal, err := b.Balance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 51000.0, bal.Available, 0.001)
}

func TestUnrealizedPnLMarksToMarket(t *testing.T) {
	b, feed := newBroker(t, 50000)
	ctx := context.Background()

	_, err := b.PlaceOrder(ctx, "WIPRO", domain.SideBuy, 100, domain.OrderMarket, 0)
	require.NoError(t, err)

	feed.prices["WIPRO"] = 105
	pnl, err := b.PnL(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 500.0, pnl.Unrealized, 0.001)
	assert.Zero(t, pnl.Realized)
}

func TestBuyRejectedOnInsufficientBalance(t *testing.T) {
	b, _ := newBroker(t, 5000)

	order, err := b.PlaceOrder(context.Background(), "WIPRO", domain.SideBuy, 100, domain.OrderMarket, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, order.Status)

	positions, _ := b.Positions(context.Background())
	assert.Empty(t, positions)
}

func TestNoPriceIsExecutionError(t *testing.T) {
	b, _ := newBroker(t, 50000)

	_, err := b.PlaceOrder(context.Background(), "UNKNOWN", domain.SideBuy, 10, domain.OrderMarket, 0)
	require.Error(t, err)

	var execErr *domain.ExecutionError
	assert.ErrorAs(t, err, &execErr)
	assert.ErrorIs(t, err, domain.ErrNoPrice)
}

func TestDisconnectedRejectsOrders(t *testing.T) {
	b, feed := newBroker(t, 50000)
	feed.connected = false

	_, err := b.PlaceOrder(context.Background(), "WIPRO", domain.SideBuy, 10, domain.OrderMarket, 0)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestLimitOrderLifecycle(t *testing.T) {
	b, _ := newBroker(t, 50000)
	ctx := context.Background()

	order, err := b.PlaceOrder(ctx, "WIPRO", domain.SideBuy, 10, domain.OrderLimit, 95)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, order.Status)

	got, err := b.OrderStatus(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)

	ok, err := b.CancelOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second cancel: already terminal
	ok, err = b.CancelOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDisconnectWithZeroBalance(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	feed := &fakeFeed{prices: map[string]float64{}}
	b := New(feed, 0, log)
	require.NoError(t, b.Connect(context.Background()))

	// El resumen de sesión no puede emitir NaN con balance inicial cero
	b.Disconnect()

	out := buf.String()
	assert.NotContains(t, out, "NaN")
	assert.Contains(t, out, "return_pct=0")
}

func TestAveragingUp(t *testing.T) {
	b, feed := newBroker(t, 50000)
	ctx := context.Background()

	_, err := b.PlaceOrder(ctx, "WIPRO", domain.SideBuy, 10, domain.OrderMarket, 0)
	require.NoError(t, err)

	feed.prices["WIPRO"] = 120
	_, err = b.PlaceOrder(ctx, "WIPRO", domain.SideBuy, 10, domain.OrderMarket, 0)
	require.NoError(t, err)

	positions, err := b.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(20), positions[0].Quantity)
	assert.InDelta(t, 110.0, positions[0].AvgPrice, 0.001)
}
