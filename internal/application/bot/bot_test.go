package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/tradebot/internal/domain"
	"github.com/alejandrodnm/tradebot/internal/ports"
	"github.com/alejandrodnm/tradebot/internal/risk"
)

// tradingTime is a Wednesday inside the default session window.
var tradingTime = time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

// fakeBroker fills MARKET orders instantly at the cached price.
type fakeBroker struct {
	mu        sync.Mutex
	connected bool
	prices    map[string]float64
	handler   ports.TickHandler
	orders    []domain.Order
	available float64
	pending   bool // return PENDING instead of filling
	badFill   bool // resolve pending orders as FILLED with zero quantity
	seq       int
}

func newFakeBroker(available float64) *fakeBroker {
	return &fakeBroker{prices: make(map[string]float64), available: available}
}

func (f *fakeBroker) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeBroker) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeBroker) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeBroker) SubscribeTicks(ctx context.Context, symbols []string, handler ports.TickHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	return nil
}

func (f *fakeBroker) tick(symbol string, price float64) {
	f.mu.Lock()
	f.prices[symbol] = price
	handler := f.handler
	f.mu.Unlock()
	handler(domain.Tick{Symbol: symbol, Timestamp: time.Now(), LTP: price})
}

func (f *fakeBroker) LivePrice(symbol string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[symbol]
	return p, ok
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, symbol string, side domain.Side, quantity int64, orderType domain.OrderType, limitPrice float64) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	order := domain.Order{
		ID:        fmt.Sprintf("FAKE_%d", f.seq),
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Type:      orderType,
		Status:    domain.StatusPending,
		CreatedAt: time.Now(),
	}
	if !f.pending {
		order.Status = domain.StatusFilled
		order.FilledPrice = f.prices[symbol]
		order.FilledQuantity = quantity
	}
	f.orders = append(f.orders, order)
	return order, nil
}

func (f *fakeBroker) placedOrders(side domain.Side) []domain.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Order
	for _, o := range f.orders {
		if o.Side == side {
			out = append(out, o)
		}
	}
	return out
}

func (f *fakeBroker) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return false, nil
}

func (f *fakeBroker) OrderStatus(ctx context.Context, orderID string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.ID == orderID {
			if f.badFill && o.Status == domain.StatusPending {
				o.Status = domain.StatusFilled // FilledQuantity se queda en cero
			}
			return o, nil
		}
	}
	return domain.Order{}, fmt.Errorf("unknown order %s", orderID)
}

func (f *fakeBroker) Positions(ctx context.Context) ([]domain.Position, error) { return nil, nil }

func (f *fakeBroker) Balance(ctx context.Context) (domain.BalanceSnapshot, error) {
	return domain.BalanceSnapshot{Available: f.available, Total: f.available}, nil
}

func (f *fakeBroker) PnL(ctx context.Context) (domain.PnLSnapshot, error) {
	return domain.PnLSnapshot{}, nil
}

// stubStorage counts calls and records closes.
type stubStorage struct {
	mu          sync.Mutex
	tradeOpens  int
	tradeCloses int
	lastPnL     float64
}

func (s *stubStorage) RecordTick(ctx context.Context, tick domain.Tick) error { return nil }
func (s *stubStorage) RecordOrder(ctx context.Context, order domain.Order, strategy string) error {
	return nil
}
func (s *stubStorage) RecordTradeOpen(ctx context.Context, trade domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradeOpens++
	return nil
}
func (s *stubStorage) RecordTradeClose(ctx context.Context, symbol string, exitPrice, pnl, pnlPct float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradeCloses++
	s.lastPnL = pnl
	return nil
}
func (s *stubStorage) LogEvent(ctx context.Context, eventType, message, severity string) error {
	return nil
}
func (s *stubStorage) DailyRealizedPnL(ctx context.Context, date time.Time) (float64, error) {
	return 0, nil
}
func (s *stubStorage) PerformanceStats(ctx context.Context, window time.Duration) (domain.PerformanceStats, error) {
	return domain.PerformanceStats{}, nil
}
func (s *stubStorage) Close() error { return nil }

type stubNotifier struct{}

func (stubNotifier) Status(ctx context.Context, report domain.StatusReport) error    { return nil }
func (stubNotifier) Summary(ctx context.Context, stats domain.PerformanceStats) error { return nil }

// scriptedStrategy returns the queued signals in order, then SignalNone.
type scriptedStrategy struct {
	signals []domain.Signal
	i       int
}

func (s *scriptedStrategy) Name() string { return "Scripted" }
func (s *scriptedStrategy) Evaluate(symbol string, price float64, ts time.Time) domain.Signal {
	if s.i >= len(s.signals) {
		return domain.SignalNone
	}
	sig := s.signals[s.i]
	s.i++
	return sig
}

func riskConfig() risk.Config {
	return risk.Config{
		MaxPositionSize:   50000,
		MaxTotalExposure:  200000,
		MaxDailyLoss:      1000,
		MaxOrdersPerMin:   100,
		StopLossPct:       0.02,
		TakeProfitPct:     0.05,
		SizingMethod:      "fixed",
		FixedPositionSize: 10000,
		RiskPerTradePct:   0.02,
		MinPrice:          1,
		MaxPrice:          100000,
		HoursStart:        "09:15",
		HoursEnd:          "15:30",
	}
}

type fixture struct {
	bot    *Bot
	broker *fakeBroker
	db     *stubStorage
	cancel context.CancelFunc
	done   chan error
}

func startBot(t *testing.T, strategy ports.SignalGenerator, broker *fakeBroker, clock func() time.Time) *fixture {
	t.Helper()

	db := &stubStorage{}
	gate, err := risk.New(riskConfig(), db)
	require.NoError(t, err)
	gate.WithClock(clock)

	b := New(Config{
		Symbols:         []string{"WIPRO", "BAJFINANCE"},
		ReferenceSymbol: "NIFTY50",
		StatusInterval:  50 * time.Millisecond,
	}, broker, strategy, gate, db, stubNotifier{}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return b.State() == StateRunning },
		time.Second, 5*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &fixture{bot: b, broker: broker, db: db, cancel: cancel, done: done}
}

func TestEndToEndRoundTrip(t *testing.T) {
	broker := newFakeBroker(10000)
	strategy := &scriptedStrategy{signals: []domain.Signal{domain.SignalBuy, domain.SignalSell}}
	fix := startBot(t, strategy, broker, func() time.Time { return tradingTime })

	// Entrada: 10000/100 = 100 unidades a 100
	broker.tick("WIPRO", 100)

	pos, ok := fix.bot.Ledger().Position("WIPRO")
	require.True(t, ok)
	assert.Equal(t, int64(100), pos.Quantity)
	assert.Equal(t, 100.0, pos.AvgPrice)

	// Salida a 110: PnL realizado 1000
	broker.tick("WIPRO", 110)

	_, ok = fix.bot.Ledger().Position("WIPRO")
	assert.False(t, ok)
	assert.InDelta(t, 1000.0, fix.bot.Ledger().RealizedPnL(), 0.001)

	fix.db.mu.Lock()
	defer fix.db.mu.Unlock()
	assert.Equal(t, 1, fix.db.tradeOpens)
	assert.Equal(t, 1, fix.db.tradeCloses)
	assert.InDelta(t, 1000.0, fix.db.lastPnL, 0.001)
}

func TestReferenceSymbolNeverTraded(t *testing.T) {
	broker := newFakeBroker(10000)
	strategy := &scriptedStrategy{signals: []domain.Signal{domain.SignalBuy}}
	startBot(t, strategy, broker, func() time.Time { return tradingTime })

	broker.tick("NIFTY50", 22000)

	// El precio se cachea pero la estrategia nunca lo ve
	price, ok := broker.LivePrice("NIFTY50")
	assert.True(t, ok)
	assert.Equal(t, 22000.0, price)
	assert.Empty(t, broker.placedOrders(domain.SideBuy))
}

func TestOutsideHoursBlocksSignals(t *testing.T) {
	broker := newFakeBroker(10000)
	strategy := &scriptedStrategy{signals: []domain.Signal{domain.SignalBuy}}
	saturday := time.Date(2026, 3, 7, 10, 30, 0, 0, time.UTC)
	startBot(t, strategy, broker, func() time.Time { return saturday })

	broker.tick("WIPRO", 100)

	assert.Empty(t, broker.placedOrders(domain.SideBuy))
}

func TestInFlightOrderDropsSignal(t *testing.T) {
	broker := newFakeBroker(10000)
	broker.pending = true
	strategy := &scriptedStrategy{signals: []domain.Signal{domain.SignalBuy, domain.SignalBuy}}
	startBot(t, strategy, broker, func() time.Time { return tradingTime })

	broker.tick("WIPRO", 100)
	broker.tick("WIPRO", 101)

	// La segunda señal se descarta, no se encola
	assert.Len(t, broker.placedOrders(domain.SideBuy), 1)
}

func TestReconcileReleasesUnappliableFill(t *testing.T) {
	broker := newFakeBroker(10000)
	broker.pending = true
	broker.badFill = true
	strategy := &scriptedStrategy{signals: []domain.Signal{domain.SignalBuy, domain.SignalBuy}}
	fix := startBot(t, strategy, broker, func() time.Time { return tradingTime })

	broker.tick("WIPRO", 100)
	require.True(t, fix.bot.Ledger().InFlight("WIPRO"))

	// El poll de supervisión devuelve un fill inválido: la orden se libera
	// en lugar de quedarse en vuelo para siempre
	require.Eventually(t, func() bool { return !fix.bot.Ledger().InFlight("WIPRO") },
		2*time.Second, 10*time.Millisecond)

	// El símbolo vuelve a aceptar señales
	broker.tick("WIPRO", 101)
	assert.Len(t, broker.placedOrders(domain.SideBuy), 2)

	// Y el libro no registró el fill corrupto
	_, open := fix.bot.Ledger().Position("WIPRO")
	assert.False(t, open)
}

func TestSellWithoutPositionIsNoop(t *testing.T) {
	broker := newFakeBroker(10000)
	strategy := &scriptedStrategy{signals: []domain.Signal{domain.SignalSell}}
	startBot(t, strategy, broker, func() time.Time { return tradingTime })

	broker.tick("WIPRO", 100)

	assert.Empty(t, broker.placedOrders(domain.SideSell))
}

func TestShutdownClosesOpenPositionsExactlyOnce(t *testing.T) {
	broker := newFakeBroker(50000)
	strategy := &scriptedStrategy{signals: []domain.Signal{domain.SignalBuy, domain.SignalBuy}}
	fix := startBot(t, strategy, broker, func() time.Time { return tradingTime })

	broker.tick("WIPRO", 100)
	broker.tick("BAJFINANCE", 200)
	require.Len(t, fix.bot.Ledger().Positions(), 2)

	// Stop concurrente con un tick en vuelo
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); fix.bot.Stop() }()
	go func() { defer wg.Done(); fix.bot.Stop() }()
	go func() { defer wg.Done(); broker.tick("WIPRO", 101) }()
	wg.Wait()

	assert.Len(t, broker.placedOrders(domain.SideSell), 2)
	assert.Empty(t, fix.bot.Ledger().Positions())
	assert.Equal(t, StateStopped, fix.bot.State())
	assert.False(t, broker.IsConnected())
}

func TestConnectFailureAborts(t *testing.T) {
	broker := newFakeBroker(10000)
	db := &stubStorage{}
	gate, err := risk.New(riskConfig(), db)
	require.NoError(t, err)

	b := New(Config{Symbols: []string{"WIPRO"}, StatusInterval: time.Second},
		&failingBroker{fakeBroker: broker}, &scriptedStrategy{}, gate, db, stubNotifier{}, slog.Default())

	err = b.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateStopped, b.State())
}

type failingBroker struct{ *fakeBroker }

func (f *failingBroker) Connect(ctx context.Context) error {
	return fmt.Errorf("venue unreachable")
}
