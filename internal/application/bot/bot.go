// Package bot wires the pipeline together: tick feed → strategy → risk gate
// → broker → ledger. One orchestrator instance runs one session.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/tradebot/internal/domain"
	"github.com/alejandrodnm/tradebot/internal/ledger"
	"github.com/alejandrodnm/tradebot/internal/ports"
	"github.com/alejandrodnm/tradebot/internal/risk"
)

// State is the orchestrator lifecycle state.
type State string

const (
	StateStopped    State = "STOPPED"
	StateConnecting State = "CONNECTING"
	StateRunning    State = "RUNNING"
	StateStopping   State = "STOPPING"
)

// Config is the orchestrator's slice of the app configuration.
type Config struct {
	Symbols         []string
	ReferenceSymbol string // cached for context, never traded
	StatusInterval  time.Duration
}

// Bot drives one trading session. A coarse mutex serializes tick handling,
// the periodic supervision scan, and shutdown: the pipeline is strictly
// one-decision-at-a-time.
type Bot struct {
	cfg      Config
	broker   ports.Broker
	strategy ports.SignalGenerator
	gate     *risk.Manager
	book     *ledger.Ledger
	db       ports.Storage
	notifier ports.Notifier
	log      *slog.Logger

	mu     sync.Mutex
	state  State
	runCtx context.Context

	stopOnce sync.Once
}

// New assembles the orchestrator. All collaborators are required.
func New(
	cfg Config,
	broker ports.Broker,
	strategy ports.SignalGenerator,
	gate *risk.Manager,
	db ports.Storage,
	notifier ports.Notifier,
	log *slog.Logger,
) *Bot {
	return &Bot{
		cfg:      cfg,
		broker:   broker,
		strategy: strategy,
		gate:     gate,
		book:     ledger.New(),
		db:       db,
		notifier: notifier,
		log:      log,
		state:    StateStopped,
	}
}

// State returns the current lifecycle state.
func (b *Bot) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Ledger exposes the session position book, read-only by convention.
func (b *Bot) Ledger() *ledger.Ledger { return b.book }

// Run connects, subscribes and blocks until ctx is cancelled. A connect
// failure aborts the session; the stop path always runs exactly once.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateStopped {
		b.mu.Unlock()
		return fmt.Errorf("bot.Run: already started (state %s)", b.state)
	}
	b.state = StateConnecting
	b.runCtx = ctx
	b.mu.Unlock()

	if err := b.broker.Connect(ctx); err != nil {
		b.mu.Lock()
		b.state = StateStopped
		b.mu.Unlock()
		return fmt.Errorf("bot.Run: connect: %w", err)
	}

	symbols := b.cfg.Symbols
	if b.cfg.ReferenceSymbol != "" {
		symbols = append(append([]string{}, symbols...), b.cfg.ReferenceSymbol)
	}
	if err := b.broker.SubscribeTicks(ctx, symbols, b.onTick); err != nil {
		b.broker.Disconnect()
		b.mu.Lock()
		b.state = StateStopped
		b.mu.Unlock()
		return fmt.Errorf("bot.Run: subscribe: %w", err)
	}

	if err := b.db.LogEvent(ctx, "BOT_START", b.strategy.Name(), "INFO"); err != nil {
		b.log.Warn("failed to persist start event", "error", err)
	}

	b.mu.Lock()
	b.state = StateRunning
	b.mu.Unlock()
	b.log.Info("bot running", "symbols", b.cfg.Symbols, "strategy", b.strategy.Name())

	ticker := time.NewTicker(b.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.Stop()
			return nil
		case <-ticker.C:
			b.supervise()
		}
	}
}

// onTick is the per-tick pipeline. Called from the broker's delivery
// goroutine, one tick at a time.
func (b *Bot) onTick(tick domain.Tick) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateRunning {
		return
	}
	ctx := b.runCtx

	if err := b.db.RecordTick(ctx, tick); err != nil {
		b.log.Warn("tick not recorded", "symbol", tick.Symbol, "error", err)
	}

	// El símbolo de referencia solo alimenta la caché de precios
	if tick.Symbol == b.cfg.ReferenceSymbol {
		return
	}

	signal := b.strategy.Evaluate(tick.Symbol, tick.LTP, tick.Timestamp)
	if signal == domain.SignalNone {
		return
	}

	if b.book.InFlight(tick.Symbol) {
		b.log.Debug("signal dropped: order in flight", "symbol", tick.Symbol, "signal", signal)
		return
	}

	if ok, reason := b.gate.CanTrade(ctx); !ok {
		b.log.Debug("signal blocked", "symbol", tick.Symbol, "signal", signal, "reason", reason)
		return
	}

	switch signal {
	case domain.SignalBuy:
		b.handleBuy(ctx, tick.Symbol, tick.LTP)
	case domain.SignalSell:
		b.handleSell(ctx, tick.Symbol, "SELL signal")
	}
}

// handleBuy opens or rejects a long entry. Caller holds b.mu.
func (b *Bot) handleBuy(ctx context.Context, symbol string, price float64) {
	if pos, ok := b.book.Position(symbol); ok && pos.Long() {
		b.log.Debug("already long, skipping buy", "symbol", symbol)
		return
	}

	balance, err := b.broker.Balance(ctx)
	if err != nil {
		b.log.Error("balance lookup failed", "symbol", symbol, "error", err)
		return
	}

	quantity := b.gate.PositionSize(price, balance.Available)
	if quantity <= 0 {
		b.log.Debug("position size is zero, skipping buy", "symbol", symbol, "price", price)
		return
	}

	if ok, reason := b.gate.ValidateOrder(symbol, domain.SideBuy, quantity, price, b.book.Positions(), balance); !ok {
		b.log.Warn("order rejected by risk gate", "symbol", symbol, "reason", reason)
		return
	}

	b.placeAndApply(ctx, symbol, domain.SideBuy, quantity, "entry")
}

// handleSell closes the full open long. A sell with no position is a no-op.
// Caller holds b.mu.
func (b *Bot) handleSell(ctx context.Context, symbol, reason string) {
	pos, ok := b.book.Position(symbol)
	if !ok || !pos.Long() {
		b.log.Debug("no long position, skipping sell", "symbol", symbol)
		return
	}

	quantity := pos.Quantity
	b.placeAndApply(ctx, symbol, domain.SideSell, quantity, reason)
}

// placeAndApply submits the order and folds an instant fill into the ledger.
// PENDING orders are tracked for reconciliation by the supervision loop.
// Caller holds b.mu.
func (b *Bot) placeAndApply(ctx context.Context, symbol string, side domain.Side, quantity int64, reason string) {
	order, err := b.broker.PlaceOrder(ctx, symbol, side, quantity, domain.OrderMarket, 0)
	if err != nil {
		b.log.Error("order placement failed", "symbol", symbol, "side", side, "error", err)
		if err := b.db.LogEvent(ctx, "ORDER_ERROR", err.Error(), "ERROR"); err != nil {
			b.log.Warn("failed to persist order error", "error", err)
		}
		return
	}

	if err := b.db.RecordOrder(ctx, order, b.strategy.Name()); err != nil {
		b.log.Warn("order not recorded", "order_id", order.ID, "error", err)
	}

	switch {
	case order.Filled():
		b.applyFill(ctx, order, reason)
	case order.Status == domain.StatusPending:
		if err := b.book.Track(order); err != nil {
			b.log.Warn("pending order not tracked", "order_id", order.ID, "error", err)
		}
	default:
		b.log.Warn("order not executed", "order_id", order.ID, "status", order.Status, "reason", reason)
	}
}

// applyFill updates the ledger and trade history for a FILLED order.
// Caller holds b.mu.
func (b *Bot) applyFill(ctx context.Context, order domain.Order, reason string) {
	pos, hadPosition := b.book.Position(order.Symbol)

	// The order is terminal either way: release the in-flight slot first so
	// a fill that cannot be applied never wedges the symbol.
	b.book.Resolve(order)

	realized, err := b.book.ApplyFill(order)
	if err != nil {
		b.log.Error("fill not applied, order released", "order_id", order.ID, "error", err)
		return
	}

	closing := hadPosition && ((order.Side == domain.SideSell && pos.Long()) ||
		(order.Side == domain.SideBuy && pos.Short()))

	if closing {
		pnlPct := 0.0
		if pos.AvgPrice > 0 {
			if pos.Long() {
				pnlPct = (order.FilledPrice - pos.AvgPrice) / pos.AvgPrice * 100
			} else {
				pnlPct = (pos.AvgPrice - order.FilledPrice) / pos.AvgPrice * 100
			}
		}
		if err := b.db.RecordTradeClose(ctx, order.Symbol, order.FilledPrice, realized, pnlPct); err != nil {
			b.log.Warn("trade close not recorded", "symbol", order.Symbol, "error", err)
		}
		b.log.Info("position closed", "symbol", order.Symbol, "quantity", order.FilledQuantity,
			"price", order.FilledPrice, "realized_pnl", realized, "reason", reason)
		return
	}

	trade := domain.Trade{
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.FilledQuantity,
		EntryPrice: order.FilledPrice,
		EntryTime:  order.CreatedAt,
	}
	if err := b.db.RecordTradeOpen(ctx, trade); err != nil {
		b.log.Warn("trade open not recorded", "symbol", order.Symbol, "error", err)
	}
	b.log.Info("position opened", "symbol", order.Symbol, "side", order.Side,
		"quantity", order.FilledQuantity, "price", order.FilledPrice)
}

// supervise runs every status interval: reconcile pending orders, scan exit
// conditions, and emit the status report.
func (b *Bot) supervise() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateRunning {
		return
	}
	ctx := b.runCtx

	b.reconcilePending(ctx)
	b.scanExits(ctx)
	b.reportStatus(ctx)
}

// reconcilePending polls the broker for tracked PENDING orders. Caller holds b.mu.
func (b *Bot) reconcilePending(ctx context.Context) {
	for _, pending := range b.book.OpenOrders() {
		order, err := b.broker.OrderStatus(ctx, pending.ID)
		if err != nil {
			b.log.Warn("order status poll failed", "order_id", pending.ID, "error", err)
			continue
		}
		if !order.Status.Terminal() {
			continue
		}
		if err := b.db.RecordOrder(ctx, order, b.strategy.Name()); err != nil {
			b.log.Warn("order not recorded", "order_id", order.ID, "error", err)
		}
		if order.Filled() {
			b.applyFill(ctx, order, "fill reconciled")
		} else {
			b.book.Resolve(order)
			b.log.Info("pending order resolved without fill", "order_id", order.ID, "status", order.Status)
		}
	}
}

// scanExits closes positions whose stop-loss or take-profit has triggered.
// Caller holds b.mu.
func (b *Bot) scanExits(ctx context.Context) {
	for _, pos := range b.book.Positions() {
		price, ok := b.broker.LivePrice(pos.Symbol)
		if !ok {
			continue
		}
		side := domain.SideBuy
		if pos.Short() {
			side = domain.SideSell
		}
		exit, reason := b.gate.ShouldExit(pos.AvgPrice, price, side)
		if !exit {
			continue
		}
		b.log.Info("exit condition met", "symbol", pos.Symbol, "reason", reason)
		b.closePosition(ctx, pos, reason)
	}
}

// closePosition flattens one position at market. Caller holds b.mu.
func (b *Bot) closePosition(ctx context.Context, pos domain.Position, reason string) {
	side := domain.SideSell
	if pos.Short() {
		side = domain.SideBuy
	}
	quantity := pos.Quantity
	if quantity < 0 {
		quantity = -quantity
	}
	b.placeAndApply(ctx, pos.Symbol, side, quantity, reason)
}

// reportStatus emits the periodic status block. Caller holds b.mu.
func (b *Bot) reportStatus(ctx context.Context) {
	balance, err := b.broker.Balance(ctx)
	if err != nil {
		b.log.Warn("status: balance lookup failed", "error", err)
	}

	unrealized := b.book.UnrealizedPnL(b.broker.LivePrice)
	realized := b.book.RealizedPnL()

	report := domain.StatusReport{
		Time:    time.Now(),
		Balance: balance,
		PnL: domain.PnLSnapshot{
			Realized:   realized,
			Unrealized: unrealized,
			Total:      realized + unrealized,
		},
		Positions: b.book.Positions(),
		Risk:      b.gate.Report(ctx),
	}
	if err := b.notifier.Status(ctx, report); err != nil {
		b.log.Warn("status report failed", "error", err)
	}
}

// Stop shuts the session down: close every open position at the best
// available price, disconnect, and print the final summary. Exactly once;
// later calls are no-ops.
func (b *Bot) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		b.state = StateStopping
		b.log.Info("stopping: flattening open positions", "open", len(b.book.Positions()))

		// El contexto de Run ya puede estar cancelado: el cierre usa uno propio.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		for _, pos := range b.book.Positions() {
			b.closePosition(ctx, pos, "session shutdown")
		}

		b.broker.Disconnect()

		stats, err := b.db.PerformanceStats(ctx, 24*time.Hour)
		if err != nil {
			b.log.Warn("final stats unavailable", "error", err)
		} else if err := b.notifier.Summary(ctx, stats); err != nil {
			b.log.Warn("final summary failed", "error", err)
		}

		if err := b.db.LogEvent(ctx, "BOT_STOP", fmt.Sprintf("realized pnl %.2f", b.book.RealizedPnL()), "INFO"); err != nil {
			b.log.Warn("failed to persist stop event", "error", err)
		}

		b.state = StateStopped
		b.log.Info("bot stopped", "realized_pnl", b.book.RealizedPnL())
	})
}
