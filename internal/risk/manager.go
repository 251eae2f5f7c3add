package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alejandrodnm/tradebot/internal/domain"
	"github.com/alejandrodnm/tradebot/internal/ports"
)

const rateWindow = time.Minute

// Config holds every limit the risk gate enforces.
type Config struct {
	MaxPositionSize   float64
	MaxTotalExposure  float64
	MaxDailyLoss      float64
	MaxOrdersPerMin   int
	StopLossPct       float64
	TakeProfitPct     float64
	SizingMethod      string // fixed | risk_parity
	FixedPositionSize float64
	RiskPerTradePct   float64
	MinPrice          float64
	MaxPrice          float64
	HoursStart        string // "09:15"
	HoursEnd          string // "15:30"
}

// Manager is the stateful risk gate: circuit breaker, rate limiter, sizing,
// order validation, and exit-condition evaluation. Every candidate trade
// passes through here before touching the broker.
type Manager struct {
	cfg Config
	db  ports.Storage

	startMin int // trading window, minutes since midnight
	endMin   int

	mu            sync.Mutex
	breakerActive bool
	orderTimes    []time.Time

	now func() time.Time // injectable for tests
}

// New builds the risk gate. The storage dependency is required: daily PnL
// lookups feed the circuit breaker check and their failure blocks trading.
func New(cfg Config, db ports.Storage) (*Manager, error) {
	start, err := time.Parse("15:04", cfg.HoursStart)
	if err != nil {
		return nil, fmt.Errorf("risk.New: parse hours_start %q: %w", cfg.HoursStart, err)
	}
	end, err := time.Parse("15:04", cfg.HoursEnd)
	if err != nil {
		return nil, fmt.Errorf("risk.New: parse hours_end %q: %w", cfg.HoursEnd, err)
	}

	return &Manager{
		cfg:      cfg,
		db:       db,
		startMin: start.Hour()*60 + start.Minute(),
		endMin:   end.Hour()*60 + end.Minute(),
		now:      time.Now,
	}, nil
}

// WithClock replaces the time source. Intended for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// CanTrade runs the master risk check before every signal-driven action.
// Checks run in fixed order; the first failure wins. The rate limiter only
// records a timestamp when every check passes.
func (m *Manager) CanTrade(ctx context.Context) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	// 1. Trading hours and weekday
	if !m.withinTradingHours(now) {
		return false, "outside trading hours"
	}

	// 2. Circuit breaker: one-way latch for the session
	if m.breakerActive {
		return false, "circuit breaker active - daily loss limit exceeded"
	}

	// 3. Daily loss limit. A storage failure blocks trading: without the
	// number the gate cannot prove the session is within limits.
	dailyPnL, err := m.db.DailyRealizedPnL(ctx, now)
	if err != nil {
		slog.Error("risk: daily PnL lookup failed, blocking trades", "err", err)
		return false, "daily PnL unavailable"
	}
	if dailyPnL < -m.cfg.MaxDailyLoss {
		m.breakerActive = true
		msg := fmt.Sprintf("daily loss limit breached: %.2f", dailyPnL)
		slog.Error("risk: CIRCUIT BREAKER TRIPPED", "daily_pnl", dailyPnL, "limit", m.cfg.MaxDailyLoss)
		if err := m.db.LogEvent(ctx, "CIRCUIT_BREAKER", msg, "CRITICAL"); err != nil {
			slog.Warn("risk: failed to persist circuit breaker event", "err", err)
		}
		return false, msg
	}

	// 4. Rate limiter: sliding 60s window over submission timestamps
	cutoff := now.Add(-rateWindow)
	kept := m.orderTimes[:0]
	for _, ts := range m.orderTimes {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	m.orderTimes = kept

	if len(m.orderTimes) >= m.cfg.MaxOrdersPerMin {
		return false, "rate limit exceeded"
	}
	m.orderTimes = append(m.orderTimes, now)

	return true, "all risk checks passed"
}

// ValidateOrder checks a specific order against position and balance limits.
// Expected failures come back as (false, reason), never as errors.
func (m *Manager) ValidateOrder(
	symbol string,
	side domain.Side,
	quantity int64,
	price float64,
	positions []domain.Position,
	balance domain.BalanceSnapshot,
) (bool, string) {
	orderValue := float64(quantity) * price

	if orderValue > m.cfg.MaxPositionSize {
		return false, fmt.Sprintf("order value %.2f exceeds max position size %.2f",
			orderValue, m.cfg.MaxPositionSize)
	}

	totalExposure := 0.0
	for _, pos := range positions {
		totalExposure += pos.Notional()
	}
	if totalExposure+orderValue > m.cfg.MaxTotalExposure {
		return false, fmt.Sprintf("total exposure would exceed limit %.2f", m.cfg.MaxTotalExposure)
	}

	if side == domain.SideBuy && orderValue > balance.Available {
		return false, fmt.Sprintf("insufficient balance (%.2f < %.2f)", balance.Available, orderValue)
	}

	if price < m.cfg.MinPrice || price > m.cfg.MaxPrice {
		return false, fmt.Sprintf("price %.2f failed sanity check", price)
	}

	return true, "order validated"
}

// PositionSize computes the order quantity for an entry at the given price.
// The result is floor-divided to whole units and capped by MaxPositionSize.
func (m *Manager) PositionSize(entryPrice, available float64) int64 {
	if entryPrice <= 0 {
		return 0
	}

	var quantity int64
	switch m.cfg.SizingMethod {
	case "risk_parity":
		// Risk a fixed fraction of capital; the stop-loss distance is the
		// per-unit loss if the stop triggers.
		riskPerTrade := available * m.cfg.RiskPerTradePct
		stopDistance := entryPrice * m.cfg.StopLossPct
		if stopDistance <= 0 {
			return 0
		}
		quantity = int64(riskPerTrade / stopDistance)
	default: // fixed
		quantity = int64(m.cfg.FixedPositionSize / entryPrice)
	}

	maxQty := int64(m.cfg.MaxPositionSize / entryPrice)
	if quantity > maxQty {
		quantity = maxQty
	}
	if quantity < 0 {
		quantity = 0
	}
	return quantity
}

// ShouldExit evaluates stop-loss and take-profit for an open position.
// side is the position direction: BUY for long, SELL for short.
func (m *Manager) ShouldExit(entryPrice, currentPrice float64, side domain.Side) (bool, string) {
	if entryPrice <= 0 {
		return false, "no entry price"
	}

	var pnlPct float64
	if side == domain.SideBuy {
		pnlPct = (currentPrice - entryPrice) / entryPrice * 100
	} else {
		pnlPct = (entryPrice - currentPrice) / entryPrice * 100
	}

	if pnlPct <= -m.cfg.StopLossPct*100 {
		return true, fmt.Sprintf("STOP_LOSS triggered at %.2f%%", pnlPct)
	}
	if pnlPct >= m.cfg.TakeProfitPct*100 {
		return true, fmt.Sprintf("TAKE_PROFIT triggered at %.2f%%", pnlPct)
	}

	return false, "position within risk limits"
}

// ResetDailyLimits clears the circuit breaker. Called explicitly at session
// boundaries, never by a timer inside this component.
func (m *Manager) ResetDailyLimits(ctx context.Context) {
	m.mu.Lock()
	m.breakerActive = false
	m.orderTimes = nil
	m.mu.Unlock()

	if err := m.db.LogEvent(ctx, "RISK_MANAGER", "daily limits reset", "INFO"); err != nil {
		slog.Warn("risk: failed to persist reset event", "err", err)
	}
	slog.Info("risk: daily limits reset")
}

// Report returns the current risk status for the periodic status printout.
func (m *Manager) Report(ctx context.Context) domain.RiskReport {
	m.mu.Lock()
	breaker := m.breakerActive
	cutoff := m.now().Add(-rateWindow)
	recent := 0
	for _, ts := range m.orderTimes {
		if ts.After(cutoff) {
			recent++
		}
	}
	inHours := m.withinTradingHours(m.now())
	m.mu.Unlock()

	dailyPnL, err := m.db.DailyRealizedPnL(ctx, m.now())
	if err != nil {
		dailyPnL = math.NaN()
	}

	return domain.RiskReport{
		CircuitBreakerActive: breaker,
		DailyPnL:             dailyPnL,
		RemainingLossBuffer:  m.cfg.MaxDailyLoss + dailyPnL,
		OrdersLastMinute:     recent,
		TradingAllowed:       inHours && !breaker,
	}
}

// withinTradingHours checks the clock against the configured session window.
// Callers hold m.mu or only read immutable fields.
func (m *Manager) withinTradingHours(now time.Time) bool {
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	minutes := now.Hour()*60 + now.Minute()
	return minutes >= m.startMin && minutes <= m.endMin
}
