package strategy

import (
	"time"

	"github.com/alejandrodnm/tradebot/internal/domain"
)

const (
	defaultFastPeriod = 5
	defaultSlowPeriod = 15
	historyWindow     = 100
)

// SMACrossover emits BUY when the fast moving average crosses above the slow
// one and SELL on the opposite cross. It keeps its own rolling price history
// per symbol and never touches core state.
type SMACrossover struct {
	fast, slow int
	histories  map[string]*history
}

// NewSMACrossover creates the strategy with the given periods. Non-positive
// periods fall back to the defaults.
func NewSMACrossover(fast, slow int) *SMACrossover {
	if fast <= 0 {
		fast = defaultFastPeriod
	}
	if slow <= fast {
		slow = defaultSlowPeriod
	}
	return &SMACrossover{
		fast:      fast,
		slow:      slow,
		histories: make(map[string]*history),
	}
}

// Name identifies the strategy in logs and persistence.
func (s *SMACrossover) Name() string { return "SMA_Crossover" }

// Evaluate records the price and checks for a crossover. Returns SignalNone
// until enough history has accumulated.
func (s *SMACrossover) Evaluate(symbol string, price float64, _ time.Time) domain.Signal {
	h, ok := s.histories[symbol]
	if !ok {
		h = newHistory(historyWindow)
		s.histories[symbol] = h
	}
	h.push(price)

	if h.len() < s.slow+1 {
		return domain.SignalNone
	}

	fastNow := h.mean(s.fast, 0)
	slowNow := h.mean(s.slow, 0)
	fastPrev := h.mean(s.fast, 1)
	slowPrev := h.mean(s.slow, 1)

	switch {
	case fastPrev <= slowPrev && fastNow > slowNow:
		return domain.SignalBuy
	case fastPrev >= slowPrev && fastNow < slowNow:
		return domain.SignalSell
	default:
		return domain.SignalNone
	}
}
