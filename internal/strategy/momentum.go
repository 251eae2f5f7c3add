package strategy

import (
	"time"

	"github.com/alejandrodnm/tradebot/internal/domain"
)

const momentumLookback = 10

// Momentum signals on the relative price change over a short lookback:
// BUY above +threshold, SELL below -threshold.
type Momentum struct {
	threshold float64
	histories map[string]*history
}

// NewMomentum creates the strategy. threshold is a fraction, e.g. 0.01 = 1%.
func NewMomentum(threshold float64) *Momentum {
	if threshold <= 0 {
		threshold = 0.01
	}
	return &Momentum{
		threshold: threshold,
		histories: make(map[string]*history),
	}
}

// Name identifies the strategy in logs and persistence.
func (m *Momentum) Name() string { return "Momentum" }

// Evaluate records the price and compares it against the lookback price.
func (m *Momentum) Evaluate(symbol string, price float64, _ time.Time) domain.Signal {
	h, ok := m.histories[symbol]
	if !ok {
		h = newHistory(historyWindow)
		m.histories[symbol] = h
	}
	h.push(price)

	if h.len() < momentumLookback {
		return domain.SignalNone
	}

	base := h.prices[h.len()-momentumLookback]
	if base <= 0 {
		return domain.SignalNone
	}
	change := (price - base) / base

	switch {
	case change > m.threshold:
		return domain.SignalBuy
	case change < -m.threshold:
		return domain.SignalSell
	default:
		return domain.SignalNone
	}
}
