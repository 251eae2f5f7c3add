package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/tradebot/internal/domain"
)

func feed(s interface {
	Evaluate(string, float64, time.Time) domain.Signal
}, prices []float64) domain.Signal {
	last := domain.SignalNone
	ts := time.Now()
	for _, p := range prices {
		last = s.Evaluate("WIPRO", p, ts)
		ts = ts.Add(time.Second)
	}
	return last
}

func TestSMACrossover_NoSignalWithoutHistory(t *testing.T) {
	s := NewSMACrossover(2, 4)
	assert.Equal(t, domain.SignalNone, feed(s, []float64{100, 100, 100}))
}

func TestSMACrossover_BuyOnUpwardCross(t *testing.T) {
	s := NewSMACrossover(2, 4)
	// Flat history, then a sharp rise pushes the fast average over the slow
	prices := []float64{100, 100, 100, 100, 100, 110}
	assert.Equal(t, domain.SignalBuy, feed(s, prices))
}

func TestSMACrossover_SellOnDownwardCross(t *testing.T) {
	s := NewSMACrossover(2, 4)
	prices := []float64{100, 100, 100, 100, 100, 90}
	assert.Equal(t, domain.SignalSell, feed(s, prices))
}

func TestSMACrossover_FlatMarketStaysQuiet(t *testing.T) {
	s := NewSMACrossover(2, 4)
	prices := []float64{100, 100, 100, 100, 100, 100, 100, 100}
	assert.Equal(t, domain.SignalNone, feed(s, prices))
}

func TestSMACrossover_IndependentPerSymbol(t *testing.T) {
	s := NewSMACrossover(2, 4)
	ts := time.Now()
	for _, p := range []float64{100, 100, 100, 100, 100} {
		s.Evaluate("A", p, ts)
	}
	// Symbol B has no history yet: no signal even with a jump
	assert.Equal(t, domain.SignalNone, s.Evaluate("B", 110, ts))
}

func TestMomentum_BuyAboveThreshold(t *testing.T) {
	m := NewMomentum(0.01)
	prices := []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 102}
	assert.Equal(t, domain.SignalBuy, feed(m, prices))
}

func TestMomentum_SellBelowThreshold(t *testing.T) {
	m := NewMomentum(0.01)
	prices := []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 98}
	assert.Equal(t, domain.SignalSell, feed(m, prices))
}

func TestMomentum_QuietInsideBand(t *testing.T) {
	m := NewMomentum(0.01)
	prices := []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100.5}
	assert.Equal(t, domain.SignalNone, feed(m, prices))
}
