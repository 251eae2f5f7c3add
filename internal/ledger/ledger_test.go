package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/tradebot/internal/domain"
)

func fill(id, symbol string, side domain.Side, qty int64, price float64) domain.Order {
	return domain.Order{
		ID:             id,
		Symbol:         symbol,
		Side:           side,
		Quantity:       qty,
		Type:           domain.OrderMarket,
		Status:         domain.StatusFilled,
		FilledPrice:    price,
		FilledQuantity: qty,
		CreatedAt:      time.Now(),
	}
}

func TestApplyFill_OpensPosition(t *testing.T) {
	l := New()
	realized, err := l.ApplyFill(fill("o1", "BAJFINANCE", domain.SideBuy, 10, 100))
	require.NoError(t, err)
	assert.Zero(t, realized)

	pos, ok := l.Position("BAJFINANCE")
	require.True(t, ok)
	assert.Equal(t, int64(10), pos.Quantity)
	assert.InDelta(t, 100.0, pos.AvgPrice, 0.001)
}

func TestApplyFill_AveragesSameDirectionAdds(t *testing.T) {
	l := New()
	_, err := l.ApplyFill(fill("o1", "WIPRO", domain.SideBuy, 10, 100))
	require.NoError(t, err)
	_, err = l.ApplyFill(fill("o2", "WIPRO", domain.SideBuy, 10, 120))
	require.NoError(t, err)

	pos, ok := l.Position("WIPRO")
	require.True(t, ok)
	assert.Equal(t, int64(20), pos.Quantity)
	assert.InDelta(t, 110.0, pos.AvgPrice, 0.001)
}

func TestApplyFill_FullCloseRealizesPnL(t *testing.T) {
	l := New()
	_, err := l.ApplyFill(fill("o1", "WIPRO", domain.SideBuy, 100, 100))
	require.NoError(t, err)

	realized, err := l.ApplyFill(fill("o2", "WIPRO", domain.SideSell, 100, 110))
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, realized, 0.001)

	_, ok := l.Position("WIPRO")
	assert.False(t, ok, "position should be removed at zero quantity")
	assert.InDelta(t, 1000.0, l.RealizedPnL(), 0.001)
}

func TestApplyFill_PartialCloseKeepsAverage(t *testing.T) {
	l := New()
	_, err := l.ApplyFill(fill("o1", "WIPRO", domain.SideBuy, 20, 100))
	require.NoError(t, err)

	realized, err := l.ApplyFill(fill("o2", "WIPRO", domain.SideSell, 5, 104))
	require.NoError(t, err)
	assert.InDelta(t, 20.0, realized, 0.001)

	pos, ok := l.Position("WIPRO")
	require.True(t, ok)
	assert.Equal(t, int64(15), pos.Quantity)
	assert.InDelta(t, 100.0, pos.AvgPrice, 0.001)
}

func TestApplyFill_ShortSide(t *testing.T) {
	l := New()
	_, err := l.ApplyFill(fill("o1", "WIPRO", domain.SideSell, 10, 100))
	require.NoError(t, err)

	pos, ok := l.Position("WIPRO")
	require.True(t, ok)
	assert.Equal(t, int64(-10), pos.Quantity)

	// Buying back below entry is profit for a short
	realized, err := l.ApplyFill(fill("o2", "WIPRO", domain.SideBuy, 10, 95))
	require.NoError(t, err)
	assert.InDelta(t, 50.0, realized, 0.001)
}

func TestApplyFill_OverCloseRejected(t *testing.T) {
	l := New()
	_, err := l.ApplyFill(fill("o1", "WIPRO", domain.SideBuy, 10, 100))
	require.NoError(t, err)

	_, err = l.ApplyFill(fill("o2", "WIPRO", domain.SideSell, 15, 110))
	require.Error(t, err)

	// Ledger unchanged on rejection
	pos, ok := l.Position("WIPRO")
	require.True(t, ok)
	assert.Equal(t, int64(10), pos.Quantity)
	assert.Zero(t, l.RealizedPnL())
}

func TestApplyFill_DuplicateOrderIDRejected(t *testing.T) {
	l := New()
	order := fill("o1", "WIPRO", domain.SideBuy, 10, 100)
	_, err := l.ApplyFill(order)
	require.NoError(t, err)

	_, err = l.ApplyFill(order)
	assert.Error(t, err)

	pos, _ := l.Position("WIPRO")
	assert.Equal(t, int64(10), pos.Quantity)
}

func TestApplyFill_RejectsNonFilled(t *testing.T) {
	l := New()
	order := fill("o1", "WIPRO", domain.SideBuy, 10, 100)
	order.Status = domain.StatusPending
	_, err := l.ApplyFill(order)
	assert.Error(t, err)
}

func TestTrack_OneInFlightPerSymbol(t *testing.T) {
	l := New()
	o1 := fill("o1", "WIPRO", domain.SideBuy, 10, 100)
	o1.Status = domain.StatusPending

	require.NoError(t, l.Track(o1))
	assert.True(t, l.InFlight("WIPRO"))

	o2 := o1
	o2.ID = "o2"
	assert.Error(t, l.Track(o2))

	o1.Status = domain.StatusFilled
	l.Resolve(o1)
	assert.False(t, l.InFlight("WIPRO"))
	assert.NoError(t, l.Track(o2))
}

func TestUnrealizedPnL(t *testing.T) {
	l := New()
	_, err := l.ApplyFill(fill("o1", "WIPRO", domain.SideBuy, 10, 100))
	require.NoError(t, err)
	_, err = l.ApplyFill(fill("o2", "BAJFINANCE", domain.SideSell, 5, 200))
	require.NoError(t, err)

	marks := map[string]float64{"WIPRO": 105, "BAJFINANCE": 190}
	total := l.UnrealizedPnL(func(sym string) (float64, bool) {
		p, ok := marks[sym]
		return p, ok
	})
	// long: (105-100)×10 = 50; short: (200-190)×5 = 50
	assert.InDelta(t, 100.0, total, 0.001)
}
