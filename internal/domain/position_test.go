package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPosition_UnrealizedPnL_Long(t *testing.T) {
	p := Position{Symbol: "WIPRO", Quantity: 10, AvgPrice: 100}
	assert.InDelta(t, 50.0, p.UnrealizedPnL(105), 0.001)
	assert.InDelta(t, -30.0, p.UnrealizedPnL(97), 0.001)
}

func TestPosition_UnrealizedPnL_Short(t *testing.T) {
	p := Position{Symbol: "WIPRO", Quantity: -10, AvgPrice: 100}
	assert.InDelta(t, -50.0, p.UnrealizedPnL(105), 0.001)
	assert.InDelta(t, 30.0, p.UnrealizedPnL(97), 0.001)
}

func TestPosition_Notional(t *testing.T) {
	long := Position{Quantity: 20, AvgPrice: 110}
	short := Position{Quantity: -20, AvgPrice: 110}
	assert.InDelta(t, 2200.0, long.Notional(), 0.001)
	assert.InDelta(t, 2200.0, short.Notional(), 0.001)
}

func TestOrderStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusFilled.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}
