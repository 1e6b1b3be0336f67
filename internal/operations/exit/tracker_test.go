package exit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarginTradeBot/internal/models"
)

func longPosition() models.Position {
	return models.Position{
		Symbol:          "BTCUSDT",
		Side:            models.SideLong,
		Quantity:        0.01,
		EntryPrice:      50000,
		Leverage:        10,
		Origin:          models.OriginExchange,
		Status:          models.StatusOpen,
		TakeProfitPrice: 51000,
		StopLossPrice:   49500,
		TrailingPercent: 0.5,
		LastUpdated:     time.Now(),
	}
}

func TestTracker_TakeProfitClosesAtTickPrice(t *testing.T) {
	tr := NewTracker(longPosition())

	d := tr.Update(50200)
	assert.False(t, d.Close)
	d = tr.Update(50600)
	assert.False(t, d.Close)

	// The tick overshoots the 51000 target; PnL is taken at the tick
	// price, not at the target level.
	d = tr.Update(51050)
	require.True(t, d.Close)
	assert.Equal(t, ReasonTakeProfit, d.Reason)
	assert.InDelta(t, 10.5, d.PnL, 1e-9)
	assert.Equal(t, Closed, tr.State())
}

func TestTracker_StopLossLong(t *testing.T) {
	tr := NewTracker(longPosition())

	d := tr.Update(49400)
	require.True(t, d.Close)
	assert.Equal(t, ReasonStopLoss, d.Reason)
	assert.InDelta(t, -6.0, d.PnL, 1e-9)
}

func TestTracker_BoundariesAreInclusive(t *testing.T) {
	tr := NewTracker(longPosition())
	d := tr.Update(51000)
	require.True(t, d.Close)
	assert.Equal(t, ReasonTakeProfit, d.Reason)

	tr = NewTracker(longPosition())
	d = tr.Update(49500)
	require.True(t, d.Close)
	assert.Equal(t, ReasonStopLoss, d.Reason)
}

func TestTracker_TrailingActivatesAndRatchets(t *testing.T) {
	pos := longPosition()
	pos.TakeProfitPrice = 60000 // out of the way
	tr := NewTracker(pos)

	d := tr.Update(50050) // +0.1%, below activation
	assert.Equal(t, Armed, tr.State())
	assert.False(t, d.Close)

	tr.Update(50100) // +0.2% activates
	assert.Equal(t, TrailingActive, tr.State())

	tr.Update(50800) // new running max
	d = tr.Update(50600)
	assert.False(t, d.Close, "pullback still inside the 0.5 percent trail")

	d = tr.Update(50500)
	require.True(t, d.Close, "pullback past 50800*(1-0.005)=50546")
	assert.Equal(t, ReasonTrailing, d.Reason)
	assert.Greater(t, d.PnL, 0.0)
}

func TestTracker_ConfiguredActivationThreshold(t *testing.T) {
	pos := longPosition()
	pos.TakeProfitPrice = 60000
	pos.TrailingActivation = 1.0 // percent
	tr := NewTracker(pos)

	tr.Update(50100) // +0.2% clears the default, not the configured 1%
	assert.Equal(t, Armed, tr.State())

	tr.Update(50500) // +1%
	assert.Equal(t, TrailingActive, tr.State())
}

func TestTracker_TrailingNeverClosesAtLoss(t *testing.T) {
	pos := longPosition()
	pos.TakeProfitPrice = 60000
	pos.StopLossPrice = 40000
	tr := NewTracker(pos)

	tr.Update(50100) // activates trailing
	d := tr.Update(49990)
	assert.False(t, d.Close, "trailing must not fire while PnL is negative")
}

func TestTracker_ShortSide(t *testing.T) {
	pos := models.Position{
		Symbol:          "ETHUSDT",
		Side:            models.SideShort,
		Quantity:        2,
		EntryPrice:      3000,
		Origin:          models.OriginExchange,
		Status:          models.StatusOpen,
		TakeProfitPrice: 2940,
		StopLossPrice:   3060,
		TrailingPercent: 0.5,
	}
	tr := NewTracker(pos)

	d := tr.Update(2980)
	assert.False(t, d.Close)

	d = tr.Update(2935)
	require.True(t, d.Close)
	assert.Equal(t, ReasonTakeProfit, d.Reason)
	assert.InDelta(t, 130.0, d.PnL, 1e-9)
}

func TestTracker_ClosedIsTerminal(t *testing.T) {
	tr := NewTracker(longPosition())
	d := tr.Update(52000)
	require.True(t, d.Close)

	d = tr.Update(30000)
	assert.False(t, d.Close, "a closed tracker ignores further ticks")
}

func TestTracker_ResumesTrailingAfterRestart(t *testing.T) {
	pos := longPosition()
	pos.TakeProfitPrice = 60000
	pos.TrailingActive = true
	tr := NewTracker(pos)
	assert.Equal(t, TrailingActive, tr.State())
}

func TestReplay_Deterministic(t *testing.T) {
	pos := longPosition()
	prices := []float64{50200, 50600, 51050, 48000}

	first := Replay(pos, prices)
	second := Replay(pos, prices)

	require.True(t, first.Close)
	assert.Equal(t, ReasonTakeProfit, first.Reason)
	assert.Equal(t, first, second, "replaying identical inputs must give identical output")
}

func TestReplay_NoRuleFired(t *testing.T) {
	pos := longPosition()
	d := Replay(pos, []float64{50100, 50200, 50300})
	assert.False(t, d.Close)
}
