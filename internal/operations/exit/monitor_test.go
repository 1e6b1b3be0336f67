package exit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarginTradeBot/internal/models"
	"MarginTradeBot/internal/operations/store"
)

type recordingCloser struct {
	calls  int
	symbol string
	reason string
	err    error
}

func (c *recordingCloser) Close(_ context.Context, symbol string, _ models.Origin, reason string) error {
	c.calls++
	c.symbol = symbol
	c.reason = reason
	return c.err
}

func TestMonitor_ClosesWhenRuleFires(t *testing.T) {
	st := store.New()
	require.NoError(t, st.Upsert(longPosition()))

	closer := &recordingCloser{}
	ticks := make(chan models.Tick, 4)
	m := NewMonitor(st, closer, ticks)

	for _, p := range []float64{50200, 50600, 51050} {
		ticks <- models.Tick{Symbol: "BTCUSDT", Price: p, Time: time.Now()}
	}
	close(ticks)
	m.Run(context.Background())

	assert.Equal(t, 1, closer.calls)
	assert.Equal(t, "BTCUSDT", closer.symbol)
	assert.Equal(t, string(ReasonTakeProfit), closer.reason)
}

func TestMonitor_RefreshesStorePrice(t *testing.T) {
	st := store.New()
	require.NoError(t, st.Upsert(longPosition()))

	ticks := make(chan models.Tick, 1)
	m := NewMonitor(st, &recordingCloser{}, ticks)
	ticks <- models.Tick{Symbol: "BTCUSDT", Price: 50600, Time: time.Now()}
	close(ticks)
	m.Run(context.Background())

	pos, ok := st.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 50600.0, pos.CurrentPrice)
	assert.InDelta(t, 6.0, pos.UnrealizedPnL, 1e-9)
}

func TestMonitor_IgnoresUnknownSymbols(t *testing.T) {
	st := store.New()
	closer := &recordingCloser{}
	ticks := make(chan models.Tick, 1)
	m := NewMonitor(st, closer, ticks)

	ticks <- models.Tick{Symbol: "DOGEUSDT", Price: 1, Time: time.Now()}
	close(ticks)
	m.Run(context.Background())

	assert.Zero(t, closer.calls)
}
