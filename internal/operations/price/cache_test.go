package price

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarginTradeBot/internal/models"
)

func candle(symbol string, close float64, at time.Time) models.Candle {
	return models.Candle{Symbol: symbol, Interval: "5m", OpenTime: at, Close: close}
}

func TestCache_CapsWindow(t *testing.T) {
	c := NewCache(3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		c.Append(candle("BTCUSDT", float64(i), base.Add(time.Duration(i)*time.Minute)))
	}

	assert.Equal(t, 3, c.Len("BTCUSDT"))
	recent := c.Recent("BTCUSDT", 3)
	require.Len(t, recent, 3)
	assert.Equal(t, 2.0, recent[0].Close, "oldest surviving candle")
	assert.Equal(t, 4.0, recent[2].Close, "newest candle last")
}

func TestCache_RecentIsACopy(t *testing.T) {
	c := NewCache(10)
	c.Append(candle("btcusdt", 100, time.Now()))

	got := c.Recent("BTCUSDT", 1)
	require.Len(t, got, 1)
	got[0].Close = 999

	assert.Equal(t, 100.0, c.Recent("BTCUSDT", 1)[0].Close)
}

func TestCache_SymbolsAreIndependent(t *testing.T) {
	c := NewCache(10)
	c.Append(candle("BTCUSDT", 1, time.Now()))
	c.Append(candle("ETHUSDT", 2, time.Now()))

	assert.Equal(t, 1, c.Len("BTCUSDT"))
	assert.Equal(t, 1, c.Len("ETHUSDT"))
}

type fakeKlines struct {
	failures int
	calls    int
	candles  []models.Candle
}

func (f *fakeKlines) Klines(_ context.Context, symbol, _ string, _ int) ([]models.Candle, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("dial tcp: connection refused")
	}
	out := make([]models.Candle, len(f.candles))
	copy(out, f.candles)
	for i := range out {
		out[i].Symbol = symbol
	}
	return out, nil
}

func TestFetcher_RetriesThenFillsCache(t *testing.T) {
	src := &fakeKlines{
		failures: 1,
		candles:  []models.Candle{candle("", 50000, time.Now())},
	}
	cache := NewCache(100)
	f := NewFetcher(src, nil, cache)

	err := f.Bootstrap(context.Background(), []string{"btcusdt"}, "5m")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, 1, cache.Len("BTCUSDT"))
}

func TestFetcher_GivesUpAfterRetries(t *testing.T) {
	src := &fakeKlines{failures: 10}
	f := NewFetcher(src, nil, NewCache(10))

	err := f.Bootstrap(context.Background(), []string{"BTCUSDT"}, "5m")
	require.Error(t, err)
	assert.Equal(t, bootstrapRetries, src.calls)
}
