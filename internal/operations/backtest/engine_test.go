package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarginTradeBot/config"
	"MarginTradeBot/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Mode: config.ModeSimulated,
		Trading: config.TradingConfig{
			Leverage:      10,
			RiskFraction:  0.1,
			InitialEquity: 500,
		},
		Exit: config.ExitConfig{
			TakeProfitPercent: 1.0,
			StopLossPercent:   2.0,
			TrailingPercent:   0.5,
		},
	}
}

func series(closes []float64) []models.Candle {
	base := time.Now().Add(-time.Duration(len(closes)) * 5 * time.Minute)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Symbol:   "BTCUSDT",
			Interval: "5m",
			OpenTime: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:     c,
			High:     c * 1.001,
			Low:      c * 0.999,
			Close:    c,
		}
	}
	return out
}

func constraints() models.SymbolConstraints {
	return models.SymbolConstraints{MinQty: 0.001, MaxQty: 1000, StepSize: 0.001, MinNotional: 5}
}

func TestEngine_WinningBreakout(t *testing.T) {
	// Flat history, then a breakout that runs straight through the 1%
	// take-profit.
	closes := make([]float64, 0, 80)
	for i := 0; i < 71; i++ {
		closes = append(closes, 100)
	}
	closes = append(closes, 102, 102.5, 103.5)

	e := NewEngine(testConfig(), constraints())
	res, err := e.Run("BTCUSDT", series(closes))
	require.NoError(t, err)

	require.Equal(t, 1, res.TotalTrades)
	assert.Equal(t, 1, res.WinningTrades)
	assert.Equal(t, "TP", res.Trades[0].Reason)
	assert.Greater(t, res.FinalBalance, 500.0)
}

func TestEngine_OpenAtSeriesEndMarksToLastClose(t *testing.T) {
	closes := make([]float64, 0, 72)
	for i := 0; i < 71; i++ {
		closes = append(closes, 100)
	}
	closes = append(closes, 100.5) // breaks out on the final bar

	e := NewEngine(testConfig(), constraints())
	res, err := e.Run("BTCUSDT", series(closes))
	require.NoError(t, err)

	require.Equal(t, 1, res.TotalTrades)
	assert.Equal(t, "END", res.Trades[0].Reason)
	assert.Equal(t, 100.5, res.Trades[0].ExitPrice)
}

func TestEngine_NoSignalsNoTrades(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100
	}

	e := NewEngine(testConfig(), constraints())
	res, err := e.Run("BTCUSDT", series(closes))
	require.NoError(t, err)

	assert.Zero(t, res.TotalTrades)
	assert.Equal(t, 500.0, res.FinalBalance)
	assert.Zero(t, res.MaxDrawdown)
}

func TestEngine_EmptySeries(t *testing.T) {
	e := NewEngine(testConfig(), constraints())
	_, err := e.Run("BTCUSDT", nil)
	assert.Error(t, err)
}
