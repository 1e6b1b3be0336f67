package strategy

import (
	"fmt"

	"MarginTradeBot/internal/models"
	"MarginTradeBot/internal/operations/price"
	"MarginTradeBot/internal/services/indicators"
)

const (
	defaultLookback  = 20
	defaultEMAPeriod = 50
)

// Breakout signals long when the latest close breaks above the high of
// the lookback window while trading above the trend EMA, and short on
// the mirrored condition. The breakout bar itself is excluded from the
// window it must break.
type Breakout struct {
	cache     *price.Cache
	lookback  int
	emaPeriod int
}

func NewBreakout(cache *price.Cache) *Breakout {
	return &Breakout{cache: cache, lookback: defaultLookback, emaPeriod: defaultEMAPeriod}
}

func (b *Breakout) Evaluate(symbol string) (Signal, bool) {
	candles := b.cache.Recent(symbol, b.lookback+b.emaPeriod)
	if len(candles) < b.lookback+1 {
		return Signal{}, false
	}

	last := candles[len(candles)-1]
	window := candles[len(candles)-1-b.lookback : len(candles)-1]

	high, low := window[0].High, window[0].Low
	for _, c := range window[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	ema := indicators.LastEMA(closes, b.emaPeriod)

	if last.Close > high && (ema == 0 || last.Close > ema) {
		return Signal{
			Symbol: models.NormalizeSymbol(symbol),
			Side:   models.SideLong,
			Price:  last.Close,
			Reason: fmt.Sprintf("close %.4f broke %d-bar high %.4f", last.Close, b.lookback, high),
		}, true
	}
	if last.Close < low && (ema == 0 || last.Close < ema) {
		return Signal{
			Symbol: models.NormalizeSymbol(symbol),
			Side:   models.SideShort,
			Price:  last.Close,
			Reason: fmt.Sprintf("close %.4f broke %d-bar low %.4f", last.Close, b.lookback, low),
		}, true
	}
	return Signal{}, false
}
