package price

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"MarginTradeBot/internal/models"
)

// KlineSource is the historical candle slice of the exchange gateway.
type KlineSource interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
}

// CandleSink persists finalized candles. The database-backed
// implementation lives in the repositories package.
type CandleSink interface {
	SaveCandles(candles []models.Candle) error
}

const (
	bootstrapLimit    = 500
	bootstrapRetries  = 3
	bootstrapRetryGap = 2 * time.Second
)

// Fetcher bootstraps the candle cache from exchange history at startup.
type Fetcher struct {
	source KlineSource
	sink   CandleSink
	cache  *Cache
}

func NewFetcher(source KlineSource, sink CandleSink, cache *Cache) *Fetcher {
	return &Fetcher{source: source, sink: sink, cache: cache}
}

// Bootstrap loads recent history for every symbol. A symbol that still
// fails after retries aborts the bootstrap; trading blind on a symbol
// with no history is worse than not starting.
func (f *Fetcher) Bootstrap(ctx context.Context, symbols []string, interval string) error {
	for _, symbol := range symbols {
		symbol = models.NormalizeSymbol(symbol)
		candles, err := f.fetchWithRetry(ctx, symbol, interval)
		if err != nil {
			return fmt.Errorf("bootstrap %s: %w", symbol, err)
		}
		for _, c := range candles {
			f.cache.Append(c)
		}
		if f.sink != nil {
			if err := f.sink.SaveCandles(candles); err != nil {
				log.Warn().Err(err).Str("symbol", symbol).Msg("candle persistence failed")
			}
		}
		log.Info().Str("symbol", symbol).Str("interval", interval).Int("candles", len(candles)).Msg("history loaded")
	}
	return nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, symbol, interval string) ([]models.Candle, error) {
	var lastErr error
	for attempt := 0; attempt < bootstrapRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(bootstrapRetryGap):
			}
		}
		candles, err := f.source.Klines(ctx, symbol, interval, bootstrapLimit)
		if err == nil {
			return candles, nil
		}
		lastErr = err
		log.Warn().Err(err).Str("symbol", symbol).Int("attempt", attempt+1).Msg("kline fetch failed")
	}
	return nil, lastErr
}
