package price

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog/log"

	"MarginTradeBot/internal/models"
)

const resubscribeDelay = 5 * time.Second

// Feed streams kline updates for a set of symbols and fans them out as
// ticks. Every kline update yields a tick at the bar's close price;
// final bars are additionally cached and persisted.
type Feed struct {
	symbols  []string
	interval string
	cache    *Cache
	sink     CandleSink
	out      chan models.Tick
	testnet  bool
}

func NewFeed(symbols []string, interval string, cache *Cache, sink CandleSink, testnet bool) *Feed {
	return &Feed{
		symbols:  symbols,
		interval: interval,
		cache:    cache,
		sink:     sink,
		out:      make(chan models.Tick, 256),
		testnet:  testnet,
	}
}

// Ticks is the outbound tick stream. Closed when Run returns.
func (f *Feed) Ticks() <-chan models.Tick { return f.out }

// Run subscribes one websocket per symbol and resubscribes on drops
// until the context is cancelled.
func (f *Feed) Run(ctx context.Context) {
	futures.UseTestnet = f.testnet
	defer close(f.out)

	done := make(chan string, len(f.symbols))
	for _, symbol := range f.symbols {
		f.subscribe(ctx, models.NormalizeSymbol(symbol), done)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case symbol := <-done:
			select {
			case <-ctx.Done():
				return
			case <-time.After(resubscribeDelay):
			}
			log.Warn().Str("symbol", symbol).Msg("kline stream dropped, resubscribing")
			f.subscribe(ctx, symbol, done)
		}
	}
}

func (f *Feed) subscribe(ctx context.Context, symbol string, done chan<- string) {
	handler := func(event *futures.WsKlineEvent) {
		f.handle(ctx, event)
	}
	errHandler := func(err error) {
		log.Warn().Err(err).Str("symbol", symbol).Msg("kline stream error")
	}
	doneC, stopC, err := futures.WsKlineServe(symbol, f.interval, handler, errHandler)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("kline subscribe failed")
		done <- symbol
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
		case <-doneC:
			done <- symbol
		}
	}()
	log.Info().Str("symbol", symbol).Str("interval", f.interval).Msg("kline stream subscribed")
}

func (f *Feed) handle(ctx context.Context, event *futures.WsKlineEvent) {
	closePrice, err := strconv.ParseFloat(event.Kline.Close, 64)
	if err != nil || closePrice <= 0 {
		return
	}
	symbol := models.NormalizeSymbol(event.Symbol)

	if event.Kline.IsFinal {
		candle := models.Candle{
			Symbol:     symbol,
			Interval:   event.Kline.Interval,
			OpenTime:   time.UnixMilli(event.Kline.StartTime),
			CloseTime:  time.UnixMilli(event.Kline.EndTime),
			Open:       parseF(event.Kline.Open),
			High:       parseF(event.Kline.High),
			Low:        parseF(event.Kline.Low),
			Close:      closePrice,
			Volume:     parseF(event.Kline.Volume),
			TradeCount: event.Kline.TradeNum,
		}
		f.cache.Append(candle)
		if f.sink != nil {
			if err := f.sink.SaveCandles([]models.Candle{candle}); err != nil {
				log.Warn().Err(err).Str("symbol", symbol).Msg("candle persistence failed")
			}
		}
	}

	tick := models.Tick{
		Symbol: symbol,
		Price:  closePrice,
		Time:   time.UnixMilli(event.Time),
		Final:  event.Kline.IsFinal,
	}
	select {
	case <-ctx.Done():
	case f.out <- tick:
	default:
		// Slow consumer; dropping a tick is safer than blocking the
		// websocket callback.
	}
}

func parseF(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
