package gateway

import (
	"context"
	"math"
	"sort"
	"time"

	"MarginTradeBot/internal/models"
	"MarginTradeBot/internal/services/metrics"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Exchange is the typed surface the rest of the bot uses. Gateway is the
// only implementation that talks to Binance; tests substitute stubs.
type Exchange interface {
	ServerTime(ctx context.Context) (int64, error)
	Account(ctx context.Context) (models.AccountState, error)
	Positions(ctx context.Context) ([]models.ExchangePosition, error)
	SymbolConstraints(ctx context.Context, symbol string) (models.SymbolConstraints, error)
	TickerPrice(ctx context.Context, symbol string) (float64, error)
	PlaceOrder(ctx context.Context, req models.OrderRequest) (models.Order, error)
	GetOrder(ctx context.Context, symbol string, orderID int64) (models.Order, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	ChangeLeverage(ctx context.Context, symbol string, leverage int) error
	IncomeHistory(ctx context.Context, symbol string, limit int64) ([]models.Income, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
}

const (
	// Floor spacing between any two consecutive calls. Caps sustained
	// rate at 10/s independently of the rolling window.
	minCallSpacing = 100 * time.Millisecond

	maxTransientRetries = 3
	transientBackoff    = 100 * time.Millisecond

	// Wait after an exchange-side throttle rejection before the single
	// retry. The window has no room information for remote throttles.
	throttledRetryDelay = 10 * time.Second
)

// Gateway is the single choke point for all exchange calls: request
// budget, floor spacing, clock-skew check and error classification.
type Gateway struct {
	api     api
	window  *rateWindow
	spacing *rate.Limiter

	clockOffsetMs int64
}

// New builds a gateway over the Binance USD-M futures API.
func New(apiKey, secretKey string, testnet bool) *Gateway {
	return newWithAPI(newBinanceAPI(apiKey, secretKey, testnet))
}

func newWithAPI(a api) *Gateway {
	return &Gateway{
		api:     a,
		window:  newRateWindow(nil),
		spacing: rate.NewLimiter(rate.Every(minCallSpacing), 1),
	}
}

// ClockOffsetMs is the median server-minus-local offset from the last
// SyncClock call.
func (g *Gateway) ClockOffsetMs() int64 { return g.clockOffsetMs }

// SyncClock samples server time five times and keeps the median offset.
// A large skew is reported but never halts startup.
func (g *Gateway) SyncClock(ctx context.Context) error {
	const samples = 5
	offsets := make([]int64, 0, samples)
	for i := 0; i < samples; i++ {
		serverMs, err := g.ServerTime(ctx)
		if err != nil {
			return err
		}
		localMs := time.Now().UnixMilli()
		offsets = append(offsets, serverMs-localMs)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	median := offsets[len(offsets)/2]
	g.clockOffsetMs = median

	switch abs := int64(math.Abs(float64(median))); {
	case abs > 1000:
		log.Warn().Int64("offset_ms", median).Msg("large clock skew against exchange, resync the system clock")
	case abs > 100:
		log.Warn().Int64("offset_ms", median).Msg("minor clock skew against exchange")
	default:
		log.Info().Int64("offset_ms", median).Msg("clock in sync with exchange")
	}
	return nil
}

// execute funnels one exchange call through the request budget and
// classifies its failure. Transient errors retry with backoff, throttles
// retry once after a fixed delay; everything else surfaces immediately.
func (g *Gateway) execute(ctx context.Context, op string, fn func(context.Context) error) error {
	throttledOnce := false
	for attempt := 0; ; attempt++ {
		metrics.APIRequests.WithLabelValues(op).Inc()

		delay, warn := g.window.reserve()
		if warn {
			log.Warn().Int("calls", g.window.count()).Str("op", op).
				Msg("request window past soft threshold")
		}
		if delay > 0 {
			metrics.ThrottleDelays.Inc()
			log.Warn().Dur("delay", delay).Str("op", op).
				Msg("request window full, blocking until it rolls over")
			if err := sleepCtx(ctx, delay); err != nil {
				return classify(op, err)
			}
		}
		if err := g.spacing.Wait(ctx); err != nil {
			return classify(op, err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		cerr := classify(op, err)
		kind := KindOf(cerr)

		if kind == KindTransient && attempt < maxTransientRetries {
			wait := time.Duration(math.Pow(2, float64(attempt))) * transientBackoff
			if serr := sleepCtx(ctx, wait); serr != nil {
				return classify(op, serr)
			}
			continue
		}
		if kind == KindThrottled && !throttledOnce {
			throttledOnce = true
			metrics.ThrottleDelays.Inc()
			log.Warn().Str("op", op).Dur("delay", throttledRetryDelay).
				Msg("exchange throttled the request, retrying once")
			if serr := sleepCtx(ctx, throttledRetryDelay); serr != nil {
				return classify(op, serr)
			}
			continue
		}

		metrics.APIErrors.WithLabelValues(op, kind.String()).Inc()
		return cerr
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (g *Gateway) ServerTime(ctx context.Context) (int64, error) {
	var out int64
	err := g.execute(ctx, "server_time", func(ctx context.Context) error {
		var err error
		out, err = g.api.serverTime(ctx)
		return err
	})
	return out, err
}

func (g *Gateway) Account(ctx context.Context) (models.AccountState, error) {
	var out models.AccountState
	err := g.execute(ctx, "account", func(ctx context.Context) error {
		var err error
		out, err = g.api.account(ctx)
		return err
	})
	return out, err
}

func (g *Gateway) Positions(ctx context.Context) ([]models.ExchangePosition, error) {
	var out []models.ExchangePosition
	err := g.execute(ctx, "positions", func(ctx context.Context) error {
		var err error
		out, err = g.api.positions(ctx)
		return err
	})
	return out, err
}

func (g *Gateway) SymbolConstraints(ctx context.Context, symbol string) (models.SymbolConstraints, error) {
	var out models.SymbolConstraints
	err := g.execute(ctx, "exchange_info", func(ctx context.Context) error {
		var err error
		out, err = g.api.symbolConstraints(ctx, models.NormalizeSymbol(symbol))
		return err
	})
	return out, err
}

func (g *Gateway) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	var out float64
	err := g.execute(ctx, "ticker_price", func(ctx context.Context) error {
		var err error
		out, err = g.api.tickerPrice(ctx, models.NormalizeSymbol(symbol))
		return err
	})
	return out, err
}

func (g *Gateway) PlaceOrder(ctx context.Context, req models.OrderRequest) (models.Order, error) {
	req.Symbol = models.NormalizeSymbol(req.Symbol)
	var out models.Order
	err := g.execute(ctx, "place_order", func(ctx context.Context) error {
		var err error
		out, err = g.api.placeOrder(ctx, req)
		return err
	})
	return out, err
}

func (g *Gateway) GetOrder(ctx context.Context, symbol string, orderID int64) (models.Order, error) {
	var out models.Order
	err := g.execute(ctx, "get_order", func(ctx context.Context) error {
		var err error
		out, err = g.api.getOrder(ctx, models.NormalizeSymbol(symbol), orderID)
		return err
	})
	return out, err
}

func (g *Gateway) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	return g.execute(ctx, "cancel_order", func(ctx context.Context) error {
		return g.api.cancelOrder(ctx, models.NormalizeSymbol(symbol), orderID)
	})
}

func (g *Gateway) ChangeLeverage(ctx context.Context, symbol string, leverage int) error {
	return g.execute(ctx, "change_leverage", func(ctx context.Context) error {
		return g.api.changeLeverage(ctx, models.NormalizeSymbol(symbol), leverage)
	})
}

func (g *Gateway) IncomeHistory(ctx context.Context, symbol string, limit int64) ([]models.Income, error) {
	var out []models.Income
	err := g.execute(ctx, "income_history", func(ctx context.Context) error {
		var err error
		out, err = g.api.incomeHistory(ctx, models.NormalizeSymbol(symbol), limit)
		return err
	})
	return out, err
}

func (g *Gateway) Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	var out []models.Candle
	err := g.execute(ctx, "klines", func(ctx context.Context) error {
		var err error
		out, err = g.api.klines(ctx, models.NormalizeSymbol(symbol), interval, limit)
		return err
	})
	return out, err
}
