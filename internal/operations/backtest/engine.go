// Package backtest replays the entry signal and the exit machine over
// historical candles with a simulated balance. It shares the production
// sizing and exit code so its results track live behavior.
package backtest

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"MarginTradeBot/config"
	"MarginTradeBot/internal/models"
	"MarginTradeBot/internal/operations/exit"
	"MarginTradeBot/internal/operations/price"
	"MarginTradeBot/internal/operations/sizing"
	"MarginTradeBot/internal/services/strategy"
)

// Trade is one simulated round trip.
type Trade struct {
	Symbol     string
	Side       models.Side
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	PnL        float64
	Reason     string
}

// Results summarizes one backtest run.
type Results struct {
	TotalTrades   int
	WinningTrades int
	FinalBalance  float64
	MaxDrawdown   float64
	Trades        []Trade
}

type Engine struct {
	cfg         *config.Config
	constraints models.SymbolConstraints

	balance    float64
	maxBalance float64
	trades     []Trade
}

func NewEngine(cfg *config.Config, constraints models.SymbolConstraints) *Engine {
	return &Engine{
		cfg:         cfg,
		constraints: constraints,
		balance:     cfg.Trading.InitialEquity,
		maxBalance:  cfg.Trading.InitialEquity,
	}
}

// Run walks the candle series bar by bar: the breakout signal is
// evaluated on each close, an entry starts a replayed exit machine over
// the remaining closes, and the realized pnl feeds the balance.
func (e *Engine) Run(symbol string, candles []models.Candle) (*Results, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles for %s", symbol)
	}
	symbol = models.NormalizeSymbol(symbol)

	cache := price.NewCache(len(candles))
	source := strategy.NewBreakout(cache)

	for i := 0; i < len(candles); i++ {
		cache.Append(candles[i])

		sig, ok := source.Evaluate(symbol)
		if !ok {
			continue
		}

		res := sizing.Quantity(sig.Price, e.balance, e.cfg.Trading.RiskFraction, e.cfg.Trading.Leverage, e.constraints)
		if res.Unsafe || res.Quantity <= 0 {
			continue
		}

		pos := models.Position{
			Symbol:             symbol,
			Side:               sig.Side,
			Quantity:           res.Quantity,
			EntryPrice:         sig.Price,
			Leverage:           e.cfg.Trading.Leverage,
			Origin:             models.OriginSimulated,
			Status:             models.StatusOpen,
			TrailingPercent:    e.cfg.Exit.TrailingPercent,
			TrailingActivation: e.cfg.Exit.TrailingActivation,
		}
		pos.TakeProfitPrice, pos.StopLossPrice = exitLevels(sig.Side, sig.Price, e.cfg.Exit)

		rest := closesAfter(candles, i)
		tr := exit.NewTracker(pos)
		held := 0
		var d exit.Decision
		for _, p := range rest {
			held++
			if d = tr.Update(p); d.Close {
				break
			}
		}
		exitPrice, reason := d.Price, string(d.Reason)
		pnl := d.PnL
		if !d.Close {
			// Still open at the end of the series; mark to the last close.
			exitPrice = candles[len(candles)-1].Close
			reason = "END"
			pnl = pos.PnLAt(exitPrice)
		}

		e.settle(Trade{
			Symbol:     symbol,
			Side:       sig.Side,
			EntryPrice: sig.Price,
			ExitPrice:  exitPrice,
			Quantity:   res.Quantity,
			PnL:        pnl,
			Reason:     reason,
		})

		// One position at a time: skip forward past the holding period.
		for j := 0; j < held && i+1 < len(candles); j++ {
			i++
			cache.Append(candles[i])
		}
	}

	results := e.results()
	log.Info().
		Str("symbol", symbol).
		Int("trades", results.TotalTrades).
		Float64("final_balance", results.FinalBalance).
		Float64("max_drawdown", results.MaxDrawdown).
		Msg("backtest finished")
	return results, nil
}

func (e *Engine) settle(t Trade) {
	e.balance += t.PnL
	if e.balance > e.maxBalance {
		e.maxBalance = e.balance
	}
	e.trades = append(e.trades, t)
}

func (e *Engine) results() *Results {
	wins := 0
	minRatio := 1.0
	balance := e.cfg.Trading.InitialEquity
	maxSeen := balance
	for _, t := range e.trades {
		if t.PnL > 0 {
			wins++
		}
		balance += t.PnL
		if balance > maxSeen {
			maxSeen = balance
		}
		if maxSeen > 0 {
			minRatio = math.Min(minRatio, balance/maxSeen)
		}
	}
	return &Results{
		TotalTrades:   len(e.trades),
		WinningTrades: wins,
		FinalBalance:  e.balance,
		MaxDrawdown:   1 - minRatio,
		Trades:        e.trades,
	}
}

func closesAfter(candles []models.Candle, i int) []float64 {
	out := make([]float64, 0, len(candles)-i-1)
	for _, c := range candles[i+1:] {
		out = append(out, c.Close)
	}
	return out
}

func exitLevels(side models.Side, entry float64, cfg config.ExitConfig) (tp, sl float64) {
	tpFrac := cfg.TakeProfitPercent / 100
	slFrac := cfg.StopLossPercent / 100
	if side == models.SideLong {
		return entry * (1 + tpFrac), entry * (1 - slFrac)
	}
	return entry * (1 - tpFrac), entry * (1 + slFrac)
}
