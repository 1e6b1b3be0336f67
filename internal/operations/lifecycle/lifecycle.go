// Package lifecycle opens and closes positions end to end: duplicate
// guards, sizing, leverage, order placement, journaling and
// notification. It is the only package that submits orders.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"MarginTradeBot/config"
	"MarginTradeBot/internal/models"
	"MarginTradeBot/internal/operations/gateway"
	"MarginTradeBot/internal/operations/sizing"
	"MarginTradeBot/internal/operations/store"
	"MarginTradeBot/internal/services/metrics"
	"MarginTradeBot/internal/services/notify"
)

var (
	// ErrDuplicatePosition is returned when the symbol already has a
	// pending or open position.
	ErrDuplicatePosition = errors.New("position already exists for symbol")

	// ErrUnsafeSize is returned when sizing refuses to produce a quantity.
	ErrUnsafeSize = errors.New("sizing declared the open unsafe")
)

// Journal persists trade records. The database-backed implementation
// lives in the repositories package.
type Journal interface {
	Record(entry models.TradeLog) error
}

type Lifecycle struct {
	ex       gateway.Exchange
	store    *store.Store
	notifier notify.Notifier
	journal  Journal
	cfg      *config.Config

	mu          sync.Mutex
	constraints map[string]models.SymbolConstraints
	simEquity   float64
	simOrderID  atomic.Int64
}

func New(ex gateway.Exchange, st *store.Store, notifier notify.Notifier, journal Journal, cfg *config.Config) *Lifecycle {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Lifecycle{
		ex:          ex,
		store:       st,
		notifier:    notifier,
		journal:     journal,
		cfg:         cfg,
		constraints: make(map[string]models.SymbolConstraints),
		simEquity:   cfg.Trading.InitialEquity,
	}
}

// Equity returns the wallet balance in live mode and the simulated
// running balance otherwise.
func (l *Lifecycle) Equity(ctx context.Context) (float64, error) {
	if l.cfg.IsLive() {
		acct, err := l.ex.Account(ctx)
		if err != nil {
			return 0, err
		}
		return acct.TotalWalletBalance, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.simEquity, nil
}

// Open sizes and submits a market entry for symbol. Exactly one position
// per symbol: a pending or open entry, cached or exchange-side, refuses
// the open.
func (l *Lifecycle) Open(ctx context.Context, symbol string, side models.Side) error {
	symbol = models.NormalizeSymbol(symbol)

	if _, ok := l.store.Get(symbol); ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePosition, symbol)
	}
	if l.cfg.IsLive() {
		live, err := l.ex.Positions(ctx)
		if err != nil {
			return fmt.Errorf("duplicate check: %w", err)
		}
		for _, p := range live {
			if models.NormalizeSymbol(p.Symbol) == symbol && p.SignedAmount != 0 {
				return fmt.Errorf("%w: %s held on exchange", ErrDuplicatePosition, symbol)
			}
		}
	}

	constraints, err := l.constraintsFor(ctx, symbol)
	if err != nil {
		return fmt.Errorf("constraints for %s: %w", symbol, err)
	}
	price, err := l.ex.TickerPrice(ctx, symbol)
	if err != nil {
		return fmt.Errorf("ticker for %s: %w", symbol, err)
	}
	equity, err := l.Equity(ctx)
	if err != nil {
		return fmt.Errorf("equity: %w", err)
	}

	res := sizing.Quantity(price, equity, l.cfg.Trading.RiskFraction, l.cfg.Trading.Leverage, constraints)
	if res.Unsafe {
		l.notifier.Notify(notify.Event{
			Type:   notify.EventError,
			Symbol: symbol,
			Text:   fmt.Sprintf("open %s aborted: implied risk %.1f%% of equity", symbol, res.ImpliedRisk*100),
		})
		return fmt.Errorf("%w: implied risk %.4f", ErrUnsafeSize, res.ImpliedRisk)
	}
	if res.Quantity <= 0 {
		return fmt.Errorf("%w: zero quantity at price %.8f", ErrUnsafeSize, price)
	}

	pos := models.Position{
		Symbol:             symbol,
		Side:               side,
		Quantity:           res.Quantity,
		EntryPrice:         price,
		CurrentPrice:       price,
		Leverage:           l.cfg.Trading.Leverage,
		TrailingPercent:    l.cfg.Exit.TrailingPercent,
		TrailingActivation: l.cfg.Exit.TrailingActivation,
	}
	pos.TakeProfitPrice, pos.StopLossPrice = exitLevels(side, price, l.cfg.Exit)

	if l.cfg.IsLive() {
		if err := l.ex.ChangeLeverage(ctx, symbol, l.cfg.Trading.Leverage); err != nil {
			return fmt.Errorf("set leverage for %s: %w", symbol, err)
		}
		order, err := l.ex.PlaceOrder(ctx, models.OrderRequest{
			Symbol:   symbol,
			Side:     side,
			Type:     models.OrderTypeMarket,
			Quantity: res.Quantity,
		})
		if err != nil {
			return fmt.Errorf("place order for %s: %w", symbol, err)
		}
		pos.OrderID = order.OrderID
		pos.Origin = models.OriginExchange
		pos.Status = models.StatusPending
		if order.Status == models.OrderStatusFilled {
			pos.Status = models.StatusOpen
			if order.AvgPrice > 0 {
				pos.EntryPrice = order.AvgPrice
				pos.CurrentPrice = order.AvgPrice
				pos.TakeProfitPrice, pos.StopLossPrice = exitLevels(side, order.AvgPrice, l.cfg.Exit)
			}
			if order.ExecutedQty > 0 {
				pos.Quantity = order.ExecutedQty
			}
		}
	} else {
		pos.OrderID = l.simOrderID.Add(1)
		pos.Origin = models.OriginSimulated
		pos.Status = models.StatusOpen
	}

	if err := l.store.Upsert(pos); err != nil {
		return fmt.Errorf("cache open for %s: %w", symbol, err)
	}
	metrics.OpenPositions.Set(float64(len(l.store.ListOpen())))

	l.journalEntry(models.TradeLog{
		Timestamp: time.Now(),
		Action:    models.TradeActionOpen,
		Symbol:    symbol,
		Side:      side,
		Price:     pos.EntryPrice,
		Quantity:  pos.Quantity,
		Equity:    equity,
		Mode:      string(l.cfg.Mode),
	})
	l.notifier.Notify(notify.Event{
		Type:   notify.EventOpen,
		Symbol: symbol,
		Text: fmt.Sprintf("opened %s %s qty=%.8f entry=%.4f tp=%.4f sl=%.4f",
			side, symbol, pos.Quantity, pos.EntryPrice, pos.TakeProfitPrice, pos.StopLossPrice),
	})
	log.Info().
		Str("symbol", symbol).
		Str("side", string(side)).
		Float64("qty", pos.Quantity).
		Float64("entry", pos.EntryPrice).
		Str("status", string(pos.Status)).
		Msg("position opened")
	return nil
}

// Close exits the cached position for (symbol, origin). Closing a symbol
// with no cached position is a no-op so repeated close signals are safe.
func (l *Lifecycle) Close(ctx context.Context, symbol string, origin models.Origin, reason string) error {
	symbol = models.NormalizeSymbol(symbol)
	pos, ok := l.store.GetByOrigin(symbol, origin)
	if !ok {
		return nil
	}

	closePrice := pos.CurrentPrice
	if origin == models.OriginExchange && l.cfg.IsLive() {
		p, err := l.closeOnExchange(ctx, pos)
		if err != nil {
			return err
		}
		if p > 0 {
			closePrice = p
		}
	} else if price, err := l.ex.TickerPrice(ctx, symbol); err == nil {
		closePrice = price
	}

	pnl := pos.PnLAt(closePrice)
	l.store.Remove(symbol, origin)
	metrics.OpenPositions.Set(float64(len(l.store.ListOpen())))

	equity := l.settle(ctx, origin, pnl)
	l.journalEntry(models.TradeLog{
		Timestamp: time.Now(),
		Action:    models.TradeActionClose,
		Symbol:    symbol,
		Side:      pos.Side,
		Price:     closePrice,
		Quantity:  pos.Quantity,
		PnL:       pnl,
		Equity:    equity,
		Reason:    reason,
		Mode:      string(l.cfg.Mode),
	})
	l.notifier.Notify(notify.Event{
		Type:   notify.EventClose,
		Symbol: symbol,
		Text:   fmt.Sprintf("closed %s %s at %.4f pnl=%.4f (%s)", pos.Side, symbol, closePrice, pnl, reason),
	})
	log.Info().
		Str("symbol", symbol).
		Str("reason", reason).
		Float64("price", closePrice).
		Float64("pnl", pnl).
		Msg("position closed")
	return nil
}

// closeOnExchange submits the reduce-only exit. The exchange quantity is
// re-fetched first so a drifted cache cannot over- or under-close. When
// the exchange rejects reduce-only for a dust-sized remainder, the close
// is retried once without the flag against a fresh quantity.
func (l *Lifecycle) closeOnExchange(ctx context.Context, pos models.Position) (float64, error) {
	qty, ok, err := l.exchangeQuantity(ctx, pos.Symbol)
	if err != nil {
		return 0, fmt.Errorf("close %s: quantity check: %w", pos.Symbol, err)
	}
	if !ok {
		log.Warn().Str("symbol", pos.Symbol).Msg("position already gone on exchange")
		return 0, nil
	}

	req := models.OrderRequest{
		Symbol:     pos.Symbol,
		Side:       pos.Side.Opposite(),
		Type:       models.OrderTypeMarket,
		Quantity:   qty,
		ReduceOnly: true,
	}
	order, err := l.ex.PlaceOrder(ctx, req)
	if err == nil {
		return order.AvgPrice, nil
	}
	if gateway.CodeOf(err) != gateway.CodeNotionalTooSmall {
		return 0, fmt.Errorf("close %s: %w", pos.Symbol, err)
	}

	log.Warn().Str("symbol", pos.Symbol).Msg("reduce-only rejected below min notional, retrying without flag")
	qty, ok, err = l.exchangeQuantity(ctx, pos.Symbol)
	if err != nil {
		return 0, fmt.Errorf("close %s: requantity: %w", pos.Symbol, err)
	}
	if !ok {
		return 0, nil
	}
	req.Quantity = qty
	req.ReduceOnly = false
	order, err = l.ex.PlaceOrder(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("close %s without reduce-only: %w", pos.Symbol, err)
	}
	return order.AvgPrice, nil
}

// exchangeQuantity returns the absolute live quantity for symbol, or
// ok=false when the exchange reports no position.
func (l *Lifecycle) exchangeQuantity(ctx context.Context, symbol string) (float64, bool, error) {
	live, err := l.ex.Positions(ctx)
	if err != nil {
		return 0, false, err
	}
	for _, p := range live {
		if models.NormalizeSymbol(p.Symbol) == symbol && p.SignedAmount != 0 {
			return math.Abs(p.SignedAmount), true, nil
		}
	}
	return 0, false, nil
}

// An entry order still unfilled after this long gets cancelled.
const pendingOrderTTL = 2 * time.Minute

// ResolvePending polls the exchange for every pending order and promotes
// or evicts the position according to the terminal order state. Orders
// stuck unfilled past the TTL are cancelled.
func (l *Lifecycle) ResolvePending(ctx context.Context) {
	for _, pos := range l.store.List() {
		if pos.Status != models.StatusPending || pos.OrderID == 0 {
			continue
		}
		order, err := l.ex.GetOrder(ctx, pos.Symbol, pos.OrderID)
		if err != nil {
			log.Warn().Err(err).Str("symbol", pos.Symbol).Int64("order_id", pos.OrderID).Msg("pending order check failed")
			continue
		}
		switch order.Status {
		case models.OrderStatusNew, models.OrderStatusPartiallyFilled:
			if time.Since(pos.LastUpdated) < pendingOrderTTL {
				continue
			}
			if err := l.ex.CancelOrder(ctx, pos.Symbol, pos.OrderID); err != nil {
				log.Warn().Err(err).Str("symbol", pos.Symbol).Int64("order_id", pos.OrderID).Msg("stale order cancel failed")
				continue
			}
			if order.ExecutedQty > 0 {
				// Keep what did fill as an open position.
				pos.Status = models.StatusOpen
				pos.Quantity = order.ExecutedQty
				if order.AvgPrice > 0 {
					pos.EntryPrice = order.AvgPrice
					pos.TakeProfitPrice, pos.StopLossPrice = exitLevels(pos.Side, order.AvgPrice, l.cfg.Exit)
				}
				if err := l.store.Upsert(pos); err != nil {
					log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("could not keep partial fill")
				}
				log.Warn().Str("symbol", pos.Symbol).Int64("order_id", pos.OrderID).Float64("filled", order.ExecutedQty).Msg("stale order cancelled, partial fill kept")
				continue
			}
			l.store.Remove(pos.Symbol, pos.Origin)
			log.Warn().Str("symbol", pos.Symbol).Int64("order_id", pos.OrderID).Msg("stale entry order cancelled")
		case models.OrderStatusFilled:
			pos.Status = models.StatusOpen
			if order.AvgPrice > 0 {
				pos.EntryPrice = order.AvgPrice
				pos.TakeProfitPrice, pos.StopLossPrice = exitLevels(pos.Side, order.AvgPrice, l.cfg.Exit)
			}
			if order.ExecutedQty > 0 {
				pos.Quantity = order.ExecutedQty
			}
			if err := l.store.Upsert(pos); err != nil {
				log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("could not promote filled order")
			}
			log.Info().Str("symbol", pos.Symbol).Int64("order_id", pos.OrderID).Msg("pending order filled")
		case models.OrderStatusCanceled, models.OrderStatusRejected, models.OrderStatusExpired:
			l.store.Remove(pos.Symbol, pos.Origin)
			log.Warn().Str("symbol", pos.Symbol).Str("status", string(order.Status)).Msg("pending order terminal, evicted")
		}
	}
}

// settle applies realized pnl to the simulated balance and returns the
// equity to journal. Live equity is best-effort; journaling proceeds with
// zero when the account read fails.
func (l *Lifecycle) settle(ctx context.Context, origin models.Origin, pnl float64) float64 {
	if origin == models.OriginSimulated {
		l.mu.Lock()
		l.simEquity += pnl
		eq := l.simEquity
		l.mu.Unlock()
		metrics.Equity.Set(eq)
		return eq
	}
	eq, err := l.Equity(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("equity read after close failed")
		return 0
	}
	metrics.Equity.Set(eq)
	return eq
}

func (l *Lifecycle) constraintsFor(ctx context.Context, symbol string) (models.SymbolConstraints, error) {
	l.mu.Lock()
	c, ok := l.constraints[symbol]
	l.mu.Unlock()
	if ok {
		return c, nil
	}
	c, err := l.ex.SymbolConstraints(ctx, symbol)
	if err != nil {
		return models.SymbolConstraints{}, err
	}
	l.mu.Lock()
	l.constraints[symbol] = c
	l.mu.Unlock()
	return c, nil
}

func (l *Lifecycle) journalEntry(entry models.TradeLog) {
	if l.journal == nil {
		return
	}
	if err := l.journal.Record(entry); err != nil {
		log.Warn().Err(err).Str("symbol", entry.Symbol).Msg("journal write failed")
	}
}

// exitLevels derives the TP and SL prices from the configured percents.
func exitLevels(side models.Side, entry float64, exit config.ExitConfig) (tp, sl float64) {
	tpFrac := exit.TakeProfitPercent / 100
	slFrac := exit.StopLossPercent / 100
	if side == models.SideLong {
		return entry * (1 + tpFrac), entry * (1 - slFrac)
	}
	return entry * (1 - tpFrac), entry * (1 + slFrac)
}
