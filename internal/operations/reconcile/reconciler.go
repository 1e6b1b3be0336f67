// Package reconcile periodically replaces the cached exchange-origin
// positions with the authoritative exchange snapshot.
package reconcile

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"MarginTradeBot/internal/models"
	"MarginTradeBot/internal/operations/store"
	"MarginTradeBot/internal/services/metrics"
	"MarginTradeBot/internal/services/notify"
)

// Entries untouched for this long are considered stale and evicted.
const staleTTL = time.Hour

// PositionSource is the slice of the exchange gateway the reconciler needs.
type PositionSource interface {
	Positions(ctx context.Context) ([]models.ExchangePosition, error)
}

type Reconciler struct {
	source   PositionSource
	store    *store.Store
	notifier notify.Notifier
	interval time.Duration
}

func New(source PositionSource, st *store.Store, notifier notify.Notifier, interval time.Duration) *Reconciler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Reconciler{source: source, store: st, notifier: notifier, interval: interval}
}

// Run reconciles on a fixed interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reconciliation pass. When the exchange fetch
// fails the cache is left exactly as it was; a failed read must never
// look like a flat account.
func (r *Reconciler) RunOnce(ctx context.Context) {
	raw, err := r.source.Positions(ctx)
	if err != nil {
		metrics.ReconcileFailures.Inc()
		log.Warn().Err(err).Msg("position fetch failed, keeping cached state")
		return
	}

	authoritative := make([]models.Position, 0, len(raw))
	for _, ep := range raw {
		qty := math.Abs(ep.SignedAmount)
		if qty <= 0 {
			continue
		}
		authoritative = append(authoritative, models.Position{
			Symbol:        models.NormalizeSymbol(ep.Symbol),
			Side:          models.SideFromAmount(ep.SignedAmount),
			Quantity:      qty,
			EntryPrice:    ep.EntryPrice,
			CurrentPrice:  ep.MarkPrice,
			UnrealizedPnL: ep.UnrealizedPnL,
			Leverage:      ep.Leverage,
			Origin:        models.OriginExchange,
			Status:        models.StatusOpen,
		})
	}

	report := r.store.SyncExchange(authoritative)
	for _, sym := range report.Added {
		log.Info().Str("symbol", sym).Msg("adopted exchange position")
	}
	for _, sym := range report.Removed {
		log.Info().Str("symbol", sym).Msg("exchange position gone, evicted from cache")
	}
	for _, d := range report.Drifts {
		log.Warn().
			Str("symbol", d.Symbol).
			Float64("cached_qty", d.OldQty).
			Float64("exchange_qty", d.NewQty).
			Msg("position drift, exchange wins")
		r.notifier.Notify(notify.Event{
			Type:   notify.EventDrift,
			Symbol: d.Symbol,
			Text: fmt.Sprintf("drift on %s: cached %s %.8f, exchange %s %.8f",
				d.Symbol, d.OldSide, d.OldQty, d.NewSide, d.NewQty),
		})
	}

	for _, sym := range r.store.EvictStale(staleTTL) {
		log.Warn().Str("symbol", sym).Msg("stale position evicted")
	}

	metrics.OpenPositions.Set(float64(len(r.store.ListOpen())))
}
