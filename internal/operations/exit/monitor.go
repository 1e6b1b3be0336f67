package exit

import (
	"context"

	"github.com/rs/zerolog/log"

	"MarginTradeBot/internal/models"
	"MarginTradeBot/internal/operations/store"
)

// Closer executes the actual close order for a position that hit an
// exit rule.
type Closer interface {
	Close(ctx context.Context, symbol string, origin models.Origin, reason string) error
}

// Monitor consumes price ticks and drives one exit machine per open
// position. Trackers are created lazily when a position first appears
// and dropped when it closes or leaves the store.
type Monitor struct {
	store    *store.Store
	closer   Closer
	ticks    <-chan models.Tick
	trackers map[trackerKey]*Tracker
}

type trackerKey struct {
	symbol string
	origin models.Origin
}

func NewMonitor(st *store.Store, closer Closer, ticks <-chan models.Tick) *Monitor {
	return &Monitor{
		store:    st,
		closer:   closer,
		ticks:    ticks,
		trackers: make(map[trackerKey]*Tracker),
	}
}

// Run blocks until the context is cancelled or the tick channel closes.
func (m *Monitor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-m.ticks:
			if !ok {
				return
			}
			m.handleTick(ctx, tick)
		}
	}
}

func (m *Monitor) handleTick(ctx context.Context, tick models.Tick) {
	symbol := models.NormalizeSymbol(tick.Symbol)
	for _, origin := range []models.Origin{models.OriginExchange, models.OriginSimulated} {
		pos, ok := m.store.GetByOrigin(symbol, origin)
		if !ok || pos.Status != models.StatusOpen {
			delete(m.trackers, trackerKey{symbol, origin})
			continue
		}

		key := trackerKey{symbol, origin}
		tr, ok := m.trackers[key]
		if !ok {
			tr = NewTracker(pos)
			m.trackers[key] = tr
		} else {
			tr.SetQuantity(pos.Quantity)
		}

		d := tr.Update(tick.Price)

		pos.CurrentPrice = tick.Price
		pos.UnrealizedPnL = d.PnL
		pos.TrailingActive = tr.Position().TrailingActive
		if err := m.store.Upsert(pos); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("could not refresh position price")
		}

		if !d.Close {
			continue
		}

		log.Info().
			Str("symbol", symbol).
			Str("reason", string(d.Reason)).
			Float64("price", d.Price).
			Float64("pnl", d.PnL).
			Msg("exit rule hit, closing position")

		if err := m.closer.Close(ctx, symbol, origin, string(d.Reason)); err != nil {
			log.Error().Err(err).Str("symbol", symbol).Str("reason", string(d.Reason)).Msg("close failed")
			// Rearm so the next tick retries the close.
			delete(m.trackers, key)
			continue
		}
		delete(m.trackers, key)
	}
}
