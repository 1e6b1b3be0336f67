package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"MarginTradeBot/internal/operations/gateway"
	"MarginTradeBot/internal/operations/lifecycle"
	"MarginTradeBot/internal/operations/store"
	"MarginTradeBot/internal/services/notify"
	"MarginTradeBot/internal/services/strategy"
)

// Consecutive failures multiply the per-symbol cooldown up to this cap.
const maxBackoffMultiplier = 8

type TradeHandler struct {
	lifecycle *lifecycle.Lifecycle
	source    strategy.SignalSource
	store     *store.Store
	controls  notify.Controls
	symbols   []string
	interval  time.Duration

	failures map[string]int
	cooldown map[string]time.Time
}

func NewTradeHandler(
	lc *lifecycle.Lifecycle,
	source strategy.SignalSource,
	st *store.Store,
	controls notify.Controls,
	symbols []string,
	interval time.Duration,
) *TradeHandler {
	if controls == nil {
		controls = notify.Nop{}
	}
	return &TradeHandler{
		lifecycle: lc,
		source:    source,
		store:     st,
		controls:  controls,
		symbols:   symbols,
		interval:  interval,
		failures:  make(map[string]int),
		cooldown:  make(map[string]time.Time),
	}
}

// Run drives the entry loop: every interval it resolves pending orders
// and evaluates each symbol for a new entry. A single symbol failing
// must never stall the others.
func (h *TradeHandler) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.lifecycle.ResolvePending(ctx)
			if !h.controls.ShouldTrade() {
				continue
			}
			for _, symbol := range h.symbols {
				h.evaluate(ctx, symbol)
			}
		}
	}
}

func (h *TradeHandler) evaluate(ctx context.Context, symbol string) {
	if until, ok := h.cooldown[symbol]; ok && time.Now().Before(until) {
		return
	}
	if _, held := h.store.Get(symbol); held {
		return
	}

	sig, ok := h.source.Evaluate(symbol)
	if !ok {
		return
	}
	log.Info().Str("symbol", symbol).Str("side", string(sig.Side)).Str("reason", sig.Reason).Msg("entry signal")

	err := h.lifecycle.Open(ctx, symbol, sig.Side)
	if err == nil {
		h.failures[symbol] = 0
		delete(h.cooldown, symbol)
		return
	}
	if errors.Is(err, lifecycle.ErrDuplicatePosition) {
		return
	}

	h.failures[symbol]++
	mult := h.failures[symbol]
	if mult > maxBackoffMultiplier {
		mult = maxBackoffMultiplier
	}
	wait := h.interval * time.Duration(mult)
	if gateway.KindOf(err) == gateway.KindThrottled {
		wait = h.interval * maxBackoffMultiplier
	}
	h.cooldown[symbol] = time.Now().Add(wait)
	log.Error().Err(err).Str("symbol", symbol).Dur("cooldown", wait).Msg("open failed, backing off")
}
