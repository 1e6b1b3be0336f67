package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"MarginTradeBot/internal/models"
	"MarginTradeBot/internal/operations/lifecycle"
	"MarginTradeBot/internal/operations/store"
	"MarginTradeBot/internal/services/metrics"
	"MarginTradeBot/internal/services/notify"
)

// Equity below this fraction of the configured starting balance raises
// a warning.
const lowEquityFraction = 0.5

// IncomeSource provides recent realized income records for the report.
// Nil when running simulated.
type IncomeSource interface {
	IncomeHistory(ctx context.Context, symbol string, limit int64) ([]models.Income, error)
}

type MonitorHandler struct {
	lifecycle     *lifecycle.Lifecycle
	store         *store.Store
	notifier      notify.Notifier
	income        IncomeSource
	interval      time.Duration
	initialEquity float64

	warnedLow bool
}

func NewMonitorHandler(
	lc *lifecycle.Lifecycle,
	st *store.Store,
	notifier notify.Notifier,
	income IncomeSource,
	interval time.Duration,
	initialEquity float64,
) *MonitorHandler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &MonitorHandler{
		lifecycle:     lc,
		store:         st,
		notifier:      notifier,
		income:        income,
		interval:      interval,
		initialEquity: initialEquity,
	}
}

// Run emits a periodic account report and keeps the equity gauge fresh.
func (h *MonitorHandler) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.report(ctx)
		}
	}
}

func (h *MonitorHandler) report(ctx context.Context) {
	equity, err := h.lifecycle.Equity(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("equity read failed")
		return
	}
	metrics.Equity.Set(equity)

	open := h.store.ListOpen()
	metrics.OpenPositions.Set(float64(len(open)))

	var b strings.Builder
	fmt.Fprintf(&b, "equity %.2f, %d open", equity, len(open))
	for _, p := range open {
		fmt.Fprintf(&b, "\n%s %s qty=%.8f entry=%.4f upnl=%.4f", p.Side, p.Symbol, p.Quantity, p.EntryPrice, p.UnrealizedPnL)
	}
	if h.income != nil {
		if records, err := h.income.IncomeHistory(ctx, "", 50); err != nil {
			log.Warn().Err(err).Msg("income history read failed")
		} else {
			realized := 0.0
			for _, r := range records {
				if r.IncomeType == "REALIZED_PNL" {
					realized += r.Income
				}
			}
			fmt.Fprintf(&b, "\nrecent realized pnl %.4f", realized)
		}
	}
	h.notifier.Notify(notify.Event{Type: notify.EventReport, Text: b.String()})
	log.Info().Float64("equity", equity).Int("open", len(open)).Msg("account report")

	if h.initialEquity > 0 && equity < h.initialEquity*lowEquityFraction {
		if !h.warnedLow {
			h.warnedLow = true
			h.notifier.Notify(notify.Event{
				Type: notify.EventError,
				Text: fmt.Sprintf("equity %.2f is below half the starting balance %.2f", equity, h.initialEquity),
			})
		}
	} else {
		h.warnedLow = false
	}
}
