package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_api_requests_total",
		Help: "Exchange API calls issued through the gateway.",
	}, []string{"op"})

	APIErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_api_errors_total",
		Help: "Exchange API failures by classified kind.",
	}, []string{"op", "kind"})

	ThrottleDelays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_throttle_delays_total",
		Help: "Times the gateway blocked waiting for the rate window.",
	})

	ReconcileFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_reconcile_failures_total",
		Help: "Reconciliation passes that could not fetch exchange positions.",
	})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_open_positions",
		Help: "Positions currently tracked as open.",
	})

	Equity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_equity_usdt",
		Help: "Last observed account equity in USDT.",
	})
)

// Serve exposes /metrics on addr. Blocks; run in its own goroutine.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
	}
}
