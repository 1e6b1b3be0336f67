package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"MarginTradeBot/config"
	"MarginTradeBot/internal/handlers"
	"MarginTradeBot/internal/models"
	"MarginTradeBot/internal/operations/exit"
	"MarginTradeBot/internal/operations/gateway"
	"MarginTradeBot/internal/operations/lifecycle"
	"MarginTradeBot/internal/operations/price"
	"MarginTradeBot/internal/operations/reconcile"
	"MarginTradeBot/internal/operations/store"
	"MarginTradeBot/internal/repositories"
	"MarginTradeBot/internal/services/metrics"
	"MarginTradeBot/internal/services/notify"
	"MarginTradeBot/internal/services/strategy"
)

const (
	maxRestarts  = 10
	restartDelay = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	restarts := 0
	for {
		err := run(ctx, cfg)
		if ctx.Err() != nil {
			log.Info().Msg("shutdown complete")
			return
		}
		restarts++
		if restarts > maxRestarts {
			log.Error().Err(err).Int("restarts", restarts-1).Msg("restart budget exhausted")
			os.Exit(1)
		}
		log.Error().Err(err).Int("restart", restarts).Msg("session died, restarting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(restartDelay):
		}
	}
}

// run wires and starts one bot session. It blocks until the context is
// cancelled or a fatal setup error occurs.
func run(ctx context.Context, cfg *config.Config) error {
	log.Info().
		Str("mode", string(cfg.Mode)).
		Strs("symbols", cfg.Symbols).
		Bool("testnet", cfg.Exchange.Testnet).
		Msg("starting session")

	var journal lifecycle.Journal
	var candleSink price.CandleSink
	if cfg.Database.Host != "" {
		db, err := setupDatabase(cfg.Database)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		trades := repositories.NewTradeLogRepository(db)
		journal = trades
		candleSink = repositories.NewCandleRepository(db)
		logClosedHistory(trades)
	} else {
		log.Warn().Msg("no database configured, journal disabled")
	}

	gw := gateway.New(cfg.Exchange.APIKey, cfg.Exchange.SecretKey, cfg.Exchange.Testnet)
	if err := gw.SyncClock(ctx); err != nil {
		return fmt.Errorf("clock sync: %w", err)
	}

	st := store.New()

	cache := price.NewCache(500)
	fetcher := price.NewFetcher(gw, candleSink, cache)
	if err := fetcher.Bootstrap(ctx, cfg.Symbols, cfg.Trading.Interval); err != nil {
		return fmt.Errorf("history bootstrap: %w", err)
	}

	sessionCtx, stop := context.WithCancel(ctx)
	defer stop()

	var notifier notify.Notifier = notify.Nop{}
	var controls notify.Controls = notify.Nop{}
	var lc *lifecycle.Lifecycle
	if cfg.Telegram.BotToken != "" {
		bot, err := notify.NewBot(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			func() string { return renderPositions(st.ListOpen()) },
			func() string { return renderPnL(sessionCtx, lc) })
		if err != nil {
			log.Warn().Err(err).Msg("telegram disabled")
		} else {
			notifier, controls = bot, bot
			go func() {
				if err := bot.Run(); err != nil {
					log.Warn().Err(err).Msg("telegram listener stopped")
				}
			}()
		}
	}
	lc = lifecycle.New(gw, st, notifier, journal, cfg)

	go metrics.Serve(cfg.MetricsAddr)

	feed := price.NewFeed(cfg.Symbols, cfg.Trading.Interval, cache, candleSink, cfg.Exchange.Testnet)
	go feed.Run(sessionCtx)

	reconciler := reconcile.New(gw, st, notifier, cfg.Trading.ReconcileInterval)
	if cfg.IsLive() {
		reconciler.RunOnce(sessionCtx)
		go reconciler.Run(sessionCtx)
	}

	trader := handlers.NewTradeHandler(lc, strategy.NewBreakout(cache), st, controls, cfg.Symbols, cfg.Trading.CheckInterval)
	go trader.Run(sessionCtx)

	var income handlers.IncomeSource
	if cfg.IsLive() {
		income = gw
	}
	reporter := handlers.NewMonitorHandler(lc, st, notifier, income, cfg.Trading.ReportInterval, cfg.Trading.InitialEquity)
	go reporter.Run(sessionCtx)

	log.Info().Msg("session running")

	// The exit monitor is the session's foreground loop. It returns when
	// the context ends or the tick stream dies; the latter is a session
	// failure the supervisor should restart.
	monitor := exit.NewMonitor(st, lc, feed.Ticks())
	monitor.Run(sessionCtx)
	if sessionCtx.Err() == nil {
		return fmt.Errorf("price feed terminated")
	}
	return sessionCtx.Err()
}

func renderPositions(open []models.Position) string {
	if len(open) == 0 {
		return "no open positions"
	}
	var b strings.Builder
	for i, p := range open {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s qty=%.8f entry=%.4f upnl=%.4f", p.Side, p.Symbol, p.Quantity, p.EntryPrice, p.UnrealizedPnL)
	}
	return b.String()
}

func renderPnL(ctx context.Context, lc *lifecycle.Lifecycle) string {
	if lc == nil {
		return "starting up"
	}
	equity, err := lc.Equity(ctx)
	if err != nil {
		return fmt.Sprintf("equity unavailable: %v", err)
	}
	return fmt.Sprintf("equity %.2f", equity)
}

// logClosedHistory surfaces the recent trading record at startup so a
// restarted session shows where it left off.
func logClosedHistory(trades *repositories.TradeLogRepository) {
	since := time.Now().Add(-24 * time.Hour)
	entries, err := trades.FindSince(since)
	if err != nil {
		log.Warn().Err(err).Msg("could not load trade history")
		return
	}
	closes := 0
	for _, e := range entries {
		if e.Action == models.TradeActionClose {
			closes++
		}
	}
	realized, err := trades.RealizedPnL(since)
	if err != nil {
		log.Warn().Err(err).Msg("could not sum realized pnl")
		return
	}
	log.Info().Int("closed_trades_24h", closes).Float64("realized_pnl_24h", realized).Msg("trade history loaded")
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func setupDatabase(dbConfig config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.DBName)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&models.TradeLog{}, &models.Candle{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}
