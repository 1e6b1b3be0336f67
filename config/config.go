package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func Load() (*Config, error) {
	// Missing .env is fine when the environment is set by the runtime.
	_ = godotenv.Load()

	mode := ModeSimulated
	if os.Getenv("TRADING_MODE") == "live" {
		mode = ModeLive
	}

	cfg := &Config{
		Mode: mode,
		Exchange: ExchangeConfig{
			APIKey:    os.Getenv("BINANCE_API_KEY"),
			SecretKey: os.Getenv("BINANCE_SECRET_KEY"),
			Testnet:   envToBool("BINANCE_TESTNET"),
		},
		Database: DatabaseConfig{
			Host:     os.Getenv("DB_HOST"),
			Port:     envToInt(os.Getenv("DB_PORT"), 5432),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   os.Getenv("DB_NAME"),
		},
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
			ChatID:   envToInt64(os.Getenv("TELEGRAM_CHAT_ID")),
		},
		Trading: TradingConfig{
			Leverage:          envToInt(os.Getenv("LEVERAGE"), 10),
			RiskFraction:      envToFloat(os.Getenv("RISK_FRACTION"), 0.1),
			InitialEquity:     envToFloat(os.Getenv("INITIAL_EQUITY"), 500.0),
			Interval:          envOr("TIMEFRAME", "5m"),
			CheckInterval:     envToDuration("CHECK_INTERVAL", 60*time.Second),
			ReconcileInterval: envToDuration("RECONCILE_INTERVAL", 20*time.Second),
			ReportInterval:    envToDuration("REPORT_INTERVAL", 15*time.Minute),
		},
		Exit: ExitConfig{
			TakeProfitPercent:  envToFloat(os.Getenv("TP_PERCENT"), 1.0),
			StopLossPercent:    envToFloat(os.Getenv("SL_PERCENT"), 2.0),
			TrailingPercent:    envToFloat(os.Getenv("TRAILING_PERCENT"), 0.5),
			TrailingActivation: 0.2,
		},
		Symbols:     getSymbols(),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		MetricsAddr: envOr("METRICS_ADDR", ":2112"),
	}

	if path := os.Getenv("STRATEGY_CONFIG"); path != "" {
		if err := loadExitConfig(path, &cfg.Exit); err != nil {
			return nil, fmt.Errorf("error loading strategy config: %w", err)
		}
	}

	if cfg.IsLive() && (cfg.Exchange.APIKey == "" || cfg.Exchange.SecretKey == "") {
		return nil, fmt.Errorf("live mode requires BINANCE_API_KEY and BINANCE_SECRET_KEY")
	}
	if cfg.Trading.ReconcileInterval < 10*time.Second || cfg.Trading.ReconcileInterval > 30*time.Second {
		return nil, fmt.Errorf("RECONCILE_INTERVAL must be between 10s and 30s, got %s", cfg.Trading.ReconcileInterval)
	}

	return cfg, nil
}

// loadExitConfig overrides TP/SL/trailing parameters from a YAML file.
func loadExitConfig(path string, exit *ExitConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, exit)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envToInt(s string, fallback int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return i
}

func envToInt64(s string) int64 {
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return i
}

func envToFloat(s string, fallback float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envToBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func envToDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}

// helper to get symbols
func getSymbols() []string {
	symbols := os.Getenv("TRADING_SYMBOLS")
	if symbols == "" {
		return []string{"BTCUSDT", "ETHUSDT"}
	}
	parts := strings.Split(symbols, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
