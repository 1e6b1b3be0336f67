package config

import "time"

// TradingMode selects whether orders reach the exchange.
type TradingMode string

const (
	ModeSimulated TradingMode = "simulated"
	ModeLive      TradingMode = "live"
)

type Config struct {
	Mode     TradingMode
	Exchange ExchangeConfig
	Database DatabaseConfig
	Telegram TelegramConfig
	Trading  TradingConfig
	Exit     ExitConfig
	Symbols  []string

	LogLevel    string
	MetricsAddr string
}

type ExchangeConfig struct {
	APIKey    string
	SecretKey string
	Testnet   bool
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

type TradingConfig struct {
	Leverage          int
	RiskFraction      float64
	InitialEquity     float64
	Interval          string
	CheckInterval     time.Duration
	ReconcileInterval time.Duration
	ReportInterval    time.Duration
}

// ExitConfig holds the TP/SL/trailing strategy parameters. Values may be
// overridden by the optional YAML strategy file.
type ExitConfig struct {
	TakeProfitPercent  float64 `yaml:"take_profit_percent"`
	StopLossPercent    float64 `yaml:"stop_loss_percent"`
	TrailingPercent    float64 `yaml:"trailing_percent"`
	TrailingActivation float64 `yaml:"trailing_activation"`
}

// IsLive reports whether orders are sent to the exchange.
func (c *Config) IsLive() bool {
	return c.Mode == ModeLive
}
