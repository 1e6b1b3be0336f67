package models

import (
	"time"
)

// Candle is one OHLCV bar. Final bars are persisted; live bars only feed
// the tick stream.
type Candle struct {
	ID         uint      `gorm:"primaryKey"`
	Symbol     string    `gorm:"uniqueIndex:idx_candle_bar;not null"`
	Interval   string    `gorm:"uniqueIndex:idx_candle_bar;not null"`
	OpenTime   time.Time `gorm:"uniqueIndex:idx_candle_bar;not null"`
	CloseTime  time.Time `gorm:"index"`
	Open       float64   `gorm:"type:decimal(20,8)"`
	High       float64   `gorm:"type:decimal(20,8)"`
	Low        float64   `gorm:"type:decimal(20,8)"`
	Close      float64   `gorm:"type:decimal(20,8)"`
	Volume     float64   `gorm:"type:decimal(20,8)"`
	TradeCount int64
}

// TableName sets the table name for the Candle model.
func (Candle) TableName() string {
	return "candles"
}

// Tick is a single per-symbol price observation from the streaming feed.
type Tick struct {
	Symbol string
	Price  float64
	Time   time.Time
	Final  bool // closing tick of the interval bar
}
