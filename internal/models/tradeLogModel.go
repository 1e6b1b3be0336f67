package models

import "time"

// TradeAction is the journal record type.
type TradeAction string

const (
	TradeActionOpen  TradeAction = "OPEN"
	TradeActionClose TradeAction = "CLOSE"
)

// TradeLog is one append-only journal record of an open or close.
type TradeLog struct {
	ID        uint        `gorm:"primaryKey"`
	Timestamp time.Time   `gorm:"index;not null"`
	Action    TradeAction `gorm:"not null"`
	Symbol    string      `gorm:"index;not null"`
	Side      Side        `gorm:"not null"`
	Price     float64     `gorm:"type:decimal(20,8);not null"`
	Quantity  float64     `gorm:"type:decimal(20,8);not null"`
	PnL       float64     `gorm:"type:decimal(20,8)"`
	Equity    float64     `gorm:"type:decimal(20,8)"`
	Reason    string
	Mode      string `gorm:"not null"`
}

// TableName sets the table name for the TradeLog model.
func (TradeLog) TableName() string {
	return "trade_logs"
}
