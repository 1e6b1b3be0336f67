package models

import (
	"strings"
	"time"
)

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite returns the closing side for an open position.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Origin tags where a position came from. Simulated positions exist only
// locally; Exchange positions mirror Binance's authoritative state.
type Origin string

const (
	OriginSimulated Origin = "simulated"
	OriginExchange  Origin = "exchange"
)

// PositionStatus is the lifecycle state of a tracked position.
type PositionStatus string

const (
	StatusPending PositionStatus = "pending"
	StatusOpen    PositionStatus = "open"
	StatusClosed  PositionStatus = "closed"
)

// Position is the locally tracked view of one derivative position.
// At most one entry per (symbol, origin) exists in the store.
type Position struct {
	Symbol        string
	Side          Side
	Quantity      float64
	EntryPrice    float64
	CurrentPrice  float64
	UnrealizedPnL float64
	RealizedPnL   float64
	Leverage      int
	Origin        Origin
	Status        PositionStatus

	TakeProfitPrice float64
	StopLossPrice   float64
	TrailingActive  bool
	TrailingPercent float64
	// TrailingActivation is the favorable move from entry, in percent,
	// that arms the trailing stop. Zero means the tracker default.
	TrailingActivation float64

	OrderID     int64
	LastUpdated time.Time
}

// PnLAt returns the unrealized profit at the given mark price.
func (p Position) PnLAt(price float64) float64 {
	if p.Side == SideLong {
		return (price - p.EntryPrice) * p.Quantity
	}
	return (p.EntryPrice - price) * p.Quantity
}

// NormalizeSymbol is the single canonical symbol rule: uppercase, trimmed,
// exactly as Binance reports it. No suffix stripping anywhere.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// SideFromAmount derives the side from a signed exchange position amount.
func SideFromAmount(amt float64) Side {
	if amt >= 0 {
		return SideLong
	}
	return SideShort
}
