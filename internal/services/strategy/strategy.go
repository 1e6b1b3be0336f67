// Package strategy decides when to enter. It only produces signals;
// sizing and order placement live in the lifecycle package.
package strategy

import "MarginTradeBot/internal/models"

// Signal is an entry suggestion for one symbol.
type Signal struct {
	Symbol string
	Side   models.Side
	Price  float64
	Reason string
}

// SignalSource evaluates one symbol against cached market data.
// Implementations must be pure reads: no exchange calls.
type SignalSource interface {
	Evaluate(symbol string) (Signal, bool)
}
