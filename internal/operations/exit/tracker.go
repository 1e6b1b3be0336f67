// Package exit implements the take-profit / stop-loss / trailing-stop
// state machine that decides when an open position must be closed.
package exit

import (
	"MarginTradeBot/internal/models"
)

// State of one tracked position's exit machine.
type State int

const (
	// Armed: position open, trailing not yet activated.
	Armed State = iota
	// TrailingActive: price has moved favorably past the activation
	// threshold; the trailing stop now ratchets with the extreme.
	TrailingActive
	// Closed: a close decision has been emitted.
	Closed
)

// CloseReason records which rule fired. Evaluation order is fixed:
// take-profit, then stop-loss, then trailing.
type CloseReason string

const (
	ReasonTakeProfit CloseReason = "TP"
	ReasonStopLoss   CloseReason = "SL"
	ReasonTrailing   CloseReason = "TRAILING"
)

// Fallback activation threshold when the position carries none: 0.2%
// favorable move from entry.
const defaultTrailingActivation = 0.002

// Decision is the outcome of feeding one tick to a tracker.
type Decision struct {
	Close  bool
	Reason CloseReason
	Price  float64
	PnL    float64
}

// Tracker runs the exit machine for a single position. Not safe for
// concurrent use; the monitor serializes ticks per symbol.
type Tracker struct {
	pos        models.Position
	state      State
	runningMax float64
	runningMin float64
}

func NewTracker(pos models.Position) *Tracker {
	t := &Tracker{
		pos:        pos,
		state:      Armed,
		runningMax: pos.EntryPrice,
		runningMin: pos.EntryPrice,
	}
	if pos.TrailingActive {
		t.state = TrailingActive
	}
	return t
}

// State reports the machine's current state.
func (t *Tracker) State() State { return t.state }

// Position returns the tracked position snapshot.
func (t *Tracker) Position() models.Position { return t.pos }

// SetQuantity resyncs the tracked quantity after reconciliation drift.
func (t *Tracker) SetQuantity(qty float64) { t.pos.Quantity = qty }

// Update feeds one price tick through the machine. The running extreme is
// updated on every tick regardless of state; close conditions are then
// evaluated in fixed priority order. PnL is computed at the tick price.
func (t *Tracker) Update(price float64) Decision {
	if t.state == Closed || price <= 0 {
		return Decision{Price: price}
	}

	if price > t.runningMax {
		t.runningMax = price
	}
	if price < t.runningMin {
		t.runningMin = price
	}

	if t.state == Armed && t.favorableMove(price) >= t.activation() {
		t.state = TrailingActive
		t.pos.TrailingActive = true
	}

	pnl := t.pos.PnLAt(price)
	if reason, ok := t.closeReason(price, pnl); ok {
		t.state = Closed
		return Decision{Close: true, Reason: reason, Price: price, PnL: pnl}
	}
	return Decision{Price: price, PnL: pnl}
}

// activation converts the position's configured activation percent to a
// fraction, falling back to the default when unset.
func (t *Tracker) activation() float64 {
	if t.pos.TrailingActivation > 0 {
		return t.pos.TrailingActivation / 100
	}
	return defaultTrailingActivation
}

// favorableMove is the fractional move from entry in the position's favor.
func (t *Tracker) favorableMove(price float64) float64 {
	if t.pos.EntryPrice <= 0 {
		return 0
	}
	if t.pos.Side == models.SideLong {
		return (price - t.pos.EntryPrice) / t.pos.EntryPrice
	}
	return (t.pos.EntryPrice - price) / t.pos.EntryPrice
}

func (t *Tracker) closeReason(price, pnl float64) (CloseReason, bool) {
	tp, sl := t.pos.TakeProfitPrice, t.pos.StopLossPrice
	trail := t.pos.TrailingPercent / 100

	if t.pos.Side == models.SideLong {
		if tp > 0 && price >= tp {
			return ReasonTakeProfit, true
		}
		if sl > 0 && price <= sl {
			return ReasonStopLoss, true
		}
		if t.state == TrailingActive && trail > 0 &&
			price < t.runningMax*(1-trail) && pnl > 0 {
			return ReasonTrailing, true
		}
		return "", false
	}

	if tp > 0 && price <= tp {
		return ReasonTakeProfit, true
	}
	if sl > 0 && price >= sl {
		return ReasonStopLoss, true
	}
	if t.state == TrailingActive && trail > 0 &&
		price > t.runningMin*(1+trail) && pnl > 0 {
		return ReasonTrailing, true
	}
	return "", false
}
