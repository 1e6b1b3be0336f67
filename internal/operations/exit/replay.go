package exit

import "MarginTradeBot/internal/models"

// Replay runs the exit machine over a historical price sequence without
// side effects. It returns the decision of the first closing tick, or a
// zero Decision when no rule fired. Replaying the same inputs always
// yields the same result.
func Replay(pos models.Position, prices []float64) Decision {
	t := NewTracker(pos)
	for _, p := range prices {
		if d := t.Update(p); d.Close {
			return d
		}
	}
	return Decision{}
}
