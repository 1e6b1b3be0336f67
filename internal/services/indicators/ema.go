// Package indicators holds the technical calculations the signal layer
// builds on.
package indicators

// EMA computes the exponential moving average over the full series. The
// first period-1 slots are zero; slot period-1 is seeded with the SMA.
// Returns nil when the series is shorter than the period.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}

	out := make([]float64, len(prices))
	multiplier := 2.0 / float64(period+1)

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	out[period-1] = sum / float64(period)

	for i := period; i < len(prices); i++ {
		out[i] = (prices[i]-out[i-1])*multiplier + out[i-1]
	}
	return out
}

// LastEMA returns the final EMA value, or 0 when the series is too short.
func LastEMA(prices []float64, period int) float64 {
	series := EMA(prices, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
