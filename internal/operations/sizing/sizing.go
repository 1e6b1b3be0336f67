// Package sizing converts equity, risk and leverage into an
// exchange-legal order quantity. Pure arithmetic, no exchange calls.
package sizing

import (
	"math"
	"strconv"
	"strings"

	"MarginTradeBot/internal/models"
)

const (
	epsilon = 1e-8

	// Safety margin applied when escalating to the minimum notional, so
	// the quantity survives downstream step rounding.
	minNotionalMargin = 1.05

	// Implied risk above this fraction of equity aborts the open.
	maxImpliedRisk = 0.5

	// Cap any single position at this fraction of equity.
	maxEquityShare = 0.20
)

// Result is the outcome of a sizing computation. When Unsafe is set the
// caller must abort the open instead of submitting Quantity.
type Result struct {
	Quantity    float64
	Unsafe      bool
	ImpliedRisk float64
}

// Quantity computes the order quantity for the given inputs. The branch
// order is load-bearing: minimum-notional escalation runs before the
// equity cap, and step quantization before the min/max clamp.
func Quantity(price, equity, riskFraction float64, leverage int, c models.SymbolConstraints) Result {
	if price <= 0 || equity <= 0 {
		return Result{Unsafe: true}
	}

	qty := math.Max(epsilon, equity*riskFraction*float64(leverage)/price)
	impliedRisk := riskFraction

	if qty*price < c.MinNotional {
		qty = c.MinNotional * minNotionalMargin / price
		impliedRisk = (c.MinNotional / float64(leverage)) / equity
		if impliedRisk > maxImpliedRisk {
			return Result{Unsafe: true, ImpliedRisk: impliedRisk}
		}
	}

	if qty*price > maxEquityShare*equity {
		qty = FloorToStep(maxEquityShare*equity/price, c.StepSize)
	} else {
		qty = FloorToStep(qty, c.StepSize)
	}

	if c.MinQty > 0 && qty < c.MinQty {
		qty = c.MinQty
	}
	if c.MaxQty > 0 && qty > c.MaxQty {
		qty = c.MaxQty
	}

	return Result{Quantity: qty, ImpliedRisk: impliedRisk}
}

// FloorToStep rounds value down to a multiple of step and trims the
// floating point noise the division leaves behind.
func FloorToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	steps := math.Floor(value/step + 1e-9)
	return roundToPrecision(steps*step, StepPrecision(step))
}

// CeilToStep rounds value up to a multiple of step.
func CeilToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	steps := math.Ceil(value/step - 1e-9)
	return roundToPrecision(steps*step, StepPrecision(step))
}

// StepPrecision is the number of decimal places a step size carries,
// used to format quantities for the exchange.
func StepPrecision(step float64) int {
	s := strconv.FormatFloat(step, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

func roundToPrecision(v float64, prec int) float64 {
	pow := math.Pow(10, float64(prec))
	return math.Round(v*pow) / pow
}
