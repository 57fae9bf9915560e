// Package ticks snaps prices and sizes onto venue increments using exact
// decimal arithmetic.
package ticks

import (
	"fmt"

	"ccgateway/models"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// RoundToTick returns the multiple of tick nearest to value. Ties round half
// away from zero, which is half-up for prices.
func RoundToTick(value, tick decimal.Decimal) (decimal.Decimal, error) {
	if !tick.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: tick %s", models.ErrUnsupported, tick)
	}
	// q is truncated toward zero and r carries the sign of value.
	q, r := value.QuoRem(tick, 0)
	if r.Abs().Mul(two).GreaterThanOrEqual(tick) {
		if value.IsNegative() {
			q = q.Sub(decimal.NewFromInt(1))
		} else {
			q = q.Add(decimal.NewFromInt(1))
		}
	}
	return q.Mul(tick), nil
}

// FloorToTick returns the largest multiple of tick not exceeding value.
func FloorToTick(value, tick decimal.Decimal) (decimal.Decimal, error) {
	if !tick.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: tick %s", models.ErrUnsupported, tick)
	}
	q, r := value.QuoRem(tick, 0)
	if r.IsNegative() {
		q = q.Sub(decimal.NewFromInt(1))
	}
	return q.Mul(tick), nil
}
