// internal/services/mathutil.go
package services

import (
	"math"
	"math/bits"
)

// mulDiv returns floor(x*y/denominator) using a 128-bit intermediate product.
// A zero denominator yields zero.
func mulDiv(x, y, denominator uint64) (uint64, error) {
	if denominator == 0 {
		return 0, nil
	}
	hi, lo := bits.Mul64(x, y)
	if hi >= denominator {
		return 0, ErrAmountOverflow
	}
	quo, _ := bits.Div64(hi, lo, denominator)
	return quo, nil
}

func addAmount(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

func mulAmount(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrAmountOverflow
	}
	return lo, nil
}
