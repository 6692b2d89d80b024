package types

import (
	"errors"
	"math"
)

var (
	// ErrOverflow is returned when integer arithmetic would wrap.
	ErrOverflow = errors.New("types: arithmetic overflow")

	// ErrCurrencyMismatch is returned when combining values in different currencies.
	ErrCurrencyMismatch = errors.New("types: currency mismatch")
)

// AddInt64 returns a+b or ErrOverflow.
func AddInt64(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// SubInt64 returns a-b or ErrOverflow.
func SubInt64(a, b int64) (int64, error) {
	if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// MulInt64 returns a*b or ErrOverflow.
func MulInt64(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, ErrOverflow
	}
	product := a * b
	if product/b != a {
		return 0, ErrOverflow
	}
	return product, nil
}
