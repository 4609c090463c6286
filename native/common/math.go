package common

import (
	"errors"
	"math"
)

var ErrCounterOverflow = errors.New("counter overflow")

// AddUint64 returns a+b, failing instead of wrapping around.
func AddUint64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrCounterOverflow
	}
	return a + b, nil
}

// MulUint64 returns a*b, failing instead of wrapping around.
func MulUint64(a, b uint64) (uint64, error) {
	if a != 0 && b > math.MaxUint64/a {
		return 0, ErrCounterOverflow
	}
	return a * b, nil
}

// SubUint64Clamped returns a-b, clamped at zero when b exceeds a. Callers use
// it only where a deficit is an expected, documented condition; everywhere
// else subtraction is guarded explicitly.
func SubUint64Clamped(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
