package mathx

import "math"

// Tolerance is the absolute epsilon used for every "within rounding" comparison
// in the simulation.
const Tolerance = 1e-10

func FloatsAreEqual(a, b float64) bool {
	return math.Abs(a-b) <= Tolerance
}

// IsLessThan reports a < b by more than Tolerance.
func IsLessThan(a, b float64) bool {
	return a < b && !FloatsAreEqual(a, b)
}

// IsGreaterThan reports a > b by more than Tolerance.
func IsGreaterThan(a, b float64) bool {
	return a > b && !FloatsAreEqual(a, b)
}

// Divide returns a/b, or def when b is zero within Tolerance.
func Divide(a, b, def float64) float64 {
	if math.Abs(b) <= Tolerance {
		return def
	}
	return a / b
}

func Bound(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func Clamp01(v float64) float64 {
	return Bound(v, 0, 1)
}
