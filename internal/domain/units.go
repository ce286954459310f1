package domain

import "math"

// fromTenths converts a raw tenths value to its physical unit.
func fromTenths(tenths int) float64 {
	return float64(tenths) / 10
}

// round1 rounds to one decimal place, ties away from zero.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
