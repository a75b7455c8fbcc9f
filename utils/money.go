package utils

import (
	"fmt"
	"math"
)

// Monetary values are carried as integer cents everywhere internally.
// Rounding is half away from zero, applied uniformly so the same input
// always normalizes to the same amount.

// RoundToCents converts a dollar amount to integer cents, rounding half
// away from zero.
func RoundToCents(dollars float64) int64 {
	return int64(math.Round(dollars * 100))
}

// RoundCents rounds a fractional cent amount to whole cents, half away
// from zero.
func RoundCents(cents float64) int64 {
	return int64(math.Round(cents))
}

// CentsToDollars converts integer cents to a float dollar amount for
// display and JSON responses.
func CentsToDollars(cents int64) float64 {
	return float64(cents) / 100
}

// FormatCents renders integer cents as a plain decimal string, e.g. 700 -> "7.00".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
