package providers

import (
	"math"
	"strconv"

	"github.com/rewardhive/backend/utils"
)

// maxAmountDollars bounds the magnitude of any single postback amount.
// No network legitimately reports anything near it, and keeping the
// figure well inside int64 cent range means the float to cents
// conversion is always defined; out-of-range conversions are
// implementation specific and can surface as math.MinInt64, whose
// negation is itself.
const maxAmountDollars = 1_000_000

// ParseAmount parses an untrusted decimal string into USD cents. The
// input is never trusted: unparseable, non-finite, or absurdly large
// values are rejected. Rounding is half away from zero so the same raw
// input always normalizes identically. The sign is preserved; callers
// that require a positive amount use NormalizeCreditAmount.
func ParseAmount(raw string) (int64, error) {
	if raw == "" {
		return 0, ErrInvalidAmount
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidAmount
	}
	if f > maxAmountDollars || f < -maxAmountDollars {
		return 0, ErrInvalidAmount
	}
	return utils.RoundToCents(f), nil
}

// NormalizeCreditAmount parses a gross credit amount and enforces the
// configured minimum. Zero and negative amounts are rejected outright;
// positive amounts below minCents are rejected as dust.
func NormalizeCreditAmount(raw string, minCents int64) (int64, error) {
	cents, err := ParseAmount(raw)
	if err != nil {
		return 0, err
	}
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	if cents < minCents {
		return 0, ErrAmountBelowMinimum
	}
	return cents, nil
}
