package utils

// Currency and payout constants
const (
	// USDCurrency is the platform ledger currency
	USDCurrency = "USD"

	// DefaultPayoutRatio is the share of a provider-reported gross amount
	// credited to the user (the platform retains the remainder)
	DefaultPayoutRatio = 0.7

	// DefaultBonusMultiplier is applied on top of the payout ratio for
	// bonus-flagged events
	DefaultBonusMultiplier = 1.2

	// DefaultMinPostbackCents is the minimum accepted postback amount
	// (1 cent); anything below is rejected as dust
	DefaultMinPostbackCents = 1
)

// Provider names used for journal namespacing and metrics labels
const (
	ProviderCPX      = "CPX"
	ProviderBitLabs  = "BITLABS"
	ProviderTimeWall = "TIMEWALL"
)
