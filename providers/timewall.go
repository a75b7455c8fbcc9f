package providers

import (
	"math"
	"net/url"
	"strconv"

	"github.com/rewardhive/backend/utils"
)

// TimeWallOptions carries the deployment configuration for the TimeWall
// integration.
type TimeWallOptions struct {
	// SecretKey is the postback secret from the TimeWall publisher
	// dashboard. Empty means authenticity checks are skipped for this
	// provider.
	SecretKey string
	// AllowedIPs restricts callers to the TimeWall postback servers.
	AllowedIPs []string
	// EnforceIP toggles the allowlist check. Defaults on; TimeWall
	// publishes its postback addresses and expects publishers to pin
	// them.
	EnforceIP bool
	// UnitsPerUSD converts currencyAmount (platform virtual currency)
	// into USD. Must be positive.
	UnitsPerUSD float64
	// MinCents is the smallest credit accepted, in USD cents.
	MinCents int64
}

// timewallProvider adapts TimeWall offerwall postbacks
type timewallProvider struct {
	opts TimeWallOptions
}

// NewTimeWall creates the TimeWall adapter
func NewTimeWall(opts TimeWallOptions) Provider {
	if opts.UnitsPerUSD <= 0 {
		opts.UnitsPerUSD = 1
	}
	return &timewallProvider{opts: opts}
}

func (p *timewallProvider) Name() string {
	return utils.ProviderTimeWall
}

// Authenticate pins the caller to the TimeWall postback addresses and
// recomputes the sha256 hash TimeWall builds from the user id, the raw
// revenue string, and the secret key. The revenue parameter is hashed
// exactly as sent, not after numeric normalization.
func (p *timewallProvider) Authenticate(query url.Values, callerIP string) error {
	if p.opts.EnforceIP && len(p.opts.AllowedIPs) > 0 && !ipAllowed(callerIP, p.opts.AllowedIPs) {
		return ErrForbiddenIP
	}
	if p.opts.SecretKey == "" {
		return nil
	}
	userID := firstParam(query, "userID", "userId", "user_id")
	revenue := query.Get("revenue")
	want := sha256Hex(userID + revenue + p.opts.SecretKey)
	if hashEquals(query.Get("hash"), want) {
		return nil
	}
	return ErrInvalidHash
}

// Parse maps the TimeWall query vocabulary. currencyAmount is signed and
// denominated in the platform's virtual currency; it is converted to USD
// cents through the configured exchange rate and its magnitude is kept,
// the type parameter carrying the direction.
func (p *timewallProvider) Parse(query url.Values) (*Event, error) {
	userRaw := firstParam(query, "userID", "userId", "user_id")
	transID := firstParam(query, "transactionID", "transactionId", "transaction_id")
	if userRaw == "" || transID == "" {
		return nil, ErrMissingUserOrTx
	}
	userID, err := strconv.ParseUint(userRaw, 10, 64)
	if err != nil {
		return nil, ErrMissingUserOrTx
	}

	event := &Event{
		Provider:     p.Name(),
		UserID:       uint(userID),
		ExternalTxID: transID,
		Raw:          rawParams(query, "userID", "userId", "user_id", "transactionID", "transactionId", "transaction_id", "currencyAmount", "revenue", "type"),
	}

	kind := query.Get("type")
	if kind == "" {
		return nil, ErrInvalidStatus
	}
	switch kind {
	case "credit":
		event.Kind = EventCredit
	case "chargeback":
		event.Kind = EventReversal
	default:
		event.Kind = EventIgnored
		return event, nil
	}

	cents, err := p.convertAmount(query.Get("currencyAmount"))
	if err != nil {
		return nil, err
	}
	if event.Kind == EventCredit && cents < p.opts.MinCents {
		return nil, ErrAmountBelowMinimum
	}
	event.GrossCents = cents
	return event, nil
}

// convertAmount turns a signed virtual-currency figure into a positive
// USD cent magnitude via the configured exchange rate.
func (p *timewallProvider) convertAmount(raw string) (int64, error) {
	if raw == "" {
		return 0, ErrInvalidAmount
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidAmount
	}
	usd := math.Abs(f) / p.opts.UnitsPerUSD
	if usd > maxAmountDollars {
		return 0, ErrInvalidAmount
	}
	cents := utils.RoundToCents(usd)
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}
