package providers

import (
	"net/url"
	"strconv"

	"github.com/rewardhive/backend/utils"
)

// CPXOptions carries the deployment configuration for the CPX Research
// integration.
type CPXOptions struct {
	// Secret is the app secure hash from the CPX dashboard. Empty means
	// authenticity checks are skipped for this provider.
	Secret string
	// AllowedIPs optionally restricts callers to the CPX postback
	// servers. Empty means no IP restriction.
	AllowedIPs []string
	// MinCents is the smallest credit accepted, in USD cents.
	MinCents int64
}

// cpxProvider adapts CPX Research survey postbacks
type cpxProvider struct {
	opts CPXOptions
}

// NewCPX creates the CPX Research adapter
func NewCPX(opts CPXOptions) Provider {
	return &cpxProvider{opts: opts}
}

func (p *cpxProvider) Name() string {
	return utils.ProviderCPX
}

// Authenticate checks the md5 postback hash CPX computes over the
// transaction id and the shared secret. A matching plain secret
// parameter is accepted as an alternative (either one suffices). The
// optional IP allowlist is enforced only when configured.
func (p *cpxProvider) Authenticate(query url.Values, callerIP string) error {
	if len(p.opts.AllowedIPs) > 0 && !ipAllowed(callerIP, p.opts.AllowedIPs) {
		return ErrForbiddenIP
	}
	if p.opts.Secret == "" {
		return nil
	}
	if secureEquals(query.Get("secret"), p.opts.Secret) {
		return nil
	}
	transID := firstParam(query, "trans_id", "transaction_id")
	want := md5Hex(transID + "-" + p.opts.Secret)
	if hashEquals(firstParam(query, "hash", "secure_hash"), want) {
		return nil
	}
	// Name the credential the caller actually presented: a request
	// carrying only the plain secret parameter failed on the secret, not
	// on a hash it never sent.
	if query.Get("secret") != "" && firstParam(query, "hash", "secure_hash") == "" {
		return ErrInvalidSecret
	}
	return ErrInvalidHash
}

// Parse maps the CPX query vocabulary: status 1/completed is a credit,
// status 2/canceled/chargeback is a reversal, any other value is
// ignored, an absent status is malformed.
// The USD amount is preferred; amount_local is a fallback some campaign
// setups send instead.
func (p *cpxProvider) Parse(query url.Values) (*Event, error) {
	userRaw := firstParam(query, "user_id", "subid", "sub_id")
	transID := firstParam(query, "trans_id", "transaction_id")
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
		Raw:          rawParams(query, "user_id", "subid", "sub_id", "trans_id", "transaction_id", "status", "amount_usd", "amount_local", "type", "offer_id"),
	}

	kindParam := query.Get("type")
	event.IsBonus = kindParam == "bonus" || kindParam == "out"

	status := query.Get("status")
	if status == "" {
		return nil, ErrInvalidStatus
	}

	amountRaw := firstParam(query, "amount_usd", "amount_local")
	switch status {
	case "1", "completed":
		event.Kind = EventCredit
		cents, err := NormalizeCreditAmount(amountRaw, p.opts.MinCents)
		if err != nil {
			return nil, err
		}
		event.GrossCents = cents
	case "2", "canceled", "chargeback":
		event.Kind = EventReversal
		cents, err := parseReversalMagnitude(amountRaw)
		if err != nil {
			return nil, err
		}
		event.GrossCents = cents
	default:
		event.Kind = EventIgnored
	}
	return event, nil
}

// parseReversalMagnitude parses a reversal amount and returns its
// magnitude. Networks are inconsistent about whether chargebacks carry a
// negative or a positive figure.
func parseReversalMagnitude(raw string) (int64, error) {
	cents, err := ParseAmount(raw)
	if err != nil {
		return 0, err
	}
	if cents < 0 {
		cents = -cents
	}
	// Anything that is not strictly positive after negation is unusable
	// as a magnitude.
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}
