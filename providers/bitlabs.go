package providers

import (
	"net/url"
	"strconv"

	"github.com/rewardhive/backend/utils"
)

// BitLabsOptions carries the deployment configuration for the BitLabs
// integration.
type BitLabsOptions struct {
	// Secret is compared against the flat secret query parameter.
	// Empty means authenticity checks are skipped for this provider.
	Secret string
	// MinCents is the smallest credit accepted, in USD cents.
	MinCents int64
}

// bitlabsProvider adapts BitLabs survey postbacks
type bitlabsProvider struct {
	opts BitLabsOptions
}

// NewBitLabs creates the BitLabs adapter
func NewBitLabs(opts BitLabsOptions) Provider {
	return &bitlabsProvider{opts: opts}
}

func (p *bitlabsProvider) Name() string {
	return utils.ProviderBitLabs
}

// Authenticate compares the flat secret query parameter BitLabs appends
// to the callback URL. BitLabs does not hash-sign its postbacks.
func (p *bitlabsProvider) Authenticate(query url.Values, _ string) error {
	if p.opts.Secret == "" {
		return nil
	}
	if secureEquals(query.Get("secret"), p.opts.Secret) {
		return nil
	}
	return ErrInvalidSecret
}

// Parse maps the BitLabs query vocabulary: event completed/approved is a
// credit, reversed/chargeback is a reversal, anything else is ignored.
// The value parameter is already denominated in USD.
func (p *bitlabsProvider) Parse(query url.Values) (*Event, error) {
	userRaw := firstParam(query, "user_id", "uid")
	transID := firstParam(query, "transaction_id", "tx_id")
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
		Raw:          rawParams(query, "user_id", "uid", "transaction_id", "tx_id", "event", "value", "survey_id"),
	}

	eventName := query.Get("event")
	if eventName == "" {
		return nil, ErrInvalidStatus
	}

	amountRaw := firstParam(query, "value", "val")
	switch eventName {
	case "completed", "approved":
		event.Kind = EventCredit
		cents, err := NormalizeCreditAmount(amountRaw, p.opts.MinCents)
		if err != nil {
			return nil, err
		}
		event.GrossCents = cents
	case "reversed", "chargeback":
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
