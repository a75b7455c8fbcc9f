// Package providers contains the offer-network postback adapters. Each
// network reports completed or reversed paid actions with its own query
// vocabulary and authenticity scheme; adapters translate those into the
// shared event shape consumed by the postback flow.
package providers

import (
	"errors"
	"net/url"
)

// Parse/authentication failures. Handlers map these onto the exact
// plain-text response contract each network's dashboard expects.
var (
	ErrMissingUserOrTx    = errors.New("missing user id or external transaction id")
	ErrInvalidAmount      = errors.New("amount is not a valid number")
	ErrAmountBelowMinimum = errors.New("amount is below the configured minimum")
	ErrInvalidStatus      = errors.New("status value is not recognized")
	ErrInvalidSecret      = errors.New("secret parameter does not match")
	ErrInvalidHash        = errors.New("hash parameter does not match")
	ErrForbiddenIP        = errors.New("caller address is not allowlisted")
)

// EventKind classifies a postback after status-vocabulary normalization
type EventKind string

const (
	EventCredit   EventKind = "credit"
	EventReversal EventKind = "reversal"
	// EventIgnored covers lifecycle statuses the platform does not act
	// on; acknowledged with success, nothing applied.
	EventIgnored EventKind = "ignored"
)

// Event is the normalized postback: one credit or reversal for one user,
// with the gross amount in USD cents (always a positive magnitude; the
// kind carries the sign).
type Event struct {
	Provider     string
	UserID       uint
	ExternalTxID string
	Kind         EventKind
	GrossCents   int64
	IsBonus      bool

	// Raw provider fields, preserved verbatim for the journal meta
	Raw map[string]string
}

// TxID returns the provider-namespaced idempotency key
func (e *Event) TxID() string {
	return e.Provider + "_" + e.ExternalTxID
}

// Provider is the adapter contract. Quirks (parameter names, status
// vocabulary, hash recipe, allowlist) are data held by each
// implementation; the set is closed.
type Provider interface {
	// Name returns the uppercase provider tag used for journal
	// namespacing and metrics labels.
	Name() string

	// Authenticate verifies the request's authenticity (shared secret,
	// hash, and/or source IP) without touching any state. A nil error
	// means the caller is who it claims to be. When no secret is
	// configured the check is skipped (fail-open); deployments are
	// warned about this at startup.
	Authenticate(query url.Values, callerIP string) error

	// Parse maps the provider's query vocabulary onto an Event.
	// Unrecognized status values yield Kind == EventIgnored rather than
	// an error; amount fields are not validated for ignored events. A
	// status field absent altogether is malformed, not ignorable, and
	// rejected with ErrInvalidStatus.
	Parse(query url.Values) (*Event, error)
}

// rawParams captures the query values the provider actually understands,
// for the journal's audit meta.
func rawParams(query url.Values, keys ...string) map[string]string {
	raw := make(map[string]string, len(keys))
	for _, k := range keys {
		if v := query.Get(k); v != "" {
			raw[k] = v
		}
	}
	return raw
}

// firstParam returns the first non-empty value among aliases of the same
// logical field (networks rename fields across integration versions).
func firstParam(query url.Values, keys ...string) string {
	for _, k := range keys {
		if v := query.Get(k); v != "" {
			return v
		}
	}
	return ""
}
