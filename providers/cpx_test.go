package providers

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cpxQuery(pairs map[string]string) url.Values {
	q := url.Values{}
	for k, v := range pairs {
		q.Set(k, v)
	}
	return q
}

func TestCPXParse(t *testing.T) {
	p := NewCPX(CPXOptions{MinCents: 1})

	tests := []struct {
		name       string
		query      map[string]string
		wantErr    error
		wantKind   EventKind
		wantCents  int64
		wantBonus  bool
		wantUserID uint
	}{
		{
			name:       "completed survey credits the USD amount",
			query:      map[string]string{"user_id": "42", "trans_id": "abc123", "status": "1", "amount_usd": "10.00"},
			wantKind:   EventCredit,
			wantCents:  1000,
			wantUserID: 42,
		},
		{
			name:      "textual completed status",
			query:     map[string]string{"user_id": "42", "trans_id": "abc123", "status": "completed", "amount_usd": "0.505"},
			wantKind:  EventCredit,
			wantCents: 51, // half away from zero
		},
		{
			name:      "chargeback keeps the magnitude of a negative amount",
			query:     map[string]string{"user_id": "42", "trans_id": "abc123", "status": "2", "amount_usd": "-10.00"},
			wantKind:  EventReversal,
			wantCents: 1000,
		},
		{
			name:      "textual chargeback status",
			query:     map[string]string{"user_id": "42", "trans_id": "abc123", "status": "chargeback", "amount_usd": "3.50"},
			wantKind:  EventReversal,
			wantCents: 350,
		},
		{
			name:      "bonus type flags the event",
			query:     map[string]string{"user_id": "42", "trans_id": "abc123", "status": "1", "amount_usd": "1.00", "type": "bonus"},
			wantKind:  EventCredit,
			wantCents: 100,
			wantBonus: true,
		},
		{
			name:      "out type also flags the event as bonus",
			query:     map[string]string{"user_id": "42", "trans_id": "abc123", "status": "1", "amount_usd": "1.00", "type": "out"},
			wantKind:  EventCredit,
			wantCents: 100,
			wantBonus: true,
		},
		{
			name:     "unknown status is acknowledged but ignored",
			query:    map[string]string{"user_id": "42", "trans_id": "abc123", "status": "screenout"},
			wantKind: EventIgnored,
		},
		{
			name:    "missing user id",
			query:   map[string]string{"trans_id": "abc123", "status": "1", "amount_usd": "1.00"},
			wantErr: ErrMissingUserOrTx,
		},
		{
			name:    "missing transaction id",
			query:   map[string]string{"user_id": "42", "status": "1", "amount_usd": "1.00"},
			wantErr: ErrMissingUserOrTx,
		},
		{
			name:    "non numeric user id",
			query:   map[string]string{"user_id": "bob", "trans_id": "abc123", "status": "1", "amount_usd": "1.00"},
			wantErr: ErrMissingUserOrTx,
		},
		{
			name:    "unparseable amount on a credit",
			query:   map[string]string{"user_id": "42", "trans_id": "abc123", "status": "1", "amount_usd": "ten"},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "negative amount on a credit",
			query:   map[string]string{"user_id": "42", "trans_id": "abc123", "status": "1", "amount_usd": "-5.00"},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "astronomical amount on a chargeback",
			query:   map[string]string{"user_id": "42", "trans_id": "boom-1", "status": "2", "amount_usd": "1e18"},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "absent status is malformed, not ignorable",
			query:   map[string]string{"user_id": "42", "trans_id": "abc123", "amount_usd": "1.00"},
			wantErr: ErrInvalidStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := p.Parse(cpxQuery(tt.query))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, event)
			assert.Equal(t, tt.wantKind, event.Kind)
			assert.Equal(t, tt.wantCents, event.GrossCents)
			assert.Equal(t, tt.wantBonus, event.IsBonus)
			if tt.wantUserID != 0 {
				assert.Equal(t, tt.wantUserID, event.UserID)
			}
		})
	}
}

func TestCPXParseAliases(t *testing.T) {
	p := NewCPX(CPXOptions{MinCents: 1})

	event, err := p.Parse(cpxQuery(map[string]string{
		"subid":          "7",
		"transaction_id": "tx-9",
		"status":         "1",
		"amount_usd":     "2.00",
	}))
	require.NoError(t, err)
	assert.Equal(t, uint(7), event.UserID)
	assert.Equal(t, "tx-9", event.ExternalTxID)
	assert.Equal(t, "CPX_tx-9", event.TxID())
}

func TestCPXParseDustCredit(t *testing.T) {
	p := NewCPX(CPXOptions{MinCents: 10})

	_, err := p.Parse(cpxQuery(map[string]string{
		"user_id": "42", "trans_id": "abc123", "status": "1", "amount_usd": "0.05",
	}))
	assert.ErrorIs(t, err, ErrAmountBelowMinimum)
}

func TestCPXAuthenticate(t *testing.T) {
	// md5("abc123-s3cret")
	const validHash = "407dd637450b894af5e0e414633b55b8"

	t.Run("valid hash", func(t *testing.T) {
		p := NewCPX(CPXOptions{Secret: "s3cret"})
		q := cpxQuery(map[string]string{"trans_id": "abc123", "hash": validHash})
		assert.NoError(t, p.Authenticate(q, "1.2.3.4"))
	})

	t.Run("uppercase hash is accepted", func(t *testing.T) {
		p := NewCPX(CPXOptions{Secret: "s3cret"})
		q := cpxQuery(map[string]string{"trans_id": "abc123", "hash": "407DD637450B894AF5E0E414633B55B8"})
		assert.NoError(t, p.Authenticate(q, "1.2.3.4"))
	})

	t.Run("secure_hash alias is accepted", func(t *testing.T) {
		p := NewCPX(CPXOptions{Secret: "s3cret"})
		q := cpxQuery(map[string]string{"trans_id": "abc123", "secure_hash": validHash})
		assert.NoError(t, p.Authenticate(q, "1.2.3.4"))
	})

	t.Run("plain secret parameter is an alternative", func(t *testing.T) {
		p := NewCPX(CPXOptions{Secret: "s3cret"})
		q := cpxQuery(map[string]string{"trans_id": "abc123", "secret": "s3cret"})
		assert.NoError(t, p.Authenticate(q, "1.2.3.4"))
	})

	t.Run("wrong plain secret without a hash fails on the secret", func(t *testing.T) {
		p := NewCPX(CPXOptions{Secret: "s3cret"})
		q := cpxQuery(map[string]string{"trans_id": "abc123", "secret": "guess"})
		assert.ErrorIs(t, p.Authenticate(q, "1.2.3.4"), ErrInvalidSecret)
	})

	t.Run("wrong secret alongside a forged hash fails on the hash", func(t *testing.T) {
		p := NewCPX(CPXOptions{Secret: "s3cret"})
		q := cpxQuery(map[string]string{"trans_id": "abc123", "secret": "guess", "hash": "deadbeefdeadbeefdeadbeefdeadbeef"})
		assert.ErrorIs(t, p.Authenticate(q, "1.2.3.4"), ErrInvalidHash)
	})

	t.Run("forged hash is rejected", func(t *testing.T) {
		p := NewCPX(CPXOptions{Secret: "s3cret"})
		q := cpxQuery(map[string]string{"trans_id": "abc123", "hash": "deadbeefdeadbeefdeadbeefdeadbeef"})
		assert.ErrorIs(t, p.Authenticate(q, "1.2.3.4"), ErrInvalidHash)
	})

	t.Run("hash over a different transaction id is rejected", func(t *testing.T) {
		p := NewCPX(CPXOptions{Secret: "s3cret"})
		q := cpxQuery(map[string]string{"trans_id": "other", "hash": validHash})
		assert.ErrorIs(t, p.Authenticate(q, "1.2.3.4"), ErrInvalidHash)
	})

	t.Run("no secret configured skips the check", func(t *testing.T) {
		p := NewCPX(CPXOptions{})
		q := cpxQuery(map[string]string{"trans_id": "abc123"})
		assert.NoError(t, p.Authenticate(q, "1.2.3.4"))
	})

	t.Run("allowlisted caller passes", func(t *testing.T) {
		p := NewCPX(CPXOptions{Secret: "s3cret", AllowedIPs: []string{"188.40.3.73"}})
		q := cpxQuery(map[string]string{"trans_id": "abc123", "hash": validHash})
		assert.NoError(t, p.Authenticate(q, "188.40.3.73"))
	})

	t.Run("unlisted caller is rejected before hash checks", func(t *testing.T) {
		p := NewCPX(CPXOptions{Secret: "s3cret", AllowedIPs: []string{"188.40.3.73"}})
		q := cpxQuery(map[string]string{"trans_id": "abc123", "hash": validHash})
		assert.ErrorIs(t, p.Authenticate(q, "10.0.0.1"), ErrForbiddenIP)
	})

	t.Run("ipv4 mapped caller matches its ipv4 allowlist entry", func(t *testing.T) {
		p := NewCPX(CPXOptions{Secret: "s3cret", AllowedIPs: []string{"188.40.3.73"}})
		q := cpxQuery(map[string]string{"trans_id": "abc123", "hash": validHash})
		assert.NoError(t, p.Authenticate(q, "::ffff:188.40.3.73"))
	})
}
