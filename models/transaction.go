package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransactionKind represents the kind of ledger movement
type TransactionKind string

const (
	TransactionKindCredit   TransactionKind = "credit"   // Provider reported a completed paid action
	TransactionKindReversal TransactionKind = "reversal" // Provider reported a chargeback/cancellation
)

// TransactionStatus represents the terminal status of a journal record.
// Records are append-only; corrections are new reversal records, never
// in-place edits.
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusReversed  TransactionStatus = "reversed"
)

// Transaction is an immutable journal record of one applied postback.
// TxID is the provider-namespaced idempotency key ("<PROVIDER>_<externalTxID>");
// the unique index on it is the at-most-once backstop.
type Transaction struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`

	TxID   string `gorm:"type:varchar(191);uniqueIndex;not null" json:"tx_id"`
	UserID uint   `gorm:"not null;index" json:"user_id"`

	Kind   TransactionKind   `gorm:"type:varchar(20);not null;index" json:"kind"`
	Status TransactionStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	// Net amount applied to the balance, USD cents, signed: positive for
	// credit, negative for reversal. Not the provider's gross figure.
	AmountCents int64  `gorm:"not null" json:"amount_cents"`
	Currency    string `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`

	Provider string `gorm:"type:varchar(20);not null;index" json:"provider"`

	// Raw provider fields, kept for audit/dispute resolution
	Meta json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"meta"`

	// Server-assigned processing time
	OccurredAt time.Time `gorm:"not null;index" json:"occurred_at"`

	// Audit fields
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

// BeforeCreate ensures UUID and OccurredAt are set
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	if t.OccurredAt.IsZero() {
		t.OccurredAt = time.Now().UTC()
	}
	return nil
}

// IsReversal returns true for chargeback records
func (t *Transaction) IsReversal() bool {
	return t.Kind == TransactionKindReversal
}

// TransactionFilter represents filter criteria for journal queries
type TransactionFilter struct {
	ID            *uint              `json:"id,omitempty"`
	UUID          *uuid.UUID         `json:"uuid,omitempty"`
	TxID          *string            `json:"tx_id,omitempty"`
	UserID        *uint              `json:"user_id,omitempty"`
	Kind          *TransactionKind   `json:"kind,omitempty"`
	Status        *TransactionStatus `json:"status,omitempty"`
	Provider      *string            `json:"provider,omitempty"`
	CreatedAfter  *time.Time         `json:"created_after,omitempty"`
	CreatedBefore *time.Time         `json:"created_before,omitempty"`
}
