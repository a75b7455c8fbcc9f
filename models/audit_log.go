package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audit actions recorded by the postback subsystem
const (
	AuditActionPostbackApplied  = "postback_applied"
	AuditActionPostbackReversed = "postback_reversed"
	AuditActionPostbackDup      = "postback_duplicate"
	AuditActionPostbackIgnored  = "postback_ignored"
	AuditActionPostbackRejected = "postback_rejected"
	AuditActionPostbackFailed   = "postback_failed"
)

// AuditLog records postback processing outcomes for operators. Rejections
// (bad secret/hash/IP, unknown user) are the abuse signal; applied events
// are the dispute-resolution trail alongside the journal.
type AuditLog struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`

	UserID *uint `gorm:"index" json:"user_id,omitempty"`

	Action      string `gorm:"type:varchar(50);not null;index" json:"action"`
	Provider    string `gorm:"type:varchar(20);index" json:"provider"`
	Description string `gorm:"type:text" json:"description"`
	Success     bool   `gorm:"not null;index" json:"success"`

	IPAddress    string  `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent    string  `gorm:"type:text" json:"user_agent"`
	RequestID    string  `gorm:"type:varchar(64);index" json:"request_id"`
	ErrorMessage *string `gorm:"type:text" json:"error_message,omitempty"`

	Metadata json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"metadata"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// BeforeCreate ensures UUID is set
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == uuid.Nil {
		a.UUID = uuid.New()
	}
	return nil
}

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint      `json:"id,omitempty"`
	UserID        *uint      `json:"user_id,omitempty"`
	Action        *string    `json:"action,omitempty"`
	Provider      *string    `json:"provider,omitempty"`
	Success       *bool      `json:"success,omitempty"`
	IPAddress     *string    `json:"ip_address,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}
