package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventType names an account event recorded in the audit trail.
type EventType string

const (
	EventAccountCreated EventType = "ACCOUNT_CREATED"
	EventStatusChanged  EventType = "STATUS_CHANGED"
	EventPremiumChanged EventType = "PREMIUM_CHANGED"
	EventUserDeleted    EventType = "USER_DELETED"
)

func (e EventType) Valid() bool {
	switch e {
	case EventAccountCreated, EventStatusChanged, EventPremiumChanged, EventUserDeleted:
		return true
	default:
		return false
	}
}

// Event is a pending audit record collected inside a transaction and emitted
// after it commits.
type Event struct {
	AccountID int64
	Type      EventType
	Payload   map[string]any
}

// AuditLog is the persisted, append-only audit record.
type AuditLog struct {
	ID        snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	AccountID int64             `gorm:"not null;index:ix_audit_logs_account_created,priority:1" json:"account_id"`
	Event     EventType         `gorm:"type:varchar(32);not null;index" json:"event"`
	Payload   datatypes.JSONMap `json:"payload,omitempty"`
	CreatedAt time.Time         `gorm:"not null;index:ix_audit_logs_account_created,priority:2" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }
