package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ActionCreate        = "create"
	ActionUpdate        = "update"
	ActionDelete        = "delete"
	ActionApply         = "apply"
	ActionCascadeUnbind = "cascade_unbind"
)

const SystemActor = "system"

// AuditLog is an immutable record of one mutation.
type AuditLog struct {
	ID         snowflake.ID   `gorm:"primaryKey" json:"id"`
	Actor      string         `gorm:"not null" json:"actor"`
	Action     string         `gorm:"not null" json:"action"`
	EntityType string         `gorm:"not null" json:"entity_type"`
	EntityID   string         `gorm:"not null" json:"entity_id"`
	Before     datatypes.JSON `json:"before,omitempty"`
	After      datatypes.JSON `json:"after,omitempty"`
	RequestID  *string        `json:"request_id,omitempty"`
	IPAddress  *string        `json:"ip_address,omitempty"`
	UserAgent  *string        `json:"user_agent,omitempty"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Entry is what callers hand to Record; Before and After are any
// JSON-marshalable values and may be nil.
type Entry struct {
	Action     string
	EntityType string
	EntityID   string
	Before     any
	After      any
}

type ListFilter struct {
	EntityType string
	EntityID   string
	Actor      string
	Action     string
	From       *time.Time
	To         *time.Time
	CursorID   snowflake.ID
	CursorAt   *time.Time
	Limit      int
}
