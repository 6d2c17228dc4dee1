package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	resourcedomain "github.com/smallbiznis/switchboard/internal/resource/domain"
)

type User struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID         snowflake.ID `gorm:"not null" json:"tenant_id"`
	Name             string       `gorm:"not null" json:"name"`
	Email            string       `gorm:"not null" json:"email"`
	Active           bool         `gorm:"not null" json:"active"`
	VoicemailEnabled bool         `gorm:"not null" json:"voicemail_enabled"`
	DNDEnabled       bool         `gorm:"column:dnd_enabled;not null" json:"dnd_enabled"`
	ForwardEnabled   bool         `gorm:"not null" json:"forward_enabled"`
	ForwardNumber    *string      `json:"forward_number,omitempty"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// UserWithExtension pairs a user with the extension allocated for it.
type UserWithExtension struct {
	User
	Extension *resourcedomain.Extension `json:"extension,omitempty"`
}
