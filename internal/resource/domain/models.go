package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ExtensionStatus string

const (
	// ExtensionAllocated is a reserved number with no owner.
	ExtensionAllocated ExtensionStatus = "allocated"
	// ExtensionAssigned is owned by a user.
	ExtensionAssigned ExtensionStatus = "assigned"
)

// Extension is an internal number unique within its tenant.
type Extension struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID    `gorm:"not null" json:"tenant_id"`
	Number    int             `gorm:"not null" json:"number"`
	Status    ExtensionStatus `gorm:"not null" json:"status"`
	UserID    *snowflake.ID   `json:"user_id,omitempty"`
	SIPSecret string          `gorm:"column:sip_secret;not null" json:"sip_secret"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

func (Extension) TableName() string { return "extensions" }

// CheckInvariant enforces that only assigned extensions carry an owner.
func (e Extension) CheckInvariant() error {
	switch e.Status {
	case ExtensionAllocated:
		if e.UserID != nil {
			return ErrStatusScopeMismatch
		}
	case ExtensionAssigned:
		if e.UserID == nil || *e.UserID == 0 {
			return ErrStatusScopeMismatch
		}
	default:
		return ErrInvalidStatus
	}
	return nil
}

type PhoneNumberStatus string

const (
	PhoneNumberUnassigned PhoneNumberStatus = "unassigned"
	PhoneNumberAllocated  PhoneNumberStatus = "allocated"
	PhoneNumberAssigned   PhoneNumberStatus = "assigned"
)

// PhoneNumber is an external number (DID), unique system-wide.
type PhoneNumber struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	Number    string            `gorm:"not null" json:"number"`
	Status    PhoneNumberStatus `gorm:"not null" json:"status"`
	TenantID  *snowflake.ID     `json:"tenant_id,omitempty"`
	Provider  string            `gorm:"not null" json:"provider"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null" json:"updated_at"`
}

func (PhoneNumber) TableName() string { return "phone_numbers" }

// CheckInvariant enforces the scope/status pairing: unassigned numbers never
// carry a tenant, allocated and assigned numbers always do.
func (p PhoneNumber) CheckInvariant() error {
	switch p.Status {
	case PhoneNumberUnassigned:
		if p.TenantID != nil {
			return ErrStatusScopeMismatch
		}
	case PhoneNumberAllocated, PhoneNumberAssigned:
		if p.TenantID == nil || *p.TenantID == 0 {
			return ErrStatusScopeMismatch
		}
	default:
		return ErrInvalidStatus
	}
	if !e164.MatchString(p.Number) {
		return ErrInvalidNumber
	}
	return nil
}

var (
	e164        = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	dialable    = regexp.MustCompile(`^\+?[0-9]{3,15}$`)
	numberNoise = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// NormalizeE164 strips common punctuation and validates the result.
func NormalizeE164(raw string) (string, error) {
	number := numberNoise.Replace(strings.TrimSpace(raw))
	if !e164.MatchString(number) {
		return "", ErrInvalidNumber
	}
	return number, nil
}

type DestinationKind string

const (
	DestinationUser     DestinationKind = "user"
	DestinationExternal DestinationKind = "external"
	DestinationIVR      DestinationKind = "ivr"
	DestinationQueue    DestinationKind = "queue"
)

// UsesRef reports whether the kind points at another entity rather than
// carrying a literal.
func (k DestinationKind) UsesRef() bool {
	switch k {
	case DestinationUser, DestinationIVR, DestinationQueue:
		return true
	default:
		return false
	}
}

// Known reports whether k is a recognized kind.
func (k DestinationKind) Known() bool {
	switch k {
	case DestinationUser, DestinationExternal, DestinationIVR, DestinationQueue:
		return true
	default:
		return false
	}
}

// Routable reports whether configuration can be generated for k.
func (k DestinationKind) Routable() bool {
	return k == DestinationUser || k == DestinationExternal
}

// Destination is where traffic for a bound number goes: either a reference
// to an entity or a literal, selected by Kind.
type Destination struct {
	Kind    DestinationKind `json:"kind"`
	Ref     *snowflake.ID   `json:"ref,omitempty"`
	Literal *string         `json:"literal,omitempty"`
}

func UserDestination(userID snowflake.ID) Destination {
	return Destination{Kind: DestinationUser, Ref: &userID}
}

func ExternalDestination(number string) Destination {
	return Destination{Kind: DestinationExternal, Literal: &number}
}

// Validate checks the ref/literal exclusivity for the kind.
func (d Destination) Validate() error {
	if !d.Kind.Known() {
		return ErrUnsupportedDestination
	}
	if d.Kind.UsesRef() {
		if d.Ref == nil || *d.Ref == 0 || d.Literal != nil {
			return ErrInvalidDestination
		}
		return nil
	}
	if d.Ref != nil || d.Literal == nil {
		return ErrInvalidDestination
	}
	if !dialable.MatchString(*d.Literal) {
		return ErrInvalidDestination
	}
	return nil
}

// Binding routes one phone number to one destination.
type Binding struct {
	ID                 snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID           snowflake.ID    `gorm:"not null" json:"tenant_id"`
	ResourceID         snowflake.ID    `gorm:"not null" json:"resource_id"`
	DestinationKind    DestinationKind `gorm:"not null" json:"destination_kind"`
	DestinationRef     *snowflake.ID   `json:"destination_ref,omitempty"`
	DestinationLiteral *string         `json:"destination_literal,omitempty"`
	CreatedBy          string          `gorm:"not null" json:"created_by"`
	CreatedAt          time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"not null" json:"updated_at"`
}

func (Binding) TableName() string { return "bindings" }

func (b Binding) Destination() Destination {
	return Destination{
		Kind:    b.DestinationKind,
		Ref:     b.DestinationRef,
		Literal: b.DestinationLiteral,
	}
}

// DestinationUserRow is the routing view of a user a binding may target.
type DestinationUserRow struct {
	ID              snowflake.ID
	TenantID        snowflake.ID
	Active          bool
	ExtensionNumber *int
}
