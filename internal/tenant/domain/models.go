package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tenant is the isolation boundary. It owns the extension range
// [ExtMin, ExtMax]; ExtNext is an allocation hint kept in [ExtMin, ExtMax+1].
type Tenant struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	Name               string       `gorm:"not null" json:"name"`
	Slug               string       `gorm:"not null;uniqueIndex" json:"slug"`
	ExtMin             int          `gorm:"not null" json:"ext_min"`
	ExtMax             int          `gorm:"not null" json:"ext_max"`
	ExtNext            int          `gorm:"not null" json:"ext_next"`
	AllowLongDistance  bool         `gorm:"not null" json:"allow_long_distance"`
	AllowInternational bool         `gorm:"not null" json:"allow_international"`
	CreatedAt          time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

// RoutingContext is the dialplan context receiving inbound calls.
func (t Tenant) RoutingContext() string { return "tenant-" + t.Slug }

// InternalContext is the dialplan context used by the tenant's own endpoints.
func (t Tenant) InternalContext() string { return "internal-" + t.Slug }

// OutboundContext applies the tenant's outbound dialing policy.
func (t Tenant) OutboundContext() string { return "outbound-" + t.Slug }

func (t Tenant) Contains(value int) bool {
	return value >= t.ExtMin && value <= t.ExtMax
}

// ClampNext keeps a hint within [ExtMin, ExtMax+1].
func (t Tenant) ClampNext(next int) int {
	switch {
	case next < t.ExtMin:
		return t.ExtMin
	case next > t.ExtMax+1:
		return t.ExtMax + 1
	default:
		return next
	}
}

// ResourceCounts summarizes what still references a tenant.
type ResourceCounts struct {
	Users        int64 `json:"users"`
	Extensions   int64 `json:"extensions"`
	PhoneNumbers int64 `json:"phone_numbers"`
}

func (c ResourceCounts) Empty() bool {
	return c.Users == 0 && c.Extensions == 0 && c.PhoneNumbers == 0
}

// ExtensionSpan is the lowest and highest extension in use; zero when none.
type ExtensionSpan struct {
	Count int64
	Min   int
	Max   int
}
