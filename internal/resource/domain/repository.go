package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type PhoneNumberFilter struct {
	TenantID *snowflake.ID
	Status   PhoneNumberStatus
}

type Repository interface {
	InsertExtension(ctx context.Context, db *gorm.DB, ext *Extension) error
	FindExtension(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Extension, error)
	FindExtensionByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Extension, error)
	ListExtensions(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]*Extension, error)
	TakenExtensionNumbers(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]int, error)
	DeleteExtension(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	InsertPhoneNumber(ctx context.Context, db *gorm.DB, number *PhoneNumber) error
	FindPhoneNumber(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PhoneNumber, error)
	ExistingNumbers(ctx context.Context, db *gorm.DB, numbers []string) ([]string, error)
	ListPhoneNumbers(ctx context.Context, db *gorm.DB, filter PhoneNumberFilter) ([]*PhoneNumber, error)
	LowestUnassignedNumber(ctx context.Context, db *gorm.DB) (*PhoneNumber, error)
	// TransitionPhoneNumber moves a number from one status to another and
	// reports whether the row was still in the expected status.
	TransitionPhoneNumber(ctx context.Context, db *gorm.DB, id snowflake.ID, from PhoneNumberStatus, to PhoneNumberStatus, tenantID *snowflake.ID, now time.Time) (bool, error)
	DeletePhoneNumber(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	InsertBinding(ctx context.Context, db *gorm.DB, binding *Binding) error
	FindBindingByResource(ctx context.Context, db *gorm.DB, resourceID snowflake.ID) (*Binding, error)
	ListBindingsByRef(ctx context.Context, db *gorm.DB, kind DestinationKind, ref snowflake.ID) ([]*Binding, error)
	ListBindings(ctx context.Context, db *gorm.DB, tenantID *snowflake.ID) ([]*Binding, error)
	DeleteBinding(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	FindDestinationUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*DestinationUserRow, error)
}
