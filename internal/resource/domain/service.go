package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ClaimHook runs inside the allocation transaction before the extension row
// is written; an error aborts the attempt.
type ClaimHook func(ctx context.Context, tx *gorm.DB, number int) error

type AllocateExtensionRequest struct {
	TenantID snowflake.ID
	// UserID assigns the extension on creation; nil reserves it.
	UserID      *snowflake.ID
	BeforeClaim ClaimHook
}

type ImportPhoneNumbersRequest struct {
	Numbers  []string
	Provider string
	Metadata map[string]any
}

type ImportRejection struct {
	Number string `json:"number"`
	Reason string `json:"reason"`
}

type ImportPhoneNumbersResult struct {
	Created  []PhoneNumber     `json:"created"`
	Rejected []ImportRejection `json:"rejected"`
}

type AllocatePhoneNumberRequest struct {
	TenantID snowflake.ID
	// PhoneNumberID selects a specific number; zero takes the lowest
	// unassigned number from the global pool.
	PhoneNumberID snowflake.ID
}

type DeallocatePhoneNumberRequest struct {
	PhoneNumberID snowflake.ID
	Cascade       bool
}

type BindRequest struct {
	ResourceID  snowflake.ID
	Destination Destination
}

type Service interface {
	AllocateExtension(ctx context.Context, req AllocateExtensionRequest) (Extension, error)
	FreeExtension(ctx context.Context, id snowflake.ID) error
	ListExtensions(ctx context.Context, tenantID snowflake.ID) ([]Extension, error)
	// ReleaseUserTx frees a user's extension inside tx. Bindings that route
	// to the user block the release unless cascade is set.
	ReleaseUserTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, cascade bool) error

	ImportPhoneNumbers(ctx context.Context, req ImportPhoneNumbersRequest) (ImportPhoneNumbersResult, error)
	GetPhoneNumber(ctx context.Context, id snowflake.ID) (PhoneNumber, error)
	ListPhoneNumbers(ctx context.Context, filter PhoneNumberFilter) ([]PhoneNumber, error)
	AllocatePhoneNumber(ctx context.Context, req AllocatePhoneNumberRequest) (PhoneNumber, error)
	DeallocatePhoneNumber(ctx context.Context, req DeallocatePhoneNumberRequest) (PhoneNumber, error)
	DeletePhoneNumber(ctx context.Context, id snowflake.ID) error

	Bind(ctx context.Context, req BindRequest) (Binding, error)
	Unbind(ctx context.Context, resourceID snowflake.ID) error
	GetBinding(ctx context.Context, resourceID snowflake.ID) (Binding, error)
	ListBindings(ctx context.Context, tenantID *snowflake.ID) ([]Binding, error)
}

var (
	ErrExtensionNotFound   = errors.New("extension_not_found")
	ErrExtensionAssigned   = errors.New("extension_assigned")
	ErrPhoneNumberNotFound = errors.New("phone_number_not_found")
	ErrBindingNotFound     = errors.New("binding_not_found")
	ErrTenantNotFound      = errors.New("tenant_not_found")

	ErrInvalidNumber          = errors.New("invalid_phone_number")
	ErrInvalidStatus          = errors.New("invalid_status")
	ErrInvalidState           = errors.New("invalid_resource_state")
	ErrStatusScopeMismatch    = errors.New("status_scope_mismatch")
	ErrInvalidDestination     = errors.New("invalid_destination")
	ErrUnsupportedDestination = errors.New("unsupported_destination")
	ErrDestinationNotFound    = errors.New("destination_not_found")
	ErrDestinationScope       = errors.New("destination_outside_scope")
	ErrEmptyImport            = errors.New("empty_import")

	ErrAlreadyBound = errors.New("already_bound")
	ErrHasBinding   = errors.New("resource_has_binding")
	ErrUserRouted   = errors.New("user_has_bindings")
)
