package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateUserRequest struct {
	TenantID         snowflake.ID
	Name             string
	Email            string
	VoicemailEnabled *bool
	DNDEnabled       bool
	ForwardNumber    string
}

type UpdateUserRequest struct {
	ID               snowflake.ID
	Name             *string
	Active           *bool
	VoicemailEnabled *bool
	DNDEnabled       *bool
	// ForwardNumber enables forwarding when non-empty and disables it when
	// set to the empty string.
	ForwardNumber *string
}

type Service interface {
	Create(ctx context.Context, req CreateUserRequest) (UserWithExtension, error)
	Get(ctx context.Context, id snowflake.ID) (UserWithExtension, error)
	List(ctx context.Context, tenantID snowflake.ID) ([]User, error)
	Update(ctx context.Context, req UpdateUserRequest) (User, error)
	// Delete frees the user's extension. It is rejected while a binding
	// routes to the user unless cascade is set.
	Delete(ctx context.Context, id snowflake.ID, cascade bool) error
}

var (
	ErrNotFound       = errors.New("user_not_found")
	ErrInvalidName    = errors.New("invalid_user_name")
	ErrInvalidEmail   = errors.New("invalid_email")
	ErrEmailTaken     = errors.New("email_taken")
	ErrInvalidForward = errors.New("invalid_forward_number")
)
