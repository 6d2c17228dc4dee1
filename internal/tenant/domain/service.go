package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateTenantRequest struct {
	Name               string
	Slug               string
	ExtMin             *int
	ExtMax             *int
	AllowLongDistance  *bool
	AllowInternational bool
}

type UpdateRangeRequest struct {
	ID     snowflake.ID
	ExtMin int
	ExtMax int
}

type UpdatePolicyRequest struct {
	ID                 snowflake.ID
	AllowLongDistance  bool
	AllowInternational bool
}

type Service interface {
	Create(ctx context.Context, req CreateTenantRequest) (Tenant, error)
	Get(ctx context.Context, id snowflake.ID) (Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	UpdateRange(ctx context.Context, req UpdateRangeRequest) (Tenant, error)
	UpdatePolicy(ctx context.Context, req UpdatePolicyRequest) (Tenant, error)
	Delete(ctx context.Context, id snowflake.ID) error
}

var (
	ErrNotFound               = errors.New("tenant_not_found")
	ErrInvalidName            = errors.New("invalid_tenant_name")
	ErrInvalidRange           = errors.New("invalid_extension_range")
	ErrRangeExcludesResources = errors.New("range_excludes_extensions")
	ErrSlugTaken              = errors.New("tenant_slug_taken")
	ErrHasResources           = errors.New("tenant_has_resources")
)
