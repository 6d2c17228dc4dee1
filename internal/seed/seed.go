package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	tenantdomain "github.com/smallbiznis/switchboard/internal/tenant/domain"
	tenantrepo "github.com/smallbiznis/switchboard/internal/tenant/repository"
	"gorm.io/gorm"
)

const (
	defaultTenantName = "Default"
	defaultExtMin     = 1000
	defaultExtMax     = 1999
)

type Options struct {
	Name   string
	ExtMin int
	ExtMax int
}

// EnsureDefaultTenant creates the bootstrap tenant when it is missing.
// Existing tenants are left untouched.
func EnsureDefaultTenant(ctx context.Context, db *gorm.DB, opts Options) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = defaultTenantName
	}
	extMin, extMax := opts.ExtMin, opts.ExtMax
	if extMin <= 0 || extMin >= extMax {
		extMin, extMax = defaultExtMin, defaultExtMax
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	repo := tenantrepo.Provide()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenantSlug := slug.Make(name)
		existing, err := repo.FindBySlug(ctx, tx, tenantSlug)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		now := time.Now().UTC()
		return repo.Insert(ctx, tx, &tenantdomain.Tenant{
			ID:                node.Generate(),
			Name:              name,
			Slug:              tenantSlug,
			ExtMin:            extMin,
			ExtMax:            extMax,
			ExtNext:           extMin,
			AllowLongDistance: true,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	})
}
