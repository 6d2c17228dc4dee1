package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Tenant, error)
	List(ctx context.Context, db *gorm.DB) ([]*Tenant, error)
	Update(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	SetNext(ctx context.Context, db *gorm.DB, id snowflake.ID, next int, now time.Time) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	CountResources(ctx context.Context, db *gorm.DB, id snowflake.ID) (ResourceCounts, error)
	ExtensionSpan(ctx context.Context, db *gorm.DB, id snowflake.ID) (ExtensionSpan, error)
}
