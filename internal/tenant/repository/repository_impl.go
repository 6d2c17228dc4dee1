package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/switchboard/internal/tenant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const tenantColumns = `id, name, slug, ext_min, ext_max, ext_next,
	allow_long_distance, allow_international, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tenant *domain.Tenant) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tenants (`+tenantColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tenant.ID,
		tenant.Name,
		tenant.Slug,
		tenant.ExtMin,
		tenant.ExtMax,
		tenant.ExtNext,
		tenant.AllowLongDistance,
		tenant.AllowInternational,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT `+tenantColumns+` FROM tenants WHERE id = ?`,
		id,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT `+tenantColumns+` FROM tenants WHERE slug = ?`,
		slug,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]*domain.Tenant, error) {
	var tenants []*domain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT ` + tenantColumns + ` FROM tenants ORDER BY slug ASC`,
	).Scan(&tenants).Error
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, tenant *domain.Tenant) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tenants
		 SET name = ?, ext_min = ?, ext_max = ?, ext_next = ?,
		     allow_long_distance = ?, allow_international = ?, updated_at = ?
		 WHERE id = ?`,
		tenant.Name,
		tenant.ExtMin,
		tenant.ExtMax,
		tenant.ExtNext,
		tenant.AllowLongDistance,
		tenant.AllowInternational,
		tenant.UpdatedAt,
		tenant.ID,
	).Error
}

func (r *repo) SetNext(ctx context.Context, db *gorm.DB, id snowflake.ID, next int, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tenants SET ext_next = ?, updated_at = ? WHERE id = ?`,
		next,
		now,
		id,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM tenants WHERE id = ?`, id).Error
}

func (r *repo) CountResources(ctx context.Context, db *gorm.DB, id snowflake.ID) (domain.ResourceCounts, error) {
	var counts domain.ResourceCounts
	err := db.WithContext(ctx).Raw(
		`SELECT
			(SELECT COUNT(*) FROM users WHERE tenant_id = ?) AS users,
			(SELECT COUNT(*) FROM extensions WHERE tenant_id = ?) AS extensions,
			(SELECT COUNT(*) FROM phone_numbers WHERE tenant_id = ?) AS phone_numbers`,
		id, id, id,
	).Scan(&counts).Error
	return counts, err
}

func (r *repo) ExtensionSpan(ctx context.Context, db *gorm.DB, id snowflake.ID) (domain.ExtensionSpan, error) {
	var row struct {
		Count int64
		Min   *int
		Max   *int
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS count, MIN(number) AS min, MAX(number) AS max
		 FROM extensions WHERE tenant_id = ?`,
		id,
	).Scan(&row).Error
	if err != nil {
		return domain.ExtensionSpan{}, err
	}
	span := domain.ExtensionSpan{Count: row.Count}
	if row.Min != nil {
		span.Min = *row.Min
	}
	if row.Max != nil {
		span.Max = *row.Max
	}
	return span, nil
}
