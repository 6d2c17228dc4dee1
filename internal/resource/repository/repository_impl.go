package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/switchboard/internal/resource/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const extensionColumns = `id, tenant_id, number, status, user_id, sip_secret, created_at, updated_at`

func (r *repo) InsertExtension(ctx context.Context, db *gorm.DB, ext *domain.Extension) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO extensions (`+extensionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ext.ID,
		ext.TenantID,
		ext.Number,
		ext.Status,
		ext.UserID,
		ext.SIPSecret,
		ext.CreatedAt,
		ext.UpdatedAt,
	).Error
}

func (r *repo) FindExtension(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Extension, error) {
	var ext domain.Extension
	err := db.WithContext(ctx).Raw(
		`SELECT `+extensionColumns+` FROM extensions WHERE id = ?`, id,
	).Scan(&ext).Error
	if err != nil {
		return nil, err
	}
	if ext.ID == 0 {
		return nil, nil
	}
	return &ext, nil
}

func (r *repo) FindExtensionByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Extension, error) {
	var ext domain.Extension
	err := db.WithContext(ctx).Raw(
		`SELECT `+extensionColumns+` FROM extensions WHERE user_id = ?`, userID,
	).Scan(&ext).Error
	if err != nil {
		return nil, err
	}
	if ext.ID == 0 {
		return nil, nil
	}
	return &ext, nil
}

func (r *repo) ListExtensions(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]*domain.Extension, error) {
	var exts []*domain.Extension
	err := db.WithContext(ctx).Raw(
		`SELECT `+extensionColumns+` FROM extensions WHERE tenant_id = ? ORDER BY number ASC`, tenantID,
	).Scan(&exts).Error
	if err != nil {
		return nil, err
	}
	return exts, nil
}

func (r *repo) TakenExtensionNumbers(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]int, error) {
	var numbers []int
	err := db.WithContext(ctx).Raw(
		`SELECT number FROM extensions WHERE tenant_id = ? ORDER BY number ASC`, tenantID,
	).Scan(&numbers).Error
	return numbers, err
}

func (r *repo) DeleteExtension(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM extensions WHERE id = ?`, id).Error
}

const phoneNumberColumns = `id, number, status, tenant_id, provider, metadata, created_at, updated_at`

func (r *repo) InsertPhoneNumber(ctx context.Context, db *gorm.DB, number *domain.PhoneNumber) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO phone_numbers (`+phoneNumberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		number.ID,
		number.Number,
		number.Status,
		number.TenantID,
		number.Provider,
		number.Metadata,
		number.CreatedAt,
		number.UpdatedAt,
	).Error
}

func (r *repo) FindPhoneNumber(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PhoneNumber, error) {
	var number domain.PhoneNumber
	err := db.WithContext(ctx).Raw(
		`SELECT `+phoneNumberColumns+` FROM phone_numbers WHERE id = ?`, id,
	).Scan(&number).Error
	if err != nil {
		return nil, err
	}
	if number.ID == 0 {
		return nil, nil
	}
	return &number, nil
}

func (r *repo) ExistingNumbers(ctx context.Context, db *gorm.DB, numbers []string) ([]string, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	var existing []string
	err := db.WithContext(ctx).Raw(
		`SELECT number FROM phone_numbers WHERE number IN ?`, numbers,
	).Scan(&existing).Error
	return existing, err
}

func (r *repo) ListPhoneNumbers(ctx context.Context, db *gorm.DB, filter domain.PhoneNumberFilter) ([]*domain.PhoneNumber, error) {
	var numbers []*domain.PhoneNumber
	stmt := db.WithContext(ctx).Model(&domain.PhoneNumber{})
	if filter.TenantID != nil {
		stmt = stmt.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if err := stmt.Order("number asc").Find(&numbers).Error; err != nil {
		return nil, err
	}
	return numbers, nil
}

func (r *repo) LowestUnassignedNumber(ctx context.Context, db *gorm.DB) (*domain.PhoneNumber, error) {
	var number domain.PhoneNumber
	err := db.WithContext(ctx).Raw(
		`SELECT `+phoneNumberColumns+` FROM phone_numbers
		 WHERE status = ? ORDER BY number ASC LIMIT 1`,
		domain.PhoneNumberUnassigned,
	).Scan(&number).Error
	if err != nil {
		return nil, err
	}
	if number.ID == 0 {
		return nil, nil
	}
	return &number, nil
}

func (r *repo) TransitionPhoneNumber(ctx context.Context, db *gorm.DB, id snowflake.ID, from domain.PhoneNumberStatus, to domain.PhoneNumberStatus, tenantID *snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE phone_numbers SET status = ?, tenant_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		tenantID,
		now,
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) DeletePhoneNumber(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM phone_numbers WHERE id = ?`, id).Error
}

const bindingColumns = `id, tenant_id, resource_id, destination_kind, destination_ref,
	destination_literal, created_by, created_at, updated_at`

func (r *repo) InsertBinding(ctx context.Context, db *gorm.DB, binding *domain.Binding) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO bindings (`+bindingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		binding.ID,
		binding.TenantID,
		binding.ResourceID,
		binding.DestinationKind,
		binding.DestinationRef,
		binding.DestinationLiteral,
		binding.CreatedBy,
		binding.CreatedAt,
		binding.UpdatedAt,
	).Error
}

func (r *repo) FindBindingByResource(ctx context.Context, db *gorm.DB, resourceID snowflake.ID) (*domain.Binding, error) {
	var binding domain.Binding
	err := db.WithContext(ctx).Raw(
		`SELECT `+bindingColumns+` FROM bindings WHERE resource_id = ?`, resourceID,
	).Scan(&binding).Error
	if err != nil {
		return nil, err
	}
	if binding.ID == 0 {
		return nil, nil
	}
	return &binding, nil
}

func (r *repo) ListBindingsByRef(ctx context.Context, db *gorm.DB, kind domain.DestinationKind, ref snowflake.ID) ([]*domain.Binding, error) {
	var bindings []*domain.Binding
	err := db.WithContext(ctx).Raw(
		`SELECT `+bindingColumns+` FROM bindings
		 WHERE destination_kind = ? AND destination_ref = ? ORDER BY id ASC`,
		kind,
		ref,
	).Scan(&bindings).Error
	if err != nil {
		return nil, err
	}
	return bindings, nil
}

func (r *repo) ListBindings(ctx context.Context, db *gorm.DB, tenantID *snowflake.ID) ([]*domain.Binding, error) {
	var bindings []*domain.Binding
	stmt := db.WithContext(ctx).Model(&domain.Binding{})
	if tenantID != nil {
		stmt = stmt.Where("tenant_id = ?", *tenantID)
	}
	if err := stmt.Order("id asc").Find(&bindings).Error; err != nil {
		return nil, err
	}
	return bindings, nil
}

func (r *repo) DeleteBinding(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM bindings WHERE id = ?`, id).Error
}

func (r *repo) FindDestinationUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.DestinationUserRow, error) {
	var row domain.DestinationUserRow
	err := db.WithContext(ctx).Raw(
		`SELECT u.id, u.tenant_id, u.active, e.number AS extension_number
		 FROM users u LEFT JOIN extensions e ON e.user_id = u.id
		 WHERE u.id = ?`,
		userID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}
