package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/switchboard/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const userColumns = `id, tenant_id, name, email, active, voicemail_enabled, dnd_enabled,
	forward_enabled, forward_number, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.TenantID,
		user.Name,
		user.Email,
		user.Active,
		user.VoicemailEnabled,
		user.DNDEnabled,
		user.ForwardEnabled,
		user.ForwardNumber,
		user.CreatedAt,
		user.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	return r.findOne(ctx, db, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return r.findOne(ctx, db, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, arg any) (*domain.User, error) {
	var user domain.User
	if err := db.WithContext(ctx).Raw(query, arg).Scan(&user).Error; err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]*domain.User, error) {
	var users []*domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT `+userColumns+` FROM users WHERE tenant_id = ? ORDER BY name ASC, id ASC`, tenantID,
	).Scan(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users SET name = ?, active = ?, voicemail_enabled = ?, dnd_enabled = ?,
		 forward_enabled = ?, forward_number = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.Active,
		user.VoicemailEnabled,
		user.DNDEnabled,
		user.ForwardEnabled,
		user.ForwardNumber,
		user.UpdatedAt,
		user.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM users WHERE id = ?`, id).Error
}
