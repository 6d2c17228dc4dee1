package dialplan

import (
	"context"
	"database/sql"

	resourcedomain "github.com/smallbiznis/switchboard/internal/resource/domain"
	tenantdomain "github.com/smallbiznis/switchboard/internal/tenant/domain"
	userdomain "github.com/smallbiznis/switchboard/internal/user/domain"
	"github.com/smallbiznis/switchboard/pkg/db"
	"gorm.io/gorm"
)

// Loader reads a Snapshot in a single read transaction.
type Loader struct {
	db *gorm.DB
}

func NewLoader(conn *gorm.DB) *Loader {
	return &Loader{db: conn}
}

func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	var (
		tenants  []tenantdomain.Tenant
		users    []userdomain.User
		exts     []resourcedomain.Extension
		numbers  []resourcedomain.PhoneNumber
		bindings []resourcedomain.Binding
	)

	read := func(tx *gorm.DB) error {
		if err := tx.Raw(
			`SELECT id, name, slug, ext_min, ext_max, ext_next, allow_long_distance, allow_international, created_at, updated_at
			 FROM tenants ORDER BY slug ASC`,
		).Scan(&tenants).Error; err != nil {
			return err
		}
		if err := tx.Raw(
			`SELECT id, tenant_id, name, email, active, voicemail_enabled, dnd_enabled, forward_enabled, forward_number, created_at, updated_at
			 FROM users ORDER BY id ASC`,
		).Scan(&users).Error; err != nil {
			return err
		}
		if err := tx.Raw(
			`SELECT id, tenant_id, number, status, user_id, sip_secret, created_at, updated_at
			 FROM extensions ORDER BY tenant_id ASC, number ASC`,
		).Scan(&exts).Error; err != nil {
			return err
		}
		if err := tx.Raw(
			`SELECT id, number, status, tenant_id, provider, metadata, created_at, updated_at
			 FROM phone_numbers ORDER BY number ASC`,
		).Scan(&numbers).Error; err != nil {
			return err
		}
		return tx.Raw(
			`SELECT id, tenant_id, resource_id, destination_kind, destination_ref, destination_literal, created_by, created_at, updated_at
			 FROM bindings ORDER BY id ASC`,
		).Scan(&bindings).Error
	}

	conn := l.db.WithContext(ctx)
	var err error
	if db.IsPostgres(conn) {
		err = conn.Transaction(read, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	} else {
		err = conn.Transaction(read)
	}
	if err != nil {
		return nil, err
	}
	return NewSnapshot(tenants, users, exts, numbers, bindings), nil
}
