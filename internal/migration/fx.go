package migration

import (
	"context"

	"github.com/smallbiznis/switchboard/internal/config"
	"github.com/smallbiznis/switchboard/internal/seed"
	"github.com/smallbiznis/switchboard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		switch {
		case db.IsPostgres(conn):
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		case conn.Dialector.Name() == "sqlite":
			if err := ApplySQLiteSchema(conn); err != nil {
				return err
			}
		default:
			log.Warn("no migrations for dialect; schema must be provisioned externally",
				zap.String("dialect", conn.Dialector.Name()))
		}

		if !cfg.Bootstrap.EnsureDefaultTenant {
			return nil
		}
		return seed.EnsureDefaultTenant(context.Background(), conn, seed.Options{
			Name:   cfg.Bootstrap.DefaultTenantName,
			ExtMin: cfg.Allocation.DefaultExtMin,
			ExtMax: cfg.Allocation.DefaultExtMax,
		})
	}),
)
