// Package lock provides the single system-wide apply lock. Acquisition never
// waits: a held lock is reported immediately with ErrHeld.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/switchboard/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrHeld = errors.New("apply_lock_held")

// Release gives the lock back. It is safe to call once.
type Release func(ctx context.Context) error

type Lock interface {
	TryAcquire(ctx context.Context) (Release, error)
}

const (
	// AdvisoryKey identifies the apply lock among postgres advisory locks.
	AdvisoryKey int64 = 123456789
	redisKey          = "switchboard:apply:lock"
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	DB        *gorm.DB
	Log       *zap.Logger
}

// New builds the backend selected by APPLY_LOCK_BACKEND. The postgres
// backend needs a postgres store; other dialects fall back to a process
// local lock.
func New(p Params) (Lock, error) {
	log := p.Log.Named("apply.lock")

	switch p.Config.Apply.LockBackend {
	case config.LockBackendRedis:
		addr := strings.TrimSpace(p.Config.RedisAddr)
		if addr == "" {
			return nil, errors.New("apply lock backend redis requires REDIS_ADDR")
		}
		l := NewRedis(newRedisClient(p.Config), p.Config.Apply.LockTTL)
		p.Lifecycle.Append(fx.Hook{OnStop: func(context.Context) error { return l.Close() }})
		log.Info("apply.lock.backend", zap.String("backend", config.LockBackendRedis), zap.String("addr", addr))
		return l, nil

	case config.LockBackendLocal:
		log.Info("apply.lock.backend", zap.String("backend", config.LockBackendLocal))
		return NewLocal(), nil

	default:
		if p.DB.Dialector.Name() != "postgres" {
			log.Warn("apply.lock.fallback_local",
				zap.String("dialect", p.DB.Dialector.Name()),
			)
			return NewLocal(), nil
		}
		sqlDB, err := p.DB.DB()
		if err != nil {
			return nil, fmt.Errorf("apply lock: %w", err)
		}
		log.Info("apply.lock.backend", zap.String("backend", config.LockBackendPostgres))
		return NewPostgres(sqlDB, AdvisoryKey), nil
	}
}
