// Package allocator hands out the lowest free value of a bounded pool.
//
// Allocation takes no explicit lock. Each attempt runs in its own
// transaction: the pool proposes a candidate, then claims it under a store
// uniqueness constraint. Losing a race surfaces as a constraint violation,
// the attempt is rolled back and a fresh candidate is computed, up to a
// fixed number of attempts.
package allocator

import (
	"context"
	"errors"
	"sort"

	"github.com/smallbiznis/switchboard/internal/config"
	"github.com/smallbiznis/switchboard/internal/observability/logger"
	"github.com/smallbiznis/switchboard/internal/observability/metrics"
	"github.com/smallbiznis/switchboard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const DefaultMaxRetries = 5

var (
	ErrPoolExhausted      = errors.New("pool_exhausted")
	ErrResourceContention = errors.New("resource_contention")
	// ErrCandidateTaken is returned by Claim when a conditional write found
	// the candidate already claimed. It is retried like a unique violation.
	ErrCandidateTaken = errors.New("candidate_taken")
)

// Pool is one scope's bounded set of values.
type Pool interface {
	// Name labels metrics and logs, e.g. "extension".
	Name() string
	// Next returns the candidate for this attempt, or ErrPoolExhausted.
	Next(ctx context.Context, tx *gorm.DB) (int64, error)
	// Claim persists candidate inside tx.
	Claim(ctx context.Context, tx *gorm.DB, candidate int64) error
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
	Config  config.Config
}

type Allocator struct {
	db         *gorm.DB
	log        *zap.Logger
	metrics    *metrics.Metrics
	maxRetries int
}

func New(p Params) *Allocator {
	maxRetries := p.Config.Allocation.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Allocator{
		db:         p.DB,
		log:        p.Log.Named("allocator"),
		metrics:    p.Metrics,
		maxRetries: maxRetries,
	}
}

// MaxRetries is the number of attempts made before ErrResourceContention.
func (a *Allocator) MaxRetries() int { return a.maxRetries }

// Allocate claims the pool's next value. Nothing is committed when it
// returns an error.
func (a *Allocator) Allocate(ctx context.Context, pool Pool) (int64, error) {
	log := logger.WithContext(ctx, a.log).With(zap.String("pool", pool.Name()))

	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		a.metrics.IncAllocationAttempt(pool.Name())

		var claimed int64
		err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			candidate, err := pool.Next(ctx, tx)
			if err != nil {
				return err
			}
			if err := pool.Claim(ctx, tx, candidate); err != nil {
				return err
			}
			claimed = candidate
			return nil
		})
		switch {
		case err == nil:
			return claimed, nil
		case errors.Is(err, ErrPoolExhausted):
			a.metrics.IncAllocationFailure(pool.Name(), "exhausted")
			log.Warn("allocator.exhausted", zap.Int("attempt", attempt))
			return 0, ErrPoolExhausted
		case isRetryable(err):
			a.metrics.IncAllocationRetry(pool.Name())
			log.Info("allocator.retry",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", a.maxRetries),
				zap.String("reason", metrics.ClassifyReason(err)),
			)
			continue
		default:
			return 0, err
		}
	}

	a.metrics.IncAllocationFailure(pool.Name(), "contention")
	log.Warn("allocator.contention", zap.Int("attempts", a.maxRetries))
	return 0, ErrResourceContention
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrCandidateTaken) || db.IsDuplicateKeyErr(err)
}

// LowestFree returns the smallest integer in [min, max] absent from taken.
// taken need not be sorted and may contain values outside the range.
func LowestFree(min, max int, taken []int) (int, bool) {
	if min > max {
		return 0, false
	}
	sorted := make([]int, 0, len(taken))
	for _, v := range taken {
		if v >= min && v <= max {
			sorted = append(sorted, v)
		}
	}
	sort.Ints(sorted)

	candidate := min
	for _, v := range sorted {
		if v < candidate {
			continue
		}
		if v > candidate {
			break
		}
		candidate++
	}
	if candidate > max {
		return 0, false
	}
	return candidate, true
}
