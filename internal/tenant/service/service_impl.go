package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/switchboard/internal/audit/domain"
	"github.com/smallbiznis/switchboard/internal/clock"
	"github.com/smallbiznis/switchboard/internal/config"
	"github.com/smallbiznis/switchboard/internal/tenant/domain"
	"github.com/smallbiznis/switchboard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const entityType = "tenant"

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config config.Config
	Repo   domain.Repository
	Audit  auditdomain.Service
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	alloc config.AllocationConfig
	repo  domain.Repository
	audit auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tenant.service"),
		genID: p.GenID,
		clock: p.Clock,
		alloc: p.Config.Allocation,
		repo:  p.Repo,
		audit: p.Audit,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateTenantRequest) (domain.Tenant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Tenant{}, domain.ErrInvalidName
	}
	tenantSlug := slug.Make(strings.TrimSpace(req.Slug))
	if tenantSlug == "" {
		tenantSlug = slug.Make(name)
	}
	if tenantSlug == "" {
		return domain.Tenant{}, domain.ErrInvalidName
	}

	extMin, extMax := s.alloc.DefaultExtMin, s.alloc.DefaultExtMax
	if req.ExtMin != nil {
		extMin = *req.ExtMin
	}
	if req.ExtMax != nil {
		extMax = *req.ExtMax
	}
	if extMin <= 0 || extMin >= extMax {
		return domain.Tenant{}, domain.ErrInvalidRange
	}

	allowLongDistance := true
	if req.AllowLongDistance != nil {
		allowLongDistance = *req.AllowLongDistance
	}

	now := s.clock.Now()
	tenant := domain.Tenant{
		ID:                 s.genID.Generate(),
		Name:               name,
		Slug:               tenantSlug,
		ExtMin:             extMin,
		ExtMax:             extMax,
		ExtNext:            extMin,
		AllowLongDistance:  allowLongDistance,
		AllowInternational: req.AllowInternational,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &tenant); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrSlugTaken
			}
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionCreate,
			EntityType: entityType,
			EntityID:   tenant.ID.String(),
			After:      tenant,
		})
	})
	if err != nil {
		return domain.Tenant{}, err
	}

	s.log.Info("tenant created",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("slug", tenant.Slug),
		zap.Int("ext_min", tenant.ExtMin),
		zap.Int("ext_max", tenant.ExtMax),
	)
	return tenant, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Tenant, error) {
	tenant, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Tenant{}, err
	}
	if tenant == nil {
		return domain.Tenant{}, domain.ErrNotFound
	}
	return *tenant, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Tenant, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}
	tenants := make([]domain.Tenant, 0, len(items))
	for _, item := range items {
		tenants = append(tenants, *item)
	}
	return tenants, nil
}

// UpdateRange reconfigures the extension pool. Every extension already
// allocated must still fit the new range.
func (s *Service) UpdateRange(ctx context.Context, req domain.UpdateRangeRequest) (domain.Tenant, error) {
	if req.ExtMin <= 0 || req.ExtMin >= req.ExtMax {
		return domain.Tenant{}, domain.ErrInvalidRange
	}

	var updated domain.Tenant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}

		span, err := s.repo.ExtensionSpan(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if span.Count > 0 && (span.Min < req.ExtMin || span.Max > req.ExtMax) {
			return domain.ErrRangeExcludesResources
		}

		updated = *current
		updated.ExtMin = req.ExtMin
		updated.ExtMax = req.ExtMax
		updated.ExtNext = updated.ClampNext(current.ExtNext)
		updated.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, &updated); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionUpdate,
			EntityType: entityType,
			EntityID:   updated.ID.String(),
			Before:     current,
			After:      updated,
		})
	})
	if err != nil {
		return domain.Tenant{}, err
	}
	return updated, nil
}

func (s *Service) UpdatePolicy(ctx context.Context, req domain.UpdatePolicyRequest) (domain.Tenant, error) {
	var updated domain.Tenant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		updated = *current
		updated.AllowLongDistance = req.AllowLongDistance
		updated.AllowInternational = req.AllowInternational
		updated.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, &updated); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionUpdate,
			EntityType: entityType,
			EntityID:   updated.ID.String(),
			Before:     current,
			After:      updated,
		})
	})
	if err != nil {
		return domain.Tenant{}, err
	}
	return updated, nil
}

// Delete removes an empty tenant. Audit history and apply jobs are kept.
func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		counts, err := s.repo.CountResources(ctx, tx, id)
		if err != nil {
			return err
		}
		if !counts.Empty() {
			s.log.Info("tenant delete rejected",
				zap.String("tenant_id", id.String()),
				zap.Int64("users", counts.Users),
				zap.Int64("extensions", counts.Extensions),
				zap.Int64("phone_numbers", counts.PhoneNumbers),
			)
			return domain.ErrHasResources
		}
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionDelete,
			EntityType: entityType,
			EntityID:   id.String(),
			Before:     current,
		})
	})
}
