package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/switchboard/internal/allocator"
	auditdomain "github.com/smallbiznis/switchboard/internal/audit/domain"
	auditservice "github.com/smallbiznis/switchboard/internal/audit/service"
	"github.com/smallbiznis/switchboard/internal/clock"
	"github.com/smallbiznis/switchboard/internal/observability/logger"
	"github.com/smallbiznis/switchboard/internal/resource/domain"
	tenantdomain "github.com/smallbiznis/switchboard/internal/tenant/domain"
	"github.com/smallbiznis/switchboard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	entityExtension   = "extension"
	entityPhoneNumber = "phone_number"
	entityBinding     = "binding"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Tenants   tenantdomain.Repository
	Allocator *allocator.Allocator
	Audit     auditdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	tenants   tenantdomain.Repository
	allocator *allocator.Allocator
	audit     auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("resource.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		tenants:   p.Tenants,
		allocator: p.Allocator,
		audit:     p.Audit,
	}
}

func (s *Service) AllocateExtension(ctx context.Context, req domain.AllocateExtensionRequest) (domain.Extension, error) {
	if req.TenantID == 0 {
		return domain.Extension{}, domain.ErrTenantNotFound
	}
	pool := &extensionPool{svc: s, req: req}
	if _, err := s.allocator.Allocate(ctx, pool); err != nil {
		return domain.Extension{}, err
	}

	logger.WithContext(ctx, s.log).Info("extension allocated",
		zap.String("tenant_id", req.TenantID.String()),
		zap.Int("number", pool.claimed.Number),
		zap.String("status", string(pool.claimed.Status)),
	)
	return pool.claimed, nil
}

// FreeExtension releases a reserved extension. Extensions owned by a user
// are released by deleting the user.
func (s *Service) FreeExtension(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ext, err := s.repo.FindExtension(ctx, tx, id)
		if err != nil {
			return err
		}
		if ext == nil {
			return domain.ErrExtensionNotFound
		}
		if ext.Status == domain.ExtensionAssigned {
			return domain.ErrExtensionAssigned
		}
		return s.deleteExtension(ctx, tx, *ext)
	})
}

func (s *Service) ListExtensions(ctx context.Context, tenantID snowflake.ID) ([]domain.Extension, error) {
	items, err := s.repo.ListExtensions(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	exts := make([]domain.Extension, 0, len(items))
	for _, item := range items {
		exts = append(exts, *item)
	}
	return exts, nil
}

func (s *Service) ReleaseUserTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, cascade bool) error {
	bindings, err := s.repo.ListBindingsByRef(ctx, tx, domain.DestinationUser, userID)
	if err != nil {
		return err
	}
	if len(bindings) > 0 && !cascade {
		return domain.ErrUserRouted
	}
	for _, binding := range bindings {
		if err := s.unbindTx(ctx, tx, *binding, auditdomain.ActionCascadeUnbind); err != nil {
			return err
		}
	}

	ext, err := s.repo.FindExtensionByUser(ctx, tx, userID)
	if err != nil {
		return err
	}
	if ext == nil {
		return nil
	}
	return s.deleteExtension(ctx, tx, *ext)
}

func (s *Service) deleteExtension(ctx context.Context, tx *gorm.DB, ext domain.Extension) error {
	if err := s.repo.DeleteExtension(ctx, tx, ext.ID); err != nil {
		return err
	}
	return s.audit.Record(ctx, tx, auditdomain.Entry{
		Action:     auditdomain.ActionDelete,
		EntityType: entityExtension,
		EntityID:   ext.ID.String(),
		Before:     ext,
	})
}

// ImportPhoneNumbers adds numbers to the global pool as unassigned.
// Malformed and duplicate numbers are reported per number.
func (s *Service) ImportPhoneNumbers(ctx context.Context, req domain.ImportPhoneNumbersRequest) (domain.ImportPhoneNumbersResult, error) {
	if len(req.Numbers) == 0 {
		return domain.ImportPhoneNumbersResult{}, domain.ErrEmptyImport
	}

	result := domain.ImportPhoneNumbersResult{
		Created:  []domain.PhoneNumber{},
		Rejected: []domain.ImportRejection{},
	}
	seen := make(map[string]struct{}, len(req.Numbers))
	candidates := make([]string, 0, len(req.Numbers))
	for _, raw := range req.Numbers {
		number, err := domain.NormalizeE164(raw)
		if err != nil {
			result.Rejected = append(result.Rejected, domain.ImportRejection{Number: raw, Reason: err.Error()})
			continue
		}
		if _, dup := seen[number]; dup {
			result.Rejected = append(result.Rejected, domain.ImportRejection{Number: raw, Reason: "duplicate_in_request"})
			continue
		}
		seen[number] = struct{}{}
		candidates = append(candidates, number)
	}

	provider := strings.TrimSpace(req.Provider)
	metadata := datatypes.JSONMap{}
	for key, value := range req.Metadata {
		metadata[key] = value
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.ExistingNumbers(ctx, tx, candidates)
		if err != nil {
			return err
		}
		exists := make(map[string]struct{}, len(existing))
		for _, number := range existing {
			exists[number] = struct{}{}
		}

		now := s.clock.Now()
		for _, number := range candidates {
			if _, dup := exists[number]; dup {
				result.Rejected = append(result.Rejected, domain.ImportRejection{Number: number, Reason: "already_exists"})
				continue
			}
			pn := domain.PhoneNumber{
				ID:        s.genID.Generate(),
				Number:    number,
				Status:    domain.PhoneNumberUnassigned,
				Provider:  provider,
				Metadata:  metadata,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := pn.CheckInvariant(); err != nil {
				return err
			}
			if err := s.repo.InsertPhoneNumber(ctx, tx, &pn); err != nil {
				return err
			}
			if err := s.audit.Record(ctx, tx, auditdomain.Entry{
				Action:     auditdomain.ActionCreate,
				EntityType: entityPhoneNumber,
				EntityID:   pn.ID.String(),
				After:      pn,
			}); err != nil {
				return err
			}
			result.Created = append(result.Created, pn)
		}
		return nil
	})
	if err != nil {
		return domain.ImportPhoneNumbersResult{}, err
	}

	logger.WithContext(ctx, s.log).Info("phone numbers imported",
		zap.Int("created", len(result.Created)),
		zap.Int("rejected", len(result.Rejected)),
	)
	return result, nil
}

func (s *Service) GetPhoneNumber(ctx context.Context, id snowflake.ID) (domain.PhoneNumber, error) {
	number, err := s.repo.FindPhoneNumber(ctx, s.db, id)
	if err != nil {
		return domain.PhoneNumber{}, err
	}
	if number == nil {
		return domain.PhoneNumber{}, domain.ErrPhoneNumberNotFound
	}
	return *number, nil
}

func (s *Service) ListPhoneNumbers(ctx context.Context, filter domain.PhoneNumberFilter) ([]domain.PhoneNumber, error) {
	items, err := s.repo.ListPhoneNumbers(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	numbers := make([]domain.PhoneNumber, 0, len(items))
	for _, item := range items {
		numbers = append(numbers, *item)
	}
	return numbers, nil
}

// AllocatePhoneNumber moves a number from the global pool into a tenant:
// Unassigned -> Allocated.
func (s *Service) AllocatePhoneNumber(ctx context.Context, req domain.AllocatePhoneNumberRequest) (domain.PhoneNumber, error) {
	tenant, err := s.tenants.FindByID(ctx, s.db, req.TenantID)
	if err != nil {
		return domain.PhoneNumber{}, err
	}
	if tenant == nil {
		return domain.PhoneNumber{}, domain.ErrTenantNotFound
	}

	if req.PhoneNumberID == 0 {
		pool := &phoneNumberPool{svc: s, tenantID: tenant.ID}
		if _, err := s.allocator.Allocate(ctx, pool); err != nil {
			return domain.PhoneNumber{}, err
		}
		return pool.claimed, nil
	}

	var updated domain.PhoneNumber
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindPhoneNumber(ctx, tx, req.PhoneNumberID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrPhoneNumberNotFound
		}
		if current.Status != domain.PhoneNumberUnassigned {
			return domain.ErrInvalidState
		}
		updated, err = s.transitionNumber(ctx, tx, *current, domain.PhoneNumberAllocated, &tenant.ID)
		return err
	})
	if errors.Is(err, allocator.ErrCandidateTaken) {
		return domain.PhoneNumber{}, domain.ErrInvalidState
	}
	if err != nil {
		return domain.PhoneNumber{}, err
	}
	return updated, nil
}

// DeallocatePhoneNumber returns a number to the global pool:
// Allocated -> Unassigned. A bound number is rejected unless Cascade, which
// removes the binding first.
func (s *Service) DeallocatePhoneNumber(ctx context.Context, req domain.DeallocatePhoneNumberRequest) (domain.PhoneNumber, error) {
	var updated domain.PhoneNumber
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindPhoneNumber(ctx, tx, req.PhoneNumberID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrPhoneNumberNotFound
		}
		if current.Status == domain.PhoneNumberUnassigned {
			return domain.ErrInvalidState
		}

		binding, err := s.repo.FindBindingByResource(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		if binding != nil {
			if !req.Cascade {
				return domain.ErrHasBinding
			}
			if err := s.unbindTx(ctx, tx, *binding, auditdomain.ActionCascadeUnbind); err != nil {
				return err
			}
			current, err = s.repo.FindPhoneNumber(ctx, tx, req.PhoneNumberID)
			if err != nil {
				return err
			}
		}

		updated, err = s.transitionNumber(ctx, tx, *current, domain.PhoneNumberUnassigned, nil)
		return err
	})
	if errors.Is(err, allocator.ErrCandidateTaken) {
		return domain.PhoneNumber{}, domain.ErrInvalidState
	}
	if err != nil {
		return domain.PhoneNumber{}, err
	}
	return updated, nil
}

// DeletePhoneNumber removes an unassigned number from the system.
func (s *Service) DeletePhoneNumber(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindPhoneNumber(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrPhoneNumberNotFound
		}
		if current.Status != domain.PhoneNumberUnassigned {
			return domain.ErrInvalidState
		}
		if err := s.repo.DeletePhoneNumber(ctx, tx, id); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionDelete,
			EntityType: entityPhoneNumber,
			EntityID:   id.String(),
			Before:     current,
		})
	})
}

// transitionNumber performs a guarded status change and audits it. It
// returns allocator.ErrCandidateTaken when the row moved concurrently.
func (s *Service) transitionNumber(ctx context.Context, tx *gorm.DB, current domain.PhoneNumber, to domain.PhoneNumberStatus, tenantID *snowflake.ID) (domain.PhoneNumber, error) {
	updated := current
	updated.Status = to
	updated.TenantID = tenantID
	updated.UpdatedAt = s.clock.Now()
	if err := updated.CheckInvariant(); err != nil {
		return domain.PhoneNumber{}, err
	}

	ok, err := s.repo.TransitionPhoneNumber(ctx, tx, current.ID, current.Status, to, tenantID, updated.UpdatedAt)
	if err != nil {
		return domain.PhoneNumber{}, err
	}
	if !ok {
		return domain.PhoneNumber{}, allocator.ErrCandidateTaken
	}
	if err := s.audit.Record(ctx, tx, auditdomain.Entry{
		Action:     auditdomain.ActionUpdate,
		EntityType: entityPhoneNumber,
		EntityID:   current.ID.String(),
		Before:     current,
		After:      updated,
	}); err != nil {
		return domain.PhoneNumber{}, err
	}
	return updated, nil
}

// Bind routes an allocated number to a destination in the same tenant:
// Allocated -> Assigned.
func (s *Service) Bind(ctx context.Context, req domain.BindRequest) (domain.Binding, error) {
	if err := req.Destination.Validate(); err != nil {
		return domain.Binding{}, err
	}
	if !req.Destination.Kind.Routable() {
		return domain.Binding{}, domain.ErrUnsupportedDestination
	}

	var binding domain.Binding
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := s.repo.FindPhoneNumber(ctx, tx, req.ResourceID)
		if err != nil {
			return err
		}
		if number == nil {
			return domain.ErrPhoneNumberNotFound
		}
		existing, err := s.repo.FindBindingByResource(ctx, tx, number.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrAlreadyBound
		}
		if number.Status != domain.PhoneNumberAllocated || number.TenantID == nil {
			return domain.ErrInvalidState
		}
		if err := s.validateDestination(ctx, tx, *number.TenantID, req.Destination); err != nil {
			return err
		}

		now := s.clock.Now()
		binding = domain.Binding{
			ID:                 s.genID.Generate(),
			TenantID:           *number.TenantID,
			ResourceID:         number.ID,
			DestinationKind:    req.Destination.Kind,
			DestinationRef:     req.Destination.Ref,
			DestinationLiteral: req.Destination.Literal,
			CreatedBy:          auditservice.ActorFromContext(ctx),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.repo.InsertBinding(ctx, tx, &binding); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrAlreadyBound
			}
			return err
		}
		if _, err := s.transitionNumber(ctx, tx, *number, domain.PhoneNumberAssigned, number.TenantID); err != nil {
			if errors.Is(err, allocator.ErrCandidateTaken) {
				return domain.ErrInvalidState
			}
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionCreate,
			EntityType: entityBinding,
			EntityID:   binding.ID.String(),
			After:      binding,
		})
	})
	if err != nil {
		return domain.Binding{}, err
	}

	logger.WithContext(ctx, s.log).Info("number bound",
		zap.String("resource_id", binding.ResourceID.String()),
		zap.String("destination_kind", string(binding.DestinationKind)),
	)
	return binding, nil
}

func (s *Service) validateDestination(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, dest domain.Destination) error {
	switch dest.Kind {
	case domain.DestinationUser:
		user, err := s.repo.FindDestinationUser(ctx, tx, *dest.Ref)
		if err != nil {
			return err
		}
		if user == nil || !user.Active || user.ExtensionNumber == nil {
			return domain.ErrDestinationNotFound
		}
		if user.TenantID != tenantID {
			return domain.ErrDestinationScope
		}
		return nil
	case domain.DestinationExternal:
		return nil
	default:
		return domain.ErrUnsupportedDestination
	}
}

// Unbind deletes the binding of a number: Assigned -> Allocated. The number
// stays allocated to its tenant.
func (s *Service) Unbind(ctx context.Context, resourceID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		binding, err := s.repo.FindBindingByResource(ctx, tx, resourceID)
		if err != nil {
			return err
		}
		if binding == nil {
			return domain.ErrBindingNotFound
		}
		return s.unbindTx(ctx, tx, *binding, auditdomain.ActionDelete)
	})
}

func (s *Service) unbindTx(ctx context.Context, tx *gorm.DB, binding domain.Binding, action string) error {
	if err := s.repo.DeleteBinding(ctx, tx, binding.ID); err != nil {
		return err
	}
	number, err := s.repo.FindPhoneNumber(ctx, tx, binding.ResourceID)
	if err != nil {
		return err
	}
	if number != nil && number.Status == domain.PhoneNumberAssigned {
		if _, err := s.transitionNumber(ctx, tx, *number, domain.PhoneNumberAllocated, number.TenantID); err != nil {
			return err
		}
	}
	return s.audit.Record(ctx, tx, auditdomain.Entry{
		Action:     action,
		EntityType: entityBinding,
		EntityID:   binding.ID.String(),
		Before:     binding,
	})
}

func (s *Service) GetBinding(ctx context.Context, resourceID snowflake.ID) (domain.Binding, error) {
	binding, err := s.repo.FindBindingByResource(ctx, s.db, resourceID)
	if err != nil {
		return domain.Binding{}, err
	}
	if binding == nil {
		return domain.Binding{}, domain.ErrBindingNotFound
	}
	return *binding, nil
}

func (s *Service) ListBindings(ctx context.Context, tenantID *snowflake.ID) ([]domain.Binding, error) {
	items, err := s.repo.ListBindings(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	bindings := make([]domain.Binding, 0, len(items))
	for _, item := range items {
		bindings = append(bindings, *item)
	}
	return bindings, nil
}
