package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/switchboard/internal/audit/domain"
	"github.com/smallbiznis/switchboard/internal/clock"
	"github.com/smallbiznis/switchboard/internal/observability/logger"
	resourcedomain "github.com/smallbiznis/switchboard/internal/resource/domain"
	"github.com/smallbiznis/switchboard/internal/user/domain"
	"github.com/smallbiznis/switchboard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const entityType = "user"

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Resources resourcedomain.Service
	Audit     auditdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	resources resourcedomain.Service
	audit     auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("user.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		resources: p.Resources,
		audit:     p.Audit,
	}
}

// Create inserts the user and its extension in the same allocation attempt,
// so a retried attempt never leaves a user without an extension.
func (s *Service) Create(ctx context.Context, req domain.CreateUserRequest) (domain.UserWithExtension, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.UserWithExtension{}, domain.ErrInvalidName
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.UserWithExtension{}, err
	}

	existing, err := s.repo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return domain.UserWithExtension{}, err
	}
	if existing != nil {
		return domain.UserWithExtension{}, domain.ErrEmailTaken
	}

	voicemail := true
	if req.VoicemailEnabled != nil {
		voicemail = *req.VoicemailEnabled
	}
	user := domain.User{
		ID:               s.genID.Generate(),
		TenantID:         req.TenantID,
		Name:             name,
		Email:            email,
		Active:           true,
		VoicemailEnabled: voicemail,
		DNDEnabled:       req.DNDEnabled,
	}
	if forward := strings.TrimSpace(req.ForwardNumber); forward != "" {
		if !validForward(forward) {
			return domain.UserWithExtension{}, domain.ErrInvalidForward
		}
		user.ForwardEnabled = true
		user.ForwardNumber = &forward
	}

	ext, err := s.resources.AllocateExtension(ctx, resourcedomain.AllocateExtensionRequest{
		TenantID: req.TenantID,
		UserID:   &user.ID,
		BeforeClaim: func(ctx context.Context, tx *gorm.DB, _ int) error {
			now := s.clock.Now()
			user.CreatedAt = now
			user.UpdatedAt = now
			if err := s.repo.Insert(ctx, tx, &user); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return domain.ErrEmailTaken
				}
				return err
			}
			return s.audit.Record(ctx, tx, auditdomain.Entry{
				Action:     auditdomain.ActionCreate,
				EntityType: entityType,
				EntityID:   user.ID.String(),
				After:      user,
			})
		},
	})
	if err != nil {
		return domain.UserWithExtension{}, err
	}

	logger.WithContext(ctx, s.log).Info("user created",
		zap.String("user_id", user.ID.String()),
		zap.String("tenant_id", user.TenantID.String()),
		zap.Int("extension", ext.Number),
	)
	return domain.UserWithExtension{User: user, Extension: &ext}, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.UserWithExtension, error) {
	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.UserWithExtension{}, err
	}
	if user == nil {
		return domain.UserWithExtension{}, domain.ErrNotFound
	}
	exts, err := s.resources.ListExtensions(ctx, user.TenantID)
	if err != nil {
		return domain.UserWithExtension{}, err
	}
	out := domain.UserWithExtension{User: *user}
	for i := range exts {
		if exts[i].UserID != nil && *exts[i].UserID == user.ID {
			out.Extension = &exts[i]
			break
		}
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID) ([]domain.User, error) {
	items, err := s.repo.List(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(items))
	for _, item := range items {
		users = append(users, *item)
	}
	return users, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateUserRequest) (domain.User, error) {
	var updated domain.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}

		updated = *current
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.ErrInvalidName
			}
			updated.Name = name
		}
		if req.Active != nil {
			updated.Active = *req.Active
		}
		if req.VoicemailEnabled != nil {
			updated.VoicemailEnabled = *req.VoicemailEnabled
		}
		if req.DNDEnabled != nil {
			updated.DNDEnabled = *req.DNDEnabled
		}
		if req.ForwardNumber != nil {
			forward := strings.TrimSpace(*req.ForwardNumber)
			switch {
			case forward == "":
				updated.ForwardEnabled = false
				updated.ForwardNumber = nil
			case validForward(forward):
				updated.ForwardEnabled = true
				updated.ForwardNumber = &forward
			default:
				return domain.ErrInvalidForward
			}
		}
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
		return domain.User{}, err
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID, cascade bool) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if err := s.resources.ReleaseUserTx(ctx, tx, id, cascade); err != nil {
			return err
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
	if err != nil {
		return err
	}

	logger.WithContext(ctx, s.log).Info("user deleted",
		zap.String("user_id", id.String()),
		zap.Bool("cascade", cascade),
	)
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", domain.ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", domain.ErrInvalidEmail
	}
	return email, nil
}

func validForward(number string) bool {
	return resourcedomain.ExternalDestination(number).Validate() == nil
}
