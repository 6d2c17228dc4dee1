package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/switchboard/internal/allocator"
	auditdomain "github.com/smallbiznis/switchboard/internal/audit/domain"
	"github.com/smallbiznis/switchboard/internal/observability/metrics"
	"github.com/smallbiznis/switchboard/internal/resource/domain"
	tenantdomain "github.com/smallbiznis/switchboard/internal/tenant/domain"
	"gorm.io/gorm"
)

// extensionPool draws from one tenant's [ExtMin, ExtMax]. The tenant row is
// re-read on every attempt so a concurrent range change is honoured.
type extensionPool struct {
	svc    *Service
	req    domain.AllocateExtensionRequest
	tenant *tenantdomain.Tenant

	claimed domain.Extension
}

func (p *extensionPool) Name() string { return metrics.PoolExtension }

func (p *extensionPool) Next(ctx context.Context, tx *gorm.DB) (int64, error) {
	tenant, err := p.svc.tenants.FindByID(ctx, tx, p.req.TenantID)
	if err != nil {
		return 0, err
	}
	if tenant == nil {
		return 0, domain.ErrTenantNotFound
	}
	p.tenant = tenant

	taken, err := p.svc.repo.TakenExtensionNumbers(ctx, tx, tenant.ID)
	if err != nil {
		return 0, err
	}
	number, ok := allocator.LowestFree(tenant.ExtMin, tenant.ExtMax, taken)
	if !ok {
		return 0, allocator.ErrPoolExhausted
	}
	return int64(number), nil
}

func (p *extensionPool) Claim(ctx context.Context, tx *gorm.DB, candidate int64) error {
	number := int(candidate)
	if p.req.BeforeClaim != nil {
		if err := p.req.BeforeClaim(ctx, tx, number); err != nil {
			return err
		}
	}

	secret, err := newSIPSecret()
	if err != nil {
		return err
	}
	now := p.svc.clock.Now()
	ext := domain.Extension{
		ID:        p.svc.genID.Generate(),
		TenantID:  p.tenant.ID,
		Number:    number,
		Status:    domain.ExtensionAllocated,
		SIPSecret: secret,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.req.UserID != nil {
		ext.Status = domain.ExtensionAssigned
		ext.UserID = p.req.UserID
	}
	if err := ext.CheckInvariant(); err != nil {
		return err
	}
	if err := p.svc.repo.InsertExtension(ctx, tx, &ext); err != nil {
		return err
	}
	if err := p.svc.tenants.SetNext(ctx, tx, p.tenant.ID, p.tenant.ClampNext(number+1), now); err != nil {
		return err
	}
	if err := p.svc.audit.Record(ctx, tx, auditdomain.Entry{
		Action:     auditdomain.ActionCreate,
		EntityType: entityExtension,
		EntityID:   ext.ID.String(),
		After:      ext,
	}); err != nil {
		return err
	}
	p.claimed = ext
	return nil
}

// phoneNumberPool hands the lowest unassigned number of the global pool to
// a tenant. Claims are conditional updates; a number grabbed by someone else
// between Next and Claim reports ErrCandidateTaken.
type phoneNumberPool struct {
	svc      *Service
	tenantID snowflake.ID

	claimed domain.PhoneNumber
	before  domain.PhoneNumber
}

func (p *phoneNumberPool) Name() string { return metrics.PoolPhoneNumber }

func (p *phoneNumberPool) Next(ctx context.Context, tx *gorm.DB) (int64, error) {
	number, err := p.svc.repo.LowestUnassignedNumber(ctx, tx)
	if err != nil {
		return 0, err
	}
	if number == nil {
		return 0, allocator.ErrPoolExhausted
	}
	p.before = *number
	return int64(number.ID), nil
}

func (p *phoneNumberPool) Claim(ctx context.Context, tx *gorm.DB, candidate int64) error {
	updated, err := p.svc.transitionNumber(ctx, tx, p.before, domain.PhoneNumberAllocated, &p.tenantID)
	if err != nil {
		return err
	}
	p.claimed = updated
	return nil
}

func newSIPSecret() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
