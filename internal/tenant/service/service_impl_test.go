package service

import (
	"context"
	"testing"

	auditdomain "github.com/smallbiznis/switchboard/internal/audit/domain"
	auditrepo "github.com/smallbiznis/switchboard/internal/audit/repository"
	auditservice "github.com/smallbiznis/switchboard/internal/audit/service"
	"github.com/smallbiznis/switchboard/internal/config"
	"github.com/smallbiznis/switchboard/internal/storetest"
	"github.com/smallbiznis/switchboard/internal/tenant/domain"
	"github.com/smallbiznis/switchboard/internal/tenant/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, auditdomain.Service, *gorm.DB) {
	t.Helper()
	db := storetest.Open(t)
	node := storetest.MustNode(t)
	clk := storetest.Clock()
	log := storetest.Logger()

	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepo.Provide(),
	})
	svc := New(Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Config: config.Config{Allocation: config.AllocationConfig{
			MaxRetries:    5,
			DefaultExtMin: 1000,
			DefaultExtMax: 1999,
		}},
		Repo:  repository.Provide(),
		Audit: audit,
	})
	return svc, audit, db
}

func intPtr(v int) *int { return &v }

func TestCreateTenantDefaults(t *testing.T) {
	svc, audit, _ := newTestService(t)
	ctx := context.Background()

	tenant, err := svc.Create(ctx, domain.CreateTenantRequest{Name: "Acme Corp"})
	require.NoError(t, err)
	assert.Equal(t, "acme-corp", tenant.Slug)
	assert.Equal(t, 1000, tenant.ExtMin)
	assert.Equal(t, 1999, tenant.ExtMax)
	assert.Equal(t, 1000, tenant.ExtNext)
	assert.True(t, tenant.AllowLongDistance)
	assert.False(t, tenant.AllowInternational)
	assert.Equal(t, "tenant-acme-corp", tenant.RoutingContext())

	got, err := svc.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.Slug, got.Slug)

	logs, err := audit.List(ctx, auditdomain.ListAuditLogRequest{EntityType: "tenant", Action: auditdomain.ActionCreate})
	require.NoError(t, err)
	require.Len(t, logs.AuditLogs, 1)
	assert.Equal(t, tenant.ID.String(), logs.AuditLogs[0].EntityID)
}

func TestCreateTenantValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateTenantRequest{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(ctx, domain.CreateTenantRequest{Name: "Acme", ExtMin: intPtr(2000), ExtMax: intPtr(1000)})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = svc.Create(ctx, domain.CreateTenantRequest{Name: "Acme", ExtMin: intPtr(0), ExtMax: intPtr(10)})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = svc.Create(ctx, domain.CreateTenantRequest{Name: "Acme"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.CreateTenantRequest{Name: "Other", Slug: "acme"})
	assert.ErrorIs(t, err, domain.ErrSlugTaken)
}

func TestUpdateRangeRejectsExcludedExtensions(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	tenant, err := svc.Create(ctx, domain.CreateTenantRequest{Name: "Acme", ExtMin: intPtr(1000), ExtMax: intPtr(1010)})
	require.NoError(t, err)
	require.NoError(t, db.Exec(
		`INSERT INTO extensions (id, tenant_id, number, status, sip_secret, created_at, updated_at)
		 VALUES (1, ?, 1005, 'allocated', 's', ?, ?)`,
		tenant.ID, storetest.Epoch, storetest.Epoch,
	).Error)

	_, err = svc.UpdateRange(ctx, domain.UpdateRangeRequest{ID: tenant.ID, ExtMin: 1006, ExtMax: 1020})
	assert.ErrorIs(t, err, domain.ErrRangeExcludesResources)

	updated, err := svc.UpdateRange(ctx, domain.UpdateRangeRequest{ID: tenant.ID, ExtMin: 1005, ExtMax: 1020})
	require.NoError(t, err)
	assert.Equal(t, 1005, updated.ExtMin)
	assert.Equal(t, 1005, updated.ExtNext)

	_, err = svc.UpdateRange(ctx, domain.UpdateRangeRequest{ID: tenant.ID, ExtMin: 50, ExtMax: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}

func TestUpdatePolicy(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tenant, err := svc.Create(ctx, domain.CreateTenantRequest{Name: "Acme"})
	require.NoError(t, err)

	updated, err := svc.UpdatePolicy(ctx, domain.UpdatePolicyRequest{ID: tenant.ID, AllowLongDistance: false, AllowInternational: true})
	require.NoError(t, err)
	assert.False(t, updated.AllowLongDistance)
	assert.True(t, updated.AllowInternational)

	_, err = svc.UpdatePolicy(ctx, domain.UpdatePolicyRequest{ID: 99})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteTenantRequiresEmpty(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	tenant, err := svc.Create(ctx, domain.CreateTenantRequest{Name: "Acme"})
	require.NoError(t, err)
	require.NoError(t, db.Exec(
		`INSERT INTO phone_numbers (id, number, status, tenant_id, provider, created_at, updated_at)
		 VALUES (1, '+15551234567', 'allocated', ?, '', ?, ?)`,
		tenant.ID, storetest.Epoch, storetest.Epoch,
	).Error)

	assert.ErrorIs(t, svc.Delete(ctx, tenant.ID), domain.ErrHasResources)

	require.NoError(t, db.Exec(`DELETE FROM phone_numbers`).Error)
	require.NoError(t, svc.Delete(ctx, tenant.ID))

	_, err = svc.Get(ctx, tenant.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, tenant.ID), domain.ErrNotFound)
}
