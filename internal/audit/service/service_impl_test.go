package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/switchboard/internal/audit/domain"
	"github.com/smallbiznis/switchboard/internal/audit/repository"
	"github.com/smallbiznis/switchboard/internal/auditcontext"
	"github.com/smallbiznis/switchboard/internal/storetest"
	"github.com/smallbiznis/switchboard/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, func(time.Duration)) {
	t.Helper()
	db := storetest.Open(t)
	clk := storetest.Clock()
	svc := NewService(Params{
		DB:    db,
		Log:   storetest.Logger(),
		GenID: storetest.MustNode(t),
		Clock: clk,
		Repo:  repository.Provide(),
	}).(*Service)
	return svc, clk.Advance
}

func TestRecordCapturesActorAndMasksSecrets(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := auditcontext.WithActor(context.Background(), "admin", "ops@example.com")
	ctx = auditcontext.WithRequestID(ctx, "req-1")

	err := svc.Record(ctx, nil, auditdomain.Entry{
		Action:     auditdomain.ActionCreate,
		EntityType: "extension",
		EntityID:   "42",
		After:      map[string]any{"number": 1000, "sip_secret": "s3cr3t-value"},
	})
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "ops@example.com", entry.Actor)
	require.NotNil(t, entry.RequestID)
	assert.Equal(t, "req-1", *entry.RequestID)
	assert.Nil(t, entry.Before)

	var after map[string]any
	require.NoError(t, json.Unmarshal(entry.After, &after))
	assert.Equal(t, "****alue", after["sip_secret"])
}

func TestRecordDefaultsToSystemActor(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Record(context.Background(), nil, auditdomain.Entry{
		Action:     auditdomain.ActionApply,
		EntityType: "apply_job",
		EntityID:   "1",
	}))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{Actor: auditdomain.SystemActor})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 1)
}

func TestRecordRejectsMissingAction(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Record(context.Background(), nil, auditdomain.Entry{EntityType: "tenant"})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListFiltersAndOrdersNewestFirst(t *testing.T) {
	svc, advance := newTestService(t)
	alice := auditcontext.WithActor(context.Background(), "admin", "alice")
	bob := auditcontext.WithActor(context.Background(), "admin", "bob")

	record := func(ctx context.Context, entityType, id string) {
		t.Helper()
		require.NoError(t, svc.Record(ctx, nil, auditdomain.Entry{
			Action:     auditdomain.ActionCreate,
			EntityType: entityType,
			EntityID:   id,
		}))
		advance(time.Minute)
	}
	record(alice, "tenant", "1")
	record(bob, "user", "2")
	record(alice, "user", "3")
	record(alice, "tenant", "4")

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{Actor: "alice"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 3)
	assert.Equal(t, "4", resp.AuditLogs[0].EntityID)
	assert.Equal(t, "1", resp.AuditLogs[2].EntityID)

	resp, err = svc.List(context.Background(), auditdomain.ListAuditLogRequest{EntityType: "user"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 2)
	assert.Equal(t, "3", resp.AuditLogs[0].EntityID)

	from := storetest.Epoch.Add(30 * time.Second)
	to := storetest.Epoch.Add(2*time.Minute + 30*time.Second)
	resp, err = svc.List(context.Background(), auditdomain.ListAuditLogRequest{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 2)
	assert.Equal(t, "3", resp.AuditLogs[0].EntityID)
	assert.Equal(t, "2", resp.AuditLogs[1].EntityID)
}

func TestListPaginates(t *testing.T) {
	svc, advance := newTestService(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Record(context.Background(), nil, auditdomain.Entry{
			Action:     auditdomain.ActionUpdate,
			EntityType: "tenant",
			EntityID:   "t",
		}))
		advance(time.Second)
	}

	first, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 3},
	})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 3)
	require.True(t, first.HasMore)

	second, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 3, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 2)
	assert.False(t, second.HasMore)
	assert.True(t, second.AuditLogs[0].CreatedAt.Before(first.AuditLogs[2].CreatedAt))
}

func TestListRejectsInvertedRange(t *testing.T) {
	svc, _ := newTestService(t)
	from := storetest.Epoch
	to := from.Add(-time.Hour)
	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{From: &from, To: &to})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
