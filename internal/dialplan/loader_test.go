package dialplan

import (
	"context"
	"testing"

	"github.com/smallbiznis/switchboard/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderReadsFullSnapshot(t *testing.T) {
	db := storetest.Open(t)
	at := storetest.Epoch

	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO tenants (id, name, slug, ext_min, ext_max, ext_next, allow_long_distance, allow_international, created_at, updated_at)
		  VALUES (1, 'Acme', 'acme', 1000, 1003, 1001, 1, 0, ?, ?)`, []any{at, at}},
		{`INSERT INTO users (id, tenant_id, name, email, active, voicemail_enabled, dnd_enabled, forward_enabled, created_at, updated_at)
		  VALUES (2, 1, 'Ada', 'ada@example.com', 1, 1, 0, 0, ?, ?)`, []any{at, at}},
		{`INSERT INTO extensions (id, tenant_id, number, status, user_id, sip_secret, created_at, updated_at)
		  VALUES (3, 1, 1000, 'assigned', 2, 'secret', ?, ?)`, []any{at, at}},
		{`INSERT INTO phone_numbers (id, number, status, tenant_id, provider, created_at, updated_at)
		  VALUES (4, '+15551234567', 'assigned', 1, 'carrier', ?, ?)`, []any{at, at}},
		{`INSERT INTO bindings (id, tenant_id, resource_id, destination_kind, destination_ref, created_by, created_at, updated_at)
		  VALUES (5, 1, 4, 'user', 2, 'system', ?, ?)`, []any{at, at}},
	}
	for _, stmt := range stmts {
		require.NoError(t, db.Exec(stmt.sql, stmt.args...).Error)
	}

	snap, err := NewLoader(db).Load(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Tenants, 1)
	require.Len(t, snap.Users, 1)
	require.Len(t, snap.Extensions, 1)
	require.Len(t, snap.PhoneNumbers, 1)
	require.Len(t, snap.Bindings, 1)
	assert.True(t, at.Equal(snap.Revision), "revision %s", snap.Revision)

	ext, ok := snap.ExtensionOf(2)
	require.True(t, ok)
	assert.Equal(t, 1000, ext.Number)

	g := mustGenerator(t)
	out := render(t, g, snap, routingArtifact())
	assert.Contains(t, out, "exten => +15551234567,1,Goto(tenant-acme,1000,1)")
}
