package seed_test

import (
	"context"
	"testing"

	"github.com/smallbiznis/switchboard/internal/seed"
	"github.com/smallbiznis/switchboard/internal/storetest"
	tenantrepo "github.com/smallbiznis/switchboard/internal/tenant/repository"
)

func TestEnsureDefaultTenantIsIdempotent(t *testing.T) {
	db := storetest.Open(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := seed.EnsureDefaultTenant(ctx, db, seed.Options{Name: "Main Office", ExtMin: 100, ExtMax: 199}); err != nil {
			t.Fatalf("seed run %d: %v", i, err)
		}
	}

	tenants, err := tenantrepo.Provide().List(ctx, db)
	if err != nil {
		t.Fatalf("list tenants: %v", err)
	}
	if len(tenants) != 1 {
		t.Fatalf("expected 1 tenant, got %d", len(tenants))
	}
	if tenants[0].Slug != "main-office" || tenants[0].ExtNext != 100 {
		t.Fatalf("unexpected tenant %+v", tenants[0])
	}
}
