package service

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/switchboard/internal/dialplan"
	resourcedomain "github.com/smallbiznis/switchboard/internal/resource/domain"
	tenantdomain "github.com/smallbiznis/switchboard/internal/tenant/domain"
	userdomain "github.com/smallbiznis/switchboard/internal/user/domain"
)

var validateAt = time.Date(2024, 5, 2, 11, 30, 0, 0, time.UTC)

type validateFixture struct {
	tenants  []tenantdomain.Tenant
	users    []userdomain.User
	exts     []resourcedomain.Extension
	numbers  []resourcedomain.PhoneNumber
	bindings []resourcedomain.Binding
}

func id(v int64) *snowflake.ID {
	s := snowflake.ID(v)
	return &s
}

// healthy is one tenant with one user on 1000 and a number routed to it.
func healthy() validateFixture {
	return validateFixture{
		tenants: []tenantdomain.Tenant{{ID: 1, Slug: "acme", ExtMin: 1000, ExtMax: 1009, UpdatedAt: validateAt}},
		users:   []userdomain.User{{ID: 10, TenantID: 1, Name: "Ada", Active: true}},
		exts: []resourcedomain.Extension{
			{ID: 100, TenantID: 1, Number: 1000, Status: resourcedomain.ExtensionAssigned, UserID: id(10)},
		},
		numbers: []resourcedomain.PhoneNumber{
			{ID: 200, Number: "+15551234567", Status: resourcedomain.PhoneNumberAssigned, TenantID: id(1)},
		},
		bindings: []resourcedomain.Binding{
			{ID: 300, TenantID: 1, ResourceID: 200, DestinationKind: resourcedomain.DestinationUser, DestinationRef: id(10)},
		},
	}
}

func (f validateFixture) snapshot() *dialplan.Snapshot {
	return dialplan.NewSnapshot(f.tenants, f.users, f.exts, f.numbers, f.bindings)
}

func countCodes(report []string) map[string]int {
	out := map[string]int{}
	for _, c := range report {
		out[c]++
	}
	return out
}

func TestValidateHealthySnapshot(t *testing.T) {
	report := Validate(healthy().snapshot())
	if !report.OK() {
		t.Fatalf("expected no violations, got %+v", report.Violations)
	}
}

func TestValidateViolations(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*validateFixture)
		want   string
	}{
		{"extension out of range", func(f *validateFixture) { f.exts[0].Number = 2000 }, ViolationExtensionOutOfRange},
		{"duplicate extension", func(f *validateFixture) {
			f.exts = append(f.exts, resourcedomain.Extension{ID: 101, TenantID: 1, Number: 1000, Status: resourcedomain.ExtensionAllocated})
		}, ViolationDuplicateExtension},
		{"extension without tenant", func(f *validateFixture) { f.exts[0].TenantID = 9 }, ViolationDanglingReference},
		{"duplicate number", func(f *validateFixture) {
			f.numbers = append(f.numbers, resourcedomain.PhoneNumber{ID: 201, Number: "+15551234567", Status: resourcedomain.PhoneNumberUnassigned})
		}, ViolationDuplicateNumber},
		{"number scope mismatch", func(f *validateFixture) {
			f.numbers = append(f.numbers, resourcedomain.PhoneNumber{ID: 202, Number: "+15550000000", Status: resourcedomain.PhoneNumberAllocated})
		}, ViolationInvalidPhoneNumber},
		{"binding on unassigned number", func(f *validateFixture) {
			f.numbers[0].Status = resourcedomain.PhoneNumberAllocated
		}, ViolationBindingScope},
		{"binding to missing user", func(f *validateFixture) { f.bindings[0].DestinationRef = id(99) }, ViolationDanglingReference},
		{"binding to inactive user", func(f *validateFixture) { f.users[0].Active = false }, ViolationDestinationInactive},
		{"binding to user without extension", func(f *validateFixture) {
			f.exts = nil
		}, ViolationDestinationNoExt},
		{"binding to queue", func(f *validateFixture) {
			f.bindings[0].DestinationKind = resourcedomain.DestinationQueue
		}, ViolationUnroutable},
		{"binding with literal and ref", func(f *validateFixture) {
			lit := "+15550001111"
			f.bindings[0].DestinationLiteral = &lit
		}, ViolationInvalidDestination},
		{"cross tenant destination", func(f *validateFixture) {
			f.tenants = append(f.tenants, tenantdomain.Tenant{ID: 2, Slug: "beta", ExtMin: 1000, ExtMax: 1009})
			f.users[0].TenantID = 2
			f.exts[0].TenantID = 2
		}, ViolationCrossTenant},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := healthy()
			tc.mutate(&f)
			report := Validate(f.snapshot())
			if report.OK() {
				t.Fatalf("expected violation %s, got none", tc.want)
			}
			found := make([]string, 0, len(report.Violations))
			for _, v := range report.Violations {
				found = append(found, v.Code)
			}
			if countCodes(found)[tc.want] == 0 {
				t.Fatalf("expected violation %s, got %v", tc.want, found)
			}
		})
	}
}

func TestValidateReportsEveryViolation(t *testing.T) {
	f := healthy()
	f.exts[0].Number = 2000
	f.users[0].Active = false
	report := Validate(f.snapshot())
	if len(report.Violations) != 2 {
		t.Fatalf("expected 2 violations, got %+v", report.Violations)
	}
}
