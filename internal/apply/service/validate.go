package service

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/switchboard/internal/apply/domain"
	"github.com/smallbiznis/switchboard/internal/dialplan"
	resourcedomain "github.com/smallbiznis/switchboard/internal/resource/domain"
)

const (
	ViolationDuplicateExtension  = "duplicate_extension"
	ViolationExtensionOutOfRange = "extension_out_of_range"
	ViolationInvalidExtension    = "invalid_extension"
	ViolationDuplicateNumber     = "duplicate_number"
	ViolationInvalidPhoneNumber  = "invalid_phone_number"
	ViolationDanglingReference   = "dangling_reference"
	ViolationDuplicateBinding    = "duplicate_binding"
	ViolationBindingScope        = "binding_scope_mismatch"
	ViolationInvalidDestination  = "invalid_destination"
	ViolationUnroutable          = "unroutable_destination"
	ViolationDestinationInactive = "destination_inactive"
	ViolationDestinationNoExt    = "destination_without_extension"
	ViolationCrossTenant         = "cross_tenant_destination"
)

// Validate checks a snapshot against the invariants generation relies on.
// The store enforces most of them already; this is the last check before
// anything touches the filesystem. Every violation is reported, not just
// the first.
func Validate(snap *dialplan.Snapshot) domain.ValidationReport {
	report := domain.ValidationReport{Violations: []domain.Violation{}}
	validateExtensions(snap, &report)
	validatePhoneNumbers(snap, &report)
	validateBindings(snap, &report)
	return report
}

func validateExtensions(snap *dialplan.Snapshot, report *domain.ValidationReport) {
	type scoped struct {
		tenant snowflake.ID
		number int
	}
	seen := make(map[scoped]snowflake.ID, len(snap.Extensions))

	for _, ext := range snap.Extensions {
		key := scoped{tenant: ext.TenantID, number: ext.Number}
		if other, dup := seen[key]; dup {
			report.Add(ViolationDuplicateExtension, "extension", ext.ID,
				fmt.Sprintf("extension %d also held by %s", ext.Number, other))
		} else {
			seen[key] = ext.ID
		}

		if err := ext.CheckInvariant(); err != nil {
			report.Add(ViolationInvalidExtension, "extension", ext.ID, err.Error())
		}

		tenant, ok := snap.Tenant(ext.TenantID)
		if !ok {
			report.Add(ViolationDanglingReference, "extension", ext.ID,
				fmt.Sprintf("tenant %s does not exist", ext.TenantID))
			continue
		}
		if !tenant.Contains(ext.Number) {
			report.Add(ViolationExtensionOutOfRange, "extension", ext.ID,
				fmt.Sprintf("extension %d outside %s range [%d, %d]", ext.Number, tenant.Slug, tenant.ExtMin, tenant.ExtMax))
		}

		if ext.UserID == nil {
			continue
		}
		user, ok := snap.User(*ext.UserID)
		if !ok {
			report.Add(ViolationDanglingReference, "extension", ext.ID,
				fmt.Sprintf("user %s does not exist", *ext.UserID))
			continue
		}
		if user.TenantID != ext.TenantID {
			report.Add(ViolationCrossTenant, "extension", ext.ID,
				fmt.Sprintf("user %s belongs to another tenant", user.ID))
		}
	}
}

func validatePhoneNumbers(snap *dialplan.Snapshot, report *domain.ValidationReport) {
	seen := make(map[string]snowflake.ID, len(snap.PhoneNumbers))
	for _, pn := range snap.PhoneNumbers {
		if other, dup := seen[pn.Number]; dup {
			report.Add(ViolationDuplicateNumber, "phone_number", pn.ID,
				fmt.Sprintf("%s also held by %s", pn.Number, other))
		} else {
			seen[pn.Number] = pn.ID
		}
		if err := pn.CheckInvariant(); err != nil {
			report.Add(ViolationInvalidPhoneNumber, "phone_number", pn.ID, err.Error())
			continue
		}
		if pn.TenantID != nil {
			if _, ok := snap.Tenant(*pn.TenantID); !ok {
				report.Add(ViolationDanglingReference, "phone_number", pn.ID,
					fmt.Sprintf("tenant %s does not exist", *pn.TenantID))
			}
		}
	}
}

func validateBindings(snap *dialplan.Snapshot, report *domain.ValidationReport) {
	bound := make(map[snowflake.ID]snowflake.ID, len(snap.Bindings))
	for _, b := range snap.Bindings {
		if other, dup := bound[b.ResourceID]; dup {
			report.Add(ViolationDuplicateBinding, "binding", b.ID,
				fmt.Sprintf("resource %s also bound by %s", b.ResourceID, other))
		} else {
			bound[b.ResourceID] = b.ID
		}

		pn, ok := snap.PhoneNumber(b.ResourceID)
		if !ok {
			report.Add(ViolationDanglingReference, "binding", b.ID,
				fmt.Sprintf("phone number %s does not exist", b.ResourceID))
			continue
		}
		if pn.Status != resourcedomain.PhoneNumberAssigned || pn.TenantID == nil || *pn.TenantID != b.TenantID {
			report.Add(ViolationBindingScope, "binding", b.ID,
				fmt.Sprintf("%s is %s and not assigned to the binding tenant", pn.Number, pn.Status))
		}

		dest := b.Destination()
		if err := dest.Validate(); err != nil {
			report.Add(ViolationInvalidDestination, "binding", b.ID, err.Error())
			continue
		}
		if !dest.Kind.Routable() {
			report.Add(ViolationUnroutable, "binding", b.ID,
				fmt.Sprintf("destination kind %s cannot be routed", dest.Kind))
			continue
		}
		if dest.Kind != resourcedomain.DestinationUser {
			continue
		}

		user, ok := snap.User(*dest.Ref)
		if !ok {
			report.Add(ViolationDanglingReference, "binding", b.ID,
				fmt.Sprintf("user %s does not exist", *dest.Ref))
			continue
		}
		if !user.Active {
			report.Add(ViolationDestinationInactive, "binding", b.ID,
				fmt.Sprintf("user %s is inactive", user.ID))
		}
		if user.TenantID != b.TenantID {
			report.Add(ViolationCrossTenant, "binding", b.ID,
				fmt.Sprintf("user %s belongs to another tenant", user.ID))
		}
		if _, ok := snap.ExtensionOf(user.ID); !ok {
			report.Add(ViolationDestinationNoExt, "binding", b.ID,
				fmt.Sprintf("user %s has no extension", user.ID))
		}
	}
}
