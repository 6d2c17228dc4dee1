package dialplan

import (
	"errors"
	"fmt"
	"strings"

	resourcedomain "github.com/smallbiznis/switchboard/internal/resource/domain"
	tenantdomain "github.com/smallbiznis/switchboard/internal/tenant/domain"
)

// Section renders one named block of configuration. Implementations must be
// pure: the same snapshot always yields the same lines.
type Section interface {
	Name() string
	Generate(snap *Snapshot) ([]string, error)
}

const (
	SectionInbound   = "inbound"
	SectionInternal  = "internal"
	SectionOutbound  = "outbound"
	SectionEndpoints = "endpoints"
)

const (
	trunkEndpoint     = "trunk"
	emergencyEndpoint = "emergency-trunk"
	inboundContext    = "from-trunk"
	dialTimeout       = 30
)

var (
	ErrUnknownSection    = errors.New("unknown_section")
	ErrDuplicateSection  = errors.New("duplicate_section")
	ErrUnroutableBinding = errors.New("unroutable_binding")
	ErrDanglingReference = errors.New("dangling_reference")
)

// DefaultSections is the registration order used for every artifact.
func DefaultSections() []Section {
	return []Section{
		InboundSection{},
		InternalSection{},
		OutboundSection{},
		EndpointsSection{},
	}
}

func sectionHeader(name string, snap *Snapshot) []string {
	return []string{
		"; ----------------------------------------",
		fmt.Sprintf("; section: %s (revision %s)", name, snap.RevisionLabel()),
		"; ----------------------------------------",
	}
}

// EndpointName is the PJSIP endpoint of an extension. Extension numbers
// repeat across tenants, so the tenant slug is part of the name.
func EndpointName(tenant *tenantdomain.Tenant, ext *resourcedomain.Extension) string {
	return fmt.Sprintf("%s-%d", tenant.Slug, ext.Number)
}

// label makes free text safe inside application arguments and comments.
func label(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '.', r == '-', r == '_', r == '@', r == '\'':
			b.WriteRune(r)
		}
		if b.Len() >= 48 {
			break
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "unnamed"
	}
	return out
}
