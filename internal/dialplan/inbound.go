package dialplan

import (
	"fmt"
	"sort"

	resourcedomain "github.com/smallbiznis/switchboard/internal/resource/domain"
)

// InboundSection routes every bound external number arriving from the trunk.
type InboundSection struct{}

func (InboundSection) Name() string { return SectionInbound }

type inboundRoute struct {
	number string
	lines  []string
}

func (InboundSection) Generate(snap *Snapshot) ([]string, error) {
	routes := make([]inboundRoute, 0, len(snap.Bindings))
	for i := range snap.Bindings {
		binding := &snap.Bindings[i]
		route, err := inboundFor(snap, binding)
		if err != nil {
			return nil, fmt.Errorf("binding %s: %w", binding.ID, err)
		}
		routes = append(routes, route)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].number < routes[j].number })

	lines := sectionHeader(SectionInbound, snap)
	lines = append(lines, fmt.Sprintf("[%s]", inboundContext))
	for _, route := range routes {
		lines = append(lines, route.lines...)
	}
	lines = append(lines,
		"exten => _[+0-9].,1,NoOp(Unrouted number ${EXTEN})",
		" same => n,Playback(ss-noservice)",
		" same => n,Hangup()",
	)
	return lines, nil
}

func inboundFor(snap *Snapshot, binding *resourcedomain.Binding) (inboundRoute, error) {
	number, ok := snap.PhoneNumber(binding.ResourceID)
	if !ok {
		return inboundRoute{}, fmt.Errorf("%w: phone number %s", ErrDanglingReference, binding.ResourceID)
	}
	tenant, ok := snap.Tenant(binding.TenantID)
	if !ok {
		return inboundRoute{}, fmt.Errorf("%w: tenant %s", ErrDanglingReference, binding.TenantID)
	}

	dest := binding.Destination()
	switch dest.Kind {
	case resourcedomain.DestinationUser:
		if dest.Ref == nil {
			return inboundRoute{}, fmt.Errorf("%w: user binding without ref", ErrDanglingReference)
		}
		ext, ok := snap.ExtensionOf(*dest.Ref)
		if !ok {
			return inboundRoute{}, fmt.Errorf("%w: user %s has no extension", ErrDanglingReference, *dest.Ref)
		}
		return inboundRoute{
			number: number.Number,
			lines: []string{
				fmt.Sprintf("exten => %s,1,Goto(%s,%d,1)", number.Number, tenant.RoutingContext(), ext.Number),
			},
		}, nil
	case resourcedomain.DestinationExternal:
		if dest.Literal == nil {
			return inboundRoute{}, fmt.Errorf("%w: external binding without literal", ErrDanglingReference)
		}
		return inboundRoute{
			number: number.Number,
			lines: []string{
				fmt.Sprintf("exten => %s,1,Dial(PJSIP/%s@%s,%d)", number.Number, *dest.Literal, trunkEndpoint, dialTimeout),
				" same => n,Hangup()",
			},
		}, nil
	default:
		return inboundRoute{}, fmt.Errorf("%w: kind %q", ErrUnroutableBinding, dest.Kind)
	}
}
