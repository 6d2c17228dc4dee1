package dialplan

import (
	"fmt"

	resourcedomain "github.com/smallbiznis/switchboard/internal/resource/domain"
	tenantdomain "github.com/smallbiznis/switchboard/internal/tenant/domain"
)

// InternalSection renders, per tenant, the routing context inbound calls
// land in and the internal context its endpoints dial from. User DND,
// forwarding and voicemail flags shape each extension's steps.
type InternalSection struct{}

func (InternalSection) Name() string { return SectionInternal }

func (InternalSection) Generate(snap *Snapshot) ([]string, error) {
	lines := sectionHeader(SectionInternal, snap)
	for i := range snap.Tenants {
		tenant := &snap.Tenants[i]
		exts := routedExtensions(snap, tenant)

		lines = append(lines,
			"",
			fmt.Sprintf("; tenant: %s (%s)", label(tenant.Name), tenant.Slug),
			fmt.Sprintf("[%s]", tenant.RoutingContext()),
		)
		for _, ext := range exts {
			lines = append(lines, fmt.Sprintf("exten => %d,1,Goto(%s,%d,1)", ext.Number, tenant.InternalContext(), ext.Number))
		}
		lines = append(lines,
			"exten => _X.,1,NoOp(Invalid extension ${EXTEN})",
			" same => n,Playback(ss-noservice)",
			" same => n,Hangup()",
			"",
			fmt.Sprintf("[%s]", tenant.InternalContext()),
			fmt.Sprintf("include => %s", tenant.OutboundContext()),
		)
		for _, ext := range exts {
			steps, err := extensionSteps(snap, tenant, ext)
			if err != nil {
				return nil, err
			}
			lines = append(lines, steps...)
		}
	}
	return lines, nil
}

func routedExtensions(snap *Snapshot, tenant *tenantdomain.Tenant) []*resourcedomain.Extension {
	all := snap.ExtensionsOf(tenant.ID)
	out := make([]*resourcedomain.Extension, 0, len(all))
	for _, ext := range all {
		if snap.Routed(ext) {
			out = append(out, ext)
		}
	}
	return out
}

func extensionSteps(snap *Snapshot, tenant *tenantdomain.Tenant, ext *resourcedomain.Extension) ([]string, error) {
	endpoint := EndpointName(tenant, ext)
	if ext.UserID == nil {
		return []string{
			fmt.Sprintf("exten => %d,1,NoOp(Reserved extension %d)", ext.Number, ext.Number),
			fmt.Sprintf(" same => n,Dial(PJSIP/%s,%d,tr)", endpoint, dialTimeout),
			" same => n,Hangup()",
		}, nil
	}

	user, ok := snap.User(*ext.UserID)
	if !ok {
		return nil, fmt.Errorf("%w: extension %d user %s", ErrDanglingReference, ext.Number, *ext.UserID)
	}
	mailbox := fmt.Sprintf("%d@%s", ext.Number, tenant.Slug)
	unanswered := " same => n,Playback(im-sorry)"
	if user.VoicemailEnabled {
		unanswered = fmt.Sprintf(" same => n,VoiceMail(%s,u)", mailbox)
	}

	lines := []string{fmt.Sprintf("exten => %d,1,NoOp(%s - %d)", ext.Number, label(user.Name), ext.Number)}
	switch {
	case user.DNDEnabled:
		lines = append(lines, " same => n,Playback(do-not-disturb)")
		if user.VoicemailEnabled {
			lines = append(lines, fmt.Sprintf(" same => n,VoiceMail(%s,u)", mailbox))
		}
	case user.ForwardEnabled && user.ForwardNumber != nil:
		lines = append(lines,
			fmt.Sprintf(" same => n,Dial(PJSIP/%s@%s,%d)", *user.ForwardNumber, trunkEndpoint, dialTimeout),
			unanswered,
		)
	default:
		lines = append(lines,
			fmt.Sprintf(" same => n,Dial(PJSIP/%s,%d,tr)", endpoint, dialTimeout),
			unanswered,
		)
	}
	lines = append(lines, " same => n,Hangup()")
	return lines, nil
}
