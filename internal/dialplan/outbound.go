package dialplan

import (
	"fmt"

	tenantdomain "github.com/smallbiznis/switchboard/internal/tenant/domain"
)

// OutboundSection enforces each tenant's dialing policy. Emergency calls are
// always allowed, premium rate is always blocked and anything unmatched is
// denied.
type OutboundSection struct{}

func (OutboundSection) Name() string { return SectionOutbound }

func (OutboundSection) Generate(snap *Snapshot) ([]string, error) {
	lines := sectionHeader(SectionOutbound, snap)
	for i := range snap.Tenants {
		lines = append(lines, "")
		lines = append(lines, outboundContext(&snap.Tenants[i])...)
	}
	return lines, nil
}

func outboundContext(tenant *tenantdomain.Tenant) []string {
	lines := []string{
		fmt.Sprintf("[%s]", tenant.OutboundContext()),
		"exten => _911,1,NoOp(Emergency call)",
		fmt.Sprintf(" same => n,Dial(PJSIP/${EXTEN}@%s,%d)", emergencyEndpoint, dialTimeout),
		" same => n,Hangup()",
		"exten => _NXXNXXXXXX,1,NoOp(Local call ${EXTEN})",
		fmt.Sprintf(" same => n,Dial(PJSIP/1${EXTEN}@%s,%d)", trunkEndpoint, dialTimeout),
		" same => n,Hangup()",
	}
	for _, prefix := range []string{"800", "888", "877", "866"} {
		lines = append(lines,
			fmt.Sprintf("exten => _1%sNXXXXXX,1,NoOp(Toll-free call ${EXTEN})", prefix),
			fmt.Sprintf(" same => n,Dial(PJSIP/${EXTEN}@%s,%d)", trunkEndpoint, dialTimeout),
			" same => n,Hangup()",
		)
	}
	lines = append(lines, gated("_1NXXNXXXXXX", "Long distance", tenant.AllowLongDistance)...)
	lines = append(lines, gated("_011.", "International", tenant.AllowInternational)...)
	lines = append(lines,
		"exten => _1900NXXXXXX,1,NoOp(Premium rate blocked ${EXTEN})",
		" same => n,Playback(ss-noservice)",
		" same => n,Hangup()",
		"exten => _X.,1,NoOp(Denied ${EXTEN})",
		" same => n,Playback(ss-noservice)",
		" same => n,Hangup()",
	)
	return lines
}

func gated(pattern, kind string, allowed bool) []string {
	if allowed {
		return []string{
			fmt.Sprintf("exten => %s,1,NoOp(%s call ${EXTEN})", pattern, kind),
			fmt.Sprintf(" same => n,Dial(PJSIP/${EXTEN}@%s,%d)", trunkEndpoint, dialTimeout),
			" same => n,Hangup()",
		}
	}
	return []string{
		fmt.Sprintf("exten => %s,1,NoOp(%s call denied ${EXTEN})", pattern, kind),
		" same => n,Playback(ss-noservice)",
		" same => n,Hangup()",
	}
}
