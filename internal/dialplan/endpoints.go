package dialplan

import "fmt"

// EndpointsSection renders a PJSIP endpoint, auth and aor per routed
// extension.
type EndpointsSection struct{}

func (EndpointsSection) Name() string { return SectionEndpoints }

func (EndpointsSection) Generate(snap *Snapshot) ([]string, error) {
	lines := sectionHeader(SectionEndpoints, snap)
	for i := range snap.Tenants {
		tenant := &snap.Tenants[i]
		for _, ext := range routedExtensions(snap, tenant) {
			name := EndpointName(tenant, ext)
			callerName := fmt.Sprintf("Ext %d", ext.Number)
			if ext.UserID != nil {
				user, ok := snap.User(*ext.UserID)
				if !ok {
					return nil, fmt.Errorf("%w: extension %d user %s", ErrDanglingReference, ext.Number, *ext.UserID)
				}
				callerName = label(user.Name)
			}
			lines = append(lines,
				"",
				fmt.Sprintf("[%s]", name),
				"type=endpoint",
				fmt.Sprintf("context=%s", tenant.InternalContext()),
				"disallow=all",
				"allow=ulaw,alaw",
				fmt.Sprintf("auth=%s-auth", name),
				fmt.Sprintf("aors=%s", name),
				fmt.Sprintf("callerid=\"%s\" <%d>", callerName, ext.Number),
				"",
				fmt.Sprintf("[%s-auth]", name),
				"type=auth",
				"auth_type=userpass",
				fmt.Sprintf("username=%s", name),
				fmt.Sprintf("password=%s", ext.SIPSecret),
				"",
				fmt.Sprintf("[%s]", name),
				"type=aor",
				"max_contacts=3",
				"remove_existing=yes",
			)
		}
	}
	return lines, nil
}
