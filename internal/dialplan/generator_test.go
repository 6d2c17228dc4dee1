package dialplan

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/switchboard/internal/config"
	resourcedomain "github.com/smallbiznis/switchboard/internal/resource/domain"
	tenantdomain "github.com/smallbiznis/switchboard/internal/tenant/domain"
	userdomain "github.com/smallbiznis/switchboard/internal/user/domain"
)

var (
	t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	t1 = time.Date(2024, 5, 2, 11, 30, 0, 0, time.UTC)
)

func routingArtifact() config.ArtifactConfig {
	return config.ArtifactConfig{
		Name:     "routing",
		Path:     "/etc/asterisk/generated_routing.conf",
		Sections: []string{"outbound", "inbound", "internal"},
		Reload:   []string{"dialplan"},
	}
}

func endpointsArtifact() config.ArtifactConfig {
	return config.ArtifactConfig{
		Name:     "endpoints",
		Path:     "/etc/asterisk/generated_endpoints.conf",
		Sections: []string{"endpoints"},
		Reload:   []string{"pjsip"},
	}
}

func fixture() *Snapshot {
	acme := tenantdomain.Tenant{ID: 10, Name: "Acme", Slug: "acme", ExtMin: 1000, ExtMax: 1003, ExtNext: 1003, AllowLongDistance: true, UpdatedAt: t0}
	beta := tenantdomain.Tenant{ID: 20, Name: "Beta", Slug: "beta", ExtMin: 2000, ExtMax: 2099, ExtNext: 2001, AllowInternational: true, UpdatedAt: t0}

	forward := "+15550001111"
	users := []userdomain.User{
		{ID: 101, TenantID: 10, Name: "Ada, Lovelace", Active: true, VoicemailEnabled: true, UpdatedAt: t0},
		{ID: 102, TenantID: 10, Name: "Bob", Active: true, DNDEnabled: true, UpdatedAt: t1},
		{ID: 103, TenantID: 10, Name: "Cy", Active: true, VoicemailEnabled: true, ForwardEnabled: true, ForwardNumber: &forward, UpdatedAt: t0},
		{ID: 201, TenantID: 20, Name: "Dee", Active: false, UpdatedAt: t0},
	}
	uid := func(id int64) *snowflake.ID { v := snowflake.ID(id); return &v }
	exts := []resourcedomain.Extension{
		{ID: 3, TenantID: 10, Number: 1002, Status: resourcedomain.ExtensionAssigned, UserID: uid(103), SIPSecret: "s3", UpdatedAt: t0},
		{ID: 1, TenantID: 10, Number: 1000, Status: resourcedomain.ExtensionAssigned, UserID: uid(101), SIPSecret: "s1", UpdatedAt: t0},
		{ID: 2, TenantID: 10, Number: 1001, Status: resourcedomain.ExtensionAssigned, UserID: uid(102), SIPSecret: "s2", UpdatedAt: t0},
		{ID: 4, TenantID: 20, Number: 2000, Status: resourcedomain.ExtensionAssigned, UserID: uid(201), SIPSecret: "s4", UpdatedAt: t0},
	}
	tenantID := snowflake.ID(10)
	numbers := []resourcedomain.PhoneNumber{
		{ID: 501, Number: "+15557654321", Status: resourcedomain.PhoneNumberAssigned, TenantID: &tenantID, UpdatedAt: t0},
		{ID: 500, Number: "+15551234567", Status: resourcedomain.PhoneNumberAssigned, TenantID: &tenantID, UpdatedAt: t0},
	}
	literal := "+15559990000"
	bindings := []resourcedomain.Binding{
		{ID: 901, TenantID: 10, ResourceID: 501, DestinationKind: resourcedomain.DestinationExternal, DestinationLiteral: &literal, UpdatedAt: t0},
		{ID: 900, TenantID: 10, ResourceID: 500, DestinationKind: resourcedomain.DestinationUser, DestinationRef: uid(102), UpdatedAt: t0},
	}
	return NewSnapshot([]tenantdomain.Tenant{beta, acme}, users, exts, numbers, bindings)
}

func mustGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := NewDefaultGenerator()
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	return g
}

func render(t *testing.T, g *Generator, snap *Snapshot, cfg config.ArtifactConfig) string {
	t.Helper()
	artifact, err := g.RenderArtifact(snap, cfg)
	if err != nil {
		t.Fatalf("render %s: %v", cfg.Name, err)
	}
	return string(artifact.Content)
}

func TestRenderIsDeterministic(t *testing.T) {
	g := mustGenerator(t)
	first, err := g.Render(fixture(), []config.ArtifactConfig{routingArtifact(), endpointsArtifact()})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	second, err := g.Render(fixture(), []config.ArtifactConfig{routingArtifact(), endpointsArtifact()})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for i := range first {
		if string(first[i].Content) != string(second[i].Content) {
			t.Fatalf("artifact %s differs between renders", first[i].Name)
		}
		if first[i].Checksum != second[i].Checksum {
			t.Fatalf("checksum differs for %s", first[i].Name)
		}
	}
}

func TestRenderHeaderUsesRevision(t *testing.T) {
	out := render(t, mustGenerator(t), fixture(), routingArtifact())
	if !strings.Contains(out, "; revision: 2024-05-02T11:30:00Z") {
		t.Fatalf("expected revision header, got:\n%s", out)
	}
	if !strings.Contains(out, "; section: inbound (revision 2024-05-02T11:30:00Z)") {
		t.Fatalf("expected section header with revision")
	}
}

func TestRenderSectionOrderIsFixed(t *testing.T) {
	out := render(t, mustGenerator(t), fixture(), routingArtifact())
	inbound := strings.Index(out, "; section: inbound")
	internal := strings.Index(out, "; section: internal")
	outbound := strings.Index(out, "; section: outbound")
	if inbound < 0 || internal < 0 || outbound < 0 {
		t.Fatalf("missing sections:\n%s", out)
	}
	if !(inbound < internal && internal < outbound) {
		t.Fatalf("sections out of order: inbound=%d internal=%d outbound=%d", inbound, internal, outbound)
	}
}

func TestInboundRoutes(t *testing.T) {
	out := render(t, mustGenerator(t), fixture(), routingArtifact())

	user := "exten => +15551234567,1,Goto(tenant-acme,1001,1)"
	external := "exten => +15557654321,1,Dial(PJSIP/+15559990000@trunk,30)"
	if !strings.Contains(out, user) {
		t.Fatalf("missing user route %q", user)
	}
	if !strings.Contains(out, external) {
		t.Fatalf("missing external route %q", external)
	}
	if strings.Index(out, user) > strings.Index(out, external) {
		t.Fatalf("inbound routes not ordered by number")
	}
}

func TestInternalRoutingHonoursUserFlags(t *testing.T) {
	out := render(t, mustGenerator(t), fixture(), routingArtifact())

	for _, want := range []string{
		"[tenant-acme]",
		"exten => 1000,1,Goto(internal-acme,1000,1)",
		"[internal-acme]",
		"include => outbound-acme",
		"exten => 1000,1,NoOp(Ada Lovelace - 1000)",
		" same => n,Dial(PJSIP/acme-1000,30,tr)",
		" same => n,VoiceMail(1000@acme,u)",
		"exten => 1001,1,NoOp(Bob - 1001)",
		" same => n,Playback(do-not-disturb)",
		" same => n,Dial(PJSIP/+15550001111@trunk,30)",
		" same => n,VoiceMail(1002@acme,u)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "exten => 2000,") {
		t.Fatalf("inactive user extension must not be routed")
	}
	if strings.Contains(out, "VoiceMail(1001@acme") {
		t.Fatalf("voicemail rendered for user without voicemail")
	}
}

func TestOutboundPolicy(t *testing.T) {
	out := render(t, mustGenerator(t), fixture(), routingArtifact())

	acme := out[strings.Index(out, "[outbound-acme]"):strings.Index(out, "[outbound-beta]")]
	beta := out[strings.Index(out, "[outbound-beta]"):]

	for _, ctx := range []string{acme, beta} {
		if !strings.Contains(ctx, "exten => _911,1,NoOp(Emergency call)") {
			t.Fatalf("emergency must always be allowed:\n%s", ctx)
		}
		if !strings.Contains(ctx, "exten => _1900NXXXXXX,1,NoOp(Premium rate blocked ${EXTEN})") {
			t.Fatalf("premium must always be blocked:\n%s", ctx)
		}
		if !strings.Contains(ctx, "exten => _X.,1,NoOp(Denied ${EXTEN})") {
			t.Fatalf("missing deny fallback:\n%s", ctx)
		}
	}
	if !strings.Contains(acme, "exten => _1NXXNXXXXXX,1,NoOp(Long distance call ${EXTEN})") {
		t.Fatalf("acme allows long distance")
	}
	if !strings.Contains(acme, "exten => _011.,1,NoOp(International call denied ${EXTEN})") {
		t.Fatalf("acme denies international")
	}
	if !strings.Contains(beta, "exten => _1NXXNXXXXXX,1,NoOp(Long distance call denied ${EXTEN})") {
		t.Fatalf("beta denies long distance")
	}
	if !strings.Contains(beta, "exten => _011.,1,NoOp(International call ${EXTEN})") {
		t.Fatalf("beta allows international")
	}
}

func TestEndpoints(t *testing.T) {
	out := render(t, mustGenerator(t), fixture(), endpointsArtifact())

	for _, want := range []string{
		"[acme-1000]\ntype=endpoint\ncontext=internal-acme",
		"auth=acme-1000-auth",
		"callerid=\"Ada Lovelace\" <1000>",
		"[acme-1000-auth]\ntype=auth\nauth_type=userpass\nusername=acme-1000\npassword=s1",
		"[acme-1000]\ntype=aor",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "beta-2000") {
		t.Fatalf("inactive user must not get an endpoint")
	}
}

func TestUnroutableBindingFailsLoudly(t *testing.T) {
	snap := fixture()
	queue := snowflake.ID(77)
	snap.Bindings = append(snap.Bindings, resourcedomain.Binding{
		ID: 902, TenantID: 10, ResourceID: 500, DestinationKind: resourcedomain.DestinationQueue, DestinationRef: &queue,
	})

	_, err := mustGenerator(t).RenderArtifact(snap, routingArtifact())
	if !errors.Is(err, ErrUnroutableBinding) {
		t.Fatalf("expected ErrUnroutableBinding, got %v", err)
	}
}

func TestDanglingUserFailsLoudly(t *testing.T) {
	snap := fixture()
	ghost := snowflake.ID(999)
	snap.Bindings[0].DestinationKind = resourcedomain.DestinationUser
	snap.Bindings[0].DestinationRef = &ghost
	snap.Bindings[0].DestinationLiteral = nil

	_, err := mustGenerator(t).RenderArtifact(snap, routingArtifact())
	if !errors.Is(err, ErrDanglingReference) {
		t.Fatalf("expected ErrDanglingReference, got %v", err)
	}
}

func TestUnknownSectionRejected(t *testing.T) {
	cfg := routingArtifact()
	cfg.Sections = append(cfg.Sections, "voicemail")
	_, err := mustGenerator(t).RenderArtifact(fixture(), cfg)
	if !errors.Is(err, ErrUnknownSection) {
		t.Fatalf("expected ErrUnknownSection, got %v", err)
	}
}

func TestDuplicateSectionRegistration(t *testing.T) {
	_, err := NewGenerator(InboundSection{}, InboundSection{})
	if !errors.Is(err, ErrDuplicateSection) {
		t.Fatalf("expected ErrDuplicateSection, got %v", err)
	}
}

func TestEmptySnapshotRenders(t *testing.T) {
	out := render(t, mustGenerator(t), NewSnapshot(nil, nil, nil, nil, nil), routingArtifact())
	if !strings.Contains(out, "; revision: empty") {
		t.Fatalf("expected empty revision:\n%s", out)
	}
	if !strings.Contains(out, "[from-trunk]") {
		t.Fatalf("inbound context always rendered")
	}
}

func TestSnapshotSummary(t *testing.T) {
	if got := fixture().Summary(); got != "4 extensions, 2 routes across 2 tenants" {
		t.Fatalf("summary = %q", got)
	}
}
