package dialplan

import (
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	resourcedomain "github.com/smallbiznis/switchboard/internal/resource/domain"
	tenantdomain "github.com/smallbiznis/switchboard/internal/tenant/domain"
	userdomain "github.com/smallbiznis/switchboard/internal/user/domain"
)

// Snapshot is a consistent read of everything the generator renders.
// Slices are kept in a stable order so rendering never depends on the
// order rows came back from the store.
type Snapshot struct {
	Tenants      []tenantdomain.Tenant
	Users        []userdomain.User
	Extensions   []resourcedomain.Extension
	PhoneNumbers []resourcedomain.PhoneNumber
	Bindings     []resourcedomain.Binding

	// Revision is the latest updated_at of any row in the snapshot. It is
	// rendered in headers instead of the wall clock.
	Revision time.Time

	tenants   map[snowflake.ID]*tenantdomain.Tenant
	users     map[snowflake.ID]*userdomain.User
	numbers   map[snowflake.ID]*resourcedomain.PhoneNumber
	extByUser map[snowflake.ID]*resourcedomain.Extension
	extByTen  map[snowflake.ID][]*resourcedomain.Extension
}

func NewSnapshot(
	tenants []tenantdomain.Tenant,
	users []userdomain.User,
	extensions []resourcedomain.Extension,
	numbers []resourcedomain.PhoneNumber,
	bindings []resourcedomain.Binding,
) *Snapshot {
	s := &Snapshot{
		Tenants:      append([]tenantdomain.Tenant(nil), tenants...),
		Users:        append([]userdomain.User(nil), users...),
		Extensions:   append([]resourcedomain.Extension(nil), extensions...),
		PhoneNumbers: append([]resourcedomain.PhoneNumber(nil), numbers...),
		Bindings:     append([]resourcedomain.Binding(nil), bindings...),
	}

	sort.Slice(s.Tenants, func(i, j int) bool {
		if s.Tenants[i].Slug != s.Tenants[j].Slug {
			return s.Tenants[i].Slug < s.Tenants[j].Slug
		}
		return s.Tenants[i].ID < s.Tenants[j].ID
	})
	sort.Slice(s.Users, func(i, j int) bool { return s.Users[i].ID < s.Users[j].ID })
	sort.Slice(s.Extensions, func(i, j int) bool {
		a, b := s.Extensions[i], s.Extensions[j]
		if a.TenantID != b.TenantID {
			return a.TenantID < b.TenantID
		}
		if a.Number != b.Number {
			return a.Number < b.Number
		}
		return a.ID < b.ID
	})
	sort.Slice(s.PhoneNumbers, func(i, j int) bool {
		if s.PhoneNumbers[i].Number != s.PhoneNumbers[j].Number {
			return s.PhoneNumbers[i].Number < s.PhoneNumbers[j].Number
		}
		return s.PhoneNumbers[i].ID < s.PhoneNumbers[j].ID
	})
	sort.Slice(s.Bindings, func(i, j int) bool { return s.Bindings[i].ID < s.Bindings[j].ID })

	s.tenants = make(map[snowflake.ID]*tenantdomain.Tenant, len(s.Tenants))
	for i := range s.Tenants {
		s.tenants[s.Tenants[i].ID] = &s.Tenants[i]
		s.observe(s.Tenants[i].UpdatedAt)
	}
	s.users = make(map[snowflake.ID]*userdomain.User, len(s.Users))
	for i := range s.Users {
		s.users[s.Users[i].ID] = &s.Users[i]
		s.observe(s.Users[i].UpdatedAt)
	}
	s.extByUser = make(map[snowflake.ID]*resourcedomain.Extension)
	s.extByTen = make(map[snowflake.ID][]*resourcedomain.Extension)
	for i := range s.Extensions {
		ext := &s.Extensions[i]
		if ext.UserID != nil {
			s.extByUser[*ext.UserID] = ext
		}
		s.extByTen[ext.TenantID] = append(s.extByTen[ext.TenantID], ext)
		s.observe(ext.UpdatedAt)
	}
	s.numbers = make(map[snowflake.ID]*resourcedomain.PhoneNumber, len(s.PhoneNumbers))
	for i := range s.PhoneNumbers {
		s.numbers[s.PhoneNumbers[i].ID] = &s.PhoneNumbers[i]
		s.observe(s.PhoneNumbers[i].UpdatedAt)
	}
	for i := range s.Bindings {
		s.observe(s.Bindings[i].UpdatedAt)
	}
	return s
}

func (s *Snapshot) observe(t time.Time) {
	if t.After(s.Revision) {
		s.Revision = t.UTC()
	}
}

func (s *Snapshot) Tenant(id snowflake.ID) (*tenantdomain.Tenant, bool) {
	t, ok := s.tenants[id]
	return t, ok
}

func (s *Snapshot) User(id snowflake.ID) (*userdomain.User, bool) {
	u, ok := s.users[id]
	return u, ok
}

func (s *Snapshot) PhoneNumber(id snowflake.ID) (*resourcedomain.PhoneNumber, bool) {
	n, ok := s.numbers[id]
	return n, ok
}

// ExtensionOf returns the extension assigned to a user.
func (s *Snapshot) ExtensionOf(userID snowflake.ID) (*resourcedomain.Extension, bool) {
	ext, ok := s.extByUser[userID]
	return ext, ok
}

// ExtensionsOf returns a tenant's extensions ordered by number.
func (s *Snapshot) ExtensionsOf(tenantID snowflake.ID) []*resourcedomain.Extension {
	return s.extByTen[tenantID]
}

// Routed reports whether an extension gets routing and an endpoint:
// reserved extensions do, extensions of inactive users do not.
func (s *Snapshot) Routed(ext *resourcedomain.Extension) bool {
	if ext.UserID == nil {
		return true
	}
	user, ok := s.users[*ext.UserID]
	return ok && user.Active
}

// Summary describes the snapshot for job records.
func (s *Snapshot) Summary() string {
	return fmt.Sprintf("%d extensions, %d routes across %d tenants",
		len(s.Extensions), len(s.Bindings), len(s.Tenants))
}

// RevisionLabel is the header form of Revision.
func (s *Snapshot) RevisionLabel() string {
	if s.Revision.IsZero() {
		return "empty"
	}
	return s.Revision.UTC().Format(time.RFC3339)
}
