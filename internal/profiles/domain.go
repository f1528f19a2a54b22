// Package profiles stores one profile per authenticated principal and
// implements the bootstrap policy that guarantees the system always has a
// super administrator.
package profiles

import (
	"time"

	"github.com/pubdesk/pubdesk/internal/perm"
)

// Role is the coarse trust tier of a profile, ordered by privilege.
type Role string

const (
	RolePending    Role = "pending"
	RoleMember     Role = "member"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Valid reports whether the role is one of the known tiers.
func (r Role) Valid() bool {
	switch r {
	case RolePending, RoleMember, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Label returns the display name shown on role badges.
func (r Role) Label() string {
	switch r {
	case RoleSuperAdmin:
		return "Super Admin"
	case RoleAdmin:
		return "Administrator"
	case RoleMember:
		return "Member"
	case RolePending:
		return "Awaiting approval"
	}
	return string(r)
}

// Profile is this system's record of a principal's role and permissions.
// ID is the principal's subject identifier from the identity provider.
// Email and DisplayName are copied at creation and not subsequently synced.
type Profile struct {
	ID          string
	Email       string
	DisplayName string
	Role        Role
	Permissions perm.Set
	CreatedAt   time.Time
}

// Can reports whether the profile holds a capability. Super admins hold
// every capability implicitly, independent of the stored map, so a stale or
// empty map can never lock out the last administrator.
func (p *Profile) Can(m perm.Module, c perm.Capability) bool {
	if p == nil {
		return false
	}
	if p.Role == RoleSuperAdmin {
		return true
	}
	return perm.Allows(p.Permissions, m, c)
}

// Allowed is the dotted-path form of Can, convenient for templates.
// Malformed paths are simply not held.
func (p *Profile) Allowed(path string) bool {
	m, c, err := perm.ParsePath(path)
	if err != nil {
		return false
	}
	return p.Can(m, c)
}
