// Package perm defines the module/capability permission schema and the
// decision function used by every authorization check in pubdesk.
package perm

// Module is a named feature area within the permission map.
type Module string

// Capability is a named action within a module.
type Capability string

const (
	ModuleArticles Module = "articles"
	ModuleAdmin    Module = "admin"
)

const (
	CapAccess       Capability = "access"
	CapViewAll      Capability = "view_all"
	CapCreate       Capability = "create"
	CapManageOthers Capability = "manage_others"
)

// Schema enumerates the valid capabilities per module. Lookups outside the
// schema are rejected by ParsePath and ignored by Grant.
var Schema = map[Module][]Capability{
	ModuleArticles: {CapAccess, CapViewAll, CapCreate, CapManageOthers},
	ModuleAdmin:    {CapAccess},
}

// Set is the stored permission map. A missing module or capability key is
// equivalent to false.
type Set map[Module]map[Capability]bool

// Allows reports whether the set grants the capability on the module. It is
// total over all inputs: nil or empty sets, unknown modules and unknown
// capabilities all answer false.
func Allows(s Set, m Module, c Capability) bool {
	if len(s) == 0 {
		return false
	}
	caps, ok := s[m]
	if !ok {
		return false
	}
	return caps[c]
}

// Valid reports whether the module/capability pair exists in the schema.
func Valid(m Module, c Capability) bool {
	for _, known := range Schema[m] {
		if known == c {
			return true
		}
	}
	return false
}

// None returns a set with every schema entry present and denied. Stored for
// new pending profiles so the document shape is explicit.
func None() Set {
	return fill(false)
}

// AllGranted returns a set with every schema entry granted.
func AllGranted() Set {
	return fill(true)
}

// Baseline returns the grants applied when a pending profile is approved:
// article access and authoring, but neither view-all nor cross-user
// management, and no admin access.
func Baseline() Set {
	s := None()
	s[ModuleArticles][CapAccess] = true
	s[ModuleArticles][CapCreate] = true
	return s
}

// Clone returns a deep copy of the set.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for m, caps := range s {
		cc := make(map[Capability]bool, len(caps))
		for c, v := range caps {
			cc[c] = v
		}
		out[m] = cc
	}
	return out
}

// Grant sets a capability value in place, allocating the module map when
// absent. Pairs outside the schema are ignored.
func (s Set) Grant(m Module, c Capability, value bool) {
	if !Valid(m, c) {
		return
	}
	caps, ok := s[m]
	if !ok {
		caps = make(map[Capability]bool)
		s[m] = caps
	}
	caps[c] = value
}

func fill(value bool) Set {
	s := make(Set, len(Schema))
	for m, caps := range Schema {
		cc := make(map[Capability]bool, len(caps))
		for _, c := range caps {
			cc[c] = value
		}
		s[m] = cc
	}
	return s
}
