package models

import (
	"sort"
	"strings"
)

// Role is a normalized user role. Raw role strings are parsed once when a
// user is loaded and never compared as text afterwards.
type Role int

const (
	RoleUnknown Role = iota
	RoleITAdmin
	RoleSecurityAdmin
	RoleAdmin
	RoleSecurityGuard
	RoleSecurity
	RoleViewer
)

var roleNames = map[Role]string{
	RoleITAdmin:       "itadmin",
	RoleSecurityAdmin: "securityadmin",
	RoleAdmin:         "admin",
	RoleSecurityGuard: "securityguard",
	RoleSecurity:      "security",
	RoleViewer:        "viewer",
}

var roleByName = func() map[string]Role {
	m := make(map[string]Role, len(roleNames))
	for r, name := range roleNames {
		m[name] = r
	}
	return m
}()

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// IsAdmin reports whether the role may edit records created by others.
func (r Role) IsAdmin() bool {
	return r == RoleITAdmin || r == RoleSecurityAdmin || r == RoleAdmin
}

// normalizeRoleToken lower-cases and strips every whitespace rune, so
// "Security Admin", " SECURITYADMIN " and "securityadmin" are the same role.
func normalizeRoleToken(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "")
}

// ParseRole maps a single role token to a Role.
func ParseRole(s string) Role {
	if r, ok := roleByName[normalizeRoleToken(s)]; ok {
		return r
	}
	return RoleUnknown
}

// RoleSet is the set of roles held by a user.
type RoleSet map[Role]struct{}

// ParseRoles parses a comma separated role list. Unknown tokens are dropped.
func ParseRoles(raw string) RoleSet {
	set := RoleSet{}
	for _, token := range strings.Split(raw, ",") {
		if r := ParseRole(token); r != RoleUnknown {
			set[r] = struct{}{}
		}
	}
	return set
}

func NewRoleSet(roles ...Role) RoleSet {
	set := RoleSet{}
	for _, r := range roles {
		if r != RoleUnknown {
			set[r] = struct{}{}
		}
	}
	return set
}

func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

// HasAny reports whether s holds at least one of roles.
func (s RoleSet) HasAny(roles ...Role) bool {
	for _, r := range roles {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether any held role is an admin role.
func (s RoleSet) IsAdmin() bool {
	for r := range s {
		if r.IsAdmin() {
			return true
		}
	}
	return false
}

// String renders the canonical comma separated form stored in the database.
func (s RoleSet) String() string {
	names := make([]string, 0, len(s))
	for r := range s {
		names = append(names, r.String())
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Names returns the sorted role names, used in JSON responses.
func (s RoleSet) Names() []string {
	if len(s) == 0 {
		return []string{}
	}
	return strings.Split(s.String(), ",")
}
