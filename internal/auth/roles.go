package auth

import "strings"

// Role is the fixed, ordered set of roles a user can hold within a tenant.
type Role string

const (
	RoleViewer      Role = "viewer"
	RoleContributor Role = "contributor"
	RoleAdmin       Role = "admin"
	RoleOwner       Role = "owner"
)

// roleRanks orders roles for outranking comparisons. Higher rank implies
// every capability of the lower ranks.
var roleRanks = map[Role]int{
	RoleViewer:      1,
	RoleContributor: 2,
	RoleAdmin:       3,
	RoleOwner:       4,
}

var rolePermissions = map[Role][]string{
	RoleViewer:      {"requirements.read"},
	RoleContributor: {"requirements.read", "requirements.write"},
	RoleAdmin:       {"requirements.read", "requirements.write", "members.invite", "members.manage"},
	RoleOwner:       {"requirements.read", "requirements.write", "members.invite", "members.manage", "tenant.manage"},
}

// ParseRole normalizes a role string, returning false for anything outside
// the closed set.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	_, ok := roleRanks[r]
	return r, ok
}

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank returns the integer rank of the role; unknown roles rank 0.
func (r Role) Rank() int {
	return roleRanks[r]
}

// AtLeast reports whether r holds the rank of other or outranks it.
func (r Role) AtLeast(other Role) bool {
	return r.Rank() >= other.Rank() && r.Rank() > 0
}

// Permissions returns the permission keys granted by the role.
func (r Role) Permissions() []string {
	perms := rolePermissions[r]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}
