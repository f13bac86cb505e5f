package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleRankOrdering(t *testing.T) {
	assert.True(t, RoleOwner.AtLeast(RoleAdmin))
	assert.True(t, RoleAdmin.AtLeast(RoleContributor))
	assert.True(t, RoleContributor.AtLeast(RoleViewer))
	assert.True(t, RoleAdmin.AtLeast(RoleAdmin))

	assert.False(t, RoleViewer.AtLeast(RoleContributor))
	assert.False(t, RoleContributor.AtLeast(RoleAdmin))
	assert.False(t, RoleAdmin.AtLeast(RoleOwner))
}

func TestUnknownRoleNeverOutranks(t *testing.T) {
	bogus := Role("superuser")
	assert.False(t, bogus.Valid())
	assert.False(t, bogus.AtLeast(RoleViewer))
	assert.False(t, bogus.AtLeast(bogus))
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole("  Admin ")
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, r)

	_, ok = ParseRole("root")
	assert.False(t, ok)
}

func TestRolePermissionsAreCumulative(t *testing.T) {
	assert.Subset(t, RoleOwner.Permissions(), RoleAdmin.Permissions())
	assert.Subset(t, RoleAdmin.Permissions(), RoleContributor.Permissions())
	assert.Subset(t, RoleContributor.Permissions(), RoleViewer.Permissions())
}
