package perm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowsDefaultsToFalse(t *testing.T) {
	cases := []struct {
		name string
		set  Set
	}{
		{"nil set", nil},
		{"empty set", Set{}},
		{"module without capabilities", Set{ModuleArticles: {}}},
		{"capability explicitly false", Set{ModuleArticles: {CapCreate: false}}},
		{"other module granted", Set{ModuleAdmin: {CapAccess: true}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, Allows(tc.set, ModuleArticles, CapCreate))
		})
	}
}

func TestAllowsRequiresExplicitTrue(t *testing.T) {
	s := Set{ModuleArticles: {CapCreate: true}}
	assert.True(t, Allows(s, ModuleArticles, CapCreate))
	assert.False(t, Allows(s, ModuleArticles, CapViewAll))
	assert.False(t, Allows(s, ModuleAdmin, CapAccess))
}

func TestNoneAndAllGrantedCoverSchema(t *testing.T) {
	none := None()
	all := AllGranted()
	for m, caps := range Schema {
		for _, c := range caps {
			assert.False(t, Allows(none, m, c), "None should deny %s", Path(m, c))
			assert.True(t, Allows(all, m, c), "AllGranted should grant %s", Path(m, c))
		}
	}
}

func TestBaseline(t *testing.T) {
	s := Baseline()
	assert.True(t, Allows(s, ModuleArticles, CapAccess))
	assert.True(t, Allows(s, ModuleArticles, CapCreate))
	assert.False(t, Allows(s, ModuleArticles, CapViewAll))
	assert.False(t, Allows(s, ModuleArticles, CapManageOthers))
	assert.False(t, Allows(s, ModuleAdmin, CapAccess))
}

func TestCloneIsIndependent(t *testing.T) {
	orig := Baseline()
	cp := orig.Clone()
	cp.Grant(ModuleAdmin, CapAccess, true)
	assert.False(t, Allows(orig, ModuleAdmin, CapAccess))
	assert.True(t, Allows(cp, ModuleAdmin, CapAccess))
}

func TestGrantRejectsUnknownPairs(t *testing.T) {
	s := None()
	s.Grant(Module("billing"), CapAccess, true)
	s.Grant(ModuleAdmin, CapViewAll, true)
	assert.False(t, Allows(s, Module("billing"), CapAccess))
	assert.False(t, Allows(s, ModuleAdmin, CapViewAll))
}

func TestParsePath(t *testing.T) {
	m, c, err := ParsePath("articles.view_all")
	require.NoError(t, err)
	assert.Equal(t, ModuleArticles, m)
	assert.Equal(t, CapViewAll, c)

	for _, bad := range []string{"", "articles", "articles.", ".access", "articles.fly", "billing.access", "admin.view_all"} {
		_, _, err := ParsePath(bad)
		assert.Error(t, err, "path %q should be rejected", bad)
	}
}

func TestFromLegacy(t *testing.T) {
	raw := map[string]any{
		"can_access_articles": true,
		"view_all_articles":   false,
		"can_create_article":  true,
		"unrelated":           true,
	}
	require.True(t, IsLegacy(raw))

	s := FromLegacy(raw)
	assert.True(t, Allows(s, ModuleArticles, CapAccess))
	assert.False(t, Allows(s, ModuleArticles, CapViewAll))
	assert.True(t, Allows(s, ModuleArticles, CapCreate))
	assert.False(t, Allows(s, ModuleArticles, CapManageOthers))
	assert.False(t, Allows(s, ModuleAdmin, CapAccess))
}

func TestIsLegacyOnNestedShape(t *testing.T) {
	nested := map[string]any{
		"articles": map[string]any{"access": true},
	}
	assert.False(t, IsLegacy(nested))
}
