package authz

import (
	"bytes"
	"strings"
	"testing"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinichub/scheduling/internal/auth"
)

// newTestEngine builds the engine in memory, without a policy store, seeded
// from the embedded default rules.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	m, err := model.NewModelFromString(modelConf)
	require.NoError(t, err)

	enforcer, err := casbin.NewSyncedEnforcer(m)
	require.NoError(t, err)

	eng := &Engine{enforcer: enforcer}
	require.NoError(t, eng.seed(bytes.NewReader(defaultSeedPolicy)))
	return eng
}

func principal(subject string, tenantID string, roles ...string) *auth.Principal {
	return &auth.Principal{Subject: subject, TenantID: tenantID, Roles: roles}
}

func TestPermitSeededRoles(t *testing.T) {
	eng := newTestEngine(t)

	cases := []struct {
		role string
		obj  string
		act  string
		want bool
	}{
		{"doctor", "/commands/scheduling/appointments", "POST", true},
		{"secretary", "/commands/scheduling/appointments", "POST", true},
		{"patient", "/commands/scheduling/appointments", "POST", true},
		{"nurse", "/commands/scheduling/appointments", "POST", false},
		{"nurse", "/queries/scheduling/availabilities", "GET", true},
		{"doctor", "/commands/onboarding/invitations", "POST", false},
		{"clinic_admin", "/commands/onboarding/invitations", "POST", true},
	}
	for _, tc := range cases {
		ok, err := eng.Permit(principal("u1", "clinic-a", tc.role), "clinic-a", tc.obj, tc.act)
		require.NoError(t, err)
		assert.Equalf(t, tc.want, ok, "%s %s %s", tc.role, tc.act, tc.obj)
	}
}

func TestPermitWildcardRulesApplyInAnyDomain(t *testing.T) {
	eng := newTestEngine(t)

	for _, domain := range []string{"clinic-a", "clinic-b", WildcardDomain} {
		ok, err := eng.Permit(principal("u1", domain, "patient"), domain, "/queries/scheduling/availabilities", "GET")
		require.NoError(t, err)
		assert.Truef(t, ok, "domain %s", domain)
	}
}

func TestPermitDeniesWithoutRule(t *testing.T) {
	eng := newTestEngine(t)

	ok, err := eng.Permit(principal("u1", "clinic-a"), "clinic-a", "/commands/scheduling/appointments", "POST")
	require.NoError(t, err)
	assert.False(t, ok, "a principal without roles or direct rules is denied")

	ok, err = eng.Permit(principal("u1", "clinic-a", "doctor"), "clinic-a", "/commands/scheduling/appointments", "DELETE")
	require.NoError(t, err)
	assert.False(t, ok, "unknown action is denied")
}

func TestPermitDirectSubjectRule(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.enforcer.AddPolicy([]string{"svc-account-1", "clinic-a", "/commands/scheduling/appointments", "POST"})
	require.NoError(t, err)

	// The subject rule grants access with no roles at all, but only inside
	// its own domain.
	ok, err := eng.Permit(principal("svc-account-1", "clinic-a"), "clinic-a", "/commands/scheduling/appointments", "POST")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = eng.Permit(principal("svc-account-1", "clinic-b"), "clinic-b", "/commands/scheduling/appointments", "POST")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPermitDomainScopedGroupMembership(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.enforcer.AddGroupingPolicy([]string{"user-7", "clinic_admin", "clinic-a"})
	require.NoError(t, err)

	// Membership is bound to the domain it was granted in.
	ok, err := eng.Permit(principal("user-7", "clinic-a"), "clinic-a", "/commands/onboarding/invitations", "POST")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = eng.Permit(principal("user-7", "clinic-b"), "clinic-b", "/commands/onboarding/invitations", "POST")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPermitObjectPatterns(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.enforcer.AddPolicy([]string{"auditor", "*", "/queries/scheduling/*", "GET"})
	require.NoError(t, err)

	ok, err := eng.Permit(principal("u1", "clinic-a", "auditor"), "clinic-a", "/queries/scheduling/availabilities", "GET")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = eng.Permit(principal("u1", "clinic-a", "auditor"), "clinic-a", "/commands/scheduling/appointments", "GET")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorize(t *testing.T) {
	eng := newTestEngine(t)

	err := eng.Authorize(principal("u1", "clinic-a", "doctor"), "clinic-a", "/commands/scheduling/appointments", "POST")
	assert.NoError(t, err)

	err = eng.Authorize(principal("u1", "clinic-a", "nurse"), "clinic-a", "/commands/scheduling/appointments", "POST")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSeedSkipsMalformedRecords(t *testing.T) {
	m, err := model.NewModelFromString(modelConf)
	require.NoError(t, err)
	enforcer, err := casbin.NewSyncedEnforcer(m)
	require.NoError(t, err)
	eng := &Engine{enforcer: enforcer}

	src := strings.NewReader(strings.Join([]string{
		"p, doctor, *, /queries/scheduling/availabilities, GET",
		"x",
		"g, user-1, doctor, clinic-a",
	}, "\n"))
	require.NoError(t, eng.seed(src))

	policies, err := enforcer.GetPolicy()
	require.NoError(t, err)
	assert.Len(t, policies, 1)

	groups, err := enforcer.GetGroupingPolicy()
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}
