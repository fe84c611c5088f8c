package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePrincipal(t *testing.T) {
	claims := &Claims{
		TenantID:          "clinic-a",
		PreferredUsername: "ada",
		Email:             "Ada@Clinic-A.example",
		Roles:             []string{"Patient", " doctor "},
		ResourceAccess: map[string]clientRoles{
			"clinic-api": {Roles: []string{"doctor", "SECRETARY"}},
			"other-app":  {Roles: []string{"admin"}},
		},
	}
	claims.Subject = "user-1"

	p, err := ResolvePrincipal(claims, "raw-token", "clinic-api")
	require.NoError(t, err)

	assert.Equal(t, "user-1", p.Subject)
	assert.Equal(t, "clinic-a", p.TenantID)
	assert.Equal(t, "ada@clinic-a.example", p.Email)
	assert.Equal(t, "ada", p.Username)
	assert.Equal(t, "raw-token", p.RawToken)
	// Per-client roles merge with the flat claim, lower-cased, de-duplicated,
	// sorted. Another client's block is ignored.
	assert.Equal(t, []string{"doctor", "patient", "secretary"}, p.Roles)
}

func TestResolvePrincipalMissingSubject(t *testing.T) {
	_, err := ResolvePrincipal(&Claims{TenantID: "clinic-a"}, "raw", "clinic-api")
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestHasAnyRole(t *testing.T) {
	p := &Principal{Roles: []string{"doctor", "patient"}}

	assert.True(t, p.HasAnyRole("doctor"))
	assert.True(t, p.HasAnyRole("DOCTOR"), "role checks are case-insensitive")
	assert.True(t, p.HasAnyRole("nurse", "patient"))
	assert.False(t, p.HasAnyRole("nurse", "secretary"))
	assert.False(t, p.HasAnyRole())
}

func TestWithPrincipalIdempotent(t *testing.T) {
	first := &Principal{Subject: "user-1"}
	ctx := WithPrincipal(context.Background(), first)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, first, got)

	// A second attach must not displace the verified principal.
	ctx2 := WithPrincipal(ctx, &Principal{Subject: "intruder"})
	assert.Equal(t, ctx, ctx2)
	got, ok = FromContext(ctx2)
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}
