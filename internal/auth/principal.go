package auth

import (
	"context"
	"sort"
	"strings"
)

// Principal is the resolved identity for one request. It is request-scoped
// and never persisted.
type Principal struct {
	Subject  string
	TenantID string // empty for identities without a home tenant
	Roles    []string
	Email    string
	Username string
	RawToken string
}

// HasAnyRole reports whether the principal holds any of the given roles.
// Comparison is case-insensitive.
func (p *Principal) HasAnyRole(roles ...string) bool {
	for _, want := range roles {
		want = strings.ToLower(want)
		for _, have := range p.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// ResolvePrincipal builds a Principal from a validated claim set. Roles are
// taken from the per-client block for clientID plus the flat roles claim,
// lower-cased and de-duplicated.
func ResolvePrincipal(claims *Claims, raw, clientID string) (*Principal, error) {
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}

	seen := make(map[string]struct{})
	var roles []string
	for _, role := range append(claims.clientRoleList(clientID), claims.Roles...) {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	sort.Strings(roles)

	return &Principal{
		Subject:  claims.Subject,
		TenantID: claims.TenantID,
		Roles:    roles,
		Email:    strings.ToLower(claims.Email),
		Username: claims.PreferredUsername,
		RawToken: raw,
	}, nil
}

type principalCtxKey struct{}

// WithPrincipal attaches the principal to the context. Attaching is
// idempotent: if a principal is already present the context is returned
// unchanged, so downstream components never re-verify.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	if _, ok := FromContext(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// FromContext returns the principal attached to the request context.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(*Principal)
	return p, ok
}
