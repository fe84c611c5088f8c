// Package onboarding issues and consumes the signed, time-boxed role-grant
// tokens used to bring professionals into a tenant.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clinichub/scheduling/internal/auth"
)

var (
	ErrInvalidInvitation = errors.New("invalid invitation token")
	ErrUnsupportedRole   = errors.New("unsupported invitation role")
	ErrEmailMismatch     = errors.New("email does not match invitation")
	ErrTenantMismatch    = errors.New("caller already belongs to another tenant")
)

// proRoles are the professional roles an invitation may grant.
var proRoles = map[string]bool{
	"doctor":       true,
	"nurse":        true,
	"secretary":    true,
	"clinic_admin": true,
}

const (
	StatusProvisioned        = "ok"
	StatusAlreadyProvisioned = "already-provisioned"
)

type Invitation struct {
	Email     string
	Role      string
	TenantID  string
	InvitedBy string
	ExpiresAt time.Time
}

type inviteClaims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	TenantID  string `json:"tenant_id"`
	InvitedBy string `json:"invited_by"`
	jwt.RegisteredClaims
}

// RoleAssigner is satisfied by the identity admin client.
type RoleAssigner interface {
	AssignMember(ctx context.Context, userID, tenantID, role string) error
}

type Service struct {
	secret   []byte
	audience string
	ttl      time.Duration
	assigner RoleAssigner
}

func NewService(secret, audience string, ttl time.Duration, assigner RoleAssigner) *Service {
	return &Service{
		secret:   []byte(secret),
		audience: audience,
		ttl:      ttl,
		assigner: assigner,
	}
}

// Issue signs an invitation for email to join tenantID with the given role.
func (s *Service) Issue(tenantID, email, role, invitedBy string) (string, time.Time, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !proRoles[role] {
		supported := make([]string, 0, len(proRoles))
		for r := range proRoles {
			supported = append(supported, r)
		}
		sort.Strings(supported)
		return "", time.Time{}, fmt.Errorf("%w: %q, must be one of %s", ErrUnsupportedRole, role, strings.Join(supported, ", "))
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.ttl)

	claims := inviteClaims{
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Role:      role,
		TenantID:  tenantID,
		InvitedBy: invitedBy,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Audience:  jwt.ClaimStrings{s.audience},
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign invitation: %w", err)
	}
	return token, expiresAt, nil
}

// Decode validates an invitation token and returns its payload.
func (s *Service) Decode(token string) (*Invitation, error) {
	claims := &inviteClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInvitation, err)
	}
	if claims.Email == "" || claims.TenantID == "" || !proRoles[claims.Role] {
		return nil, fmt.Errorf("%w: incomplete payload", ErrInvalidInvitation)
	}

	return &Invitation{
		Email:     claims.Email,
		Role:      claims.Role,
		TenantID:  claims.TenantID,
		InvitedBy: claims.InvitedBy,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Accept finalizes an invitation for the calling principal, assigning the
// role and tenant through the identity provider.
func (s *Service) Accept(ctx context.Context, p *auth.Principal, token string) (string, error) {
	invitation, err := s.Decode(token)
	if err != nil {
		return "", err
	}

	if p.Email != "" && p.Email != invitation.Email {
		return "", ErrEmailMismatch
	}

	if p.HasAnyRole(invitation.Role) {
		return StatusAlreadyProvisioned, nil
	}

	if p.TenantID != "" && p.TenantID != invitation.TenantID {
		return "", ErrTenantMismatch
	}

	if err := s.assigner.AssignMember(ctx, p.Subject, invitation.TenantID, invitation.Role); err != nil {
		return "", err
	}
	return StatusProvisioned, nil
}
