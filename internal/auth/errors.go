package auth

import "errors"

var (
	// ErrInvalidCredential covers malformed, unsigned, expired or otherwise
	// unacceptable bearer tokens.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrUpstreamUnavailable means the identity provider could not be reached.
	// It is deliberately distinct from ErrInvalidCredential.
	ErrUpstreamUnavailable = errors.New("identity provider unavailable")
	// ErrMissingSubject means a validated token carried no sub claim.
	ErrMissingSubject = errors.New("token missing subject")
	// ErrMissingTenant means no tenant could be resolved for a write path.
	ErrMissingTenant = errors.New("no tenant resolved for request")
)
