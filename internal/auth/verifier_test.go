package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://idp.example/realms/clinic"
	testAudience = "account"
	testClientID = "clinic-api"
	testKeyID    = "test-key-1"
)

// jwksFixture serves a single RSA signing key the way the realm endpoint does.
type jwksFixture struct {
	key    *rsa.PrivateKey
	server *httptest.Server
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pub, err := jwk.FromRaw(&key.PublicKey)
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, testKeyID))
	require.NoError(t, pub.Set(jwk.AlgorithmKey, "RS256"))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(server.Close)

	return &jwksFixture{key: key, server: server}
}

func (f *jwksFixture) verifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(context.Background(), VerifierConfig{
		JWKSURL:  f.server.URL,
		Issuer:   testIssuer,
		Audience: testAudience,
		ClientID: testClientID,
		Leeway:   30 * time.Second,
		KeyTTL:   time.Hour,
	})
	require.NoError(t, err)
	return v
}

func baseClaims() Claims {
	now := time.Now().UTC()
	return Claims{
		TenantID: "clinic-a",
		Roles:    []string{"doctor"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		},
	}
}

func (f *jwksFixture) sign(t *testing.T, kid string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	raw, err := token.SignedString(f.key)
	require.NoError(t, err)
	return raw
}

func TestVerify(t *testing.T) {
	fx := newJWKSFixture(t)
	v := fx.verifier(t)

	raw := fx.sign(t, testKeyID, baseClaims())
	claims, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "clinic-a", claims.TenantID)
	assert.Equal(t, []string{"doctor"}, claims.Roles)
}

func TestVerifyExpired(t *testing.T) {
	fx := newJWKSFixture(t)
	v := fx.verifier(t)

	claims := baseClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().UTC().Add(-10 * time.Minute))

	_, err := v.Verify(context.Background(), fx.sign(t, testKeyID, claims))
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyWrongIssuer(t *testing.T) {
	fx := newJWKSFixture(t)
	v := fx.verifier(t)

	claims := baseClaims()
	claims.Issuer = "https://rogue.example/realms/clinic"

	_, err := v.Verify(context.Background(), fx.sign(t, testKeyID, claims))
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyWrongAudience(t *testing.T) {
	fx := newJWKSFixture(t)
	v := fx.verifier(t)

	claims := baseClaims()
	claims.Audience = jwt.ClaimStrings{"other-api"}

	_, err := v.Verify(context.Background(), fx.sign(t, testKeyID, claims))
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyRejectsHMAC(t *testing.T) {
	fx := newJWKSFixture(t)
	v := fx.verifier(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims())
	token.Header["kid"] = testKeyID
	raw, err := token.SignedString([]byte("not-an-rsa-key"))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyUnknownKeyID(t *testing.T) {
	fx := newJWKSFixture(t)
	v := fx.verifier(t)

	_, err := v.Verify(context.Background(), fx.sign(t, "rotated-away", baseClaims()))
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyMissingKeyID(t *testing.T) {
	fx := newJWKSFixture(t)
	v := fx.verifier(t)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, baseClaims())
	raw, err := token.SignedString(fx.key)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyRequiresIssuedAtAndNotBefore(t *testing.T) {
	fx := newJWKSFixture(t)
	v := fx.verifier(t)

	claims := baseClaims()
	claims.IssuedAt = nil
	_, err := v.Verify(context.Background(), fx.sign(t, testKeyID, claims))
	assert.ErrorIs(t, err, ErrInvalidCredential)

	claims = baseClaims()
	claims.NotBefore = nil
	_, err = v.Verify(context.Background(), fx.sign(t, testKeyID, claims))
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyTamperedToken(t *testing.T) {
	fx := newJWKSFixture(t)
	v := fx.verifier(t)

	raw := fx.sign(t, testKeyID, baseClaims())
	tampered := raw[:len(raw)-4] + "AAAA"

	_, err := v.Verify(context.Background(), tampered)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestNewVerifierUpstreamDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	server.Close()

	_, err := NewVerifier(context.Background(), VerifierConfig{
		JWKSURL:  server.URL,
		Issuer:   testIssuer,
		Audience: testAudience,
		ClientID: testClientID,
	})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}
