package authgate

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	identity Identity
	err      error
	calls    int
}

func (s *stubValidator) Validate(ctx context.Context, token string) (Identity, error) {
	s.calls++
	return s.identity, s.err
}

func TestParseBearerExtractsToken(t *testing.T) {
	token, ok := ParseBearer("Bearer abc123")
	require.True(t, ok)
	assert.Equal(t, "abc123", token)
}

func TestParseBearerRejectsMissingPrefix(t *testing.T) {
	_, ok := ParseBearer("abc123")
	assert.False(t, ok)
}

func TestValidateMissingHeaderIsAnonymous(t *testing.T) {
	g := New(nil, nil, time.Minute)
	id := g.Validate(context.Background(), "")
	assert.False(t, id.Authenticated)
	assert.True(t, id.HasPermission(PublicSearch))
}

func TestValidateDelegatesToValidator(t *testing.T) {
	v := &stubValidator{identity: Identity{Authenticated: true, UserID: "u1", Permissions: []string{"search"}}}
	g := New(v, nil, time.Minute)

	id := g.Validate(context.Background(), "Bearer opaque-token")
	assert.True(t, id.Authenticated)
	assert.Equal(t, "u1", id.UserID)
}

func TestValidateCachesPositiveResult(t *testing.T) {
	v := &stubValidator{identity: Identity{Authenticated: true, UserID: "u1"}}
	g := New(v, nil, time.Minute)

	g.Validate(context.Background(), "Bearer tok")
	g.Validate(context.Background(), "Bearer tok")
	assert.Equal(t, 1, v.calls)
}

func TestValidateJWTFastPathBypassesValidator(t *testing.T) {
	secret := []byte("test-secret")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "u42",
		"tier": "pro",
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	v := &stubValidator{}
	g := New(v, secret, time.Minute)

	id := g.Validate(context.Background(), "Bearer "+signed)
	assert.True(t, id.Authenticated)
	assert.Equal(t, "u42", id.UserID)
	assert.Equal(t, "pro", id.Tier)
	assert.Equal(t, 0, v.calls)
}

func TestValidateInvalidTokenIsAnonymous(t *testing.T) {
	v := &stubValidator{err: assert.AnError}
	g := New(v, nil, time.Minute)

	id := g.Validate(context.Background(), "Bearer garbage")
	assert.False(t, id.Authenticated)
}
