package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gnrtax/internal/core/apperror"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))

	token, expiresAt, err := svc.GenerateAccessToken("u-1", "ops@example.com", []string{"declarant"})
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	user, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.UserID)
	assert.Equal(t, "ops@example.com", user.Email)
	assert.Equal(t, []string{"declarant"}, user.Roles)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTService(DefaultJWTConfig("secret-a"))
	verifier := NewJWTService(DefaultJWTConfig("secret-b"))

	token, _, err := issuer.GenerateAccessToken("u-1", "", nil)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

type memTokens struct {
	byTokenID map[string]*ServiceToken
}

func (r *memTokens) Create(_ context.Context, t *ServiceToken) error {
	cp := *t
	r.byTokenID[t.TokenID] = &cp
	return nil
}
func (r *memTokens) GetByTokenID(_ context.Context, tokenID string) (*ServiceToken, error) {
	t, ok := r.byTokenID[tokenID]
	if !ok {
		return nil, apperror.NewNotFound("service token", tokenID)
	}
	cp := *t
	return &cp, nil
}
func (r *memTokens) Update(_ context.Context, t *ServiceToken) error {
	cp := *t
	r.byTokenID[t.TokenID] = &cp
	return nil
}
func (r *memTokens) List(_ context.Context) ([]*ServiceToken, error) {
	var out []*ServiceToken
	for _, t := range r.byTokenID {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func TestServiceTokenLifecycle(t *testing.T) {
	repo := &memTokens{byTokenID: map[string]*ServiceToken{}}
	svc := NewTokenService(repo)
	ctx := context.Background()

	token, plaintext, err := svc.Issue(ctx, "erp-webhook", []string{"capture"})
	require.NoError(t, err)
	assert.Contains(t, plaintext, tokenPrefix)

	user, err := svc.Verify(ctx, plaintext)
	require.NoError(t, err)
	assert.True(t, user.IsService)
	assert.Equal(t, "erp-webhook", user.Email)
	assert.Equal(t, []string{"capture"}, user.Roles)

	// tampered secret fails
	_, err = svc.Verify(ctx, plaintext+"x")
	assert.Error(t, err)

	require.NoError(t, svc.Revoke(ctx, token.ID))
	_, err = svc.Verify(ctx, plaintext)
	assert.Error(t, err)
}

func TestVerifyRejectsMalformedTokens(t *testing.T) {
	svc := NewTokenService(&memTokens{byTokenID: map[string]*ServiceToken{}})
	ctx := context.Background()

	for _, presented := range []string{"", "bearer-whatever", "gnrtax_nodot"} {
		_, err := svc.Verify(ctx, presented)
		assert.Error(t, err, presented)
	}
}
