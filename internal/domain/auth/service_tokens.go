package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gnrtax/internal/core/apperror"
	appctx "gnrtax/internal/core/context"
	"gnrtax/internal/core/entity"
	"gnrtax/internal/core/id"
	"gnrtax/pkg/logger"
)

// tokenPrefix marks service tokens so they are recognizable in logs and
// configuration without revealing the secret part.
const tokenPrefix = "gnrtax_"

// ServiceToken is a machine credential for the host ERP's webhook calls.
// Only the bcrypt hash is stored; the plaintext is shown once at creation.
type ServiceToken struct {
	entity.BaseEntity

	Name      string     `db:"name" json:"name"`
	TokenID   string     `db:"token_id" json:"tokenId"`
	Hash      string     `db:"hash" json:"-"`
	Roles     []string   `db:"roles" json:"roles"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	RevokedAt *time.Time `db:"revoked_at" json:"revokedAt,omitempty"`
	LastUsed  *time.Time `db:"last_used" json:"lastUsed,omitempty"`
}

// IsRevoked reports whether the token was revoked.
func (t *ServiceToken) IsRevoked() bool { return t.RevokedAt != nil }

// TokenRepository is the service token persistence contract.
type TokenRepository interface {
	Create(ctx context.Context, t *ServiceToken) error
	GetByTokenID(ctx context.Context, tokenID string) (*ServiceToken, error)
	Update(ctx context.Context, t *ServiceToken) error
	List(ctx context.Context) ([]*ServiceToken, error)
}

// TokenService issues and verifies service tokens.
type TokenService struct {
	repo TokenRepository
}

// NewTokenService creates the token service.
func NewTokenService(repo TokenRepository) *TokenService {
	return &TokenService{repo: repo}
}

// Issue creates a new token and returns its one-time plaintext value,
// formed as "gnrtax_<tokenID>.<secret>".
func (s *TokenService) Issue(ctx context.Context, name string, roles []string) (*ServiceToken, string, error) {
	if name == "" {
		return nil, "", apperror.NewValidation("token name is required").
			WithDetail("field", "name")
	}

	secret, err := randomHex(24)
	if err != nil {
		return nil, "", fmt.Errorf("generate token secret: %w", err)
	}
	tokenID, err := randomHex(8)
	if err != nil {
		return nil, "", fmt.Errorf("generate token id: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash token: %w", err)
	}

	token := &ServiceToken{
		BaseEntity: entity.NewBaseEntity(),
		Name:       name,
		TokenID:    tokenID,
		Hash:       string(hash),
		Roles:      roles,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, token); err != nil {
		return nil, "", err
	}

	logger.Info(ctx, "service token issued", "name", name, "token_id", tokenID)
	return token, tokenPrefix + tokenID + "." + secret, nil
}

// Verify checks a presented token and returns the service identity it
// carries.
func (s *TokenService) Verify(ctx context.Context, presented string) (*appctx.UserContext, error) {
	raw, ok := strings.CutPrefix(presented, tokenPrefix)
	if !ok {
		return nil, apperror.NewUnauthorized("unrecognized token format")
	}
	tokenID, secret, ok := strings.Cut(raw, ".")
	if !ok {
		return nil, apperror.NewUnauthorized("unrecognized token format")
	}

	token, err := s.repo.GetByTokenID(ctx, tokenID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewUnauthorized("unknown token")
		}
		return nil, err
	}
	if token.IsRevoked() {
		return nil, apperror.NewUnauthorized("token was revoked")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(token.Hash), []byte(secret)); err != nil {
		return nil, apperror.NewUnauthorized("invalid token")
	}

	now := time.Now().UTC()
	token.LastUsed = &now
	if err := s.repo.Update(ctx, token); err != nil {
		logger.Warn(ctx, "failed to stamp token usage", "token_id", tokenID, "error", err)
	}

	return &appctx.UserContext{
		UserID:    token.ID.String(),
		Email:     token.Name,
		Roles:     token.Roles,
		IsService: true,
	}, nil
}

// Revoke permanently disables a token.
func (s *TokenService) Revoke(ctx context.Context, tokenID id.ID) error {
	tokens, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	for _, t := range tokens {
		if t.ID != tokenID {
			continue
		}
		if t.IsRevoked() {
			return nil
		}
		now := time.Now().UTC()
		t.RevokedAt = &now
		if err := s.repo.Update(ctx, t); err != nil {
			return err
		}
		logger.Info(ctx, "service token revoked", "name", t.Name, "token_id", t.TokenID)
		return nil
	}
	return apperror.NewNotFound("service token", tokenID)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
