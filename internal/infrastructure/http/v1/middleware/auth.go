package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"gnrtax/internal/core/apperror"
	appctx "gnrtax/internal/core/context"
)

// JWTValidator interface for token validation.
type JWTValidator interface {
	ValidateToken(tokenString string) (*appctx.UserContext, error)
}

// ServiceTokenVerifier verifies long-lived service account tokens
// (worker, ERP webhook callers).
type ServiceTokenVerifier interface {
	Verify(ctx context.Context, token string) (*appctx.UserContext, error)
}

// serviceTokenPrefix marks bearer credentials that are service tokens
// rather than JWTs.
const serviceTokenPrefix = "gnrtax_"

// Auth middleware validates bearer credentials and populates user context.
// JWTs and service tokens share the Authorization header; the token
// prefix decides which verifier runs.
func Auth(validator JWTValidator, tokens ServiceTokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		credential := parts[1]

		var user *appctx.UserContext
		var err error
		if strings.HasPrefix(credential, serviceTokenPrefix) && tokens != nil {
			user, err = tokens.Verify(c.Request.Context(), credential)
		} else {
			user, err = validator.ValidateToken(credential)
		}
		if err != nil {
			_ = c.Error(apperror.NewUnauthorized("invalid token"))
			c.Abort()
			return
		}

		ctx := appctx.WithUser(c.Request.Context(), user)
		c.Request = c.Request.WithContext(ctx)

		c.Set("user_id", user.UserID)

		c.Next()
	}
}

// RequireRole middleware checks if user has one of the required roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := appctx.GetUser(c.Request.Context())
		if user == nil {
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}

		for _, required := range roles {
			for _, userRole := range user.Roles {
				if userRole == required {
					c.Next()
					return
				}
			}
		}
		_ = c.Error(
			apperror.NewForbidden("insufficient permissions").
				WithDetail("required_roles", roles),
		)
		c.Abort()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
