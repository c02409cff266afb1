package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"messaging-service/internal/auth"
	"messaging-service/internal/authz"
	"messaging-service/internal/observability"
)

const principalKey = "principal"

// TokenVerifier validates a bearer token and returns its subject.
type TokenVerifier interface {
	Parse(token string, expected auth.TokenType) (uuid.UUID, error)
}

// PrincipalResolver loads the principal for an authenticated user id.
type PrincipalResolver interface {
	Principal(ctx context.Context, userID uuid.UUID) (*authz.Principal, error)
}

// AuthMiddleware validates the Authorization header and stores the caller's principal on the
// context.
func AuthMiddleware(tokens TokenVerifier, users PrincipalResolver, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			unauthorized(c, "missing authorization")
			return
		}

		token, ok := BearerToken(header)
		if !ok {
			unauthorized(c, "invalid authorization header")
			return
		}

		userID, err := tokens.Parse(token, auth.AccessToken)
		if err != nil {
			unauthorized(c, "invalid token")
			return
		}

		principal, err := users.Principal(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, authz.ErrUnauthenticated) {
				unauthorized(c, "invalid token")
				return
			}
			logger.Error().Err(err).Str("user_id", userID.String()).Msg("resolve principal")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Set(principalKey, principal)
		c.Set(observability.UsernameKey, principal.Username)
		c.Next()
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// PrincipalFromContext returns the principal set by AuthMiddleware, or nil.
func PrincipalFromContext(c *gin.Context) *authz.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*authz.Principal)
	return p
}

// SetPrincipal stores p on the context.
func SetPrincipal(c *gin.Context, p *authz.Principal) {
	c.Set(principalKey, p)
	if p != nil {
		c.Set(observability.UsernameKey, p.Username)
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "code": "unauthenticated"})
}
