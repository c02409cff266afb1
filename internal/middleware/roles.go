package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/authz"
)

// RequireRole rejects callers that are not admins, moderators or staff.
func RequireRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := PrincipalFromContext(c)
		err := authz.RequireRole(principal)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, authz.ErrUnauthenticated):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":  "Authentication required",
				"code":   "unauthenticated",
				"status": "unauthorized",
			})
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":          "Access denied. Admin or moderator role required.",
				"code":           "role_required",
				"user_role":      principal.RoleName(),
				"required_roles": authz.PrivilegedGroups,
			})
		}
	}
}
