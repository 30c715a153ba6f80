package middleware

import (
	"net/http"
	"strings"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"
	"worklens/pkg/errors"
	"worklens/pkg/logger"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AuthMiddleware rejects requests without a valid bearer token and stores the
// resolved identity in the gin context.
func AuthMiddleware(resolver ports.IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Error(errors.NewAuthInvalidError("authorization header required"))
			c.Abort()
			return
		}

		token := BearerToken(authHeader)
		if token == "" {
			c.Error(errors.NewAuthInvalidError("invalid authorization header format"))
			c.Abort()
			return
		}

		identity, err := resolver.ValidateToken(token)
		if err != nil {
			c.Error(errors.WrapError(err, errors.ErrCodeAuthInvalid, "invalid or expired token", http.StatusUnauthorized))
			c.Abort()
			return
		}

		c.Set(identityKey, identity)
		c.Request = c.Request.WithContext(logger.WithSubjectID(c.Request.Context(), string(identity.SubjectID)))
		c.Next()
	}
}

// RequireRoles lets the request through only when the authenticated identity
// holds one of roles. It must run after AuthMiddleware.
func RequireRoles(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			c.Error(errors.NewAuthInvalidError("authentication required"))
			c.Abort()
			return
		}
		for _, role := range roles {
			if identity.Role == role {
				c.Next()
				return
			}
		}
		c.Error(errors.NewForbiddenError("insufficient permissions"))
		c.Abort()
	}
}

// IdentityFrom returns the identity stored by AuthMiddleware.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, exists := c.Get(identityKey)
	if !exists {
		return domain.Anonymous, false
	}
	identity, ok := v.(domain.Identity)
	if !ok || !identity.Authenticated() {
		return domain.Anonymous, false
	}
	return identity, true
}
