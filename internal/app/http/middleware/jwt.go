package middleware

import (
	"net/http"
	"strings"

	"eduplatform-api/internal/infra/tokens"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ctxUserID   = "user_id"
	ctxRoleID   = "role_id"
	ctxIdentity = "identity"
)

// AuthMiddleware requires a bearer credential the reader accepts. An
// identity already resolved earlier in the chain is reused.
func AuthMiddleware(reader tokens.Reader, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentIdentity(c); ok {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header missing"})
			return
		}
		if !hasBearer(authHeader) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Bearer token malformed"})
			return
		}

		identity, ok := reader.Read(c.Request.Context(), authHeader)
		if !ok {
			logger.Debug("credential rejected", zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		setIdentity(c, identity)
		c.Next()
	}
}

// CurrentIdentity returns the identity stored by AuthMiddleware or UsageGate.
func CurrentIdentity(c *gin.Context) (*tokens.Identity, bool) {
	v, ok := c.Get(ctxIdentity)
	if !ok {
		return nil, false
	}
	id, ok := v.(*tokens.Identity)
	return id, ok && id != nil
}

// CurrentUserID returns the authenticated user's id.
func CurrentUserID(c *gin.Context) (uint, bool) {
	id, ok := CurrentIdentity(c)
	if !ok {
		return 0, false
	}
	return id.UserID, true
}

func setIdentity(c *gin.Context, identity *tokens.Identity) {
	c.Set(ctxIdentity, identity)
	c.Set(ctxUserID, identity.UserID)
	c.Set(ctxRoleID, identity.RoleID)
}

func hasBearer(header string) bool {
	header = strings.TrimSpace(header)
	return len(header) > 7 && strings.EqualFold(header[:7], "bearer ")
}
