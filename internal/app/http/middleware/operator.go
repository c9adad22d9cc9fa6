package middleware

import (
	"errors"
	"net/http"

	"eduplatform-api/internal/apperr"

	"github.com/gin-gonic/gin"
)

// OperatorAuthorizer validates the shared operator secret.
type OperatorAuthorizer interface {
	Authorize(secret string) error
}

// RequireOperator guards operator routes with the X-Operator-Secret header.
// A missing server-side secret fails closed.
func RequireOperator(auth OperatorAuthorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := auth.Authorize(c.GetHeader("X-Operator-Secret"))
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, apperr.ErrMisconfigured):
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Operator access is not configured"})
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid operator secret"})
		}
	}
}
