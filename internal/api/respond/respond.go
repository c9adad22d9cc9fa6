// Package respond renders service errors as JSON responses.
package respond

import (
	"net/http"

	"eduplatform-api/internal/apperr"

	"github.com/gin-gonic/gin"
)

// Error writes err with the status its kind maps to. Unexpected errors
// are not echoed back.
func Error(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg})
}

// Unauthenticated is used when a handler runs without an identity.
func Unauthenticated(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": "User not identified"})
}
