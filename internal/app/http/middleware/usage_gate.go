package middleware

import (
	"net/http"

	"eduplatform-api/internal/service/admission"

	"github.com/gin-gonic/gin"
)

// MeteredOnly refuses paths the gate does not meter and rewrites the rest to
// their cleaned form, so the gate and the handlers behind it see one path.
func MeteredOnly(gate *admission.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		cleaned := admission.CleanPath(c.Request.URL.Path)
		if _, ok := gate.Metered(cleaned); !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.Request.URL.Path = cleaned
		c.Request.URL.RawPath = ""
		c.Next()
	}
}

// UsageGate runs the admission decision for metered paths. A bearer header
// marks the caller as authenticated; verifying it is left to the gate.
func UsageGate(gate *admission.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		d := gate.Decide(c.Request.Context(), admission.Request{
			Path:          c.Request.URL.Path,
			Authenticated: hasBearer(authHeader),
			Credential:    authHeader,
		})

		if d.Identity != nil {
			setIdentity(c, d.Identity)
		}
		if d.Outcome == admission.Deny {
			c.AbortWithStatusJSON(d.Status, d.Body)
			return
		}
		c.Next()
	}
}
