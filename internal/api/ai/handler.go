// Package ai fronts the AI model providers behind the usage gate.
package ai

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler forwards metered requests to the configured upstream.
type Handler struct {
	proxy  *httputil.ReverseProxy
	logger *zap.Logger
}

// NewHandler returns a handler that answers 501 when upstream is empty.
func NewHandler(upstream string, logger *zap.Logger) (*Handler, error) {
	h := &Handler{logger: logger}
	if upstream == "" {
		return h, nil
	}
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, err
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("ai upstream failed", zap.String("path", r.URL.Path), zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
	}
	h.proxy = proxy
	return h, nil
}

func (h *Handler) Forward(c *gin.Context) {
	if h.proxy == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "AI provider not configured"})
		return
	}
	// the upstream has its own credentials
	c.Request.Header.Del("Authorization")
	h.proxy.ServeHTTP(c.Writer, c.Request)
}
