package billing

import (
	"net/http"

	"eduplatform-api/internal/api/respond"
	"eduplatform-api/internal/app/http/middleware"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		respond.Unauthenticated(c)
		return
	}

	bal, err := h.balances.GetBalance(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "balance": bal.StringFixed(2)})
}

func (h *Handler) GetBalanceInfo(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		respond.Unauthenticated(c)
		return
	}

	info, err := h.balances.GetBalanceInfo(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) GetUsageSummary(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		respond.Unauthenticated(c)
		return
	}

	summary, err := h.usage.Summary(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": summary})
}
