package billing

import (
	"net/http"
	"strconv"

	"eduplatform-api/internal/api/respond"
	"eduplatform-api/internal/app/http/middleware"
	"eduplatform-api/internal/domain/subscriptions"
	"eduplatform-api/internal/service/subscription"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type subscriptionTypeDTO struct {
	ID             uint                         `json:"id"`
	Code           string                       `json:"code"`
	Name           string                       `json:"name"`
	Price          decimal.Decimal              `json:"price"`
	DurationPolicy subscriptions.DurationPolicy `json:"durationPolicy"`
	MonthlyAIQuota *int                         `json:"monthlyAiQuota"`
}

func (h *Handler) ListSubscriptionTypes(c *gin.Context) {
	types, err := h.subs.ListTypes(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}

	out := make([]subscriptionTypeDTO, 0, len(types))
	for _, t := range types {
		price := decimal.Zero
		if t.Price != nil {
			price = *t.Price
		}
		out = append(out, subscriptionTypeDTO{
			ID:             t.ID,
			Code:           t.Code,
			Name:           t.Name,
			Price:          price,
			DurationPolicy: t.DurationPolicy,
			MonthlyAIQuota: t.MonthlyAIQuota,
		})
	}
	c.JSON(http.StatusOK, out)
}

// Subscribe answers 402 with the result body when the balance is short.
func (h *Handler) Subscribe(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		respond.Unauthenticated(c)
		return
	}

	var body struct {
		SubscriptionTypeID uint `json:"subscriptionTypeId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.SubscriptionTypeID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid subscriptionTypeId"})
		return
	}

	res, err := h.subs.Subscribe(c.Request.Context(), userID, body.SubscriptionTypeID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if res.Status == subscription.StatusInsufficientBalance {
		c.JSON(http.StatusPaymentRequired, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetCurrentSubscription(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		respond.Unauthenticated(c)
		return
	}

	res, err := h.subs.GetCurrentSubscription(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) CancelSubscription(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		respond.Unauthenticated(c)
		return
	}

	cancelled, err := h.subs.Cancel(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if !cancelled {
		c.JSON(http.StatusNotFound, gin.H{"cancelled": false, "error": "No active subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func (h *Handler) GetSubscriptionHistory(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		respond.Unauthenticated(c)
		return
	}

	history, err := h.subs.GetHistory(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// GetSubscription returns one of the caller's own subscription rows.
func (h *Handler) GetSubscription(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		respond.Unauthenticated(c)
		return
	}
	subID, ok := parseID(c, "id")
	if !ok {
		return
	}

	view, err := h.subs.Get(c.Request.Context(), userID, subID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}
