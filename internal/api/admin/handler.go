package admin

import (
	"context"
	"net/http"
	"strconv"

	"eduplatform-api/internal/api/respond"
	"eduplatform-api/internal/service/ledger"
	"eduplatform-api/internal/service/subscription"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const headerOperatorSecret = "X-Operator-Secret"

type Depositor interface {
	Deposit(ctx context.Context, userID uint, amount decimal.Decimal, secret string) (ledger.Snapshot, error)
}

type Subscriptions interface {
	GetHistory(ctx context.Context, userID uint) ([]subscription.View, error)
	ConfirmPayment(ctx context.Context, subscriptionID uint) (subscription.View, error)
}

// Handler serves operator endpoints. Each call carries the operator secret;
// the ledger checks it.
type Handler struct {
	ledger Depositor
	subs   Subscriptions
	logger *zap.Logger
}

func NewHandler(ledger Depositor, subs Subscriptions, logger *zap.Logger) *Handler {
	return &Handler{ledger: ledger, subs: subs, logger: logger}
}

func (h *Handler) Deposit(c *gin.Context) {
	var body struct {
		UserID uint            `json:"userId"`
		Amount decimal.Decimal `json:"amount"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.UserID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid userId/amount"})
		return
	}

	snap, err := h.ledger.Deposit(c.Request.Context(), body.UserID, body.Amount, c.GetHeader(headerOperatorSecret))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// UserSubscriptions lists a user's subscription history for support staff.
// The operator secret is checked by the route group.
func (h *Handler) UserSubscriptions(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}

	history, err := h.subs.GetHistory(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// ConfirmSubscriptionPayment settles a Pending subscription row. It never
// charges anything; the price was taken from the balance at purchase.
func (h *Handler) ConfirmSubscriptionPayment(c *gin.Context) {
	subID, ok := pathID(c)
	if !ok {
		return
	}

	view, err := h.subs.ConfirmPayment(c.Request.Context(), subID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	h.logger.Info("subscription payment confirmed by operator",
		zap.Uint("subscription_id", view.ID), zap.Uint("user_id", view.UserID))
	c.JSON(http.StatusOK, view)
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return uint(id), true
}
