package users

import (
	"context"
	"net/http"

	"eduplatform-api/internal/api/respond"
	"eduplatform-api/internal/app/http/middleware"
	"eduplatform-api/internal/domain/access"
	"eduplatform-api/internal/service/subscription"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type Balances interface {
	GetBalance(ctx context.Context, userID uint) (decimal.Decimal, error)
}

type Subscriptions interface {
	GetCurrentSubscription(ctx context.Context, userID uint) (subscription.Result, error)
}

type Handler struct {
	balances Balances
	subs     Subscriptions
}

func NewHandler(balances Balances, subs Subscriptions) *Handler {
	return &Handler{balances: balances, subs: subs}
}

// GetCurrentUser combines the token identity with the live balance and
// entitlement.
func (h *Handler) GetCurrentUser(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		respond.Unauthenticated(c)
		return
	}
	ctx := c.Request.Context()

	bal, err := h.balances.GetBalance(ctx, identity.UserID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	current, err := h.subs.GetCurrentSubscription(ctx, identity.UserID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	resp := MeResponse{
		User:         UserDTO{ID: identity.UserID, RoleID: identity.RoleID},
		Balance:      bal.StringFixed(2),
		Access:       access.AccessLocked,
		Subscription: current.Subscription,
		Token: TokenDTO{
			SubscriptionCode:     identity.SubscriptionCode,
			SubscriptionEndDate:  identity.SubscriptionEndDate,
			SubscriptionIsActive: identity.SubscriptionIsActive,
		},
	}
	if current.Subscription != nil {
		resp.Access = current.Subscription.Access
	}
	c.JSON(http.StatusOK, resp)
}
