package billing

import (
	"context"

	"eduplatform-api/internal/domain/subscriptions"
	"eduplatform-api/internal/service/ledger"
	"eduplatform-api/internal/service/quota"
	"eduplatform-api/internal/service/subscription"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Subscriptions interface {
	ListTypes(ctx context.Context) ([]subscriptions.SubscriptionType, error)
	Subscribe(ctx context.Context, userID, subscriptionTypeID uint) (subscription.Result, error)
	GetCurrentSubscription(ctx context.Context, userID uint) (subscription.Result, error)
	Cancel(ctx context.Context, userID uint) (bool, error)
	GetHistory(ctx context.Context, userID uint) ([]subscription.View, error)
	Get(ctx context.Context, userID, subscriptionID uint) (subscription.View, error)
}

type Balances interface {
	GetBalance(ctx context.Context, userID uint) (decimal.Decimal, error)
	GetBalanceInfo(ctx context.Context, userID uint) (ledger.Snapshot, error)
}

type Usage interface {
	Summary(ctx context.Context, userID uint) ([]quota.Usage, error)
}

// Handler serves the authenticated billing endpoints.
type Handler struct {
	subs     Subscriptions
	balances Balances
	usage    Usage
	checkout *Checkout
	logger   *zap.Logger
}

// NewHandler wires the billing endpoints. checkout may be nil when card
// payments are not configured.
func NewHandler(subs Subscriptions, balances Balances, usage Usage, checkout *Checkout, logger *zap.Logger) *Handler {
	return &Handler{subs: subs, balances: balances, usage: usage, checkout: checkout, logger: logger}
}
