package routes

import (
	"net/http"

	adminapi "eduplatform-api/internal/api/admin"
	aiapi "eduplatform-api/internal/api/ai"
	"eduplatform-api/internal/api/billing"
	stripewebhooks "eduplatform-api/internal/api/stripewebhook"
	usersapi "eduplatform-api/internal/api/users"
	"eduplatform-api/internal/app/http/middleware"
	"eduplatform-api/internal/infra/tokens"
	"eduplatform-api/internal/service/admission"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Deps struct {
	Reader   tokens.Reader
	Gate     *admission.Gate
	Operator middleware.OperatorAuthorizer
	Billing  *billing.Handler
	Users    *usersapi.Handler
	Admin    *adminapi.Handler
	Webhook  *stripewebhooks.Handler
	AI       *aiapi.Handler
	Metrics  http.Handler
	Logger   *zap.Logger
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}
	r.POST("/webhook/stripe", d.Webhook.StripeWebhook)

	// Authenticated
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware(d.Reader, d.Logger), middleware.SanitizeInput())
	auth.GET("/me", d.Users.GetCurrentUser)
	auth.GET("/balance", d.Billing.GetBalance)
	auth.GET("/balance/info", d.Billing.GetBalanceInfo)
	auth.POST("/balance/checkout", d.Billing.CreateTopUpSession)
	auth.GET("/usage/summary", d.Billing.GetUsageSummary)

	auth.GET("/subscriptions/types", d.Billing.ListSubscriptionTypes)
	auth.POST("/subscriptions", d.Billing.Subscribe)
	auth.GET("/subscriptions/current", d.Billing.GetCurrentSubscription)
	auth.DELETE("/subscriptions/current", d.Billing.CancelSubscription)
	auth.GET("/subscriptions/history", d.Billing.GetSubscriptionHistory)
	auth.GET("/subscriptions/:id", d.Billing.GetSubscription)

	// Metered AI routes: only metered paths reach the proxy. The gate runs
	// first, unauthenticated callers are then refused by the auth layer
	metered := r.Group("/api")
	metered.Use(
		middleware.MeteredOnly(d.Gate),
		middleware.UsageGate(d.Gate),
		middleware.AuthMiddleware(d.Reader, d.Logger),
	)
	metered.Any("/*path", d.AI.Forward)

	// Operator routes
	admin := r.Group("/admin")
	admin.Use(middleware.RequireOperator(d.Operator), middleware.SanitizeInput())
	admin.POST("/balance/deposit", d.Admin.Deposit)
	admin.GET("/users/:id/subscriptions", d.Admin.UserSubscriptions)
	admin.POST("/subscriptions/:id/confirm", d.Admin.ConfirmSubscriptionPayment)
}
