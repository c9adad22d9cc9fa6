package stripewebhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"eduplatform-api/internal/domain/payments"
	"eduplatform-api/internal/service/ledger"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/webhook"
	"go.uber.org/zap"
)

const maxBodyBytes = 65536

// Crediter credits a settled card payment to the balance, once per session.
type Crediter interface {
	CreditPayment(ctx context.Context, payment payments.Payment) (ledger.Snapshot, bool, error)
}

type Handler struct {
	endpointSecret string
	crediter       Crediter
	logger         *zap.Logger
}

func NewHandler(endpointSecret string, crediter Crediter, logger *zap.Logger) *Handler {
	return &Handler{endpointSecret: endpointSecret, crediter: crediter, logger: logger}
}

func (h *Handler) StripeWebhook(c *gin.Context) {
	if h.endpointSecret == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STRIPE_WEBHOOK_SECRET not configured"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error reading request body"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		c.GetHeader("Stripe-Signature"),
		h.endpointSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		h.logger.Warn("stripe signature verification failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Signature verification failed"})
		return
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse session"})
			return
		}
		status, err := h.handleCheckoutSessionCompleted(c.Request.Context(), event.ID, &session)
		if err != nil {
			// 5xx makes Stripe deliver the event again
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to credit payment"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": status})

	default:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}
