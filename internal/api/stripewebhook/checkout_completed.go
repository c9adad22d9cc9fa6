package stripewebhooks

import (
	"context"
	"strconv"

	"eduplatform-api/internal/api/billing"
	"eduplatform-api/internal/apperr"
	"eduplatform-api/internal/domain/payments"
	stripestatus "eduplatform-api/internal/infra/stripe"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v75"
	"go.uber.org/zap"
)

// handleCheckoutSessionCompleted returns the acknowledgement status, or an
// error when the event should be retried.
func (h *Handler) handleCheckoutSessionCompleted(ctx context.Context, eventID string, session *stripe.CheckoutSession) (string, error) {
	log := h.logger.With(zap.String("event_id", eventID), zap.String("session_id", session.ID))

	if !stripestatus.PaymentSettled(session) {
		log.Info("checkout completed without settled payment", zap.String("payment_status", string(session.PaymentStatus)))
		return "awaiting_payment", nil
	}
	if session.Metadata[billing.MetadataPurpose] != billing.PurposeBalanceTopUp {
		log.Info("checkout session is not a balance top-up")
		return "ignored", nil
	}

	raw := session.Metadata[billing.MetadataUserID]
	userID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || userID == 0 || session.AmountTotal <= 0 {
		log.Warn("top-up session without user or amount",
			zap.String("user_id", raw), zap.Int64("amount_total", session.AmountTotal))
		return "ignored", nil
	}

	snap, applied, err := h.crediter.CreditPayment(ctx, payments.Payment{
		UserID:          uint(userID),
		StripeSessionID: session.ID,
		Amount:          decimal.New(session.AmountTotal, -2),
		Currency:        string(session.Currency),
	})
	switch {
	case apperr.IsNotFound(err):
		log.Warn("top-up for unknown user", zap.Uint64("user_id", userID))
		return "ignored", nil
	case err != nil:
		log.Error("credit top-up failed", zap.Uint64("user_id", userID), zap.Error(err))
		return "", err
	case !applied:
		log.Info("top-up already credited", zap.Uint64("user_id", userID))
		return "duplicate", nil
	}

	log.Info("balance topped up",
		zap.Uint64("user_id", userID), zap.String("new_balance", snap.NewBalance.StringFixed(2)))
	return "credited", nil
}
