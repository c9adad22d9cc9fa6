package billing

import (
	"fmt"
	"net/http"
	"strings"

	"eduplatform-api/internal/api/respond"
	"eduplatform-api/internal/app/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v75"
	checkoutsession "github.com/stripe/stripe-go/v75/checkout/session"
	"go.uber.org/zap"
)

// Checkout session metadata read back by the webhook.
const (
	MetadataPurpose     = "purpose"
	MetadataUserID      = "user_id"
	PurposeBalanceTopUp = "balance_top_up"
)

// Checkout creates card payment sessions that top up the balance.
// Subscriptions are always paid from the balance.
type Checkout struct {
	AppURL   string
	Currency string
	// NewSession defaults to the Stripe API.
	NewSession func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// NewCheckout configures the Stripe client. It returns nil without a key.
func NewCheckout(secretKey, appURL, currency string) *Checkout {
	if secretKey == "" {
		return nil
	}
	stripe.Key = secretKey
	if appURL == "" {
		appURL = "http://localhost:5173"
	}
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &Checkout{AppURL: strings.TrimRight(appURL, "/"), Currency: strings.ToLower(currency), NewSession: checkoutsession.New}
}

type topUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// CreateTopUpSession opens a Stripe checkout for a balance top-up. The
// balance is credited by the webhook once Stripe reports the payment settled.
func (h *Handler) CreateTopUpSession(c *gin.Context) {
	if h.checkout == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Card payments are not configured"})
		return
	}
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		respond.Unauthenticated(c)
		return
	}

	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Round(2)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive with at most two decimals"})
		return
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(h.checkout.AppURL + "/account?topup=1"),
		CancelURL:  stripe.String(h.checkout.AppURL + "/account?canceled=1"),
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(h.checkout.Currency),
				UnitAmount: stripe.Int64(req.Amount.Shift(2).IntPart()),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Balance top-up"),
				},
			},
		}},
		ClientReferenceID: stripe.String(fmt.Sprint(userID)),
		Metadata: map[string]string{
			MetadataPurpose: PurposeBalanceTopUp,
			MetadataUserID:  fmt.Sprint(userID),
		},
	}

	s, err := h.checkout.NewSession(params)
	if err != nil {
		h.logger.Error("stripe checkout session failed", zap.Uint("user_id", userID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create checkout session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": s.URL, "sessionId": s.ID, "amount": req.Amount.StringFixed(2)})
}
