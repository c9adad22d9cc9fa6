package stripe

import (
	stripeapi "github.com/stripe/stripe-go/v75"
)

// PaymentSettled reports whether a completed checkout session actually
// captured the money. Delayed methods complete the session unpaid and
// settle later with checkout.session.async_payment_succeeded.
func PaymentSettled(s *stripeapi.CheckoutSession) bool {
	if s == nil {
		return false
	}
	switch s.PaymentStatus {
	case stripeapi.CheckoutSessionPaymentStatusPaid,
		stripeapi.CheckoutSessionPaymentStatusNoPaymentRequired:
		return true
	default:
		return false
	}
}
