package stripe

import (
	"testing"

	stripeapi "github.com/stripe/stripe-go/v75"
)

func TestPaymentSettled(t *testing.T) {
	tests := []struct {
		status stripeapi.CheckoutSessionPaymentStatus
		want   bool
	}{
		{stripeapi.CheckoutSessionPaymentStatusPaid, true},
		{stripeapi.CheckoutSessionPaymentStatusNoPaymentRequired, true},
		{stripeapi.CheckoutSessionPaymentStatusUnpaid, false},
		{"", false},
	}
	for _, tt := range tests {
		if got := PaymentSettled(&stripeapi.CheckoutSession{PaymentStatus: tt.status}); got != tt.want {
			t.Errorf("PaymentSettled(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
	if PaymentSettled(nil) {
		t.Errorf("PaymentSettled(nil) = true")
	}
}
