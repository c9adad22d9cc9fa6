package subscriptions

import "time"

// IsFree reports whether subscribing to t costs nothing. The configured
// free-tier id is free even if someone put a price on it.
func IsFree(t *SubscriptionType, freeTierID uint) bool {
	if t == nil {
		return true
	}
	if t.ID == freeTierID {
		return true
	}
	return t.Price == nil || !t.Price.IsPositive()
}

// EndDateFor computes the entitlement window end for a subscription
// starting at start. Free tier runs ten years, every paid tier one month.
func EndDateFor(t *SubscriptionType, freeTierID uint, start time.Time) time.Time {
	if IsFree(t, freeTierID) || (t != nil && t.DurationPolicy == DurationFreeTier) {
		return start.AddDate(10, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

// InitialPaymentStatus is Completed for the free tier; paid rows wait for
// the payment gateway to confirm.
func InitialPaymentStatus(t *SubscriptionType, freeTierID uint) PaymentStatus {
	if IsFree(t, freeTierID) {
		return PaymentCompleted
	}
	return PaymentPending
}
