package access

import (
	"time"

	"eduplatform-api/internal/domain/subscriptions"
)

// ComputeEffectiveAccessState interprets the user's current subscription row
// (nil when there is none) for clients:
// full = paid and settled, pending = paid but awaiting the gateway,
// limited = free tier, locked = nothing active.
func ComputeEffectiveAccessState(now time.Time, sub *subscriptions.UserSubscription, freeTierID uint) AccessState {
	if sub == nil || !sub.IsActive || !now.Before(sub.EndDate) {
		return AccessLocked
	}

	if sub.SubscriptionTypeID == freeTierID ||
		(sub.SubscriptionType != nil && subscriptions.IsFree(sub.SubscriptionType, freeTierID)) {
		return AccessLimited
	}

	switch sub.PaymentStatus {
	case subscriptions.PaymentCompleted:
		return AccessFull
	case subscriptions.PaymentPending:
		return AccessPending
	default:
		return AccessLocked
	}
}
