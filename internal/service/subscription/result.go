package subscription

import (
	"math"
	"time"

	"eduplatform-api/internal/domain/access"
	"eduplatform-api/internal/domain/subscriptions"

	"github.com/shopspring/decimal"
)

type ResultStatus string

const (
	StatusSuccess              ResultStatus = "SUCCESS"
	StatusInsufficientBalance  ResultStatus = "INSUFFICIENT_BALANCE"
	StatusNoActiveSubscription ResultStatus = "NO_ACTIVE_SUBSCRIPTION"
)

// Result is what Subscribe and GetCurrentSubscription hand back. Business
// outcomes such as an insufficient balance are statuses, not errors.
type Result struct {
	Status         ResultStatus     `json:"status"`
	Message        string           `json:"message"`
	Subscription   *View            `json:"subscription,omitempty"`
	RequiredAmount *decimal.Decimal `json:"requiredAmount,omitempty"`
	CurrentBalance *decimal.Decimal `json:"currentBalance,omitempty"`
}

// View is the entitlement snapshot of one UserSubscription row.
type View struct {
	ID                 uint                        `json:"id"`
	UserID             uint                        `json:"userId"`
	SubscriptionTypeID uint                        `json:"subscriptionTypeId"`
	SubscriptionCode   string                      `json:"subscriptionCode,omitempty"`
	SubscriptionName   string                      `json:"subscriptionName,omitempty"`
	Amount             decimal.Decimal             `json:"amount"`
	StartDate          time.Time                   `json:"startDate"`
	EndDate            time.Time                   `json:"endDate"`
	PaymentStatus      subscriptions.PaymentStatus `json:"paymentStatus"`
	IsActive           bool                        `json:"isActive"`
	Status             subscriptions.Status        `json:"status"`
	Access             access.AccessState          `json:"access"`
	RemainingDays      int                         `json:"remainingDays"`
	CreatedAt          time.Time                   `json:"createdAt"`
	UpdatedAt          time.Time                   `json:"updatedAt"`
}

func buildView(now time.Time, row subscriptions.UserSubscription, freeTierID uint) *View {
	v := &View{
		ID:                 row.ID,
		UserID:             row.UserID,
		SubscriptionTypeID: row.SubscriptionTypeID,
		Amount:             row.Amount,
		StartDate:          row.StartDate,
		EndDate:            row.EndDate,
		PaymentStatus:      row.PaymentStatus,
		IsActive:           row.IsActive,
		Status:             row.Status,
		Access:             access.ComputeEffectiveAccessState(now, &row, freeTierID),
		RemainingDays:      remainingDays(now, row),
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
	if row.SubscriptionType != nil {
		v.SubscriptionCode = row.SubscriptionType.Code
		v.SubscriptionName = row.SubscriptionType.Name
	}
	return v
}

func remainingDays(now time.Time, row subscriptions.UserSubscription) int {
	if !row.IsActive || !now.Before(row.EndDate) {
		return 0
	}
	return int(math.Ceil(row.EndDate.Sub(now).Hours() / 24))
}
