package users

import (
	"time"

	"eduplatform-api/internal/domain/access"
	"eduplatform-api/internal/service/subscription"
)

type MeResponse struct {
	User         UserDTO            `json:"user"`
	Balance      string             `json:"balance"`
	Access       access.AccessState `json:"access"`
	Subscription *subscription.View `json:"subscription"`
	// Token is what the credential claimed at issue time; it may be stale.
	Token TokenDTO `json:"token"`
}

type UserDTO struct {
	ID     uint `json:"id"`
	RoleID uint `json:"roleId"`
}

type TokenDTO struct {
	SubscriptionCode     string     `json:"subscriptionCode,omitempty"`
	SubscriptionEndDate  *time.Time `json:"subscriptionEndDate,omitempty"`
	SubscriptionIsActive bool       `json:"subscriptionIsActive"`
}
