package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is a settled card payment that was credited to a user's balance.
// One row per Stripe checkout session.
type Payment struct {
	ID              uint            `gorm:"primaryKey"`
	UserID          uint            `gorm:"not null;index"`
	StripeSessionID string          `gorm:"not null;uniqueIndex"`
	Amount          decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Currency        string
	CreatedAt       time.Time
}
