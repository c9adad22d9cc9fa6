package subscriptions

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "Pending"
	PaymentCompleted PaymentStatus = "Completed"
)

// Status records why a row is (or stopped being) the user's entitlement.
// Only StatusActive rows may have IsActive set; the others are terminal.
type Status string

const (
	StatusActive     Status = "active"
	StatusSuperseded Status = "superseded"
	StatusExpired    Status = "expired"
	StatusCancelled  Status = "cancelled"
)

type DurationPolicy string

const (
	DurationFreeTier DurationPolicy = "free_10y"
	DurationMonthly  DurationPolicy = "monthly"
)

type SubscriptionType struct {
	ID             uint   `gorm:"primaryKey"`
	Code           string `gorm:"not null;uniqueIndex:idx_subscription_types_code"`
	Name           string
	Price          *decimal.Decimal `gorm:"type:numeric(18,2)"`
	DurationPolicy DurationPolicy   `gorm:"column:duration_policy;type:varchar(20);not null;default:'monthly'"`

	// nil = unlimited metered requests per accounting period
	MonthlyAIQuota *int `gorm:"column:monthly_ai_quota"`
}

type UserSubscription struct {
	ID                 uint `gorm:"primaryKey"`
	UserID             uint `gorm:"not null;index:idx_user_subscriptions_user"`
	SubscriptionTypeID uint `gorm:"not null"`
	SubscriptionType   *SubscriptionType

	Amount        decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	StartDate     time.Time
	EndDate       time.Time     `gorm:"index:idx_user_subscriptions_end_date"`
	PaymentStatus PaymentStatus `gorm:"column:payment_status;type:varchar(20);not null"`
	IsActive      bool          `gorm:"column:is_active;not null;default:false"`
	Status        Status        `gorm:"column:status;type:varchar(20);not null;default:'active'"`
	DeactivatedAt *time.Time    `gorm:"column:deactivated_at"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
