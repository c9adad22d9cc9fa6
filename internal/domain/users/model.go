package users

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        uint `gorm:"primaryKey"`
	Name      string
	Email     string `gorm:"not null;uniqueIndex:idx_users_email"`
	RoleID    uint   `gorm:"column:role_id;not null;default:0"`
	IsPremium bool   `gorm:"column:is_premium;not null;default:false"`

	// nil means the user never had money on the account; read it as zero
	Balance *decimal.Decimal `gorm:"column:balance;type:numeric(18,2)"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CurrentBalance returns the balance with a null column read as zero.
func (u User) CurrentBalance() decimal.Decimal {
	if u.Balance == nil {
		return decimal.Zero
	}
	return *u.Balance
}
