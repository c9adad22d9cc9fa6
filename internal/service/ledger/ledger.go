// Package ledger credits and debits the per-user monetary balance.
package ledger

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"eduplatform-api/internal/apperr"
	"eduplatform-api/internal/domain/payments"
	"eduplatform-api/internal/domain/users"
	"eduplatform-api/internal/infra/storage"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Snapshot describes a balance before and after one ledger operation.
// AddedAmount is negative for debits.
type Snapshot struct {
	UserID          uint            `json:"userId"`
	PreviousBalance decimal.Decimal `json:"previousBalance"`
	AddedAmount     decimal.Decimal `json:"addedAmount"`
	NewBalance      decimal.Decimal `json:"newBalance"`
}

type Config struct {
	// OperatorSecret guards Deposit. A bcrypt hash is accepted as well as
	// the plain value.
	OperatorSecret string

	// AllowSignedDeposits lets Deposit take zero or negative amounts.
	// The resulting balance still may not go below zero.
	AllowSignedDeposits bool
}

type Ledger struct {
	db     *gorm.DB
	tx     storage.Transactor
	cfg    Config
	logger *zap.Logger
}

func New(db *gorm.DB, tx storage.Transactor, cfg Config, logger *zap.Logger) *Ledger {
	return &Ledger{db: db, tx: tx, cfg: cfg, logger: logger}
}

// Deposit adds amount to the user's balance. Operator-only.
func (l *Ledger) Deposit(ctx context.Context, userID uint, amount decimal.Decimal, secret string) (Snapshot, error) {
	if err := l.Authorize(secret); err != nil {
		l.logger.Warn("deposit refused", zap.Uint("user_id", userID), zap.Error(err))
		return Snapshot{}, err
	}
	if !l.cfg.AllowSignedDeposits && !amount.IsPositive() {
		return Snapshot{}, fmt.Errorf("%w: deposit must be greater than zero", apperr.ErrInvalidAmount)
	}

	var snap Snapshot
	err := l.tx.WithinTx(ctx, func(tx *gorm.DB) error {
		s, err := l.CreditTx(tx, userID, amount)
		snap = s
		return err
	})
	if err != nil {
		return Snapshot{}, apperr.Boundary(l.logger, "deposit", err, zap.Uint("user_id", userID))
	}

	l.logger.Info("balance deposited",
		zap.Uint("user_id", userID),
		zap.String("previous", snap.PreviousBalance.StringFixed(2)),
		zap.String("added", snap.AddedAmount.StringFixed(2)),
		zap.String("new", snap.NewBalance.StringFixed(2)),
	)
	return snap, nil
}

// CreditPayment credits a settled card payment to the balance, once per
// Stripe session. A session that was already credited leaves the balance
// alone and reports applied=false.
func (l *Ledger) CreditPayment(ctx context.Context, payment payments.Payment) (snap Snapshot, applied bool, err error) {
	if !payment.Amount.IsPositive() {
		return Snapshot{}, false, fmt.Errorf("%w: payment must be greater than zero", apperr.ErrInvalidAmount)
	}
	if payment.StripeSessionID == "" {
		return Snapshot{}, false, fmt.Errorf("%w: payment without session", apperr.ErrInvalidAmount)
	}
	payment.Amount = payment.Amount.Round(2)

	err = l.tx.WithinTx(ctx, func(tx *gorm.DB) error {
		applied = false
		// the user lock serializes redeliveries of the same session
		user, err := findUser(tx, payment.UserID, true)
		if err != nil {
			return err
		}

		var seen int64
		if err := tx.Model(&payments.Payment{}).
			Where("stripe_session_id = ?", payment.StripeSessionID).
			Count(&seen).Error; err != nil {
			return err
		}
		if seen > 0 {
			bal := user.CurrentBalance()
			snap = Snapshot{UserID: payment.UserID, PreviousBalance: bal, AddedAmount: decimal.Zero, NewBalance: bal}
			return nil
		}

		row := payment
		row.ID = 0
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		snap, err = l.CreditTx(tx, payment.UserID, payment.Amount)
		applied = err == nil
		return err
	})
	if err != nil {
		return Snapshot{}, false, apperr.Boundary(l.logger, "credit payment", err,
			zap.Uint("user_id", payment.UserID), zap.String("session_id", payment.StripeSessionID))
	}

	if applied {
		l.logger.Info("card payment credited",
			zap.Uint("user_id", payment.UserID),
			zap.String("session_id", payment.StripeSessionID),
			zap.String("added", snap.AddedAmount.StringFixed(2)),
			zap.String("new", snap.NewBalance.StringFixed(2)),
		)
	}
	return snap, applied, nil
}

// Debit removes amount from the balance in its own unit of work.
func (l *Ledger) Debit(ctx context.Context, userID uint, amount decimal.Decimal) (Snapshot, error) {
	var snap Snapshot
	err := l.tx.WithinTx(ctx, func(tx *gorm.DB) error {
		s, err := l.DebitTx(tx, userID, amount)
		snap = s
		return err
	})
	if err != nil {
		return Snapshot{}, apperr.Boundary(l.logger, "debit", err, zap.Uint("user_id", userID))
	}
	return snap, nil
}

// DebitTx removes amount from the balance inside the caller's transaction.
// ErrInsufficientBalance is returned, with nothing written, when the
// balance does not cover amount.
func (l *Ledger) DebitTx(tx *gorm.DB, userID uint, amount decimal.Decimal) (Snapshot, error) {
	if amount.IsNegative() {
		return Snapshot{}, fmt.Errorf("%w: debit must not be negative", apperr.ErrInvalidAmount)
	}
	return l.apply(tx, userID, amount.Neg(), apperr.ErrInsufficientBalance)
}

// CreditTx adds amount inside the caller's transaction.
func (l *Ledger) CreditTx(tx *gorm.DB, userID uint, amount decimal.Decimal) (Snapshot, error) {
	return l.apply(tx, userID, amount, apperr.ErrInvalidAmount)
}

func (l *Ledger) GetBalance(ctx context.Context, userID uint) (decimal.Decimal, error) {
	user, err := findUser(l.db.WithContext(ctx), userID, false)
	if err != nil {
		return decimal.Zero, apperr.Boundary(l.logger, "get balance", err, zap.Uint("user_id", userID))
	}
	return user.CurrentBalance(), nil
}

// GetBalanceInfo returns the current balance as an unchanged snapshot.
func (l *Ledger) GetBalanceInfo(ctx context.Context, userID uint) (Snapshot, error) {
	bal, err := l.GetBalance(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{UserID: userID, PreviousBalance: bal, AddedAmount: decimal.Zero, NewBalance: bal}, nil
}

// apply moves the balance by delta with the user row locked. A result below
// zero fails with negativeErr and leaves the row untouched.
func (l *Ledger) apply(tx *gorm.DB, userID uint, delta decimal.Decimal, negativeErr error) (Snapshot, error) {
	delta = delta.Round(2)

	user, err := findUser(tx, userID, true)
	if err != nil {
		return Snapshot{}, err
	}

	prev := user.CurrentBalance()
	next := prev.Add(delta)
	if next.IsNegative() {
		return Snapshot{}, fmt.Errorf("%w: balance %s, change %s", negativeErr, prev.StringFixed(2), delta.StringFixed(2))
	}

	if err := tx.Model(&users.User{}).
		Where("id = ?", userID).
		Update("balance", next).Error; err != nil {
		return Snapshot{}, err
	}

	return Snapshot{UserID: userID, PreviousBalance: prev, AddedAmount: delta, NewBalance: next}, nil
}

// Authorize checks an operator secret against the configured one.
func (l *Ledger) Authorize(secret string) error {
	configured := l.cfg.OperatorSecret
	if configured == "" {
		return fmt.Errorf("%w: operator secret not configured", apperr.ErrMisconfigured)
	}
	if secret == "" {
		return apperr.ErrUnauthorized
	}
	if isBcryptHash(configured) {
		if bcrypt.CompareHashAndPassword([]byte(configured), []byte(secret)) != nil {
			return apperr.ErrUnauthorized
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(configured), []byte(secret)) != 1 {
		return apperr.ErrUnauthorized
	}
	return nil
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

func findUser(db *gorm.DB, userID uint, forUpdate bool) (users.User, error) {
	q := db
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var user users.User
	if err := q.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return users.User{}, fmt.Errorf("%w: user %d", apperr.ErrNotFound, userID)
		}
		return users.User{}, err
	}
	return user, nil
}
