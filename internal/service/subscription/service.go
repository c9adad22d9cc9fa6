// Package subscription is the subscription state machine: purchase with
// supersession, cancellation, expiry and payment confirmation.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eduplatform-api/internal/apperr"
	"eduplatform-api/internal/domain/subscriptions"
	"eduplatform-api/internal/domain/users"
	"eduplatform-api/internal/infra/storage"
	"eduplatform-api/internal/metrics"
	"eduplatform-api/internal/service/ledger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Debiter charges a user inside an open transaction.
type Debiter interface {
	DebitTx(tx *gorm.DB, userID uint, amount decimal.Decimal) (ledger.Snapshot, error)
}

type Config struct {
	FreeTierID uint
	Now        func() time.Time
}

type Service struct {
	db         *gorm.DB
	tx         storage.Transactor
	ledger     Debiter
	freeTierID uint
	now        func() time.Time
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

func New(db *gorm.DB, tx storage.Transactor, debiter Debiter, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Service{
		db:         db,
		tx:         tx,
		ledger:     debiter,
		freeTierID: cfg.FreeTierID,
		now:        func() time.Time { return now().UTC() },
		logger:     logger,
		metrics:    m,
	}
}

// Subscribe makes subscriptionTypeID the user's only active subscription.
// Paid tiers are charged from the balance in the same unit of work; a
// balance that does not cover the price yields StatusInsufficientBalance
// and changes nothing.
func (s *Service) Subscribe(ctx context.Context, userID, subscriptionTypeID uint) (Result, error) {
	var result Result
	err := s.tx.WithinTx(ctx, func(tx *gorm.DB) error {
		now := s.now()
		result = Result{}

		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}

		var st subscriptions.SubscriptionType
		if err := tx.First(&st, subscriptionTypeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: subscription type %d", apperr.ErrNotFound, subscriptionTypeID)
			}
			return err
		}

		free := subscriptions.IsFree(&st, s.freeTierID)
		price := decimal.Zero
		if !free {
			price = *st.Price
		}

		if balance := user.CurrentBalance(); !free && balance.LessThan(price) {
			result = Result{
				Status:         StatusInsufficientBalance,
				Message:        fmt.Sprintf("balance %s does not cover %s", balance.StringFixed(2), price.StringFixed(2)),
				RequiredAmount: &price,
				CurrentBalance: &balance,
			}
			return nil
		}

		superseded, err := deactivateActive(tx, userID, subscriptions.StatusSuperseded, now)
		if err != nil {
			return err
		}

		row := subscriptions.UserSubscription{
			UserID:             userID,
			SubscriptionTypeID: st.ID,
			Amount:             price,
			StartDate:          now,
			EndDate:            subscriptions.EndDateFor(&st, s.freeTierID, now),
			PaymentStatus:      subscriptions.InitialPaymentStatus(&st, s.freeTierID),
			IsActive:           true,
			Status:             subscriptions.StatusActive,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		if !free {
			if _, err := s.ledger.DebitTx(tx, userID, price); err != nil {
				return err
			}
		}

		if err := tx.Model(&users.User{}).Where("id = ?", userID).Update("is_premium", !free).Error; err != nil {
			return err
		}

		row.SubscriptionType = &st
		result = Result{
			Status:       StatusSuccess,
			Message:      fmt.Sprintf("subscribed to %s", st.Name),
			Subscription: buildView(now, row, s.freeTierID),
		}
		s.logger.Info("subscription created",
			zap.Uint("user_id", userID),
			zap.String("code", st.Code),
			zap.Uint("subscription_id", row.ID),
			zap.Int64("superseded", superseded),
			zap.String("charged", price.StringFixed(2)),
		)
		return nil
	})
	if err != nil {
		return Result{}, apperr.Boundary(s.logger, "subscribe", err,
			zap.Uint("user_id", userID), zap.Uint("subscription_type_id", subscriptionTypeID))
	}

	s.metrics.SubscribeOutcomes.WithLabelValues(string(result.Status)).Inc()
	return result, nil
}

// GetCurrentSubscription returns the active, unexpired subscription or a
// StatusNoActiveSubscription result.
func (s *Service) GetCurrentSubscription(ctx context.Context, userID uint) (Result, error) {
	now := s.now()
	row, err := s.active(s.db.WithContext(ctx), userID, now)
	if err != nil {
		return Result{}, apperr.Boundary(s.logger, "get current subscription", err, zap.Uint("user_id", userID))
	}
	if row == nil {
		return Result{Status: StatusNoActiveSubscription, Message: "no active subscription"}, nil
	}
	return Result{Status: StatusSuccess, Subscription: buildView(now, *row, s.freeTierID)}, nil
}

// Active returns the user's entitlement row, or nil.
func (s *Service) Active(ctx context.Context, userID uint) (*subscriptions.UserSubscription, error) {
	row, err := s.active(s.db.WithContext(ctx), userID, s.now())
	if err != nil {
		return nil, apperr.Boundary(s.logger, "load active subscription", err, zap.Uint("user_id", userID))
	}
	return row, nil
}

// Cancel deactivates every active subscription of the user. It reports
// false when there was nothing to cancel.
func (s *Service) Cancel(ctx context.Context, userID uint) (bool, error) {
	var cancelled int64
	err := s.tx.WithinTx(ctx, func(tx *gorm.DB) error {
		n, err := deactivateActive(tx, userID, subscriptions.StatusCancelled, s.now())
		if err != nil {
			return err
		}
		cancelled = n
		if n == 0 {
			return nil
		}
		return tx.Model(&users.User{}).Where("id = ?", userID).Update("is_premium", false).Error
	})
	if err != nil {
		return false, apperr.Boundary(s.logger, "cancel subscription", err, zap.Uint("user_id", userID))
	}

	if cancelled > 0 {
		s.logger.Info("subscription cancelled", zap.Uint("user_id", userID), zap.Int64("rows", cancelled))
	}
	return cancelled > 0, nil
}

// SweepExpired deactivates active rows whose end date has passed and
// returns how many it changed. Running it again changes nothing.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	var changed int64
	err := s.tx.WithinTx(ctx, func(tx *gorm.DB) error {
		now := s.now()
		changed = 0

		var userIDs []uint
		if err := tx.Model(&subscriptions.UserSubscription{}).
			Where("is_active = ? AND end_date < ?", true, now).
			Distinct().
			Pluck("user_id", &userIDs).Error; err != nil {
			return err
		}
		if len(userIDs) == 0 {
			return nil
		}

		res := tx.Model(&subscriptions.UserSubscription{}).
			Where("is_active = ? AND end_date < ?", true, now).
			Updates(map[string]interface{}{
				"is_active":      false,
				"status":         subscriptions.StatusExpired,
				"deactivated_at": now,
				"updated_at":     now,
			})
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected

		return tx.Model(&users.User{}).Where("id IN ?", userIDs).Update("is_premium", false).Error
	})
	if err != nil {
		return 0, apperr.Boundary(s.logger, "sweep expired subscriptions", err)
	}

	if changed > 0 {
		s.metrics.ExpiredSwept.Add(float64(changed))
		s.logger.Info("expired subscriptions deactivated", zap.Int64("count", changed))
	}
	return changed, nil
}

// GetHistory lists every subscription row of the user, newest first.
func (s *Service) GetHistory(ctx context.Context, userID uint) ([]View, error) {
	var rows []subscriptions.UserSubscription
	if err := s.db.WithContext(ctx).
		Preload("SubscriptionType").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, apperr.Boundary(s.logger, "subscription history", err, zap.Uint("user_id", userID))
	}

	now := s.now()
	history := make([]View, 0, len(rows))
	for _, row := range rows {
		history = append(history, *buildView(now, row, s.freeTierID))
	}
	return history, nil
}

// Get returns one of the user's subscription rows.
func (s *Service) Get(ctx context.Context, userID, subscriptionID uint) (View, error) {
	var row subscriptions.UserSubscription
	err := s.db.WithContext(ctx).
		Preload("SubscriptionType").
		Where("id = ? AND user_id = ?", subscriptionID, userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return View{}, fmt.Errorf("%w: subscription %d", apperr.ErrNotFound, subscriptionID)
	}
	if err != nil {
		return View{}, apperr.Boundary(s.logger, "get subscription", err, zap.Uint("subscription_id", subscriptionID))
	}
	return *buildView(s.now(), row, s.freeTierID), nil
}

// ConfirmPayment marks a Pending row as settled after an operator has
// reconciled its balance charge. The row's active flag is left alone, so a superseded or
// expired row is never revived.
func (s *Service) ConfirmPayment(ctx context.Context, subscriptionID uint) (View, error) {
	var view View
	err := s.tx.WithinTx(ctx, func(tx *gorm.DB) error {
		var row subscriptions.UserSubscription
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("SubscriptionType").
			First(&row, subscriptionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: subscription %d", apperr.ErrNotFound, subscriptionID)
			}
			return err
		}

		if row.PaymentStatus == subscriptions.PaymentPending {
			now := s.now()
			if err := tx.Model(&row).Updates(map[string]interface{}{
				"payment_status": subscriptions.PaymentCompleted,
				"updated_at":     now,
			}).Error; err != nil {
				return err
			}
			row.PaymentStatus = subscriptions.PaymentCompleted
			row.UpdatedAt = now
			s.logger.Info("subscription payment confirmed",
				zap.Uint("subscription_id", row.ID), zap.Uint("user_id", row.UserID))
		}

		view = *buildView(s.now(), row, s.freeTierID)
		return nil
	})
	if err != nil {
		return View{}, apperr.Boundary(s.logger, "confirm payment", err, zap.Uint("subscription_id", subscriptionID))
	}
	return view, nil
}

// ListTypes returns the subscription catalog in id order.
func (s *Service) ListTypes(ctx context.Context) ([]subscriptions.SubscriptionType, error) {
	var types []subscriptions.SubscriptionType
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&types).Error; err != nil {
		return nil, apperr.Boundary(s.logger, "list subscription types", err)
	}
	return types, nil
}

func (s *Service) active(db *gorm.DB, userID uint, now time.Time) (*subscriptions.UserSubscription, error) {
	var row subscriptions.UserSubscription
	err := db.Preload("SubscriptionType").
		Where("user_id = ? AND is_active = ? AND end_date > ?", userID, true, now).
		Order("start_date DESC, id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func deactivateActive(tx *gorm.DB, userID uint, reason subscriptions.Status, now time.Time) (int64, error) {
	res := tx.Model(&subscriptions.UserSubscription{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Updates(map[string]interface{}{
			"is_active":      false,
			"status":         reason,
			"deactivated_at": now,
			"updated_at":     now,
		})
	return res.RowsAffected, res.Error
}

// lockUser takes the per-user write lock that serializes purchases.
func lockUser(tx *gorm.DB, userID uint) (users.User, error) {
	var user users.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return users.User{}, fmt.Errorf("%w: user %d", apperr.ErrNotFound, userID)
		}
		return users.User{}, err
	}
	return user, nil
}
