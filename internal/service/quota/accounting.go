// Package quota decides whether a user may perform a metered action and
// keeps the append-only usage history that the decision counts.
package quota

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"eduplatform-api/internal/apperr"
	"eduplatform-api/internal/domain/subscriptions"
	"eduplatform-api/internal/domain/usage"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Entitlements yields the user's current subscription row, nil when none.
type Entitlements interface {
	Active(ctx context.Context, userID uint) (*subscriptions.UserSubscription, error)
}

type Config struct {
	FreeTierID uint
	Now        func() time.Time
}

type Accounting struct {
	db           *gorm.DB
	entitlements Entitlements
	freeTierID   uint
	now          func() time.Time
	policy       *bluemonday.Policy
	logger       *zap.Logger
}

// Usage is the consumption of one action kind in the current period.
type Usage struct {
	ActionKind  usage.ActionKind `json:"actionKind"`
	Used        int64            `json:"used"`
	Limit       *int             `json:"limit,omitempty"`
	Unlimited   bool             `json:"unlimited"`
	PeriodStart time.Time        `json:"periodStart"`
}

func New(db *gorm.DB, entitlements Entitlements, cfg Config, logger *zap.Logger) *Accounting {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Accounting{
		db:           db,
		entitlements: entitlements,
		freeTierID:   cfg.FreeTierID,
		now:          func() time.Time { return now().UTC() },
		policy:       bluemonday.StrictPolicy(),
		logger:       logger,
	}
}

// CanPerform reports whether the user is still inside the quota of kind
// for the current accounting period.
func (a *Accounting) CanPerform(ctx context.Context, userID uint, kind usage.ActionKind) (bool, error) {
	u, err := a.usageFor(ctx, userID, kind)
	if err != nil {
		return false, err
	}
	if u == nil {
		return false, nil
	}
	if u.Unlimited {
		return true, nil
	}
	return u.Used < int64(*u.Limit), nil
}

// Record appends one usage row. Free text is stripped of markup.
func (a *Accounting) Record(ctx context.Context, userID uint, kind usage.ActionKind, resourceTag, description string) error {
	rec := usage.Record{
		UserID:      userID,
		ActionKind:  kind,
		ResourceTag: a.clean(resourceTag, 255),
		Description: a.clean(description, 1000),
		CreatedAt:   a.now(),
	}
	if err := a.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return apperr.Boundary(a.logger, "record usage", err,
			zap.Uint("user_id", userID), zap.String("action_kind", string(kind)))
	}
	return nil
}

// Summary reports consumption for every known action kind.
func (a *Accounting) Summary(ctx context.Context, userID uint) ([]Usage, error) {
	out := make([]Usage, 0, len(usage.Kinds))
	for _, kind := range usage.Kinds {
		u, err := a.usageFor(ctx, userID, kind)
		if err != nil {
			return nil, err
		}
		if u == nil {
			zero := 0
			u = &Usage{ActionKind: kind, Limit: &zero, PeriodStart: monthStart(a.now())}
		}
		out = append(out, *u)
	}
	return out, nil
}

// usageFor returns nil when the user has no entitlement at all, which
// happens only when the free tier is missing from the catalog.
func (a *Accounting) usageFor(ctx context.Context, userID uint, kind usage.ActionKind) (*Usage, error) {
	now := a.now()
	periodStart := monthStart(now)

	sub, err := a.entitlements.Active(ctx, userID)
	if err != nil {
		return nil, err
	}

	var tier *subscriptions.SubscriptionType
	if sub != nil {
		tier = sub.SubscriptionType
		if sub.StartDate.After(periodStart) {
			periodStart = sub.StartDate
		}
	}
	if tier == nil {
		free, err := a.freeTier(ctx)
		if err != nil {
			return nil, err
		}
		if free == nil {
			a.logger.Warn("free subscription type missing from catalog", zap.Uint("free_tier_id", a.freeTierID))
			return nil, nil
		}
		tier = free
	}

	u := &Usage{ActionKind: kind, PeriodStart: periodStart}
	limit := limitFor(tier, kind)
	if limit == nil {
		u.Unlimited = true
		return u, nil
	}
	u.Limit = limit

	if err := a.db.WithContext(ctx).Model(&usage.Record{}).
		Where("user_id = ? AND action_kind = ? AND created_at >= ?", userID, kind, periodStart).
		Count(&u.Used).Error; err != nil {
		return nil, apperr.Boundary(a.logger, "count usage", err,
			zap.Uint("user_id", userID), zap.String("action_kind", string(kind)))
	}
	return u, nil
}

func (a *Accounting) freeTier(ctx context.Context) (*subscriptions.SubscriptionType, error) {
	var st subscriptions.SubscriptionType
	err := a.db.WithContext(ctx).First(&st, a.freeTierID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Boundary(a.logger, "load free tier", err)
	}
	return &st, nil
}

func (a *Accounting) clean(s string, max int) string {
	return truncate(strings.TrimSpace(a.policy.Sanitize(s)), max)
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence
// or an escaped entity such as "&amp;".
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	s = s[:cut]
	if amp := strings.LastIndexByte(s, '&'); amp >= 0 && len(s)-amp < 10 && !strings.Contains(s[amp:], ";") {
		s = s[:amp]
	}
	return s
}

// limitFor returns nil for unlimited.
func limitFor(t *subscriptions.SubscriptionType, kind usage.ActionKind) *int {
	switch kind {
	case usage.ActionAIRequest:
		return t.MonthlyAIQuota
	default:
		return nil
	}
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
