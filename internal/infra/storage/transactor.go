// Package storage runs units of work against the database and retries
// them when the failure is transient.
package storage

import (
	"context"
	"fmt"
	"time"

	"eduplatform-api/internal/apperr"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Transactor executes fn inside one atomic unit of work. Every mutation
// made through tx commits or rolls back together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type GormTransactor struct {
	db       *gorm.DB
	logger   *zap.Logger
	maxTries uint
	initial  time.Duration
	maxDelay time.Duration
}

type Option func(*GormTransactor)

// WithMaxTries bounds the number of attempts, the first one included.
func WithMaxTries(n uint) Option {
	return func(t *GormTransactor) {
		if n > 0 {
			t.maxTries = n
		}
	}
}

// WithBackoff sets the first retry delay and the delay cap.
func WithBackoff(initial, max time.Duration) Option {
	return func(t *GormTransactor) {
		t.initial = initial
		t.maxDelay = max
	}
}

func NewTransactor(db *gorm.DB, logger *zap.Logger, opts ...Option) *GormTransactor {
	t := &GormTransactor{
		db:       db,
		logger:   logger,
		maxTries: 4,
		initial:  50 * time.Millisecond,
		maxDelay: time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WithinTx retries the whole transaction on transient storage failures.
// Any other error is returned as is after the first attempt.
func (t *GormTransactor) WithinTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		err := t.db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return struct{}{}, nil
		}
		if !IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		t.logger.Warn("transient storage failure, retrying unit of work",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return struct{}{}, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.initial
	b.MaxInterval = t.maxDelay

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(t.maxTries),
	)
	if err != nil && IsTransient(err) && !apperr.IsRetryable(err) {
		return fmt.Errorf("%w: %w", apperr.ErrTransient, err)
	}
	return err
}
