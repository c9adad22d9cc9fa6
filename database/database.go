package database

import (
	"fmt"
	"strings"
	"time"

	"eduplatform-api/internal/domain/payments"
	"eduplatform-api/internal/domain/subscriptions"
	"eduplatform-api/internal/domain/usage"
	"eduplatform-api/internal/domain/users"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OneActiveIndex is the partial unique index that backs the
// one-active-subscription-per-user rule at the storage layer.
const OneActiveIndex = "idx_user_subscriptions_one_active"

// Open connects to the configured database. driver is "postgres" (default)
// or "sqlite"; for sqlite dsn is a file path or a "file:...?mode=memory" URI.
// gorm's own log lines go to logger.
func Open(driver, dsn string, logger *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database: empty DSN")
	}

	cfg := &gorm.Config{
		Logger:  newGormLogger(logger),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
		if err == nil {
			// sqlite has one writer; a single connection keeps
			// transactions serialized instead of failing with SQLITE_BUSY
			if sqlDB, e := db.DB(); e == nil {
				sqlDB.SetMaxOpenConns(1)
			}
		}
	default:
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}
	return db, nil
}

// newGormLogger writes warnings and slow queries through zap. A missing row
// is an ordinary outcome for the services and is not logged.
func newGormLogger(logger *zap.Logger) gormlogger.Interface {
	if logger == nil {
		logger = zap.NewNop()
	}
	std, err := zap.NewStdLogAt(logger.Named("gorm"), zap.WarnLevel)
	if err != nil {
		std = zap.NewStdLog(logger.Named("gorm"))
	}
	return gormlogger.New(
		std,
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// OpenInMemory returns a private in-memory sqlite database, migrated and
// ready. Used for local runs and tests.
func OpenInMemory(name string) (*gorm.DB, error) {
	name = strings.Map(func(r rune) rune {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			return r
		}
		return '_'
	}, name)
	db, err := Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name), zap.NewNop())
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates the billing tables and the single-active index.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&users.User{},
		&subscriptions.SubscriptionType{},
		&subscriptions.UserSubscription{},
		&usage.Record{},
		&payments.Payment{},
	); err != nil {
		return fmt.Errorf("database: automigrate: %w", err)
	}

	// Same statement works on postgres and sqlite (both support partial indexes).
	stmt := "CREATE UNIQUE INDEX IF NOT EXISTS " + OneActiveIndex +
		" ON user_subscriptions (user_id) WHERE is_active"
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("database: create %s: %w", OneActiveIndex, err)
	}
	return nil
}

// SeedSubscriptionTypes inserts the default catalog when it is empty.
// The catalog is otherwise managed out of band.
func SeedSubscriptionTypes(db *gorm.DB, logger *zap.Logger) error {
	var count int64
	if err := db.Model(&subscriptions.SubscriptionType{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	freeQuota := 20
	basicQuota := 300
	basicPrice := decimal.NewFromInt(10000)
	premiumPrice := decimal.NewFromInt(25000)

	catalog := []subscriptions.SubscriptionType{
		{ID: 1, Code: "FREE", Name: "Free", DurationPolicy: subscriptions.DurationFreeTier, MonthlyAIQuota: &freeQuota},
		{ID: 2, Code: "BASIC", Name: "Basic", Price: &basicPrice, DurationPolicy: subscriptions.DurationMonthly, MonthlyAIQuota: &basicQuota},
		{ID: 3, Code: "PREMIUM", Name: "Premium", Price: &premiumPrice, DurationPolicy: subscriptions.DurationMonthly},
	}
	if err := db.Create(&catalog).Error; err != nil {
		return fmt.Errorf("database: seed subscription types: %w", err)
	}
	logger.Info("seeded subscription catalog", zap.Int("types", len(catalog)))
	return nil
}
