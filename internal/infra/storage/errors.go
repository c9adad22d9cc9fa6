package storage

import (
	"database/sql/driver"
	"errors"
	"strings"

	"eduplatform-api/internal/apperr"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// oneActiveIndex mirrors database.OneActiveIndex; storage can't import
// database without a cycle through the domain packages.
const oneActiveIndex = "idx_user_subscriptions_one_active"

// IsTransient classifies err as a failure that may succeed if the unit of
// work is run again: lost connections, serialization failures, deadlocks,
// a busy sqlite file, and a concurrent writer winning the single-active index.
// Logical conflicts (any other constraint) are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, apperr.ErrTransient) || errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"):
			return true
		case pgErr.Code == "40001", pgErr.Code == "40P01":
			return true
		case pgErr.Code == "23505":
			return pgErr.ConstraintName == oneActiveIndex
		}
		return false
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return true
		case sqlite3.ErrConstraint:
			return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique &&
				strings.Contains(liteErr.Error(), "user_subscriptions.user_id")
		}
	}
	return false
}
