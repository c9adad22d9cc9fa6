// Package tokens turns bearer credentials into the caller identity used by
// the billing core. Every failure collapses to "no identity".
package tokens

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Identity is the structured view of a verified credential.
type Identity struct {
	UserID               uint
	RoleID               uint
	Balance              *decimal.Decimal
	SubscriptionTypeID   *uint
	SubscriptionCode     string
	SubscriptionName     string
	SubscriptionEndDate  *time.Time
	SubscriptionIsActive bool
}

// Reader validates a credential and extracts its identity. It returns
// (nil, false) when the credential is missing, malformed, expired or
// signed by someone else. Implementations are safe for concurrent use.
type Reader interface {
	Read(ctx context.Context, credential string) (*Identity, bool)
}

// StripBearer accepts either a raw token or an Authorization header value.
func StripBearer(credential string) string {
	credential = strings.TrimSpace(credential)
	if len(credential) > 7 && strings.EqualFold(credential[:7], "bearer ") {
		return strings.TrimSpace(credential[7:])
	}
	return credential
}

func identityFromClaims(claims map[string]any) (*Identity, bool) {
	userID, ok := readUint(claims, "id")
	if !ok || userID == 0 {
		return nil, false
	}

	id := &Identity{
		UserID:               userID,
		SubscriptionCode:     readString(claims, "subscriptionCode"),
		SubscriptionName:     readString(claims, "subscriptionName"),
		SubscriptionIsActive: readBool(claims, "subscriptionIsActive"),
	}
	if roleID, ok := readUint(claims, "roleId"); ok {
		id.RoleID = roleID
	}
	if typeID, ok := readUint(claims, "subscriptionTypeId"); ok {
		id.SubscriptionTypeID = &typeID
	}
	if bal, ok := readDecimal(claims, "balance"); ok {
		id.Balance = &bal
	}
	if end, ok := readTime(claims, "subscriptionEndDate"); ok {
		id.SubscriptionEndDate = &end
	}
	return id, true
}

func readString(claims map[string]any, key string) string {
	switch v := claims[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func readUint(claims map[string]any, key string) (uint, bool) {
	switch v := claims[key].(type) {
	case float64:
		// ids are whole numbers; 1.9 is not user 1
		if v < 0 || v != math.Trunc(v) || v > 1<<53 {
			return 0, false
		}
		return uint(v), true
	case json.Number:
		n, err := strconv.ParseUint(v.String(), 10, 64)
		return uint(n), err == nil
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		return uint(n), err == nil
	}
	return 0, false
}

func readBool(claims map[string]any, key string) bool {
	switch v := claims[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	}
	return false
}

func readDecimal(claims map[string]any, key string) (decimal.Decimal, bool) {
	switch v := claims[key].(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		if strings.TrimSpace(v) == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		return d, err == nil
	}
	return decimal.Zero, false
}

func readTime(claims map[string]any, key string) (time.Time, bool) {
	switch v := claims[key].(type) {
	case float64:
		return time.Unix(int64(v), 0).UTC(), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return time.Unix(i, 0).UTC(), true
		}
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// Chain tries each reader in order and returns the first identity found.
type Chain []Reader

func (c Chain) Read(ctx context.Context, credential string) (*Identity, bool) {
	for _, r := range c {
		if id, ok := r.Read(ctx, credential); ok {
			return id, true
		}
	}
	return nil, false
}
