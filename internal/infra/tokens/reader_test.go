package tokens

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	testSecret   = "test-secret"
	testIssuer   = "https://auth.eduplatform.test"
	testAudience = "eduplatform-api"
)

func newTestHMACReader(t *testing.T) *HMACReader {
	t.Helper()
	r, err := NewHMACReader(testSecret, testIssuer, testAudience, zap.NewNop())
	if err != nil {
		t.Fatalf("NewHMACReader: %v", err)
	}
	return r
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":                  testIssuer,
		"aud":                  testAudience,
		"exp":                  now.Add(10 * time.Minute).Unix(),
		"iat":                  now.Unix(),
		"id":                   "42",
		"roleId":               "2",
		"balance":              "5000.50",
		"subscriptionTypeId":   "3",
		"subscriptionCode":     "PREMIUM",
		"subscriptionName":     "Premium",
		"subscriptionEndDate":  "2030-01-02T03:04:05Z",
		"subscriptionIsActive": "True",
	}
}

func signHS(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestHMACReaderValidToken(t *testing.T) {
	r := newTestHMACReader(t)
	token := signHS(t, validClaims(), testSecret)

	id, ok := r.Read(context.Background(), "Bearer "+token)
	if !ok {
		t.Fatalf("expected identity")
	}
	if id.UserID != 42 || id.RoleID != 2 {
		t.Fatalf("unexpected ids: %+v", id)
	}
	if id.SubscriptionTypeID == nil || *id.SubscriptionTypeID != 3 {
		t.Fatalf("unexpected subscription type: %v", id.SubscriptionTypeID)
	}
	if id.SubscriptionCode != "PREMIUM" || id.SubscriptionName != "Premium" || !id.SubscriptionIsActive {
		t.Fatalf("unexpected subscription claims: %+v", id)
	}
	if id.Balance == nil || id.Balance.String() != "5000.5" {
		t.Fatalf("unexpected balance: %v", id.Balance)
	}
	want := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	if id.SubscriptionEndDate == nil || !id.SubscriptionEndDate.Equal(want) {
		t.Fatalf("unexpected end date: %v", id.SubscriptionEndDate)
	}
}

func TestHMACReaderNumericClaims(t *testing.T) {
	r := newTestHMACReader(t)
	claims := validClaims()
	claims["id"] = 7
	claims["subscriptionIsActive"] = false
	claims["subscriptionEndDate"] = time.Date(2031, 5, 1, 0, 0, 0, 0, time.UTC).Unix()

	id, ok := r.Read(context.Background(), signHS(t, claims, testSecret))
	if !ok || id.UserID != 7 || id.SubscriptionIsActive {
		t.Fatalf("unexpected identity: %+v ok=%v", id, ok)
	}
	if id.SubscriptionEndDate == nil || id.SubscriptionEndDate.Year() != 2031 {
		t.Fatalf("unexpected end date: %v", id.SubscriptionEndDate)
	}
}

func TestHMACReaderRejects(t *testing.T) {
	r := newTestHMACReader(t)

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Second).Unix()

	noExp := validClaims()
	delete(noExp, "exp")

	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "https://evil.test"

	wrongAudience := validClaims()
	wrongAudience["aud"] = "someone-else"

	noID := validClaims()
	delete(noID, "id")

	badID := validClaims()
	badID["id"] = "abc"

	fractionalID := validClaims()
	fractionalID["id"] = 1.9

	negativeID := validClaims()
	negativeID["id"] = -3

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	cases := map[string]string{
		"empty":          "",
		"bearer only":    "Bearer ",
		"garbage":        "not-a-jwt",
		"expired":        signHS(t, expired, testSecret),
		"no expiry":      signHS(t, noExp, testSecret),
		"wrong issuer":   signHS(t, wrongIssuer, testSecret),
		"wrong audience": signHS(t, wrongAudience, testSecret),
		"wrong secret":   signHS(t, validClaims(), "other-secret"),
		"missing id":     signHS(t, noID, testSecret),
		"non numeric id": signHS(t, badID, testSecret),
		"fractional id":  signHS(t, fractionalID, testSecret),
		"negative id":    signHS(t, negativeID, testSecret),
		"alg none":       unsigned,
	}
	for name, credential := range cases {
		t.Run(name, func(t *testing.T) {
			if id, ok := r.Read(context.Background(), credential); ok || id != nil {
				t.Fatalf("expected rejection, got %+v", id)
			}
		})
	}
}

func TestNewHMACReaderRequiresConfig(t *testing.T) {
	if _, err := NewHMACReader("", testIssuer, testAudience, zap.NewNop()); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := NewHMACReader(testSecret, "", testAudience, zap.NewNop()); err == nil {
		t.Fatalf("expected error for empty issuer")
	}
}

func TestOIDCReader(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	r := NewOIDCReaderWithKeys(testIssuer, testAudience, zap.NewNop(), key.Public())

	sign := func(t *testing.T, k *rsa.PrivateKey, claims jwt.MapClaims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(k)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	t.Run("valid", func(t *testing.T) {
		id, ok := r.Read(context.Background(), sign(t, key, validClaims()))
		if !ok || id.UserID != 42 || id.SubscriptionCode != "PREMIUM" {
			t.Fatalf("unexpected identity: %+v ok=%v", id, ok)
		}
	})

	t.Run("expired", func(t *testing.T) {
		claims := validClaims()
		claims["exp"] = time.Now().Add(-time.Second).Unix()
		if _, ok := r.Read(context.Background(), sign(t, key, claims)); ok {
			t.Fatalf("expected expired token to be rejected")
		}
	})

	t.Run("foreign key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		if _, ok := r.Read(context.Background(), sign(t, other, validClaims())); ok {
			t.Fatalf("expected foreign signature to be rejected")
		}
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := validClaims()
		claims["aud"] = "another-client"
		if _, ok := r.Read(context.Background(), sign(t, key, claims)); ok {
			t.Fatalf("expected wrong audience to be rejected")
		}
	})
}

func TestStripBearer(t *testing.T) {
	if got := StripBearer("Bearer abc"); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if got := StripBearer("bearer   abc "); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if got := StripBearer("abc"); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
