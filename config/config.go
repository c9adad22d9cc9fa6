package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"eduplatform-api/internal/domain/usage"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	AppEnv   string
	LogLevel string

	DBDriver string
	DBURL    string

	JWTSecret     string
	JWTIssuer     string
	JWTAudience   string
	OIDCIssuerURL string
	OIDCClientID  string

	DepositSecret          string
	AllowSignedDeposits    bool
	FreeSubscriptionTypeID uint

	GateFailOpen    bool
	MeteredPrefixes map[string]usage.ActionKind
	UsageQueueSize  int
	SweepInterval   time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeCurrency      string
	AppURL              string
	AIUpstreamURL       string
	CORSOrigin          string
}

var defaultMeteredPrefixes = "/api/gemini-25,/api/deepseek,/api/ai"

// LoadEnv reads .env when present and then the process environment.
// The returned bool reports whether a .env file was found.
func LoadEnv() (Config, bool, error) {
	found := godotenv.Load() == nil
	cfg, err := FromEnv()
	return cfg, found, err
}

// FromEnv builds the configuration from the environment alone.
func FromEnv() (Config, error) {
	var errs []error
	cfg := Config{
		Port:     getEnv("PORT", "8080"),
		AppEnv:   getEnv("APP_ENV", "production"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DBDriver: getEnv("DB_DRIVER", "postgres"),
		DBURL:    mustEnv("DB_URL", &errs),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTIssuer:     getEnv("JWT_ISSUER", ""),
		JWTAudience:   getEnv("JWT_AUDIENCE", ""),
		OIDCIssuerURL: getEnv("OIDC_ISSUER_URL", ""),
		OIDCClientID:  getEnv("OIDC_CLIENT_ID", ""),

		// fails closed: without it nobody can deposit
		DepositSecret:       mustEnv("DEPOSIT_SECRET", &errs),
		AllowSignedDeposits: getBool("LEDGER_ALLOW_SIGNED_DEPOSITS", false, &errs),

		GateFailOpen:   getBool("GATE_FAIL_OPEN", true, &errs),
		UsageQueueSize: getInt("USAGE_QUEUE_SIZE", 1024, &errs),
		SweepInterval:  getDuration("SWEEP_INTERVAL", 10*time.Minute, &errs),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeCurrency:      getEnv("STRIPE_CURRENCY", "usd"),
		AppURL:              getEnv("APP_URL", ""),
		AIUpstreamURL:       getEnv("AI_UPSTREAM_URL", ""),
		CORSOrigin:          getEnv("CORS_ORIGIN", ""),
	}
	cfg.FreeSubscriptionTypeID = uint(getInt("FREE_SUBSCRIPTION_TYPE_ID", 1, &errs))

	prefixes, err := ParseMeteredPrefixes(getEnv("METERED_PATH_PREFIXES", defaultMeteredPrefixes))
	if err != nil {
		errs = append(errs, err)
	}
	cfg.MeteredPrefixes = prefixes

	switch {
	case cfg.JWTSecret == "" && cfg.OIDCIssuerURL == "":
		errs = append(errs, errors.New("one of JWT_SECRET or OIDC_ISSUER_URL is required"))
	case cfg.JWTSecret != "" && (cfg.JWTIssuer == "" || cfg.JWTAudience == ""):
		errs = append(errs, errors.New("JWT_ISSUER and JWT_AUDIENCE are required with JWT_SECRET"))
	}
	if cfg.OIDCIssuerURL != "" && cfg.OIDCClientID == "" {
		errs = append(errs, errors.New("OIDC_CLIENT_ID is required with OIDC_ISSUER_URL"))
	}

	return cfg, errors.Join(errs...)
}

// ParseMeteredPrefixes reads "prefix[=KIND],..." where KIND defaults to
// AI_REQUEST.
func ParseMeteredPrefixes(raw string) (map[string]usage.ActionKind, error) {
	out := make(map[string]usage.ActionKind)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		prefix, kindName, hasKind := strings.Cut(item, "=")
		prefix = strings.TrimSpace(prefix)
		if !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("METERED_PATH_PREFIXES: %q must start with /", prefix)
		}
		kind := usage.ActionAIRequest
		if hasKind {
			k, err := usage.ParseKind(kindName)
			if err != nil {
				return nil, fmt.Errorf("METERED_PATH_PREFIXES: %w", err)
			}
			kind = k
		}
		out[prefix] = kind
	}
	if len(out) == 0 {
		return nil, errors.New("METERED_PATH_PREFIXES: no prefixes")
	}
	return out, nil
}

func mustEnv(key string, errs *[]error) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		*errs = append(*errs, fmt.Errorf("missing required environment variable: %s", key))
	}
	return v
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool, errs *[]error) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func getInt(key string, fallback int, errs *[]error) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: expected a positive integer, got %q", key, v))
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: expected a positive duration, got %q", key, v))
		return fallback
	}
	return d
}
