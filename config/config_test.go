package config

import (
	"strings"
	"testing"
	"time"

	"eduplatform-api/internal/domain/usage"
)

func setBase(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/edu")
	t.Setenv("DEPOSIT_SECRET", "op")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("JWT_ISSUER", "iss")
	t.Setenv("JWT_AUDIENCE", "aud")
}

func TestFromEnvDefaults(t *testing.T) {
	setBase(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != "8080" || cfg.DBDriver != "postgres" || !cfg.GateFailOpen {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.FreeSubscriptionTypeID != 1 || cfg.SweepInterval != 10*time.Minute || cfg.UsageQueueSize != 1024 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.MeteredPrefixes) != 3 || cfg.MeteredPrefixes["/api/deepseek"] != usage.ActionAIRequest {
		t.Fatalf("metered prefixes = %v", cfg.MeteredPrefixes)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	setBase(t)
	t.Setenv("GATE_FAIL_OPEN", "false")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("FREE_SUBSCRIPTION_TYPE_ID", "4")
	t.Setenv("METERED_PATH_PREFIXES", "/api/llm=ai_request, /api/chat")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.GateFailOpen || cfg.SweepInterval != 30*time.Second || cfg.FreeSubscriptionTypeID != 4 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.MeteredPrefixes) != 2 || cfg.MeteredPrefixes["/api/chat"] != usage.ActionAIRequest {
		t.Fatalf("metered prefixes = %v", cfg.MeteredPrefixes)
	}
}

func TestFromEnvMissingRequired(t *testing.T) {
	t.Setenv("DB_URL", "")
	t.Setenv("DEPOSIT_SECRET", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("OIDC_ISSUER_URL", "")

	_, err := FromEnv()
	if err == nil {
		t.Fatalf("expected an error")
	}
	for _, want := range []string{"DB_URL", "DEPOSIT_SECRET", "JWT_SECRET or OIDC_ISSUER_URL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestFromEnvInvalidValues(t *testing.T) {
	setBase(t)
	t.Setenv("GATE_FAIL_OPEN", "maybe")
	t.Setenv("USAGE_QUEUE_SIZE", "-3")
	t.Setenv("METERED_PATH_PREFIXES", "/api/x=VIDEO")

	_, err := FromEnv()
	if err == nil {
		t.Fatalf("expected an error")
	}
	for _, want := range []string{"GATE_FAIL_OPEN", "USAGE_QUEUE_SIZE", "unknown action kind"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestParseMeteredPrefixes(t *testing.T) {
	if _, err := ParseMeteredPrefixes("api/no-slash"); err == nil {
		t.Errorf("accepted prefix without leading slash")
	}
	if _, err := ParseMeteredPrefixes(" , "); err == nil {
		t.Errorf("accepted empty list")
	}
}
