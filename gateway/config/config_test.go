package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "trancheld.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsSecureByDefault(t *testing.T) {
	t.Setenv(AuthSecretEnv, "from-env")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Auth.Enabled {
		t.Fatalf("expected auth.enabled to default to true")
	}
	if !cfg.Auth.enabledSet {
		t.Fatalf("expected auth.enabled default to mark enabledSet true")
	}
	if cfg.Auth.AllowAnonymous {
		t.Fatalf("expected auth.allowAnonymous to default to false")
	}
	if cfg.Auth.HMACSecret != "from-env" {
		t.Fatalf("expected secret from %s, got %q", AuthSecretEnv, cfg.Auth.HMACSecret)
	}
	if cfg.Ledger.AccrualInterval != 5*time.Second || cfg.Ledger.Deployment != "tranche.toml" {
		t.Fatalf("unexpected ledger defaults: %+v", cfg.Ledger)
	}
	if !cfg.History.Enabled || cfg.History.Driver != "sqlite" {
		t.Fatalf("unexpected history defaults: %+v", cfg.History)
	}
}

func TestLoadRequiresSecretWhenAuthEnabled(t *testing.T) {
	t.Setenv(AuthSecretEnv, "")
	path := writeConfig(t, "auth:\n  enabled: true\n")
	if _, err := Load(path); !errors.Is(err, ErrAuthSecretMissing) {
		t.Fatalf("expected ErrAuthSecretMissing, got %v", err)
	}
}

func TestLoadDefaultsAllowAnonymousDisabledWhenAuthEnabled(t *testing.T) {
	path := writeConfig(t, "auth:\n  enabled: true\n  hmacSecret: s3cret\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Auth.AllowAnonymous {
		t.Fatalf("expected auth.allowAnonymous to default to false when auth.enabled is true")
	}
}

func TestLoadRequiresOptionalPathsWhenAllowAnonymousEnabled(t *testing.T) {
	path := writeConfig(t, "auth:\n  enabled: true\n  hmacSecret: s3cret\n  allowAnonymous: true\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected load to fail when auth.allowAnonymous is true without optional paths")
	}
}

func TestLoadAllowsExplicitAuthDisabledForSensitiveTLSConfig(t *testing.T) {
	yaml := "auth:\n  enabled: false\nsecurity:\n  tlsCertFile: /etc/trancheld/cert.pem\n  tlsKeyFile: /etc/trancheld/key.pem\n"
	path := writeConfig(t, yaml)
	if _, err := Load(path); err != nil {
		t.Fatalf("load config: %v", err)
	}
}

func TestLoadNormalizesOptionalPaths(t *testing.T) {
	yaml := "auth:\n  enabled: true\n  hmacSecret: s3cret\n  allowAnonymous: true\n  optionalPaths:\n    - /v1/ledger\n    - \"   /v1/tranches   \"\n"
	path := writeConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	expected := []string{"/v1/ledger", "/v1/tranches"}
	if len(cfg.Auth.OptionalPaths) != len(expected) {
		t.Fatalf("expected %d optional paths, got %d", len(expected), len(cfg.Auth.OptionalPaths))
	}
	for i, path := range expected {
		if cfg.Auth.OptionalPaths[i] != path {
			t.Fatalf("optional path %d mismatch: expected %q, got %q", i, path, cfg.Auth.OptionalPaths[i])
		}
	}
}

func TestLoadRejectsOptionalPathsWithoutLeadingSlash(t *testing.T) {
	yaml := "auth:\n  enabled: true\n  hmacSecret: s3cret\n  allowAnonymous: true\n  optionalPaths:\n    - v1/ledger\n"
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for optional path without leading slash")
	}
}

func TestValidateRejectsImplicitAnonymousAccess(t *testing.T) {
	cfg := Config{
		Ledger: LedgerConfig{Deployment: "tranche.toml"},
		Auth: AuthConfig{
			Enabled:        true,
			HMACSecret:     "s3cret",
			OptionalPaths:  []string{"/v1/ledger"},
			AllowAnonymous: true,
			enabledSet:     true,
		},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error when auth.allowAnonymous is true without explicit opt-in")
	}
	if !strings.Contains(err.Error(), "auth.allowAnonymous must be explicitly set") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadLedgerHistoryAndRateLimits(t *testing.T) {
	yaml := `auth:
  enabled: false
ledger:
  deployment: /etc/trancheld/tranche.toml
  accrualInterval: 30s
history:
  enabled: true
  driver: postgres
  dsn: postgres://tranche@localhost/tranche
rateLimits:
  - id: admin
    requestsPerMinute: 120
    burst: 4
    tokens:
      "POST /v1/harvest": 2
`
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Ledger.AccrualInterval != 30*time.Second {
		t.Fatalf("unexpected accrual interval %s", cfg.Ledger.AccrualInterval)
	}
	if cfg.History.Driver != "postgres" {
		t.Fatalf("unexpected history driver %q", cfg.History.Driver)
	}
	if len(cfg.RateLimits) != 1 || cfg.RateLimits[0].PerSecond() != 2 {
		t.Fatalf("unexpected rate limits: %+v", cfg.RateLimits)
	}
	if cfg.RateLimits[0].Tokens["POST /v1/harvest"] != 2 {
		t.Fatalf("expected harvest token cost to decode")
	}
}

func TestLoadRejectsUnknownHistoryDriver(t *testing.T) {
	path := writeConfig(t, "auth:\n  enabled: false\nhistory:\n  enabled: true\n  driver: mysql\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unsupported driver to be rejected")
	}
}
