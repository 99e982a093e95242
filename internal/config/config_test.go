package config

import (
	"encoding/base64"
	"testing"
	"time"
)

// ========================================
// Helper Functions Tests
// ========================================

func TestGetEnv(t *testing.T) {
	t.Run("existing env var", func(t *testing.T) {
		t.Setenv("TEST_GET_ENV", "test_value")
		if got := getEnv("TEST_GET_ENV", "default"); got != "test_value" {
			t.Errorf("getEnv() = %q, want %q", got, "test_value")
		}
	})

	t.Run("missing env var", func(t *testing.T) {
		if got := getEnv("TEST_MISSING_VAR", "default_value"); got != "default_value" {
			t.Errorf("getEnv() = %q, want %q", got, "default_value")
		}
	})

	t.Run("empty env var uses default", func(t *testing.T) {
		t.Setenv("TEST_EMPTY_VAR", "")
		if got := getEnv("TEST_EMPTY_VAR", "default"); got != "default" {
			t.Errorf("getEnv() = %q, want %q", got, "default")
		}
	})
}

func TestGetEnvInt(t *testing.T) {
	t.Run("valid integer", func(t *testing.T) {
		t.Setenv("TEST_INT", "42")
		if got := getEnvInt("TEST_INT", 0); got != 42 {
			t.Errorf("getEnvInt() = %d, want 42", got)
		}
	})

	t.Run("invalid integer uses default", func(t *testing.T) {
		t.Setenv("TEST_INT_BAD", "not-a-number")
		if got := getEnvInt("TEST_INT_BAD", 7); got != 7 {
			t.Errorf("getEnvInt() = %d, want 7", got)
		}
	})
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"yes", true},
		{"TRUE", true},
		{"false", false},
		{"0", false},
		{"anything-else", false},
	}
	for _, tt := range tests {
		t.Setenv("TEST_BOOL", tt.value)
		if got := getEnvBool("TEST_BOOL", !tt.want); got != tt.want {
			t.Errorf("getEnvBool(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "90s")
	if got := getEnvDuration("TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}

	t.Setenv("TEST_DUR_BAD", "ninety")
	if got := getEnvDuration("TEST_DUR_BAD", time.Minute); got != time.Minute {
		t.Errorf("getEnvDuration() = %v, want fallback 1m", got)
	}
}

func TestGetEnvSlice(t *testing.T) {
	t.Setenv("TEST_SLICE", "a, b ,c,,")
	got := getEnvSlice("TEST_SLICE", nil)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("getEnvSlice() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("getEnvSlice()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// ========================================
// Load Tests
// ========================================

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Environment != EnvDevelopment {
		t.Errorf("Environment = %q, want %q", cfg.Environment, EnvDevelopment)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.EmbeddingDimensions != 3072 {
		t.Errorf("EmbeddingDimensions = %d, want 3072", cfg.EmbeddingDimensions)
	}
	if cfg.EmbeddingCacheSize != 10000 {
		t.Errorf("EmbeddingCacheSize = %d, want 10000", cfg.EmbeddingCacheSize)
	}
	if cfg.MaxRoutingRetries != 3 {
		t.Errorf("MaxRoutingRetries = %d, want 3", cfg.MaxRoutingRetries)
	}
	if cfg.ClaimsMaxTopics != 10 {
		t.Errorf("ClaimsMaxTopics = %d, want 10", cfg.ClaimsMaxTopics)
	}
	if cfg.LLMMaxInflight != 10 {
		t.Errorf("LLMMaxInflight = %d, want 10", cfg.LLMMaxInflight)
	}
	if cfg.ClaimsSynthTimeout != 300*time.Second {
		t.Errorf("ClaimsSynthTimeout = %v, want 300s", cfg.ClaimsSynthTimeout)
	}
	if cfg.CheckoutSessionTTL != 24*time.Hour {
		t.Errorf("CheckoutSessionTTL = %v, want 24h", cfg.CheckoutSessionTTL)
	}
	if cfg.PaymentCurrencyDefault != "eur" {
		t.Errorf("PaymentCurrencyDefault = %q, want eur", cfg.PaymentCurrencyDefault)
	}
	// Development derives a PII key even without any secret configured.
	if len(cfg.PIIEncryptionKey) != 32 {
		t.Errorf("PIIEncryptionKey length = %d, want 32", len(cfg.PIIEncryptionKey))
	}
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "qa")
	if _, err := Load(); err == nil {
		t.Error("Load() should reject unknown ENVIRONMENT")
	}
}

func TestLoadRejectsBadTopicBudget(t *testing.T) {
	t.Setenv("CLAIMS_MAX_TOPICS", "11")
	if _, err := Load(); err == nil {
		t.Error("Load() should reject CLAIMS_MAX_TOPICS above 10")
	}

	t.Setenv("CLAIMS_MAX_TOPICS", "0")
	if _, err := Load(); err == nil {
		t.Error("Load() should reject CLAIMS_MAX_TOPICS of 0")
	}
}

func TestLoadRejectsBadCurrency(t *testing.T) {
	t.Setenv("PAYMENT_CURRENCY_DEFAULT", "euro")
	if _, err := Load(); err == nil {
		t.Error("Load() should reject a non-3-letter currency code")
	}
}

func TestLoadRejectsShortSessionTTL(t *testing.T) {
	t.Setenv("CHECKOUT_SESSION_TTL", "5m")
	if _, err := Load(); err == nil {
		t.Error("Load() should reject a checkout TTL below 30m")
	}
}

// ========================================
// PII key derivation
// ========================================

func TestDerivePIIKeyExplicit(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	t.Setenv("PII_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(raw))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	for i := range raw {
		if cfg.PIIEncryptionKey[i] != raw[i] {
			t.Fatal("explicit PII_ENCRYPTION_KEY should be used verbatim")
		}
	}
}

func TestDerivePIIKeyRejectsWrongLength(t *testing.T) {
	t.Setenv("PII_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString([]byte("short")))
	if _, err := Load(); err == nil {
		t.Error("Load() should reject a key that is not 32 bytes")
	}
}

func TestDerivePIIKeyDeterministic(t *testing.T) {
	t.Setenv("SERVICE_AUTH_SECRET", "test-secret-for-derivation")

	cfg1, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	cfg2, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	for i := range cfg1.PIIEncryptionKey {
		if cfg1.PIIEncryptionKey[i] != cfg2.PIIEncryptionKey[i] {
			t.Fatal("HKDF derivation should be deterministic for the same secret")
		}
	}
}

func TestProductionRequiresKeyMaterial(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	if _, err := Load(); err == nil {
		t.Error("production Load() should fail without PII key material")
	}
}

func TestIsProduction(t *testing.T) {
	cfg := &Config{Environment: EnvProduction}
	if !cfg.IsProduction() {
		t.Error("IsProduction() should be true for production")
	}
	cfg.Environment = EnvStaging
	if cfg.IsProduction() {
		t.Error("IsProduction() should be false for staging")
	}
}
