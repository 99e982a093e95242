// Package config loads runtime configuration from the environment.
package config

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Timeout defaults mirror constants.DefaultRequestTimeout and
// constants.ExtendedRequestTimeout; they are duplicated here because
// importing internal/constants would create an import cycle
// (constants/product_loader.go imports this package for S3Loader).
const (
	defaultRequestTimeout  = 30 * time.Second
	extendedRequestTimeout = 6 * time.Minute
)

// Environment names accepted in ENVIRONMENT.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config holds all runtime configuration, grouped by concern.
type Config struct {
	// Server
	Environment string
	Port        int
	BaseURL     string
	CORSOrigins []string
	// IdleTimeout enables scale-to-zero: after this long with no traffic the
	// server exits cleanly. Zero keeps it running.
	IdleTimeout time.Duration

	// Transactional store (libsql). TursoURL/TursoAuthToken switch the
	// connection to an embedded replica synced against a remote primary.
	DatabaseURL    string
	TursoURL       string
	TursoAuthToken string

	// Read-only Postgres stores.
	VectorDatabaseURL string
	ClaimsDatabaseURL string

	// Concept graph.
	RedisURL               string
	ConceptMinMemoryChars  int
	ConceptRefreshInterval time.Duration

	// LLM gateway.
	LLMProvider         string
	LLMAPIKey           string
	LLMBaseURL          string
	LLMRouterModel      string
	LLMPlannerModel     string
	LLMSQLModel         string
	LLMSynthModel       string
	LLMMaxRetries       int
	LLMMaxInflight      int
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingCacheSize  int

	// Routing.
	MaxRoutingRetries int

	// Claims intelligence.
	ClaimsMaxTopics     int
	ClaimsWorkerLimit   int
	ClaimsPlanTimeout   time.Duration
	ClaimsSQLGenTimeout time.Duration
	ClaimsSynthTimeout  time.Duration
	ClaimsQueryTimeout  time.Duration

	// Payments.
	PaymentCurrencyDefault string
	CheckoutSessionTTL     time.Duration
	CheckoutSuccessURL     string
	CheckoutCancelURL      string
	StripeSecretKey        string
	StripeWebhookSecret    string

	// External APIs.
	QuotationAPIURL  string
	QuotationAPIKey  string
	QuotationTimeout time.Duration
	MemoryAPIURL     string
	MemoryAPIKey     string

	// Agent auth. Requests carry either a static API key or an HS256
	// service token signed with ServiceAuthSecret.
	ServiceAuthSecret string
	AgentAPIKeys      []string

	// PII encryption key (32 bytes, AES-256-GCM).
	PIIEncryptionKey []byte

	// S3 overlay for agent API keys (optional).
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	ConfigBucket      string

	// Tool surface.
	MCPEnabled bool

	// Workers.
	ExpiryPollInterval time.Duration

	// HTTP timeouts.
	RequestTimeout         time.Duration
	ExtendedRequestTimeout time.Duration
}

// Load assembles configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", EnvDevelopment),
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"*"}),
		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0),

		DatabaseURL:    getEnv("DATABASE_URL", "file:wandersure.db"),
		TursoURL:       getEnv("TURSO_URL", ""),
		TursoAuthToken: getEnv("TURSO_AUTH_TOKEN", ""),

		VectorDatabaseURL: getEnv("VECTOR_DATABASE_URL", ""),
		ClaimsDatabaseURL: getEnv("CLAIMS_DATABASE_URL", ""),

		RedisURL:               getEnv("REDIS_URL", ""),
		ConceptMinMemoryChars:  getEnvInt("CONCEPT_MIN_MEMORY_CHARS", 100),
		ConceptRefreshInterval: getEnvDuration("CONCEPT_REFRESH_INTERVAL", 10*time.Minute),

		LLMProvider:         getEnv("LLM_PROVIDER", "openai"),
		LLMAPIKey:           getEnv("LLM_API_KEY", ""),
		LLMBaseURL:          getEnv("LLM_BASE_URL", ""),
		LLMRouterModel:      getEnv("LLM_ROUTER_MODEL", "gpt-4o-mini"),
		LLMPlannerModel:     getEnv("LLM_PLANNER_MODEL", "gpt-4o"),
		LLMSQLModel:         getEnv("LLM_SQL_MODEL", "gpt-4o"),
		LLMSynthModel:       getEnv("LLM_SYNTH_MODEL", "gpt-4o"),
		LLMMaxRetries:       getEnvInt("LLM_MAX_RETRIES", 3),
		LLMMaxInflight:      getEnvInt("LLM_MAX_INFLIGHT_PER_MODEL", 10),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-large"),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 3072),
		EmbeddingCacheSize:  getEnvInt("EMBEDDING_CACHE_SIZE", 10000),

		MaxRoutingRetries: getEnvInt("MAX_ROUTING_RETRIES", 3),

		ClaimsMaxTopics:     getEnvInt("CLAIMS_MAX_TOPICS", 10),
		ClaimsWorkerLimit:   getEnvInt("CLAIMS_WORKER_LIMIT", 5),
		ClaimsPlanTimeout:   getEnvDuration("CLAIMS_PLAN_TIMEOUT", 120*time.Second),
		ClaimsSQLGenTimeout: getEnvDuration("CLAIMS_SQLGEN_TIMEOUT", 120*time.Second),
		ClaimsSynthTimeout:  getEnvDuration("CLAIMS_SYNTH_TIMEOUT", 300*time.Second),
		ClaimsQueryTimeout:  getEnvDuration("CLAIMS_QUERY_TIMEOUT", 30*time.Second),

		PaymentCurrencyDefault: strings.ToLower(getEnv("PAYMENT_CURRENCY_DEFAULT", "eur")),
		CheckoutSessionTTL:     getEnvDuration("CHECKOUT_SESSION_TTL", 24*time.Hour),
		CheckoutSuccessURL:     getEnv("CHECKOUT_SUCCESS_URL", ""),
		CheckoutCancelURL:      getEnv("CHECKOUT_CANCEL_URL", ""),
		StripeSecretKey:        getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:    getEnv("STRIPE_WEBHOOK_SECRET", ""),

		QuotationAPIURL:  getEnv("QUOTATION_API_URL", ""),
		QuotationAPIKey:  getEnv("QUOTATION_API_KEY", ""),
		QuotationTimeout: getEnvDuration("QUOTATION_TIMEOUT", 30*time.Second),
		MemoryAPIURL:     getEnv("MEMORY_API_URL", ""),
		MemoryAPIKey:     getEnv("MEMORY_API_KEY", ""),

		ServiceAuthSecret: getEnv("SERVICE_AUTH_SECRET", ""),
		AgentAPIKeys:      getEnvSlice("AGENT_API_KEYS", nil),

		S3Endpoint:        getEnvWithFallback("S3_ENDPOINT", "AWS_ENDPOINT_URL_S3", ""),
		S3Region:          getEnv("AWS_REGION", "auto"),
		S3AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		ConfigBucket:      getEnv("CONFIG_BUCKET", ""),

		MCPEnabled: getEnvBool("MCP_ENABLED", true),

		ExpiryPollInterval: getEnvDuration("EXPIRY_POLL_INTERVAL", time.Minute),

		RequestTimeout:         getEnvDuration("REQUEST_TIMEOUT", defaultRequestTimeout),
		ExtendedRequestTimeout: getEnvDuration("EXTENDED_REQUEST_TIMEOUT", extendedRequestTimeout),
	}

	key, err := derivePIIKey(cfg)
	if err != nil {
		return nil, err
	}
	cfg.PIIEncryptionKey = key

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("invalid ENVIRONMENT %q (want development, staging or production)", c.Environment)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.EmbeddingDimensions < 1 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions)
	}
	if c.EmbeddingCacheSize < 1 {
		return fmt.Errorf("EMBEDDING_CACHE_SIZE must be positive, got %d", c.EmbeddingCacheSize)
	}
	if c.ClaimsMaxTopics < 1 || c.ClaimsMaxTopics > 10 {
		return fmt.Errorf("CLAIMS_MAX_TOPICS must be in [1,10], got %d", c.ClaimsMaxTopics)
	}
	if c.ClaimsWorkerLimit < 1 {
		return fmt.Errorf("CLAIMS_WORKER_LIMIT must be positive, got %d", c.ClaimsWorkerLimit)
	}
	if c.LLMMaxInflight < 1 {
		return fmt.Errorf("LLM_MAX_INFLIGHT_PER_MODEL must be positive, got %d", c.LLMMaxInflight)
	}
	if c.MaxRoutingRetries < 1 {
		return fmt.Errorf("MAX_ROUTING_RETRIES must be positive, got %d", c.MaxRoutingRetries)
	}
	if len(c.PaymentCurrencyDefault) != 3 {
		return fmt.Errorf("PAYMENT_CURRENCY_DEFAULT must be a 3-letter code, got %q", c.PaymentCurrencyDefault)
	}
	// Stripe bounds checkout expiry to [30m, 24h].
	if c.CheckoutSessionTTL < 30*time.Minute || c.CheckoutSessionTTL > 24*time.Hour {
		return fmt.Errorf("CHECKOUT_SESSION_TTL must be between 30m and 24h, got %s", c.CheckoutSessionTTL)
	}
	return nil
}

// IsProduction reports whether the service runs with production strictness.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// S3Configured reports whether the S3 overlay can be used.
func (c *Config) S3Configured() bool {
	return c.ConfigBucket != "" && c.S3AccessKeyID != "" && c.S3SecretAccessKey != ""
}

// derivePIIKey resolves the AES-256 key for PII at rest. An explicit
// PII_ENCRYPTION_KEY (base64, 32 bytes) wins; otherwise the key is derived
// from SERVICE_AUTH_SECRET with HKDF-SHA256. Production refuses to run
// without key material.
func derivePIIKey(cfg *Config) ([]byte, error) {
	if encoded := getEnv("PII_ENCRYPTION_KEY", ""); encoded != "" {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("PII_ENCRYPTION_KEY is not valid base64: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("PII_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
		}
		return key, nil
	}

	secret := cfg.ServiceAuthSecret
	if secret == "" {
		if cfg.Environment == EnvProduction {
			return nil, fmt.Errorf("production requires PII_ENCRYPTION_KEY or SERVICE_AUTH_SECRET")
		}
		secret = "wandersure-development-secret"
	}

	salt := []byte("wandersure-api-pii-key-v1")
	info := []byte("aes-256-gcm-encryption")
	reader := hkdf.New(sha256.New, []byte(secret), salt, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive PII key: %w", err)
	}
	return key, nil
}

// ========================================
// Environment helpers
// ========================================

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if v := os.Getenv(primary); v != "" {
		return v
	}
	if v := os.Getenv(fallback); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			return true
		default:
			return false
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
