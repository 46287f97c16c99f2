// Package config loads service and CLI settings from environment variables
// with defaults, and validates them on startup to fail fast on
// misconfiguration.
package config

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Engine     EngineConfig
	Classifier ClassifierConfig
	Policy     PolicyConfig
	Upload     UploadConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// EngineConfig tunes routing, duplicate detection and the worker pool.
type EngineConfig struct {
	// ConfidenceThreshold is the minimum confidence for automatic fixes and
	// classifier removals, in [0.50, 0.99] (default: 0.85)
	ConfidenceThreshold float64 `env:"CONFIDENCE_THRESHOLD" default:"0.85"`

	// ExcludeRoleAccounts removes role addresses such as admin@ (default: true)
	ExcludeRoleAccounts bool `env:"EXCLUDE_ROLE_ACCOUNTS" default:"true"`

	// NearDuplicateThreshold pairs canonical keys closer than this edit
	// distance, in [1, 3] (default: 2)
	NearDuplicateThreshold int `env:"NEAR_DUPLICATE_THRESHOLD" default:"2"`

	// WorkerConcurrency is the number of batches processed at once (default: 4)
	WorkerConcurrency int `env:"WORKER_CONCURRENCY" default:"4"`

	// BatchSize is the number of entries per batch (default: 500)
	BatchSize int `env:"BATCH_SIZE" default:"500"`

	// EmailColumns names email columns explicitly, comma separated; empty
	// means detect them
	EmailColumns []string `env:"EMAIL_COLUMNS"`
}

// ClassifierConfig selects the optional external classifier.
type ClassifierConfig struct {
	// Provider is none, http, openai, anthropic or gemini (default: none)
	Provider string `env:"CLASSIFIER_PROVIDER" default:"none"`

	// Model overrides the provider's default model
	Model string `env:"CLASSIFIER_MODEL" envAlt:"LLM_MODEL"`

	// Endpoint is the URL of the http provider, or a base URL override for
	// openai and anthropic
	Endpoint string `env:"CLASSIFIER_ENDPOINT"`

	// APIKey is used by the http provider and as a fallback for the others
	APIKey string `env:"CLASSIFIER_API_KEY"`

	OpenAIKey    string `env:"OPENAI_API_KEY"`
	AnthropicKey string `env:"ANTHROPIC_API_KEY"`
	GeminiKey    string `env:"GEMINI_API_KEY" envAlt:"GOOGLE_API_KEY"`

	// Timeout caps one classifier attempt (default: 20s)
	Timeout time.Duration `env:"CLASSIFIER_TIMEOUT" default:"20s"`

	// BatchSize is the number of addresses per classifier call (default: 25)
	BatchSize int `env:"CLASSIFIER_BATCH_SIZE" default:"25"`

	// RatePerSecond paces classifier calls (default: 5)
	RatePerSecond float64 `env:"CLASSIFIER_RATE_PER_SECOND" default:"5"`

	// MaxRetries is the number of retries after a failed call (default: 2)
	MaxRetries int `env:"CLASSIFIER_MAX_RETRIES" default:"2"`
}

// ProviderKey returns the API key for the selected provider, falling back to
// CLASSIFIER_API_KEY.
func (c ClassifierConfig) ProviderKey() string {
	var key string
	switch strings.ToLower(c.Provider) {
	case "openai":
		key = c.OpenAIKey
	case "anthropic":
		key = c.AnthropicKey
	case "gemini":
		key = c.GeminiKey
	}
	if key == "" {
		key = c.APIKey
	}
	return key
}

// PolicyConfig locates the policy lists.
type PolicyConfig struct {
	// File is a YAML policy replacing the embedded default; empty uses the default
	File string `env:"POLICY_FILE"`

	// PublicSuffixFallback also recognizes any ICANN public suffix as a TLD (default: true)
	PublicSuffixFallback bool `env:"POLICY_PUBLIC_SUFFIX_FALLBACK" default:"true"`
}

// UploadConfig holds file and run settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parallel runs (default: 4)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for a run slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration of one run (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`

	// ResultRetention is how long finished runs stay available (default: 15m)
	ResultRetention time.Duration `env:"UPLOAD_RESULT_RETENTION" default:"15m"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for endpoints accepting files (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// APIKeys are the accepted X-API-Key values, comma separated
	APIKeys []string `env:"API_KEYS"`

	// RequireAPIKey rejects requests without a valid key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// TrustedProxies are CIDRs whose X-Real-IP / X-Forwarded-For headers are
	// believed, comma separated
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
