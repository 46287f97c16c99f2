package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load fills a Config from the environment and validates it.
//
// Each leaf field names its variable with an env tag. envAlt names a fallback
// variable, default supplies the value when both are unset, and
// required:"true" turns an unset variable into an error.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// parser converts one environment string into a value of a field's type.
type parser func(string) (any, error)

var durationType = reflect.TypeOf(time.Duration(0))

// parsers is keyed by exact type so that named types such as time.Duration
// never fall through to their underlying kind.
var parsers = map[reflect.Type]parser{
	reflect.TypeOf(""): func(s string) (any, error) { return s, nil },
	durationType: func(s string) (any, error) {
		return time.ParseDuration(s)
	},
	reflect.TypeOf(0): func(s string) (any, error) {
		return strconv.Atoi(s)
	},
	reflect.TypeOf(int64(0)): func(s string) (any, error) {
		return strconv.ParseInt(s, 10, 64)
	},
	reflect.TypeOf(0.0): func(s string) (any, error) {
		return strconv.ParseFloat(s, 64)
	},
	reflect.TypeOf(false): func(s string) (any, error) {
		return strconv.ParseBool(s)
	},
	reflect.TypeOf([]string(nil)): func(s string) (any, error) {
		return splitList(s), nil
	},
}

var errUnsupportedType = errors.New("unsupported field type")

func loadStruct(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fv); err != nil {
				return err
			}
			continue
		}

		name := field.Tag.Get("env")
		if name == "" {
			continue
		}
		raw, err := lookup(name, field.Tag)
		if err != nil {
			return err
		}
		if raw == "" {
			continue
		}
		if err := assign(fv, raw); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", name, raw, err)
		}
	}
	return nil
}

// lookup resolves a variable through its alternate name and default.
func lookup(name string, tag reflect.StructTag) (string, error) {
	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	if alt := tag.Get("envAlt"); alt != "" {
		if v := os.Getenv(alt); v != "" {
			return v, nil
		}
	}
	if tag.Get("required") == "true" {
		return "", fmt.Errorf("required environment variable %s is not set", name)
	}
	return tag.Get("default"), nil
}

func assign(fv reflect.Value, raw string) error {
	parse, ok := parsers[fv.Type()]
	if !ok {
		return fmt.Errorf("%w: %s", errUnsupportedType, fv.Type())
	}
	val, err := parse(raw)
	if err != nil {
		return err
	}
	fv.Set(reflect.ValueOf(val).Convert(fv.Type()))
	return nil
}

// splitList reads a comma separated list, dropping blank items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Engine validation
	if c.Engine.ConfidenceThreshold < 0.50 || c.Engine.ConfidenceThreshold > 0.99 {
		errs = append(errs, fmt.Sprintf("CONFIDENCE_THRESHOLD (%.2f) must be 0.50-0.99", c.Engine.ConfidenceThreshold))
	}
	if c.Engine.NearDuplicateThreshold < 1 || c.Engine.NearDuplicateThreshold > 3 {
		errs = append(errs, fmt.Sprintf("NEAR_DUPLICATE_THRESHOLD (%d) must be 1-3", c.Engine.NearDuplicateThreshold))
	}
	if c.Engine.WorkerConcurrency <= 0 {
		errs = append(errs, "WORKER_CONCURRENCY must be positive")
	}
	if c.Engine.BatchSize <= 0 {
		errs = append(errs, "BATCH_SIZE must be positive")
	}

	// Classifier validation
	switch provider := strings.ToLower(c.Classifier.Provider); provider {
	case "", "none":
	case "http":
		if c.Classifier.Endpoint == "" {
			errs = append(errs, "CLASSIFIER_ENDPOINT is required for the http classifier")
		}
	case "openai", "anthropic", "gemini":
		if c.Classifier.ProviderKey() == "" {
			errs = append(errs, fmt.Sprintf("an API key is required for the %s classifier", provider))
		}
	default:
		errs = append(errs, fmt.Sprintf("CLASSIFIER_PROVIDER (%q) must be one of: none, http, openai, anthropic, gemini", c.Classifier.Provider))
	}
	if c.Classifier.Timeout <= 0 {
		errs = append(errs, "CLASSIFIER_TIMEOUT must be positive")
	}
	if c.Classifier.BatchSize <= 0 {
		errs = append(errs, "CLASSIFIER_BATCH_SIZE must be positive")
	}
	if c.Classifier.RatePerSecond <= 0 {
		errs = append(errs, "CLASSIFIER_RATE_PER_SECOND must be positive")
	}
	if c.Classifier.MaxRetries < 0 {
		errs = append(errs, "CLASSIFIER_MAX_RETRIES must be non-negative")
	}

	// Upload validation
	if c.Upload.MaxFileSize <= 0 {
		errs = append(errs, "UPLOAD_MAX_FILE_SIZE must be positive")
	}
	if c.Upload.MaxConcurrent <= 0 {
		errs = append(errs, "UPLOAD_MAX_CONCURRENT must be positive")
	}
	if c.Upload.MaxWaitTime <= 0 {
		errs = append(errs, "UPLOAD_MAX_WAIT_TIME must be positive")
	}
	if c.Upload.Timeout <= 0 {
		errs = append(errs, "UPLOAD_TIMEOUT must be positive")
	}
	if c.Upload.ResultRetention <= 0 {
		errs = append(errs, "UPLOAD_RESULT_RETENTION must be positive")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.UploadLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_UPLOAD must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// API keys are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Engine: {ConfidenceThreshold: %.2f, ExcludeRoleAccounts: %v, NearDuplicateThreshold: %d, Workers: %d, BatchSize: %d}, ",
		c.Engine.ConfidenceThreshold, c.Engine.ExcludeRoleAccounts, c.Engine.NearDuplicateThreshold,
		c.Engine.WorkerConcurrency, c.Engine.BatchSize))
	b.WriteString(fmt.Sprintf("Classifier: {Provider: %q, Model: %q, APIKey: %s, BatchSize: %d}, ",
		c.Classifier.Provider, c.Classifier.Model, mask(c.Classifier.ProviderKey()), c.Classifier.BatchSize))
	b.WriteString(fmt.Sprintf("Policy: {File: %q, PublicSuffixFallback: %v}, ", c.Policy.File, c.Policy.PublicSuffixFallback))
	b.WriteString(fmt.Sprintf("Upload: {MaxFileSize: %d, MaxConcurrent: %d, Timeout: %s}, ",
		c.Upload.MaxFileSize, c.Upload.MaxConcurrent, c.Upload.Timeout))
	b.WriteString(fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute))
	b.WriteString(fmt.Sprintf("Security: {RequireAPIKey: %v, APIKeys: %d [MASKED]}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

func mask(secret string) string {
	if secret == "" {
		return `""`
	}
	return "[MASKED]"
}
