// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database. Optional: when empty the service runs on the in-memory
	// store, which is only suitable for local development.
	DatabaseURL string `koanf:"database_url"`

	// BTCPay Server (Greenfield API)
	BTCPayURL            string `koanf:"btcpay_url"`
	BTCPayStoreID        string `koanf:"btcpay_store_id"`
	BTCPayAPIKey         string `koanf:"btcpay_api_key"`
	BTCPayWebhookSecret  string `koanf:"btcpay_webhook_secret"`
	BTCPayTimeoutSeconds int    `koanf:"btcpay_timeout_seconds"`

	// WebhookAllowTerminalOverwrite lets a later processor event replace a
	// terminal payment status (e.g. paid -> expired). Off by default.
	WebhookAllowTerminalOverwrite bool `koanf:"webhook_allow_terminal_overwrite"`

	// Redis (optional, enables shared rate limiting across instances)
	RedisAddr string `koanf:"redis_addr"`

	// Rate limiting
	RateLimitRequestsPerMinute int `koanf:"rate_limit_requests_per_minute"`

	// Tracing
	TracingEnabled  bool   `koanf:"tracing_enabled"`
	TracingEndpoint string `koanf:"tracing_endpoint"`
}

// Configuration validation errors.
var (
	ErrMissingBTCPayURL           = errors.New("BTCPAY_URL is required")
	ErrMissingBTCPayStoreID       = errors.New("BTCPAY_STORE_ID is required")
	ErrMissingBTCPayAPIKey        = errors.New("BTCPAY_API_KEY is required")
	ErrMissingBTCPayWebhookSecret = errors.New("BTCPAY_WEBHOOK_SECRET is required")
	ErrInvalidPort                = errors.New("PORT must be a valid integer")
	ErrInvalidBTCPayTimeout       = errors.New("BTCPAY_TIMEOUT_SECONDS must be > 0")
	ErrInvalidRateLimit           = errors.New("RATE_LIMIT_REQUESTS_PER_MINUTE must be > 0")
)

// Default values for non-secret configuration.
const (
	DefaultPort                       = 3000
	DefaultEnv                        = "development"
	DefaultBTCPayTimeoutSeconds       = 30
	DefaultRateLimitRequestsPerMinute = 100
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, portErr := getEnvIntOrDefault("PORT", k.Int("port"), DefaultPort, ErrInvalidPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	timeout, timeoutErr := getEnvIntOrDefault("BTCPAY_TIMEOUT_SECONDS", k.Int("btcpay_timeout_seconds"), DefaultBTCPayTimeoutSeconds, ErrInvalidBTCPayTimeout)
	if timeoutErr != nil {
		loadErrs = append(loadErrs, timeoutErr)
	}

	rateLimit, rateLimitErr := getEnvIntOrDefault("RATE_LIMIT_REQUESTS_PER_MINUTE", k.Int("rate_limit_requests_per_minute"), DefaultRateLimitRequestsPerMinute, ErrInvalidRateLimit)
	if rateLimitErr != nil {
		loadErrs = append(loadErrs, rateLimitErr)
	}

	cfg := &Config{
		Port:                 port,
		Env:                  getEnvOrDefault("ENV", k.String("env"), DefaultEnv),
		DatabaseURL:          getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		BTCPayURL:            getEnvOrKoanf("BTCPAY_URL", k, "btcpay_url"),
		BTCPayStoreID:        getEnvOrKoanf("BTCPAY_STORE_ID", k, "btcpay_store_id"),
		BTCPayAPIKey:         getEnvOrKoanf("BTCPAY_API_KEY", k, "btcpay_api_key"),
		BTCPayWebhookSecret:  getEnvOrKoanf("BTCPAY_WEBHOOK_SECRET", k, "btcpay_webhook_secret"),
		BTCPayTimeoutSeconds: timeout,

		WebhookAllowTerminalOverwrite: getEnvBoolOrKoanf("WEBHOOK_ALLOW_TERMINAL_OVERWRITE", k, "webhook_allow_terminal_overwrite"),

		RedisAddr: getEnvOrKoanf("REDIS_ADDR", k, "redis_addr"),

		RateLimitRequestsPerMinute: rateLimit,

		TracingEnabled:  getEnvBoolOrKoanf("TRACING_ENABLED", k, "tracing_enabled"),
		TracingEndpoint: getEnvOrKoanf("TRACING_ENDPOINT", k, "tracing_endpoint"),
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// BTCPayTimeout returns the processor call timeout as a duration.
func (c *Config) BTCPayTimeout() time.Duration {
	return time.Duration(c.BTCPayTimeoutSeconds) * time.Second
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvBoolOrKoanf returns the environment variable as a bool if set,
// otherwise the koanf value. Unparseable env values read as false.
func getEnvBoolOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) bool {
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true
		default:
			return false
		}
	}
	return k.Bool(koanfKey)
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns wrapErr if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int, wrapErr error) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, wrapErr)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.BTCPayURL == "" {
		errs = append(errs, ErrMissingBTCPayURL)
	}
	if c.BTCPayStoreID == "" {
		errs = append(errs, ErrMissingBTCPayStoreID)
	}
	if c.BTCPayAPIKey == "" {
		errs = append(errs, ErrMissingBTCPayAPIKey)
	}
	if c.BTCPayWebhookSecret == "" {
		errs = append(errs, ErrMissingBTCPayWebhookSecret)
	}
	if c.BTCPayTimeoutSeconds <= 0 {
		errs = append(errs, ErrInvalidBTCPayTimeout)
	}
	if c.RateLimitRequestsPerMinute <= 0 {
		errs = append(errs, ErrInvalidRateLimit)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                             fmt.Sprintf("%d", c.Port),
		"env":                              c.Env,
		"database_url":                     maskDatabaseURL(c.DatabaseURL),
		"btcpay_url":                       c.BTCPayURL,
		"btcpay_store_id":                  c.BTCPayStoreID,
		"btcpay_api_key":                   maskSecret(c.BTCPayAPIKey),
		"btcpay_webhook_secret":            maskSecret(c.BTCPayWebhookSecret),
		"btcpay_timeout_seconds":           fmt.Sprintf("%d", c.BTCPayTimeoutSeconds),
		"webhook_allow_terminal_overwrite": fmt.Sprintf("%t", c.WebhookAllowTerminalOverwrite),
		"redis_addr":                       c.RedisAddr,
		"rate_limit_requests_per_minute":   fmt.Sprintf("%d", c.RateLimitRequestsPerMinute),
		"tracing_enabled":                  fmt.Sprintf("%t", c.TracingEnabled),
		"tracing_endpoint":                 c.TracingEndpoint,
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a database URL.
// Supports both postgres:// and postgresql:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
