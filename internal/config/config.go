package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	PortalAPIBaseURL     string
	PortalAPIToken       string
	PortalAPITimeout     time.Duration
	PortalAPIMaxAttempts int
	PortalBreakerMinReqs int
	PortalBreakerRatio   float64
	PortalBreakerOpenFor time.Duration

	QuoteCacheTTL  time.Duration
	BodyLimitBytes int64

	RateLimitStrategy string
	RateLimitWindow   time.Duration
	RateLimitMax      int

	SecurityHeaders bool
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:               valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                 valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:             strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins:   splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		PortalAPIBaseURL:     strings.TrimRight(strings.TrimSpace(k.String("PORTAL_API_BASE_URL")), "/"),
		PortalAPIToken:       strings.TrimSpace(k.String("PORTAL_API_TOKEN")),
		PortalAPITimeout:     parseDuration(k.String("PORTAL_API_TIMEOUT"), "5s"),
		PortalAPIMaxAttempts: parseInt(k.String("PORTAL_API_MAX_ATTEMPTS"), 3),
		PortalBreakerMinReqs: parseInt(k.String("PORTAL_BREAKER_MIN_REQUESTS"), 10),
		PortalBreakerRatio:   parseFloat(k.String("PORTAL_BREAKER_FAILURE_RATIO"), 0.5),
		PortalBreakerOpenFor: parseDuration(k.String("PORTAL_BREAKER_OPEN_FOR"), "30s"),
		QuoteCacheTTL:        parseDuration(k.String("QUOTE_CACHE_TTL"), "5m"),
		BodyLimitBytes:       int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		RateLimitStrategy:    strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_STRATEGY"), "sliding")),
		RateLimitWindow:      parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:         parseInt(k.String("RATE_LIMIT_MAX"), 120),
		SecurityHeaders:      parseBoolDefault(k.String("SECURITY_HEADERS"), true),
	}

	if cfg.PortalAPIBaseURL == "" {
		return nil, errors.New("PORTAL_API_BASE_URL is required")
	}
	switch cfg.RateLimitStrategy {
	case "sliding", "fixed", "off":
	default:
		return nil, fmt.Errorf("RATE_LIMIT_STRATEGY must be sliding, fixed or off, got %q", cfg.RateLimitStrategy)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
