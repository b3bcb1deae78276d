package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateBaseURL validates the backend base URL
func (v *Validator) ValidateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("api base URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid api base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api base URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("api base URL has no host")
	}
	return nil
}

// ValidateAuthField validates which identity field login sends
func (v *Validator) ValidateAuthField(field string) error {
	return oneOf("auth field", field, "username", "studentId")
}

// ValidateMissingExpiry validates the policy for tokens without expiry
func (v *Validator) ValidateMissingExpiry(policy string) error {
	return oneOf("missing expiry policy", policy, "valid", "expired")
}

// ValidateBackend validates the session store backend name
func (v *Validator) ValidateBackend(backend string) error {
	return oneOf("store backend", backend, "file", "sqlite", "redis", "memory")
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	return oneOf("log level", level, "debug", "info", "warn", "error")
}

// ValidateDuration checks a duration is at least floor
func (v *Validator) ValidateDuration(name string, d, floor time.Duration) error {
	if d < floor {
		return fmt.Errorf("%s must be at least %s, got %s", name, floor, d)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(v.ValidateBaseURL(cfg.API.BaseURL))
	add(v.ValidateAuthField(cfg.API.AuthField))
	add(v.ValidateDuration("api.timeout", cfg.API.Timeout, time.Millisecond))

	add(v.ValidateDuration("session.ttl", cfg.Session.TTL, time.Second))
	add(v.ValidateMissingExpiry(cfg.Session.MissingExpiry))
	add(v.ValidateDuration("session.sweep_interval", cfg.Session.SweepInterval, time.Second))
	if cfg.Session.WatchDebounce < 0 {
		add(fmt.Errorf("session.watch_debounce must be >= 0"))
	}

	add(v.ValidateBackend(cfg.Store.Backend))
	if cfg.Store.Backend == "redis" {
		if strings.TrimSpace(cfg.Store.Redis.Addr) == "" {
			add(fmt.Errorf("store.redis.addr is required when store.backend is redis"))
		}
		if cfg.Store.Redis.DB < 0 {
			add(fmt.Errorf("store.redis.db must be >= 0"))
		}
	}

	add(v.ValidateLogLevel(cfg.Logging.Level))
	if cfg.Logging.MaxSize < 0 || cfg.Logging.MaxAge < 0 {
		add(fmt.Errorf("logging.max_size and logging.max_age must be >= 0"))
	}

	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		add(fmt.Errorf("tracing.sample_ratio must be between 0 and 1"))
	}

	if cfg.Mock.RateLimitPerMinute < 0 {
		add(fmt.Errorf("mock.rate_limit_per_minute must be >= 0"))
	}

	return errs
}

func oneOf(name, value string, valid ...string) error {
	if slices.Contains(valid, value) {
		return nil
	}
	return fmt.Errorf("invalid %s: %s (must be one of: %s)", name, value, strings.Join(valid, ", "))
}
