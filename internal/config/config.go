package config

import (
	"encoding/json"
	"errors"
	"time"
)

// Config represents the hwdesk configuration
type Config struct {
	API     APIConfig     `json:"api" mapstructure:"api"`
	Session SessionConfig `json:"session" mapstructure:"session"`
	Store   StoreConfig   `json:"store" mapstructure:"store"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
	Mock    MockConfig    `json:"mock" mapstructure:"mock"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// APIConfig describes the homework backend
type APIConfig struct {
	BaseURL   string        `json:"base_url" mapstructure:"base_url"`
	AuthField string        `json:"auth_field" mapstructure:"auth_field"` // username, studentId
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
}

// SessionConfig holds token lifecycle settings
type SessionConfig struct {
	TTL           time.Duration `json:"ttl" mapstructure:"ttl"`
	MissingExpiry string        `json:"missing_expiry" mapstructure:"missing_expiry"` // valid, expired
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval"`
	WatchDebounce time.Duration `json:"watch_debounce" mapstructure:"watch_debounce"`
}

// StoreConfig selects the persistent session store
type StoreConfig struct {
	Backend    string      `json:"backend" mapstructure:"backend"` // file, sqlite, redis, memory
	Path       string      `json:"path" mapstructure:"path"`
	SQLitePath string      `json:"sqlite_path" mapstructure:"sqlite_path"`
	Redis      RedisConfig `json:"redis" mapstructure:"redis"`
}

// RedisConfig holds redis store connection settings
type RedisConfig struct {
	Addr     string `json:"addr" mapstructure:"addr"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`
	Prefix   string `json:"prefix" mapstructure:"prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	Console   bool   `json:"console" mapstructure:"console"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

// MetricsConfig holds the metrics endpoint address used by `watch`
type MetricsConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// MockConfig holds settings of the bundled mock backend
type MockConfig struct {
	Addr               string        `json:"addr" mapstructure:"addr"`
	Secret             string        `json:"secret" mapstructure:"secret"`
	TokenTTL           time.Duration `json:"token_ttl" mapstructure:"token_ttl"`
	RateLimitPerMinute int           `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   "http://localhost:9024",
			AuthField: "username",
			Timeout:   5 * time.Second,
		},
		Session: SessionConfig{
			TTL:           24 * time.Hour,
			MissingExpiry: "valid",
			SweepInterval: time.Minute,
			WatchDebounce: 200 * time.Millisecond,
		},
		Store: StoreConfig{
			Backend: "file",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "hwdesk:",
			},
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "hwdesk",
			SampleRatio: 1.0,
		},
		Mock: MockConfig{
			Addr:               ":9024",
			TokenTTL:           24 * time.Hour,
			RateLimitPerMinute: 600,
		},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.Store.Redis.Password != "" {
		masked.Store.Redis.Password = "***"
	}
	if masked.Mock.Secret != "" {
		masked.Mock.Secret = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	return errors.Join(NewValidator().ValidateConfig(c)...)
}
