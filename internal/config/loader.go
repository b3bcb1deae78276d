package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HWDESK_API_BASE_URL.
const EnvPrefix = "HWDESK"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file, .env and the environment
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to get home directory")
	}

	loadDotEnv(filepath.Dir(configPath))

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		v.SetConfigType(configType(configPath))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(configPath)
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "hwdesk.log")
	}
	if cfg.Logging.AuditFile == "" {
		cfg.Logging.AuditFile = filepath.Join(cfg.DataDir, "audit.log")
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(cfg.DataDir, "session.json")
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = filepath.Join(cfg.DataDir, "session.db")
	}

	return cfg, nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to get home directory")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType(configType(configPath))
	for key, value := range flatten(cfg) {
		v.Set(key, value)
	}

	if err := v.WriteConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}
	return os.Chmod(configPath, 0o600)
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".hwdesk", "hwdesk.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "json"
	}
}

// loadDotEnv reads .env from the working directory and the config
// directory. Variables already set in the environment win.
func loadDotEnv(configDir string) {
	for _, path := range []string{".env", filepath.Join(configDir, ".env")} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to load .env file")
		}
	}
}

// setDefaults registers every key so AutomaticEnv can override nested values.
func setDefaults(v *viper.Viper, cfg *Config) {
	for key, value := range flatten(cfg) {
		v.SetDefault(key, value)
	}
}

// flatten maps a config onto dotted viper keys. Durations are written as
// strings so saved files stay readable.
func flatten(cfg *Config) map[string]any {
	return map[string]any{
		"api.base_url":   cfg.API.BaseURL,
		"api.auth_field": cfg.API.AuthField,
		"api.timeout":    cfg.API.Timeout.String(),

		"session.ttl":            cfg.Session.TTL.String(),
		"session.missing_expiry": cfg.Session.MissingExpiry,
		"session.sweep_interval": cfg.Session.SweepInterval.String(),
		"session.watch_debounce": cfg.Session.WatchDebounce.String(),

		"store.backend":        cfg.Store.Backend,
		"store.path":           cfg.Store.Path,
		"store.sqlite_path":    cfg.Store.SQLitePath,
		"store.redis.addr":     cfg.Store.Redis.Addr,
		"store.redis.username": cfg.Store.Redis.Username,
		"store.redis.password": cfg.Store.Redis.Password,
		"store.redis.db":       cfg.Store.Redis.DB,
		"store.redis.prefix":   cfg.Store.Redis.Prefix,

		"logging.level":      cfg.Logging.Level,
		"logging.file":       cfg.Logging.File,
		"logging.max_size":   cfg.Logging.MaxSize,
		"logging.max_age":    cfg.Logging.MaxAge,
		"logging.compress":   cfg.Logging.Compress,
		"logging.redaction":  cfg.Logging.Redaction,
		"logging.console":    cfg.Logging.Console,
		"logging.audit_file": cfg.Logging.AuditFile,

		"metrics.addr": cfg.Metrics.Addr,

		"tracing.enabled":      cfg.Tracing.Enabled,
		"tracing.service_name": cfg.Tracing.ServiceName,
		"tracing.sample_ratio": cfg.Tracing.SampleRatio,

		"mock.addr":                  cfg.Mock.Addr,
		"mock.secret":                cfg.Mock.Secret,
		"mock.token_ttl":             cfg.Mock.TokenTTL.String(),
		"mock.rate_limit_per_minute": cfg.Mock.RateLimitPerMinute,

		"data_dir": cfg.DataDir,
	}
}
