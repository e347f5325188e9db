// Package config loads service configuration from an optional YAML file
// followed by environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// MaxCallTimeout bounds the configurable gateway timeout.
const MaxCallTimeout = 5 * time.Minute

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Cloud   CloudConfig   `yaml:"cloud"`
	Carbon  CarbonConfig  `yaml:"carbon"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Addr               string        `yaml:"addr"`
	HealthAddr         string        `yaml:"health_addr"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// CloudConfig holds the provisioning gateway settings. Credentials are read
// once at startup.
type CloudConfig struct {
	Enabled         bool          `yaml:"enabled"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	DefaultRegion   string        `yaml:"default_region"`
	CallTimeout     time.Duration `yaml:"call_timeout"`
	ManagedByTag    string        `yaml:"managed_by_tag"`
}

type CarbonConfig struct {
	LocalCarbonIntensity float64 `yaml:"local_carbon_intensity"`
}

// AuthConfig maps bearer tokens to user ids. Admins may seed the catalog.
type AuthConfig struct {
	Tokens map[string]string `yaml:"tokens"`
	Admins []string          `yaml:"admins"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":5000",
			HealthAddr:      ":5001",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
			Path:   "data/carbon.db",
		},
		Cloud: CloudConfig{
			DefaultRegion: "us-east-1",
			CallTimeout:   30 * time.Second,
			ManagedByTag:  "CarbonTrackerApp",
		},
		Carbon: CarbonConfig{
			LocalCarbonIntensity: 500,
		},
		Auth: AuthConfig{
			Tokens: map[string]string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path (if non-empty), applies environment overrides and
// validates the result.
func Load(path string, logger zerolog.Logger) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv(logger)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Server.allowsAnyOrigin() {
		logger.Warn().Msg("CORS wildcard origin (*) is insecure; use specific origins in production")
	}
	return cfg, nil
}

func (c *Config) applyEnv(logger zerolog.Logger) {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
	if v := os.Getenv("HEALTH_PORT"); v != "" {
		c.Server.HealthAddr = ":" + v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.Server.CORSAllowedOrigins = splitList(v)
	}
	c.Store.Driver = getEnvOrDefault("STORE_DRIVER", c.Store.Driver)
	c.Store.Path = getEnvOrDefault("DATABASE_PATH", c.Store.Path)

	if v := os.Getenv("ENABLE_CLOUD_INTEGRATION"); v != "" {
		c.Cloud.Enabled = v == "true"
	}
	c.Cloud.AccessKeyID = getEnvOrDefault("AWS_ACCESS_KEY_ID", c.Cloud.AccessKeyID)
	c.Cloud.SecretAccessKey = getEnvOrDefault("AWS_SECRET_ACCESS_KEY", c.Cloud.SecretAccessKey)
	c.Cloud.DefaultRegion = getEnvOrDefault("AWS_REGION", c.Cloud.DefaultRegion)
	c.Cloud.CallTimeout = getDurationOrDefault(logger, "GATEWAY_TIMEOUT", c.Cloud.CallTimeout)

	c.Carbon.LocalCarbonIntensity = getFloatOrDefault(logger, "LOCAL_CARBON_INTENSITY", c.Carbon.LocalCarbonIntensity)

	if v := os.Getenv("AUTH_TOKENS"); v != "" {
		if c.Auth.Tokens == nil {
			c.Auth.Tokens = map[string]string{}
		}
		for _, pair := range splitList(v) {
			token, user, ok := strings.Cut(pair, ":")
			if !ok || token == "" || user == "" {
				logger.Warn().Msg("ignoring malformed AUTH_TOKENS entry; expected token:user")
				continue
			}
			c.Auth.Tokens[token] = user
		}
	}
	if v := os.Getenv("AUTH_ADMINS"); v != "" {
		c.Auth.Admins = splitList(v)
	}

	c.Logging.Level = getEnvOrDefault("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvOrDefault("LOG_FORMAT", c.Logging.Format)
}

// Validate checks the configuration for values the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("store.driver must be %q or %q, got %q", DriverSQLite, DriverMemory, c.Store.Driver))
	}
	if c.Cloud.CallTimeout <= 0 || c.Cloud.CallTimeout > MaxCallTimeout {
		errs = append(errs, fmt.Errorf("cloud.call_timeout must be in (0, %s], got %s", MaxCallTimeout, c.Cloud.CallTimeout))
	}
	if c.Cloud.DefaultRegion == "" {
		errs = append(errs, errors.New("cloud.default_region is required"))
	}
	if c.Carbon.LocalCarbonIntensity < 0 {
		errs = append(errs, errors.New("carbon.local_carbon_intensity must be non-negative"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	return errors.Join(errs...)
}

// CloudCredentialsPresent reports whether both AWS keys are set.
func (c CloudConfig) CloudCredentialsPresent() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

func (s ServerConfig) allowsAnyOrigin() bool {
	for _, o := range s.CORSAllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(logger zerolog.Logger, key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Bare numbers are seconds.
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	logger.Warn().Str("key", key).Str("value", v).Msg("invalid duration, using default")
	return defaultValue
}

func getFloatOrDefault(logger zerolog.Logger, key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Msg("invalid number, using default")
		return defaultValue
	}
	return f
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
