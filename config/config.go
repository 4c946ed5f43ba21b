// Package config loads server configuration from defaults, an optional YAML
// file, and STATETABLE_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/stevemurr/state-table-server/store"
)

// DefaultListenAddr is the fixed local address the daemon binds by default.
const DefaultListenAddr = "127.0.0.1:5560"

// Config holds all server configuration.
type Config struct {
	Server  ServerConfig    `yaml:"server"`
	Store   StoreConfig     `yaml:"store"`
	Logging LoggingConfig   `yaml:"logging"`
	Rate    RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds transport settings.
type ServerConfig struct {
	ListenAddr         string        `yaml:"listen_addr"`
	MaxBodyBytes       int64         `yaml:"max_body_bytes"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend     string `yaml:"backend"`
	DataDir     string `yaml:"data_dir"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RateLimitConfig configures the transport token bucket. RequestsPerSecond
// of zero disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:         DefaultListenAddr,
			MaxBodyBytes:       10 << 20,
			ReadTimeout:        15 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			CORSAllowedOrigins: []string{"*"},
		},
		Store: StoreConfig{
			Backend: "log",
			DataDir: "./data",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), and the process environment.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv is Load with an injectable environment lookup.
func LoadWithEnv(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// LoadDotEnv loads .env files into the process environment without
// overwriting variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setString("STATETABLE_LISTEN_ADDR", &c.Server.ListenAddr)
	setString("STATETABLE_STORE_BACKEND", &c.Store.Backend)
	setString("STATETABLE_DATA_DIR", &c.Store.DataDir)
	setString("STATETABLE_POSTGRES_DSN", &c.Store.PostgresDSN)
	setString("STATETABLE_LOG_LEVEL", &c.Logging.Level)
	setString("STATETABLE_LOG_FORMAT", &c.Logging.Format)

	if v := getenv("STATETABLE_CORS_ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.CORSAllowedOrigins = origins
	}
	if v := getenv("STATETABLE_MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("STATETABLE_MAX_BODY_BYTES: %w", err)
		}
		c.Server.MaxBodyBytes = n
	}
	if v := getenv("STATETABLE_SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STATETABLE_SHUTDOWN_TIMEOUT: %w", err)
		}
		c.Server.ShutdownTimeout = d
	}
	if v := getenv("STATETABLE_RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("STATETABLE_RATE_LIMIT_RPS: %w", err)
		}
		c.Rate.RequestsPerSecond = f
	}
	if v := getenv("STATETABLE_RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STATETABLE_RATE_LIMIT_BURST: %w", err)
		}
		c.Rate.Burst = n
	}
	return nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr must not be empty"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if c.Server.ShutdownTimeout < 0 || c.Server.ReadTimeout < 0 {
		errs = append(errs, errors.New("server timeouts must not be negative"))
	}
	if !slices.Contains(store.Backends, c.Store.Backend) {
		errs = append(errs, fmt.Errorf("store.backend %q is not one of %s", c.Store.Backend, strings.Join(store.Backends, ", ")))
	}
	if c.Store.Backend == "postgres" && c.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required for the postgres backend"))
	}
	if (c.Store.Backend == "json" || c.Store.Backend == "sqlite") && c.Store.DataDir == "" {
		errs = append(errs, errors.New("store.data_dir is required for file backends"))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is invalid", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is invalid", c.Logging.Format))
	}
	if c.Rate.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("rate_limit.requests_per_second must not be negative"))
	}
	if c.Rate.RequestsPerSecond > 0 && c.Rate.Burst < 1 {
		errs = append(errs, errors.New("rate_limit.burst must be at least 1 when limiting is enabled"))
	}
	return errors.Join(errs...)
}
