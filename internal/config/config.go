// Package config loads the FraudLens configuration from an optional
// YAML or JSON file, a .env file and FRAUDLENS_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FRAUDLENS_"

// Load builds the configuration. Defaults come first, then the file at
// path (if non-empty), then a .env file in the working directory (if
// present), then the process environment. The result is validated.
func Load(path string) (*domain.Config, error) {
	// .env is optional and never overrides variables already set.
	_ = godotenv.Load()

	cfg := domain.DefaultConfig()
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile decodes a YAML or JSON file over cfg; keys absent from the
// file keep their current values.
func loadFile(path string, cfg *domain.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv overrides cfg from FRAUDLENS_* variables.
func applyEnv(cfg *domain.Config, lookup lookupFunc) error {
	e := &envReader{lookup: lookup}

	e.setString("HOST", &cfg.Server.Host)
	e.setInt("PORT", &cfg.Server.Port)
	e.setInt("READ_TIMEOUT", &cfg.Server.ReadTimeout)
	e.setInt("WRITE_TIMEOUT", &cfg.Server.WriteTimeout)

	var variant string
	if e.setString("VARIANT", &variant) {
		cfg.Variant = domain.SchemaVariant(strings.ToLower(variant))
	}
	e.setFloat("THRESHOLD", &cfg.Threshold)

	e.setString("ARTIFACT_SOURCE", &cfg.Artifacts.Source)
	e.setString("ARTIFACT_DIR", &cfg.Artifacts.Dir)
	e.setString("REDIS_ADDR", &cfg.Artifacts.RedisAddr)
	e.setString("REDIS_PASSWORD", &cfg.Artifacts.RedisPassword)
	e.setInt("REDIS_DB", &cfg.Artifacts.RedisDB)

	e.setString("DB_DRIVER", &cfg.Repository.Driver)
	e.setString("SQLITE_PATH", &cfg.Repository.SQLitePath)
	e.setString("POSTGRES_HOST", &cfg.Repository.PostgresHost)
	e.setInt("POSTGRES_PORT", &cfg.Repository.PostgresPort)
	e.setString("POSTGRES_USER", &cfg.Repository.PostgresUser)
	e.setString("POSTGRES_PASSWORD", &cfg.Repository.PostgresPassword)
	e.setString("POSTGRES_DB", &cfg.Repository.PostgresDB)
	e.setString("POSTGRES_SSLMODE", &cfg.Repository.PostgresSSLMode)
	e.setDuration("DB_CONN_MAX_LIFETIME", &cfg.Repository.ConnMaxLifetime)

	e.setString("EVENTBUS", &cfg.EventBus.Type)
	e.setString("NATS_URL", &cfg.EventBus.NATSUrl)
	e.setString("NATS_TOKEN", &cfg.EventBus.NATSToken)

	e.setString("LOG_LEVEL", &cfg.Logging.Level)
	e.setString("LOG_FORMAT", &cfg.Logging.Format)
	e.setBool("TRACING", &cfg.Tracing.Enabled)
	e.setString("TRACING_EXPORTER", &cfg.Tracing.ExporterType)
	e.setBool("METRICS", &cfg.Metrics.Enabled)

	return e.err
}

// envReader records the first malformed value.
type envReader struct {
	lookup lookupFunc
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envReader) fail(key, v string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, key, v, err)
	}
}

func (e *envReader) setString(key string, dst *string) bool {
	v, ok := e.get(key)
	if ok {
		*dst = v
	}
	return ok
}

func (e *envReader) setInt(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) setFloat(key string, dst *float64) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = f
}

func (e *envReader) setBool(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = b
}

func (e *envReader) setDuration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = d
}

// Validate checks cfg for values the service cannot start with.
func Validate(cfg *domain.Config) error {
	if !cfg.Variant.Valid() {
		return fmt.Errorf("unknown schema variant %q (supported: full, cluster)", cfg.Variant)
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return fmt.Errorf("threshold %v outside [0, 1]", cfg.Threshold)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}

	switch cfg.Artifacts.Source {
	case "file":
		if cfg.Artifacts.Dir == "" {
			return fmt.Errorf("file artifact source requires a directory")
		}
	case "sql":
		if cfg.Repository.Driver == "none" {
			return fmt.Errorf("sql artifact source requires a repository driver")
		}
	case "redis":
		if cfg.Artifacts.RedisAddr == "" {
			return fmt.Errorf("redis artifact source requires an address")
		}
	default:
		return fmt.Errorf("unknown artifact source %q (supported: file, sql, redis)", cfg.Artifacts.Source)
	}

	switch cfg.Repository.Driver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("unknown repository driver %q", cfg.Repository.Driver)
	}

	switch cfg.EventBus.Type {
	case "channel", "nats", "none":
	default:
		return fmt.Errorf("unknown event bus type %q", cfg.EventBus.Type)
	}

	if _, err := ParseLevel(cfg.Logging.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a configured level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger builds the service logger: JSON by default, text when
// configured.
func NewLogger(cfg domain.LoggingConfig, w io.Writer) *slog.Logger {
	level, _ := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
