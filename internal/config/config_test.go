package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := domain.DefaultConfig()
	if cfg.Variant != want.Variant {
		t.Errorf("expected variant %s, got %s", want.Variant, cfg.Variant)
	}
	if cfg.Threshold != 0.50 {
		t.Errorf("expected threshold 0.50, got %v", cfg.Threshold)
	}
	if cfg.Artifacts.Source != "file" {
		t.Errorf("expected file artifact source, got %s", cfg.Artifacts.Source)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "fraudlens.yaml", `
variant: full
threshold: 0.7
server:
  port: 9090
repository:
  driver: postgres
  postgresHost: db.internal
  connMaxLifetime: 5m
eventBus:
  type: nats
  natsUrl: nats://bus:4222
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Variant != domain.VariantFull {
		t.Errorf("expected variant full, got %s", cfg.Variant)
	}
	if cfg.Threshold != 0.7 {
		t.Errorf("expected threshold 0.7, got %v", cfg.Threshold)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host to survive, got %s", cfg.Server.Host)
	}
	if cfg.Repository.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("expected 5m lifetime, got %v", cfg.Repository.ConnMaxLifetime)
	}
	if cfg.EventBus.NATSUrl != "nats://bus:4222" {
		t.Errorf("unexpected NATS url %s", cfg.EventBus.NATSUrl)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "fraudlens.json", `{"variant": "cluster", "artifacts": {"source": "redis", "redisAddr": "cache:6379"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Artifacts.Source != "redis" || cfg.Artifacts.RedisAddr != "cache:6379" {
		t.Errorf("unexpected artifact config %+v", cfg.Artifacts)
	}
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"unsupported extension", "fraudlens.toml", "variant = 'full'"},
		{"bad yaml", "fraudlens.yaml", "variant: [full"},
		{"bad json", "fraudlens.json", "{"},
		{"invalid variant", "fraudlens.yaml", "variant: wide"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeFile(t, tt.file, tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "fraudlens.yaml", "threshold: 0.7\n")

	t.Setenv("FRAUDLENS_THRESHOLD", "0.35")
	t.Setenv("FRAUDLENS_VARIANT", "FULL")
	t.Setenv("FRAUDLENS_PORT", "7070")
	t.Setenv("FRAUDLENS_TRACING", "true")
	t.Setenv("FRAUDLENS_DB_CONN_MAX_LIFETIME", "90s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Threshold != 0.35 {
		t.Errorf("expected env threshold to win, got %v", cfg.Threshold)
	}
	if cfg.Variant != domain.VariantFull {
		t.Errorf("expected variant full, got %s", cfg.Variant)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Server.Port)
	}
	if !cfg.Tracing.Enabled {
		t.Error("expected tracing enabled")
	}
	if cfg.Repository.ConnMaxLifetime != 90*time.Second {
		t.Errorf("expected 90s lifetime, got %v", cfg.Repository.ConnMaxLifetime)
	}
}

func TestApplyEnvMalformed(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"FRAUDLENS_PORT", "eighty"},
		{"FRAUDLENS_THRESHOLD", "half"},
		{"FRAUDLENS_METRICS", "maybe"},
		{"FRAUDLENS_DB_CONN_MAX_LIFETIME", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			env := map[string]string{tt.key: tt.value}
			lookup := func(k string) (string, bool) {
				v, ok := env[k]
				return v, ok
			}

			err := applyEnv(domain.DefaultConfig(), lookup)
			if err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Errorf("expected error naming %s, got %v", tt.key, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*domain.Config)
		wantErr bool
	}{
		{"defaults", func(*domain.Config) {}, false},
		{"threshold zero", func(c *domain.Config) { c.Threshold = 0 }, false},
		{"threshold above one", func(c *domain.Config) { c.Threshold = 1.2 }, true},
		{"negative threshold", func(c *domain.Config) { c.Threshold = -0.1 }, true},
		{"bad port", func(c *domain.Config) { c.Server.Port = 0 }, true},
		{"unknown variant", func(c *domain.Config) { c.Variant = "wide" }, true},
		{"unknown artifact source", func(c *domain.Config) { c.Artifacts.Source = "s3" }, true},
		{"file source without dir", func(c *domain.Config) { c.Artifacts.Dir = "" }, true},
		{"sql source without repository", func(c *domain.Config) {
			c.Artifacts.Source = "sql"
			c.Repository.Driver = "none"
		}, true},
		{"redis source without address", func(c *domain.Config) { c.Artifacts.Source = "redis" }, true},
		{"unknown driver", func(c *domain.Config) { c.Repository.Driver = "mysql" }, true},
		{"unknown bus", func(c *domain.Config) { c.EventBus.Type = "kafka" }, true},
		{"unknown log level", func(c *domain.Config) { c.Logging.Level = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(domain.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "stage", "scoring")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("expected info to be filtered at warn level")
	}
	if !strings.Contains(out, `"stage":"scoring"`) {
		t.Errorf("expected JSON output, got %s", out)
	}

	buf.Reset()
	NewLogger(domain.LoggingConfig{Level: "debug", Format: "text"}, &buf).Debug("visible")
	if !strings.Contains(buf.String(), "msg=visible") {
		t.Errorf("expected text output, got %s", buf.String())
	}
}
