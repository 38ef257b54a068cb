package repository

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/fraudlens/internal/artifact"
	"github.com/opensource-finance/fraudlens/internal/domain"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "fraudlens-test.db"),
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetPrediction", func(t *testing.T) {
		rec := &domain.PredictionRecord{
			ID:          "pred-001",
			RequestID:   "req-001",
			Variant:     domain.VariantClusterAugmented,
			Status:      domain.PredictionScored,
			Label:       1,
			Probability: 0.87,
			DurationMs:  3,
			CreatedAt:   time.Now().UTC(),
		}

		if err := repo.SavePrediction(ctx, rec); err != nil {
			t.Fatalf("SavePrediction failed: %v", err)
		}

		retrieved, err := repo.GetPrediction(ctx, rec.ID)
		if err != nil {
			t.Fatalf("GetPrediction failed: %v", err)
		}

		if retrieved.Variant != rec.Variant {
			t.Errorf("expected Variant %s, got %s", rec.Variant, retrieved.Variant)
		}
		if retrieved.Label != 1 || retrieved.Probability != 0.87 {
			t.Errorf("expected label 1 p 0.87, got %d %v", retrieved.Label, retrieved.Probability)
		}
		if retrieved.RequestID != "req-001" {
			t.Errorf("expected RequestID req-001, got %s", retrieved.RequestID)
		}
	})

	t.Run("SaveFailedPrediction", func(t *testing.T) {
		rec := &domain.PredictionRecord{
			ID:          "pred-002",
			Variant:     domain.VariantClusterAugmented,
			Status:      domain.PredictionFailed,
			FailedStage: domain.StageAssembling,
			Error:       `missing mandatory field "dist1"`,
		}

		if err := repo.SavePrediction(ctx, rec); err != nil {
			t.Fatalf("SavePrediction failed: %v", err)
		}
		if rec.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be stamped")
		}

		retrieved, err := repo.GetPrediction(ctx, rec.ID)
		if err != nil {
			t.Fatalf("GetPrediction failed: %v", err)
		}
		if retrieved.FailedStage != domain.StageAssembling {
			t.Errorf("expected failed stage assembling, got %s", retrieved.FailedStage)
		}
		if retrieved.Error != rec.Error {
			t.Errorf("expected error %q, got %q", rec.Error, retrieved.Error)
		}
	})

	t.Run("DuplicatePrediction", func(t *testing.T) {
		rec := &domain.PredictionRecord{ID: "pred-001", Variant: domain.VariantFull, Status: domain.PredictionScored}
		if err := repo.SavePrediction(ctx, rec); err == nil {
			t.Error("expected error for duplicate id")
		}
	})

	t.Run("ListPredictions", func(t *testing.T) {
		records, err := repo.ListPredictions(ctx, 10)
		if err != nil {
			t.Fatalf("ListPredictions failed: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}
		if !records[0].CreatedAt.After(records[1].CreatedAt) && !records[0].CreatedAt.Equal(records[1].CreatedAt) {
			t.Error("expected newest record first")
		}

		limited, err := repo.ListPredictions(ctx, 1)
		if err != nil {
			t.Fatalf("ListPredictions failed: %v", err)
		}
		if len(limited) != 1 {
			t.Errorf("expected 1 record, got %d", len(limited))
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		if err := repo.SavePrediction(ctx, &domain.PredictionRecord{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := repo.GetPrediction(ctx, ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := repo.ListPredictions(ctx, 0); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if err := repo.SaveArtifact(ctx, "", []byte("{}")); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetPrediction(ctx, "nonexistent"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.GetArtifact(ctx, "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("ArtifactUpsert", func(t *testing.T) {
		if err := repo.SaveArtifact(ctx, "model", []byte(`{"v":1}`)); err != nil {
			t.Fatalf("SaveArtifact failed: %v", err)
		}
		if err := repo.SaveArtifact(ctx, "model", []byte(`{"v":2}`)); err != nil {
			t.Fatalf("SaveArtifact overwrite failed: %v", err)
		}

		payload, err := repo.GetArtifact(ctx, "model")
		if err != nil {
			t.Fatalf("GetArtifact failed: %v", err)
		}
		if string(payload) != `{"v":2}` {
			t.Errorf("expected overwritten payload, got %s", payload)
		}
	})
}

func TestArtifactsServeRegistry(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	demo, err := artifact.DemoArtifacts(domain.VariantClusterAugmented)
	if err != nil {
		t.Fatalf("DemoArtifacts failed: %v", err)
	}

	src := artifact.NewSQLSource(repo)
	for name, payload := range demo {
		if err := src.Put(ctx, name, payload); err != nil {
			t.Fatalf("Put %s failed: %v", name, err)
		}
	}

	reg, err := artifact.Load(ctx, src, domain.VariantClusterAugmented)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if reg.Model().NumFeatures() != domain.ClusterAugmentedSchemaWidth {
		t.Errorf("expected %d model features, got %d", domain.ClusterAugmentedSchemaWidth, reg.Model().NumFeatures())
	}
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestSQLiteInMemory(t *testing.T) {
	repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	rec := &domain.PredictionRecord{
		ID:        "pred-mem",
		Variant:   domain.VariantFull,
		Status:    domain.PredictionScored,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.SavePrediction(ctx, rec); err != nil {
		t.Fatalf("SavePrediction failed: %v", err)
	}
	if _, err := repo.GetPrediction(ctx, rec.ID); err != nil {
		t.Errorf("expected the row on the same database, got %v", err)
	}
}

func TestSQLiteDSN(t *testing.T) {
	dsn := sqliteDSN("/var/lib/fraudlens/audit.db")

	path, query, ok := strings.Cut(dsn, "?")
	if !ok || path != "file:/var/lib/fraudlens/audit.db" {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		t.Fatalf("query does not parse: %v", err)
	}
	got := values["_pragma"]
	if len(got) != len(sqlitePragmas) {
		t.Fatalf("expected %d pragmas, got %v", len(sqlitePragmas), got)
	}
	for i := range got {
		if got[i] != sqlitePragmas[i] {
			t.Errorf("pragma %d: expected %s, got %s", i, sqlitePragmas[i], got[i])
		}
	}
}

func TestPostgresDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  domain.RepositoryConfig
		want string
	}{
		{
			name: "Defaults",
			cfg:  domain.RepositoryConfig{},
			want: "host=localhost port=5432 dbname=fraudlens sslmode=disable application_name=fraudlens connect_timeout=5",
		},
		{
			name: "Explicit",
			cfg: domain.RepositoryConfig{
				PostgresHost: "db.internal", PostgresPort: 6432, PostgresUser: "scorer",
				PostgresPassword: "s3cret", PostgresDB: "audit", PostgresSSLMode: "require",
			},
			want: "host=db.internal port=6432 user=scorer password=s3cret dbname=audit sslmode=require application_name=fraudlens connect_timeout=5",
		},
		{
			name: "QuotedPassword",
			cfg:  domain.RepositoryConfig{PostgresUser: "scorer", PostgresPassword: `it's a\pass`},
			want: `host=localhost port=5432 user=scorer password='it\'s a\\pass' dbname=fraudlens sslmode=disable application_name=fraudlens connect_timeout=5`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := postgresDSN(tt.cfg); got != tt.want {
				t.Errorf("postgresDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestAllSchemasArtifactType(t *testing.T) {
	for driver, want := range map[string]string{"sqlite": "BLOB", "postgres": "BYTEA"} {
		schemas := AllSchemas(driver)
		if len(schemas) != 2 {
			t.Fatalf("expected 2 schemas, got %d", len(schemas))
		}
		if !strings.Contains(schemas[1], "payload "+want) {
			t.Errorf("%s: expected payload column type %s", driver, want)
		}
	}
}
