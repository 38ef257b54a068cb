// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

var _ domain.Repository = (*SQLRepository)(nil)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas(r.driver) {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// DB exposes the connection pool for stats collection.
func (r *SQLRepository) DB() *sql.DB {
	return r.db
}

// SavePrediction stores one audit record.
func (r *SQLRepository) SavePrediction(ctx context.Context, rec *domain.PredictionRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: prediction id is required", ErrInvalidInput)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO predictions (
			id, request_id, variant, status, label, probability,
			failed_stage, error, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, rec.RequestID, string(rec.Variant), rec.Status,
		rec.Label, rec.Probability,
		string(rec.FailedStage), rec.Error, rec.DurationMs,
		rec.CreatedAt,
	)
	return err
}

// GetPrediction retrieves an audit record by ID.
func (r *SQLRepository) GetPrediction(ctx context.Context, id string) (*domain.PredictionRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: prediction id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, request_id, variant, status, label, probability,
			   failed_stage, error, duration_ms, created_at
		FROM predictions
		WHERE id = ?
	`

	rec, err := scanPrediction(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListPredictions returns the most recent audit records, newest first.
func (r *SQLRepository) ListPredictions(ctx context.Context, limit int) ([]*domain.PredictionRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}

	query := `
		SELECT id, request_id, variant, status, label, probability,
			   failed_stage, error, duration_ms, created_at
		FROM predictions
		ORDER BY created_at DESC, id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.PredictionRecord
	for rows.Next() {
		rec, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row rowScanner) (*domain.PredictionRecord, error) {
	var rec domain.PredictionRecord
	var variant, failedStage string

	if err := row.Scan(
		&rec.ID, &rec.RequestID, &variant, &rec.Status, &rec.Label, &rec.Probability,
		&failedStage, &rec.Error, &rec.DurationMs, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}

	rec.Variant = domain.SchemaVariant(variant)
	rec.FailedStage = domain.Stage(failedStage)
	return &rec, nil
}

// SaveArtifact stores or replaces an artifact blob.
func (r *SQLRepository) SaveArtifact(ctx context.Context, name string, payload []byte) error {
	if name == "" {
		return fmt.Errorf("%w: artifact name is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO artifacts (name, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), name, payload, time.Now().UTC())
	return err
}

// GetArtifact retrieves an artifact blob by name.
func (r *SQLRepository) GetArtifact(ctx context.Context, name string) ([]byte, error) {
	query := `SELECT payload FROM artifacts WHERE name = ?`

	var payload []byte
	err := r.db.QueryRowContext(ctx, r.rebind(query), name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: artifact %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
