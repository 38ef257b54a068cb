package domain

import (
	"context"
	"time"
)

// Repository persists the prediction audit trail and serves stored
// artifacts. Pipeline entities themselves are never stored.
type Repository interface {
	// Prediction audit records
	SavePrediction(ctx context.Context, rec *PredictionRecord) error
	GetPrediction(ctx context.Context, id string) (*PredictionRecord, error)
	ListPredictions(ctx context.Context, limit int) ([]*PredictionRecord, error)

	// Artifact blobs
	SaveArtifact(ctx context.Context, name string, payload []byte) error
	GetArtifact(ctx context.Context, name string) ([]byte, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Prediction outcome statuses.
const (
	PredictionScored = "scored"
	PredictionFailed = "failed"
)

// PredictionRecord is the audit entry the API writes for each call.
type PredictionRecord struct {
	ID          string        `json:"id"`
	RequestID   string        `json:"requestId,omitempty"`
	Variant     SchemaVariant `json:"variant"`
	Status      string        `json:"status"`
	Label       int           `json:"label"`
	Probability float64       `json:"probability"`
	FailedStage Stage         `json:"failedStage,omitempty"`
	Error       string        `json:"error,omitempty"`
	DurationMs  int64         `json:"durationMs"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite", "postgres" or "none"
	Driver string `json:"driver" yaml:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" yaml:"postgresHost"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgresPort"`
	PostgresUser     string `json:"postgresUser" yaml:"postgresUser"`
	PostgresPassword string `json:"postgresPassword" yaml:"postgresPassword"`
	PostgresDB       string `json:"postgresDb" yaml:"postgresDb"`
	PostgresSSLMode  string `json:"postgresSslMode" yaml:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`
}
