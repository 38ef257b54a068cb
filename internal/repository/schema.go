package repository

import "fmt"

// Schema definitions for the FraudLens audit database.
// Compatible with both SQLite and PostgreSQL.

const schemaPredictions = `
CREATE TABLE IF NOT EXISTS predictions (
    id TEXT PRIMARY KEY,
    request_id TEXT NOT NULL DEFAULT '',
    variant TEXT NOT NULL,
    status TEXT NOT NULL,
    label INTEGER NOT NULL,
    probability REAL NOT NULL,
    failed_stage TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
CREATE INDEX IF NOT EXISTS idx_predictions_status ON predictions(status);
`

// schemaArtifacts holds the model artifacts handed over by offline
// training, one JSON document per name.
const schemaArtifacts = `
CREATE TABLE IF NOT EXISTS artifacts (
    name TEXT PRIMARY KEY,
    payload %s NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order for driver.
func AllSchemas(driver string) []string {
	blob := "BLOB"
	if driver == "postgres" {
		blob = "BYTEA"
	}
	return []string{
		schemaPredictions,
		fmt.Sprintf(schemaArtifacts, blob),
	}
}
