package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/opensource-finance/fraudlens/internal/domain"
	_ "modernc.org/sqlite"
)

const (
	defaultSQLitePath = "./fraudlens.db"
	memorySQLitePath  = ":memory:"

	pingTimeout = 5 * time.Second
)

// sqlitePragmas tune the audit log for a stream of small appends read back
// by the history endpoints while scoring continues.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
	"temp_store(MEMORY)",
}

// sqliteDSN builds a modernc.org/sqlite connection string for path.
func sqliteDSN(path string) string {
	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

// openSQLite opens the audit log in a SQLite file, creating its directory.
// An in-memory database is pinned to one connection, since every new
// connection would see an empty database.
func openSQLite(cfg domain.RepositoryConfig) (*sql.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = defaultSQLitePath
	}

	if path != memorySQLitePath {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create audit log directory %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite audit log %s: %w", path, err)
	}
	if path == memorySQLitePath {
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach sqlite audit log %s: %w", path, err)
	}

	return db, nil
}
