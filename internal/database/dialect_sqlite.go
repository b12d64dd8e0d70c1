package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDialect targets mattn/go-sqlite3. Used for local runs and tests.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string       { return "sqlite" }
func (SQLiteDialect) DriverName() string { return "sqlite3" }

// DSN appends per-connection pragmas. They must ride on the DSN because a
// PRAGMA executed once only reaches one pooled connection.
func (SQLiteDialect) DSN(cfg Config) string {
	path := cfg.Path
	if path == "" {
		path = cfg.URL
	}
	params := "_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	if path != ":memory:" && !strings.Contains(path, "mode=memory") {
		params += "&_journal_mode=WAL"
	}
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

func (SQLiteDialect) RewriteQuery(query string) string { return query }
func (SQLiteDialect) SupportsLastInsertId() bool       { return true }

func (SQLiteDialect) ConfigureConnection(ctx context.Context, db *sql.DB) error {
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)
	return db.PingContext(ctx)
}

func (SQLiteDialect) MigrationsSubdir() string { return "sqlite" }

func (SQLiteDialect) CreateMigrationsTableQuery() string {
	return `CREATE TABLE IF NOT EXISTS schema_migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT UNIQUE NOT NULL,
		executed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
}
