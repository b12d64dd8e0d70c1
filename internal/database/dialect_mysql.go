package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLDialect targets MySQL 8 through go-sql-driver/mysql.
type MySQLDialect struct{}

func (MySQLDialect) Name() string       { return "mysql" }
func (MySQLDialect) DriverName() string { return "mysql" }

// DSN forces parseTime so DATETIME columns scan into time.Time, and
// clientFoundRows so an UPDATE that matches a row reports it even when no
// value changed.
func (MySQLDialect) DSN(cfg Config) string {
	dsn := cfg.URL
	var params []string
	if !strings.Contains(dsn, "parseTime=") {
		params = append(params, "parseTime=true", "loc=UTC")
	}
	if !strings.Contains(dsn, "clientFoundRows=") {
		params = append(params, "clientFoundRows=true")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func (MySQLDialect) RewriteQuery(query string) string { return query }
func (MySQLDialect) SupportsLastInsertId() bool       { return true }

func (MySQLDialect) ConfigureConnection(ctx context.Context, db *sql.DB) error {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)
	return db.PingContext(ctx)
}

func (MySQLDialect) MigrationsSubdir() string { return "mysql" }

func (MySQLDialect) CreateMigrationsTableQuery() string {
	return `CREATE TABLE IF NOT EXISTS schema_migrations (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		filename VARCHAR(255) UNIQUE NOT NULL,
		executed_at DATETIME(6) DEFAULT CURRENT_TIMESTAMP(6)
	)`
}
