package database

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// Dialect isolates what differs between the supported relational engines.
type Dialect interface {
	// Name is the dialect name used in configuration ("sqlite", "postgres", "mysql").
	Name() string
	// DriverName is the database/sql driver registered for the dialect.
	DriverName() string
	// DSN returns the data source name handed to sql.Open.
	DSN(cfg Config) string
	// RewriteQuery converts ? placeholders to the dialect's syntax.
	RewriteQuery(query string) string
	// SupportsLastInsertId reports whether sql.Result.LastInsertId works.
	SupportsLastInsertId() bool
	// ConfigureConnection applies pool settings after the connection opens.
	ConfigureConnection(ctx context.Context, db *sql.DB) error
	// MigrationsSubdir names the embedded migration directory.
	MigrationsSubdir() string
	// CreateMigrationsTableQuery creates the applied-migrations ledger.
	CreateMigrationsTableQuery() string
}

// rewritePlaceholdersToNumbered converts ? placeholders to $1, $2, ...
// Placeholders inside single-quoted literals are left alone.
func rewritePlaceholdersToNumbered(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// DialectFor resolves a configured database type.
func DialectFor(kind string) (Dialect, bool) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "sqlite", "sqlite3", "":
		return SQLiteDialect{}, true
	case "postgres", "postgresql", "pgx":
		return PostgresDialect{}, true
	case "mysql":
		return MySQLDialect{}, true
	}
	return nil, false
}
