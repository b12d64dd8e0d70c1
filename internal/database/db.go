// Package database wraps database/sql with dialect-aware placeholder
// rewriting, transactions and embedded migrations for the relational
// store (users, families, grants, refresh tokens, sessions, login records).
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Config selects and locates the relational store.
type Config struct {
	Type string // sqlite (default), postgres, mysql
	Path string // sqlite file path
	URL  string // postgres/mysql DSN
}

// Querier is satisfied by both *DB and *Tx so repositories can run inside or
// outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	InsertReturningID(ctx context.Context, query string, args ...any) (int64, error)
}

// DB is a pooled connection bound to one dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects using cfg and applies the dialect's pool settings.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	dialect, ok := DialectFor(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	sqlDB, err := sql.Open(dialect.DriverName(), dialect.DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := dialect.ConfigureConnection(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	return &DB{DB: sqlDB, Dialect: dialect}, nil
}

// Wrap binds an already-open *sql.DB to a dialect.
func Wrap(sqlDB *sql.DB, kind string) (*DB, error) {
	if sqlDB == nil {
		return nil, errors.New("nil database handle")
	}
	dialect, ok := DialectFor(kind)
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %s", kind)
	}
	return &DB{DB: sqlDB, Dialect: dialect}, nil
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.DB.ExecContext(ctx, db.Dialect.RewriteQuery(query), args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.DB.QueryContext(ctx, db.Dialect.RewriteQuery(query), args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.DB.QueryRowContext(ctx, db.Dialect.RewriteQuery(query), args...)
}

// InsertReturningID runs an INSERT and returns the generated id.
func (db *DB) InsertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	return insertReturningID(ctx, db.Dialect, db.DB, query, args...)
}

// Tx is a transaction bound to the dialect of the DB that opened it.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
}

func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tx.tx.ExecContext(ctx, tx.dialect.RewriteQuery(query), args...)
}

func (tx *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return tx.tx.QueryContext(ctx, tx.dialect.RewriteQuery(query), args...)
}

func (tx *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return tx.tx.QueryRowContext(ctx, tx.dialect.RewriteQuery(query), args...)
}

func (tx *Tx) InsertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	return insertReturningID(ctx, tx.dialect, tx.tx, query, args...)
}

// WithTx runs fn in a transaction. Any error from fn, or a panic, rolls the
// transaction back so no half-written row survives.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	tx := &Tx{tx: sqlTx, dialect: db.Dialect}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertReturningID(ctx context.Context, dialect Dialect, q execQuerier, query string, args ...any) (int64, error) {
	if dialect.SupportsLastInsertId() {
		res, err := q.ExecContext(ctx, dialect.RewriteQuery(query), args...)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}

	var id int64
	if err := q.QueryRowContext(ctx, dialect.RewriteQuery(query)+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Timestamp normalizes t for storage: UTC at microsecond precision, the
// finest resolution every supported engine keeps.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// NullTimestamp converts an optional time for a nullable column.
func NullTimestamp(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: Timestamp(*t), Valid: true}
}

// TimePtr converts a scanned nullable column back to an optional time.
func TimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
