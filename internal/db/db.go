// Package db is the SQLite store behind the whiteboard: it reads a day's
// lessons and writes back committed event changes.
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

var ErrEventNotFound = errors.New("event not found")

//go:embed migrations/*.sql
var migrations embed.FS

// DB wraps sql.DB for the whiteboard store.
type DB struct {
	*sql.DB
	path   string
	logger zerolog.Logger
}

// Open opens the database at path and applies pending migrations.
func Open(ctx context.Context, path string, logger *zerolog.Logger) (*DB, error) {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	l = l.With().Str("component", "db").Logger()

	sqlDB, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// sqlite allows a single writer
	sqlDB.SetMaxOpenConns(1)

	if err := migrate(ctx, sqlDB, l); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &DB{DB: sqlDB, path: path, logger: l}, nil
}

func (db *DB) Path() string {
	return db.path
}

func migrate(ctx context.Context, sqlDB *sql.DB, logger zerolog.Logger) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{logger})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// MigrationVersion reports the current schema version.
func (db *DB) MigrationVersion(ctx context.Context) (int64, error) {
	v, err := goose.GetDBVersionContext(ctx, db.DB)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

type gooseLogger struct {
	l zerolog.Logger
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.l.Debug().Msgf(format, v...)
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.l.Fatal().Msgf(format, v...)
}
