package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/sirupsen/logrus"
)

//go:embed schema/postgres.sql
var postgresSchema string

//go:embed schema/sqlite.sql
var sqliteSchema string

// PostgresSchema returns the analysis_runs DDL for PostgreSQL.
func PostgresSchema() string {
	return postgresSchema
}

// SQLiteSchema returns the analysis_runs DDL for SQLite.
func SQLiteSchema() string {
	return sqliteSchema
}

// EnsureSchema creates the analysis_runs table and its indexes when they are
// missing. Every statement is idempotent.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("creating analysis schema: %w", err)
	}
	db.log.Info("Analysis schema ensured")
	return nil
}

// EnsureSQLiteSchema is the SQLite counterpart of DB.EnsureSchema.
func EnsureSQLiteSchema(ctx context.Context, db *sql.DB, logger *logrus.Logger) error {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("creating analysis schema: %w", err)
	}
	logger.Debug("SQLite analysis schema ensured")
	return nil
}
