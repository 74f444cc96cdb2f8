package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrSchemaMismatch indicates a component's stored schema version does not
// match the version compiled into the binary.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const versionTableSQL = `CREATE TABLE IF NOT EXISTS schema_version (
    component TEXT PRIMARY KEY,
    version INTEGER NOT NULL
)`

// EnsureSQLiteSchema creates ddl for component on first use and verifies the
// recorded version afterwards. Several components share one database file, so
// versions are tracked per component.
func EnsureSQLiteSchema(ctx context.Context, db *sql.DB, component string, version int, ddl string) error {
	if _, err := ExecWithRetry(ctx, db, versionTableSQL); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current int
	err := db.QueryRowContext(ctx,
		"SELECT version FROM schema_version WHERE component = ?", component,
	).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return createSQLiteSchema(ctx, db, component, version, ddl)
	case err != nil:
		return fmt.Errorf("read %s schema version: %w", component, err)
	}

	if current != version {
		return fmt.Errorf("%w: %s has version %d, expected %d (delete the database to recreate it)",
			ErrSchemaMismatch, component, current, version)
	}
	return nil
}

func createSQLiteSchema(ctx context.Context, db *sql.DB, component string, version int, ddl string) error {
	return RetryOnBusy(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create %s schema: %w", component, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_version (component, version) VALUES (?, ?)", component, version,
		); err != nil {
			return fmt.Errorf("record %s schema version: %w", component, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s schema: %w", component, err)
		}
		return nil
	})
}
