package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Schema versions
const (
	// SchemaVersion1 is the bucket/key/value table.
	SchemaVersion1 = 1
	// CurrentSchemaVersion is the version written by this build.
	CurrentSchemaVersion = SchemaVersion1
)

// ErrSchemaTooNew is returned when the database was written by a newer build.
var ErrSchemaTooNew = errors.New("store: database schema is newer than this version supports")

// schemaVersion returns the stored schema version, or 0 for a fresh database.
func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var name string
	err := db.QueryRowContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: failed to check schema_version table: %w", err)
	}

	var version int
	err = db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: failed to get schema version: %w", err)
	}
	return version, nil
}

// migrate brings the database up to CurrentSchemaVersion. Each step runs
// in its own transaction together with its version row.
func migrate(ctx context.Context, db *sql.DB) error {
	version, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("%w: found v%d, supported v%d", ErrSchemaTooNew, version, CurrentSchemaVersion)
	}

	steps := []struct {
		version int
		stmts   []string
	}{
		{SchemaVersion1, []string{`
			CREATE TABLE IF NOT EXISTS kv (
				bucket TEXT NOT NULL,
				key TEXT NOT NULL,
				value BLOB NOT NULL,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (bucket, key)
			)`,
		}},
	}

	for _, step := range steps {
		if version >= step.version {
			continue
		}
		if err := applyStep(ctx, db, step.version, step.stmts); err != nil {
			return fmt.Errorf("store: migration to v%d failed: %w", step.version, err)
		}
	}
	return nil
}

func applyStep(ctx context.Context, db *sql.DB, version int, stmts []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			migrated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return tx.Commit()
}
