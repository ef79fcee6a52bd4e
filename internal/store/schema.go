package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"thumbcache/internal/logging"
	"thumbcache/internal/metrics"
)

// schemaVersion is stored in metadata.schema_version.
//
//	1: key, preview, size, modified, resolution, partial_hash, rating
//	2: separate tag column, rating limited to 0-5
const schemaVersion = 2

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS thumbnails (
		key TEXT PRIMARY KEY,
		preview BLOB,
		size INTEGER NOT NULL DEFAULT 0,
		modified INTEGER NOT NULL DEFAULT 0,
		resolution TEXT NOT NULL DEFAULT '',
		partial_hash TEXT NOT NULL DEFAULT '',
		rating INTEGER NOT NULL DEFAULT 0,
		tag INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	if err := s.runMigrations(ctx); err != nil {
		return err
	}

	// Created after migrations: legacy tables may only just have gained
	// partial_hash.
	_, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_thumbnails_partial_hash ON thumbnails(partial_hash)`)
	return err
}

// runMigrations brings stores written by older versions up to date.
func (s *Store) runMigrations(ctx context.Context) error {
	// Migration 1: columns missing from the earliest stores.
	for _, col := range []struct{ name, ddl string }{
		{"partial_hash", `ALTER TABLE thumbnails ADD COLUMN partial_hash TEXT NOT NULL DEFAULT ''`},
		{"updated_at", `ALTER TABLE thumbnails ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0`},
	} {
		if _, err := s.ensureColumn(ctx, s.db, col.name, col.ddl); err != nil {
			return err
		}
	}

	// Migration 2: legacy stores kept the tag in the tens digit of rating.
	// The column and the split land in one transaction so a store is never
	// left with the column but unsplit values.
	if err := s.migrateTag(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, strconv.Itoa(schemaVersion))
	return err
}

func (s *Store) migrateTag(ctx context.Context) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
			}
		}
	}()

	added, err := s.ensureColumn(ctx, tx, "tag", `ALTER TABLE thumbnails ADD COLUMN tag INTEGER NOT NULL DEFAULT 0`)
	if err != nil {
		return err
	}
	if added {
		res, err := tx.ExecContext(ctx, `
			UPDATE thumbnails
			SET tag = rating / 10, rating = rating % 10
			WHERE rating >= 10
		`)
		if err != nil {
			return fmt.Errorf("failed to split legacy ratings: %w", err)
		}
		n, _ := res.RowsAffected()
		logging.Info("Migration complete: tag column added to %s, %d legacy ratings split", s.path, n)
	}

	return tx.Commit()
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ensureColumn adds a column to thumbnails when it is missing.
func (s *Store) ensureColumn(ctx context.Context, db execQuerier, column, ddl string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('thumbnails')
		WHERE name = ?
	`, column).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for %s column: %w", column, err)
	}
	if exists {
		return false, nil
	}

	logging.Info("Migrating store %s: adding %s column", s.path, column)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return false, fmt.Errorf("failed to add %s column: %w", column, err)
	}
	metrics.StoreMigrationsTotal.Inc()
	return true, nil
}

// checkSchema verifies a read-only store was written by this version.
func (s *Store) checkSchema(ctx context.Context) error {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = 'schema_version'`).Scan(&value)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if v, _ := strconv.Atoi(value); v < schemaVersion {
		return fmt.Errorf("store schema version %s needs migration", value)
	}
	return nil
}
