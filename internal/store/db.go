package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// DB wraps the raw *sql.DB handle and applies the orchestrator's migration
// set on open. Grounded on the teacher's internal/db/sqlite.go: WAL mode,
// foreign keys on, a schema_migrations table tracking applied versions.
type DB struct {
	sql    *sql.DB
	path   string
	logger zerolog.Logger
}

// Open creates (or reuses) a SQLite database file at path, enables WAL
// mode and foreign-key enforcement, and applies any unapplied migrations.
func Open(path string, logger zerolog.Logger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1) // single-writer discipline; WAL still allows concurrent readers

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	db := &DB{sql: sqlDB, path: path, logger: logger}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) Exec(query string, args ...any) (sql.Result, error) {
	return d.sql.Exec(query, args...)
}

func (d *DB) Query(query string, args ...any) (*sql.Rows, error) {
	return d.sql.Query(query, args...)
}

func (d *DB) QueryRow(query string, args ...any) *sql.Row {
	return d.sql.QueryRow(query, args...)
}

func (d *DB) Begin() (*sql.Tx, error) {
	return d.sql.Begin()
}

func (d *DB) migrate() error {
	if _, err := d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return err
	}

	var current int
	_ = d.sql.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current)

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := d.sql.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d record: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		d.logger.Info().Int("version", m.version).Msg("applied migration")
	}
	return nil
}
