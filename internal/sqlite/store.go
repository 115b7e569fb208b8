// File path: internal/sqlite/store.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store wraps a pooled sqlx.DB connection to the SQLite reporting catalog.
type Store struct {
	db *sqlx.DB
}

// Open constructs a Store backed by the SQLite database at the provided
// path. The schema is automatically migrated on first use.
func Open(path string) (*Store, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		cfg.Path = trimmed
	}
	return OpenWithConfig(cfg)
}

// OpenWithConfig constructs a Store using the provided configuration.
func OpenWithConfig(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path required")
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}
	busy := int(cfg.BusyTimeout / time.Millisecond)
	if busy <= 0 {
		busy = 5000
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", abs, busy)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingTimeout := cfg.BusyTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying sqlx.DB for advanced callers.
func (s *Store) DB() *sqlx.DB {
	if s == nil {
		return nil
	}
	return s.db
}

var errNilStore = errors.New("sqlite store not initialised")

func (s *Store) ensureReady() error {
	if s == nil || s.db == nil {
		return errNilStore
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

// Connection pragmas (busy timeout, foreign keys, WAL) travel in the DSN so
// they apply to every pooled connection; journal_mode cannot change inside
// the migration transaction anyway.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS programs (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                name TEXT NOT NULL,
                agency_id TEXT NOT NULL,
                initiative_id TEXT,
                is_deleted INTEGER NOT NULL DEFAULT 0,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS reporting_periods (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                period_type TEXT NOT NULL,
                period_number INTEGER NOT NULL,
                year INTEGER NOT NULL,
                is_open INTEGER NOT NULL DEFAULT 1,
                UNIQUE(period_type, period_number, year)
        );`,
	`CREATE TABLE IF NOT EXISTS program_submissions (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                program_id INTEGER NOT NULL,
                period_id INTEGER NOT NULL,
                is_draft INTEGER NOT NULL DEFAULT 1,
                content TEXT NOT NULL DEFAULT '{}',
                submitted_by TEXT,
                submitted_at DATETIME,
                is_deleted INTEGER NOT NULL DEFAULT 0,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                FOREIGN KEY(program_id) REFERENCES programs(id),
                FOREIGN KEY(period_id) REFERENCES reporting_periods(id)
        );`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_submissions_live
                ON program_submissions(program_id, period_id) WHERE is_deleted = 0;`,
	`CREATE TABLE IF NOT EXISTS program_agency_assignments (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                program_id INTEGER NOT NULL,
                agency_id TEXT NOT NULL,
                role TEXT NOT NULL,
                is_active INTEGER NOT NULL DEFAULT 1,
                FOREIGN KEY(program_id) REFERENCES programs(id)
        );`,
	`CREATE TABLE IF NOT EXISTS user_restrictions (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                user_id TEXT NOT NULL,
                program_id INTEGER,
                max_role TEXT NOT NULL,
                is_active INTEGER NOT NULL DEFAULT 1
        );`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                event_id TEXT NOT NULL UNIQUE,
                operation TEXT NOT NULL,
                entity_type TEXT NOT NULL,
                entity_id INTEGER NOT NULL,
                actor_user_id TEXT,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS audit_field_changes (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                audit_log_id INTEGER NOT NULL,
                field_name TEXT NOT NULL,
                field_type TEXT NOT NULL,
                change_type TEXT NOT NULL,
                old_value TEXT,
                new_value TEXT,
                FOREIGN KEY(audit_log_id) REFERENCES audit_logs(id) ON DELETE CASCADE
        );`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_program ON program_submissions(program_id);`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_program_agency ON program_agency_assignments(program_id, agency_id);`,
	`CREATE INDEX IF NOT EXISTS idx_restrictions_user ON user_restrictions(user_id);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_logs(entity_type, entity_id);`,
	`CREATE INDEX IF NOT EXISTS idx_field_changes_log ON audit_field_changes(audit_log_id);`,
	`CREATE INDEX IF NOT EXISTS idx_field_changes_name ON audit_field_changes(field_name);`,
	`CREATE VIEW IF NOT EXISTS submission_field_history AS
                SELECT
                        al.entity_id,
                        s.program_id,
                        fc.field_name,
                        fc.field_type,
                        fc.change_type,
                        fc.old_value,
                        fc.new_value,
                        al.created_at
                FROM audit_field_changes fc
                INNER JOIN audit_logs al ON al.id = fc.audit_log_id
                INNER JOIN program_submissions s ON s.id = al.entity_id
                WHERE al.entity_type = 'submission';`,
}
