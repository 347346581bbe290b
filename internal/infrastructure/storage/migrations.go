package storage

import (
	"database/sql"
	"fmt"
)

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "add_recon_runs_table",
		Up:      migration001AddReconRuns,
	},
	{
		Version: 2,
		Name:    "add_run_flags_table",
		Up:      migration002AddRunFlags,
	},
	{
		Version: 3,
		Name:    "add_reminder_log_table",
		Up:      migration003AddReminderLog,
	},
}

// runMigrations executes all pending migrations
func (s *Storage) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue
		}

		s.logger.Debug("running migration", "version", migration.Version, "name", migration.Name)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		_, err = tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, migration.Version, migration.Name)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table
func (s *Storage) ensureMigrationsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	_, err := s.db.Exec(query)
	return err
}

// getAppliedMigrations returns a set of applied migration versions
func (s *Storage) getAppliedMigrations() (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// ================================================================
// MIGRATION FUNCTIONS
// ================================================================

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

func migration001AddReconRuns(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE IF NOT EXISTS recon_runs (
			id TEXT PRIMARY KEY,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			since_date TEXT,
			until_date TEXT,
			dry_run BOOLEAN DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'running',
			flag_count INTEGER DEFAULT 0,
			report_dir TEXT DEFAULT '',
			error_message TEXT DEFAULT '',
			summary_json TEXT DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recon_runs_started_at ON recon_runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_recon_runs_status ON recon_runs(status)`,
	})
}

func migration002AddRunFlags(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE IF NOT EXISTS run_flags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES recon_runs(id) ON DELETE CASCADE,
			flag_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			category TEXT NOT NULL,
			charge_id TEXT DEFAULT '',
			invoice_id TEXT DEFAULT '',
			entity_keys_json TEXT DEFAULT '[]',
			reason TEXT DEFAULT '',
			remediation TEXT DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_flags_run_id ON run_flags(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_run_flags_severity ON run_flags(severity)`,
	})
}

func migration003AddReminderLog(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE IF NOT EXISTS reminder_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			audience TEXT NOT NULL,
			stage TEXT NOT NULL,
			txn_id TEXT NOT NULL,
			sent_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(run_id, audience, stage, txn_id)
		)`,
	})
}
