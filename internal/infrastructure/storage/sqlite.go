package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage provides SQLite database access for runs, flags and reminders.
// It implements the Repository interface.
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	return NewStorageWithLogger(dbPath, nil)
}

// NewStorageWithLogger is NewStorage with migration progress logged to logger
func NewStorageWithLogger(dbPath string, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Storage{db: db, logger: logger}

	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// StartRun records the start of a run
func (s *Storage) StartRun(run *Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Status = RunStatusRunning

	query := `
		INSERT INTO recon_runs (id, started_at, since_date, until_date, dry_run, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, run.ID, run.StartedAt.UTC(), run.Since, run.Until, run.DryRun, run.Status)
	return err
}

// CompleteRun records the completion of a run
func (s *Storage) CompleteRun(runID string, summary json.RawMessage, flagCount int, reportDir string) error {
	query := `
		UPDATE recon_runs
		SET completed_at = ?,
		    status = ?,
		    flag_count = ?,
		    report_dir = ?,
		    summary_json = ?
		WHERE id = ?
	`
	return s.updateRun(query, time.Now().UTC(), RunStatusCompleted, flagCount, reportDir, string(summary), runID)
}

// FailRun records a run that ended on a fatal error
func (s *Storage) FailRun(runID string, errMsg string) error {
	query := `
		UPDATE recon_runs
		SET completed_at = ?, status = ?, error_message = ?
		WHERE id = ?
	`
	return s.updateRun(query, time.Now().UTC(), RunStatusFailed, errMsg, runID)
}

func (s *Storage) updateRun(query string, args ...any) error {
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %v not found", args[len(args)-1])
	}
	return nil
}

const runColumns = `id, started_at, completed_at, since_date, until_date, dry_run, status,
	flag_count, report_dir, error_message, summary_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run         Run
		completedAt sql.NullTime
		summary     string
	)
	err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&completedAt,
		&run.Since,
		&run.Until,
		&run.DryRun,
		&run.Status,
		&run.FlagCount,
		&run.ReportDir,
		&run.ErrorMessage,
		&summary,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if summary != "" {
		run.Summary = json.RawMessage(summary)
	}
	return &run, nil
}

// GetRun retrieves a run by ID
func (s *Storage) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM recon_runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListRuns returns recent runs, newest first
func (s *Storage) ListRuns(filters RunFilters) ([]Run, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + runColumns + ` FROM recon_runs`
	var args []any
	if filters.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, filters.Status)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filters.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// SaveFlags replaces the stored flags of a run
func (s *Storage) SaveFlags(runID string, flags []RunFlag) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM run_flags WHERE run_id = ?`, runID); err != nil {
		_ = tx.Rollback()
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO run_flags
		(run_id, flag_id, severity, category, charge_id, invoice_id, entity_keys_json, reason, remediation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, f := range flags {
		keys, _ := json.Marshal(f.EntityKeys)
		if _, err := stmt.Exec(runID, f.FlagID, f.Severity, f.Category, f.ChargeID, f.InvoiceID, string(keys), f.Reason, f.Remediation); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to save flag %s: %w", f.FlagID, err)
		}
	}

	return tx.Commit()
}

// ListFlags returns the flags of a run in the order they were saved
func (s *Storage) ListFlags(runID string, filters FlagFilters) ([]RunFlag, error) {
	query := `
		SELECT run_id, flag_id, severity, category, charge_id, invoice_id, entity_keys_json, reason, remediation
		FROM run_flags
		WHERE run_id = ?
	`
	args := []any{runID}
	if filters.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, filters.Severity)
	}
	if filters.Category != "" {
		query += ` AND category = ?`
		args = append(args, filters.Category)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	flags := make([]RunFlag, 0)
	for rows.Next() {
		var f RunFlag
		var keys string
		if err := rows.Scan(&f.RunID, &f.FlagID, &f.Severity, &f.Category, &f.ChargeID, &f.InvoiceID, &keys, &f.Reason, &f.Remediation); err != nil {
			return nil, err
		}
		// Keys are optional enrichment; a bad blob leaves them empty
		_ = json.Unmarshal([]byte(keys), &f.EntityKeys)
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

// MarkReminderSent records a reminder, ignoring duplicates
func (s *Storage) MarkReminderSent(r Reminder) (bool, error) {
	if r.SentAt.IsZero() {
		r.SentAt = time.Now()
	}
	result, err := s.db.Exec(`
		INSERT OR IGNORE INTO reminder_log (run_id, audience, stage, txn_id, sent_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.RunID, r.Audience, r.Stage, r.TransactionID, r.SentAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReminderSent checks whether a reminder was already recorded
func (s *Storage) ReminderSent(runID, audience, stage, transactionID string) (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM reminder_log
		WHERE run_id = ? AND audience = ? AND stage = ? AND txn_id = ?
	`, runID, audience, stage, transactionID).Scan(&count)
	return count > 0, err
}
