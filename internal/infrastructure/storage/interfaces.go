package storage

import "encoding/json"

// Repository defines the complete storage interface.
// This interface allows swapping implementations and makes testing with
// mocks straightforward.
type Repository interface {
	RunRepository
	FlagRepository
	ReminderRepository
	Close() error
}

// RunRepository handles reconciliation run tracking
type RunRepository interface {
	// StartRun records the start of a run. run.ID must be set by the caller.
	StartRun(run *Run) error

	// CompleteRun records a finished run with its summary counters
	CompleteRun(runID string, summary json.RawMessage, flagCount int, reportDir string) error

	// FailRun records a run that stopped on a fatal error
	FailRun(runID string, errMsg string) error

	// GetRun retrieves a run by ID. Returns nil, nil when the run does not exist.
	GetRun(runID string) (*Run, error)

	// ListRuns returns recent runs, newest first
	ListRuns(filters RunFilters) ([]Run, error)
}

// RunFilters defines filters for listing runs
type RunFilters struct {
	Status string // Filter by status (empty = all)
	Limit  int    // Max results (0 = default 20)
	Offset int
}

// FlagRepository stores the discrepancy flags raised by a run
type FlagRepository interface {
	// SaveFlags replaces the stored flags of a run
	SaveFlags(runID string, flags []RunFlag) error

	// ListFlags returns the flags of a run in the order they were raised
	ListFlags(runID string, filters FlagFilters) ([]RunFlag, error)
}

// FlagFilters narrows ListFlags
type FlagFilters struct {
	Severity string
	Category string
}

// ReminderRepository deduplicates card ageing reminders
type ReminderRepository interface {
	// MarkReminderSent records a reminder. It reports false when the same
	// reminder was already recorded.
	MarkReminderSent(r Reminder) (bool, error)

	// ReminderSent checks whether a reminder was already recorded
	ReminderSent(runID, audience, stage, transactionID string) (bool, error)
}
