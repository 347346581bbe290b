package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps and slices, making tests fast and isolated.
type MockRepository struct {
	mu        sync.Mutex
	runs      map[string]*Run
	flags     map[string][]RunFlag
	reminders map[string]Reminder

	// Hooks for test assertions
	StartRunCalled    bool
	CompleteRunCalled bool
	FailRunCalled     bool
	SaveFlagsCalled   bool

	// Error injection for testing error paths
	StartRunErr    error
	CompleteRunErr error
	SaveFlagsErr   error
	ReminderErr    error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		runs:      make(map[string]*Run),
		flags:     make(map[string][]RunFlag),
		reminders: make(map[string]Reminder),
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

func (m *MockRepository) StartRun(run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StartRunCalled = true
	if m.StartRunErr != nil {
		return m.StartRunErr
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Status = RunStatusRunning
	stored := *run
	m.runs[run.ID] = &stored
	return nil
}

func (m *MockRepository) CompleteRun(runID string, summary json.RawMessage, flagCount int, reportDir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CompleteRunCalled = true
	if m.CompleteRunErr != nil {
		return m.CompleteRunErr
	}
	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	now := time.Now()
	run.CompletedAt = &now
	run.Status = RunStatusCompleted
	run.Summary = summary
	run.FlagCount = flagCount
	run.ReportDir = reportDir
	return nil
}

func (m *MockRepository) FailRun(runID string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FailRunCalled = true
	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	now := time.Now()
	run.CompletedAt = &now
	run.Status = RunStatusFailed
	run.ErrorMessage = errMsg
	return nil
}

func (m *MockRepository) GetRun(runID string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, nil
	}
	copied := *run
	return &copied, nil
}

func (m *MockRepository) ListRuns(filters RunFilters) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := make([]Run, 0, len(m.runs))
	for _, run := range m.runs {
		if filters.Status != "" && run.Status != filters.Status {
			continue
		}
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	if filters.Offset >= len(runs) {
		return []Run{}, nil
	}
	runs = runs[filters.Offset:]
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *MockRepository) SaveFlags(runID string, flags []RunFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveFlagsCalled = true
	if m.SaveFlagsErr != nil {
		return m.SaveFlagsErr
	}
	stored := make([]RunFlag, len(flags))
	for i, f := range flags {
		f.RunID = runID
		stored[i] = f
	}
	m.flags[runID] = stored
	return nil
}

func (m *MockRepository) ListFlags(runID string, filters FlagFilters) ([]RunFlag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]RunFlag, 0)
	for _, f := range m.flags[runID] {
		if filters.Severity != "" && f.Severity != filters.Severity {
			continue
		}
		if filters.Category != "" && f.Category != filters.Category {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func reminderKey(runID, audience, stage, txnID string) string {
	return runID + "|" + audience + "|" + stage + "|" + txnID
}

func (m *MockRepository) MarkReminderSent(r Reminder) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ReminderErr != nil {
		return false, m.ReminderErr
	}
	key := reminderKey(r.RunID, r.Audience, r.Stage, r.TransactionID)
	if _, ok := m.reminders[key]; ok {
		return false, nil
	}
	m.reminders[key] = r
	return true, nil
}

func (m *MockRepository) ReminderSent(runID, audience, stage, transactionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ReminderErr != nil {
		return false, m.ReminderErr
	}
	_, ok := m.reminders[reminderKey(runID, audience, stage, transactionID)]
	return ok, nil
}

func (m *MockRepository) Close() error {
	return nil
}

// ReminderCount returns the number of recorded reminders
func (m *MockRepository) ReminderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reminders)
}
