package storage

import (
	"encoding/json"
	"time"
)

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run represents a reconciliation run record
type Run struct {
	ID           string          `json:"id"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Since        string          `json:"since"`
	Until        string          `json:"until"`
	DryRun       bool            `json:"dry_run"`
	Status       string          `json:"status"`
	FlagCount    int             `json:"flag_count"`
	ReportDir    string          `json:"report_dir,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Summary      json.RawMessage `json:"summary,omitempty"`
}

// RunFlag is a persisted discrepancy flag
type RunFlag struct {
	RunID       string   `json:"run_id"`
	FlagID      string   `json:"flag_id"`
	Severity    string   `json:"severity"`
	Category    string   `json:"category"`
	ChargeID    string   `json:"charge_id,omitempty"`
	InvoiceID   string   `json:"invoice_id,omitempty"`
	EntityKeys  []string `json:"entity_keys"`
	Reason      string   `json:"reason"`
	Remediation string   `json:"remediation"`
}

// Reminder is one card ageing nudge sent to an audience
type Reminder struct {
	RunID         string    `json:"run_id"`
	Audience      string    `json:"audience"`
	Stage         string    `json:"stage"`
	TransactionID string    `json:"transaction_id"`
	SentAt        time.Time `json:"sent_at"`
}
