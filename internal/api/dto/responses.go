package dto

import (
	"encoding/json"
	"time"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Database  string `json:"database,omitempty"`
}

// RunResponse represents a stored reconciliation run.
type RunResponse struct {
	ID           string          `json:"id"`
	StartedAt    string          `json:"started_at"`
	CompletedAt  string          `json:"completed_at,omitempty"`
	Since        string          `json:"since"`
	Until        string          `json:"until"`
	DryRun       bool            `json:"dry_run"`
	Status       string          `json:"status"`
	FlagCount    int             `json:"flag_count"`
	ReportDir    string          `json:"report_dir,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Summary      json.RawMessage `json:"summary,omitempty"`
}

// RunListResponse is returned when listing runs.
type RunListResponse struct {
	Runs   []RunResponse `json:"runs"`
	Count  int           `json:"count"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// FlagResponse represents one discrepancy flag of a run.
type FlagResponse struct {
	FlagID      string   `json:"flag_id"`
	Severity    string   `json:"severity"`
	Category    string   `json:"category"`
	ChargeID    string   `json:"charge_id,omitempty"`
	InvoiceID   string   `json:"invoice_id,omitempty"`
	EntityKeys  []string `json:"entity_keys"`
	Reason      string   `json:"reason"`
	Remediation string   `json:"remediation"`
}

// FlagListResponse is returned when listing a run's flags.
type FlagListResponse struct {
	RunID string         `json:"run_id"`
	Flags []FlagResponse `json:"flags"`
	Count int            `json:"count"`
}

// StartRunResponse is returned when a run job is started.
type StartRunResponse struct {
	JobID  string `json:"job_id"`
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// JobResponse represents a run job's status.
type JobResponse struct {
	JobID       string            `json:"job_id"`
	RunID       string            `json:"run_id"`
	Status      string            `json:"status"`
	DryRun      bool              `json:"dry_run"`
	StartedAt   string            `json:"started_at"`
	CompletedAt *string           `json:"completed_at,omitempty"`
	Summary     any               `json:"summary,omitempty"`
	ReportDir   string            `json:"report_dir,omitempty"`
	BlockErrors map[string]string `json:"block_errors,omitempty"`
	Error       *string           `json:"error,omitempty"`
}

// JobListResponse lists run jobs.
type JobListResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Count int           `json:"count"`
}

// MessageResponse is a generic message response.
type MessageResponse struct {
	Message string `json:"message"`
}

// AnalyzeRecordResponse is the FX classification and markup check of one line.
type AnalyzeRecordResponse struct {
	ID            string   `json:"id"`
	IsForeign     bool     `json:"fx_is_foreign"`
	IsDCC         bool     `json:"fx_is_dcc"`
	Currency      string   `json:"fx_currency,omitempty"`
	Source        string   `json:"fx_source"`
	Confidence    float64  `json:"fx_confidence"`
	Notes         string   `json:"fx_notes,omitempty"`
	InterbankRate *float64 `json:"interbank_rate,omitempty"`
	ExpectedLocal *float64 `json:"expected_local,omitempty"`
	ActualRate    *float64 `json:"actual_rate,omitempty"`
	MarkupPct     *float64 `json:"markup_pct,omitempty"`
	Deviation     *float64 `json:"deviation,omitempty"`
	MarkupStatus  string   `json:"markup_status"`
	MarkupRisk    string   `json:"markup_risk,omitempty"`
	Flagged       bool     `json:"flagged"`
	Reason        string   `json:"reason,omitempty"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
