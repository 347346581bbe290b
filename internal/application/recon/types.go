package recon

import (
	"context"
	"time"

	"github.com/eshaffer321/recon-monitor/internal/adapters/notify"
	"github.com/eshaffer321/recon-monitor/internal/adapters/report"
	"github.com/eshaffer321/recon-monitor/internal/domain/ageing"
	"github.com/eshaffer321/recon-monitor/internal/domain/alerts"
	"github.com/eshaffer321/recon-monitor/internal/domain/fx"
	"github.com/eshaffer321/recon-monitor/internal/domain/markup"
	"github.com/eshaffer321/recon-monitor/internal/domain/matcher"
	"github.com/eshaffer321/recon-monitor/internal/domain/txn"
	"github.com/eshaffer321/recon-monitor/internal/domain/validator"
)

// Block names used in Result.Errors and alerts.
const (
	BlockStripe = "stripe"
	BlockCC     = "cc"
	BlockFX     = "fx"
)

// StripeSource supplies processor data for a window.
type StripeSource interface {
	Charges(ctx context.Context, since, until time.Time) ([]matcher.Charge, error)
	Refunds(ctx context.Context, since, until time.Time) ([]matcher.Refund, error)
	WebhookEvents(ctx context.Context, since, until time.Time) ([]matcher.WebhookEvent, error)
}

// RMSSource supplies ledger postings and the card export.
type RMSSource interface {
	Postings(ctx context.Context, since, until time.Time) ([]matcher.Posting, error)
	CardTransactions(ctx context.Context, since, until time.Time) ([]txn.CardTransaction, error)
}

// StatementSource supplies canonical bank statement lines. It may return
// records together with an error for the files it could not read; a
// *validator.StructuralError aborts the run.
type StatementSource interface {
	Statement(ctx context.Context, since, until time.Time) ([]txn.Record, error)
}

// Reporter persists a run's sheets and returns where they went.
type Reporter interface {
	Write(runID string, sheets []report.Sheet) (string, error)
}

// Dispatcher delivers alerts and reminders.
type Dispatcher interface {
	Dispatch(ctx context.Context, dedupKey string, list []alerts.Alert) (notify.DispatchResult, error)
}

// Config bundles the domain settings of a run.
type Config struct {
	FX       fx.Config
	Markup   markup.Config
	Matcher  matcher.Config
	Ageing   ageing.Config
	Alerts   alerts.Config
	Location *time.Location

	// DaysBack sizes the default window when Options leaves it empty.
	DaysBack int
}

// Options holds per-run settings. Zero values are filled from the clock and
// Config.
type Options struct {
	RunID  string
	Since  time.Time
	Until  time.Time
	Now    time.Time
	DryRun bool
}

// FXRow is one analyzed statement line.
type FXRow struct {
	Record   txn.Record
	Context  fx.Context
	Rate     *float64
	Expected *float64
	Markup   markup.Result
}

// CCRow is one staged card transaction.
type CCRow struct {
	Transaction txn.CardTransaction
	Ageing      ageing.Record
}

// Summary holds the run counters.
type Summary struct {
	RunID  string    `json:"run_id"`
	RunTS  time.Time `json:"run_ts"`
	Since  time.Time `json:"since"`
	Until  time.Time `json:"until"`
	DryRun bool      `json:"dry_run"`

	StripeCharges          int     `json:"stripe_charges"`
	StripeMatchedPrimary   int     `json:"stripe_matched_primary"`
	StripeMatchedFallback  int     `json:"stripe_matched_fallback"`
	StripeUnmatched        int     `json:"stripe_unmatched"`
	StripeMatchRate        float64 `json:"stripe_match_rate"`
	StripeFlags            int     `json:"stripe_flags"`
	StripeTotalsDifference float64 `json:"stripe_totals_difference"`

	CCRows         int `json:"cc_rows"`
	CCLateEntries  int `json:"cc_late_entries"`
	CCInvoiceLater int `json:"cc_invoice_later"`
	CCNoReceipt    int `json:"cc_no_receipt"`
	CCOverdue      int `json:"cc_overdue"`

	FXRows       int     `json:"fx_rows"`
	FXForeign    int     `json:"fx_foreign"`
	FXDCC        int     `json:"fx_dcc"`
	FXFlagged    int     `json:"fx_flagged"`
	FXSkipped    int     `json:"fx_skipped"`
	FXExcessCost float64 `json:"fx_excess_cost"`

	Alerts      int `json:"alerts"`
	BlockErrors int `json:"block_errors"`
}

// Result is everything a run produced.
type Result struct {
	RunID   string
	Since   time.Time
	Until   time.Time
	Summary Summary

	Matches []matcher.MatchRecord
	Flags   []matcher.Flag
	Totals  *validator.TotalsValidation
	CC      []CCRow
	FX      []FXRow

	Alerts    []alerts.Alert
	Sheets    []report.Sheet
	ReportDir string
	Dispatch  *notify.DispatchResult

	// Errors maps a block or collaborator to the failure that emptied or
	// skipped it. The run still completes.
	Errors map[string]string
}
