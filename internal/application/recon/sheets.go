package recon

import (
	"strings"

	"github.com/eshaffer321/recon-monitor/internal/adapters/report"
)

// Sheet names
const (
	SheetSummary       = "Summary"
	SheetStripeMatches = "Stripe_Matches"
	SheetStripeFlags   = "Stripe_Flags"
	SheetCCAnnotated   = "CC_Annotated"
	SheetFXAnnotated   = "FX_Annotated"
)

func buildSheets(r *Result) []report.Sheet {
	return []report.Sheet{
		summarySheet(r.Summary),
		matchesSheet(r),
		flagsSheet(r),
		ccSheet(r),
		fxSheet(r),
	}
}

func summarySheet(s Summary) report.Sheet {
	return report.Sheet{
		Name: SheetSummary,
		Columns: []string{
			"run_id", "run_ts", "since", "until", "dry_run",
			"stripe_charges", "stripe_matched_primary", "stripe_matched_fallback", "stripe_unmatched",
			"stripe_match_rate", "stripe_flags", "stripe_totals_difference",
			"cc_rows", "cc_late_entries", "cc_invoice_later", "cc_no_receipt", "cc_overdue",
			"fx_rows", "fx_foreign", "fx_dcc", "fx_flagged", "fx_skipped", "fx_excess_cost",
			"alerts", "block_errors",
		},
		Rows: [][]any{{
			s.RunID, s.RunTS, s.Since, s.Until, s.DryRun,
			s.StripeCharges, s.StripeMatchedPrimary, s.StripeMatchedFallback, s.StripeUnmatched,
			s.StripeMatchRate, s.StripeFlags, s.StripeTotalsDifference,
			s.CCRows, s.CCLateEntries, s.CCInvoiceLater, s.CCNoReceipt, s.CCOverdue,
			s.FXRows, s.FXForeign, s.FXDCC, s.FXFlagged, s.FXSkipped, s.FXExcessCost,
			s.Alerts, s.BlockErrors,
		}},
	}
}

func matchesSheet(r *Result) report.Sheet {
	sheet := report.Sheet{
		Name:    SheetStripeMatches,
		Columns: []string{"charge_id", "invoice_id", "posting_id", "tier", "amount_delta", "date_delta_days", "ambiguous"},
	}
	for _, m := range r.Matches {
		var delta, days any
		if m.Matched() {
			delta, days = m.AmountDelta, m.DateDeltaDays
		}
		sheet.Rows = append(sheet.Rows, []any{
			m.ChargeID, m.InvoiceID, m.PostingID, string(m.Tier), delta, days, m.Ambiguous,
		})
	}
	return sheet
}

func flagsSheet(r *Result) report.Sheet {
	sheet := report.Sheet{
		Name:    SheetStripeFlags,
		Columns: []string{"flag_id", "severity", "category", "charge_id", "invoice_id", "entity_keys", "reason", "remediation"},
	}
	for _, f := range r.Flags {
		sheet.Rows = append(sheet.Rows, []any{
			f.ID, string(f.Severity), string(f.Category), f.ChargeID, f.InvoiceID,
			strings.Join(f.EntityKeys, ";"), f.Reason, f.Remediation,
		})
	}
	return sheet
}

func ccSheet(r *Result) report.Sheet {
	sheet := report.Sheet{
		Name: SheetCCAnnotated,
		Columns: []string{
			"id", "date", "vendor", "cardholder", "card_last4", "amount", "has_receipt", "invoice_later",
			"entered_at", "entered_by", "sla_due_date", "is_overdue", "working_days_elapsed",
			"invoice_later_age_days", "stage", "flag",
		},
	}
	for _, c := range r.CC {
		t, a := c.Transaction, c.Ageing
		sheet.Rows = append(sheet.Rows, []any{
			t.ID, t.Date, t.Vendor, t.Cardholder, t.CardLast4, t.Amount, t.HasReceipt, t.InvoiceLater,
			t.EnteredAt, t.EnteredBy, a.SLADueDate, a.IsOverdue, a.WorkingDaysElapsed,
			a.InvoiceLaterAgeDays, string(a.Stage), string(a.Flag),
		})
	}
	return sheet
}

func fxSheet(r *Result) report.Sheet {
	sheet := report.Sheet{
		Name: SheetFXAnnotated,
		Columns: []string{
			"id", "timestamp", "narration", "local_amount", "foreign_amount", "card_last4",
			"fx_is_foreign", "fx_is_dcc", "fx_currency", "fx_source", "fx_confidence", "fx_notes",
			"interbank_rate", "expected_local", "actual_rate", "markup_pct", "deviation",
			"markup_status", "markup_risk", "markup_reason",
		},
	}
	for _, f := range r.FX {
		rec, c, m := f.Record, f.Context, f.Markup
		sheet.Rows = append(sheet.Rows, []any{
			rec.ID, rec.Timestamp, rec.Narration, rec.LocalAmount, rec.ForeignAmount, rec.CardLast4,
			c.IsForeign, c.IsDCC, c.Currency, string(c.Source), c.Confidence, c.Notes,
			f.Rate, f.Expected, m.ActualRate, m.MarkupPct, m.Deviation,
			string(m.Status), string(m.Risk), m.Reason,
		})
	}
	return sheet
}
