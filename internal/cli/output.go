package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/eshaffer321/recon-monitor/internal/application/recon"
)

// PrintHeader prints the application header
func PrintHeader(w io.Writer, dryRun bool) {
	mode := "PRODUCTION"
	if dryRun {
		mode = "DRY-RUN"
	}
	fmt.Fprintf(w, "recon-monitor (%s mode)\n", mode)
}

// PrintRunSummary prints the counters of a finished run
func PrintRunSummary(w io.Writer, result *recon.Result) {
	s := result.Summary
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Run %s | %s .. %s\n", result.RunID,
		result.Since.Format("2006-01-02"), result.Until.Format("2006-01-02"))

	fmt.Fprintf(w, "Stripe: charges=%d primary=%d fallback=%d unmatched=%d match_rate=%.1f%% flags=%d\n",
		s.StripeCharges, s.StripeMatchedPrimary, s.StripeMatchedFallback, s.StripeUnmatched,
		s.StripeMatchRate*100, s.StripeFlags)
	if result.Totals != nil {
		fmt.Fprintf(w, "Totals: processor_net=%.2f ledger_net=%.2f difference=%.2f valid=%t\n",
			result.Totals.ProcessorNet, result.Totals.LedgerNet, result.Totals.Difference, result.Totals.Valid)
	}
	fmt.Fprintf(w, "Cards:  rows=%d late=%d invoice_later=%d no_receipt=%d overdue=%d\n",
		s.CCRows, s.CCLateEntries, s.CCInvoiceLater, s.CCNoReceipt, s.CCOverdue)
	fmt.Fprintf(w, "FX:     rows=%d foreign=%d dcc=%d flagged=%d skipped=%d excess=%.2f\n",
		s.FXRows, s.FXForeign, s.FXDCC, s.FXFlagged, s.FXSkipped, s.FXExcessCost)
	fmt.Fprintf(w, "Alerts: %d\n", s.Alerts)

	if result.Dispatch != nil {
		d := result.Dispatch
		fmt.Fprintf(w, "Notifications: digests=%d reminders=%d deduplicated=%d failed=%d\n",
			d.Digests, d.Reminders, d.Deduplicated, d.Failed)
	}

	if len(result.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		keys := make([]string, 0, len(result.Errors))
		for k := range result.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  - %s: %s\n", k, result.Errors[k])
		}
	}

	if result.ReportDir != "" {
		fmt.Fprintf(w, "\nReports written to %s\n", result.ReportDir)
	}
}
