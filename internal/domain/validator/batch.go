// Package validator provides structural checks that run before any
// reconciliation work.
//
// A batch is structurally broken when a required field is absent from every
// row of a non-empty input, e.g. an export whose date column never made it
// through ingestion. Such a run must abort: matching against zero dates would
// produce a flood of meaningless flags. Individual rows missing a value are
// not structural failures; they surface as skipped or unmatched results.
package validator

import (
	"errors"
	"fmt"

	"github.com/eshaffer321/recon-monitor/internal/domain/matcher"
	"github.com/eshaffer321/recon-monitor/internal/domain/txn"
)

// StructuralError names the input and field that are missing entirely.
type StructuralError struct {
	Input string
	Field string
	Rows  int
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: required field %q missing from all %d rows", e.Input, e.Field, e.Rows)
}

// Batch is every input of a run.
type Batch struct {
	Charges    []matcher.Charge
	Refunds    []matcher.Refund
	Postings   []matcher.Posting
	Webhooks   []matcher.WebhookEvent
	Statement  []txn.Record
	CardExport []txn.CardTransaction
}

// ValidateBatch returns every structural failure joined, or nil.
func ValidateBatch(b Batch) error {
	var errs []error

	check := func(input, field string, rows int, present func(i int) bool) {
		if rows == 0 {
			return
		}
		for i := 0; i < rows; i++ {
			if present(i) {
				return
			}
		}
		errs = append(errs, &StructuralError{Input: input, Field: field, Rows: rows})
	}

	check("stripe charges", "id", len(b.Charges), func(i int) bool { return b.Charges[i].ID != "" })
	check("stripe charges", "created", len(b.Charges), func(i int) bool { return !b.Charges[i].Created.IsZero() })
	check("stripe refunds", "charge", len(b.Refunds), func(i int) bool { return b.Refunds[i].ChargeID != "" })
	check("rms postings", "posted_at", len(b.Postings), func(i int) bool { return !b.Postings[i].PostedAt.IsZero() })
	check("webhook log", "charge_id", len(b.Webhooks), func(i int) bool { return b.Webhooks[i].ChargeID != "" })
	check("bank statement", "timestamp", len(b.Statement), func(i int) bool { return !b.Statement[i].Timestamp.IsZero() })
	check("card export", "date", len(b.CardExport), func(i int) bool { return !b.CardExport[i].Date.IsZero() })

	return errors.Join(errs...)
}

// IsStructural reports whether err carries a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}
