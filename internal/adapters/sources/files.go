package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/eshaffer321/recon-monitor/internal/domain/matcher"
	"github.com/eshaffer321/recon-monitor/internal/domain/txn"
	"github.com/eshaffer321/recon-monitor/internal/domain/validator"
)

// Export file names inside a data directory.
const (
	ChargesFile   = "stripe_charges.json"
	RefundsFile   = "stripe_refunds.json"
	WebhooksFile  = "stripe_webhooks.json"
	PostingsFile  = "rms_postings.json"
	CardFile      = "rms_cc_export.json"
	ReceiptsFile  = "receipts.csv"
	StatementsDir = "statements"
)

// flexTime decodes RFC3339 strings, bare dates, naive timestamps (in the
// decoder's zone) and Unix seconds.
type flexTime struct {
	raw string
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if unq, err := jsonString(b); err == nil {
		s = unq
	}
	f.raw = s
	return nil
}

func jsonString(b []byte) (string, error) {
	var s string
	err := json.Unmarshal(b, &s)
	return s, err
}

func (f flexTime) in(loc *time.Location) (time.Time, bool) {
	if f.raw == "" {
		return time.Time{}, false
	}
	t, err := ParseTime(f.raw, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

type chargeRow struct {
	ChargeID  string   `json:"charge_id"`
	InvoiceID string   `json:"invoice_id"`
	Email     string   `json:"email"`
	Amount    float64  `json:"amount"`
	Currency  string   `json:"currency"`
	Created   flexTime `json:"created"`
	Status    string   `json:"status"`
}

type refundRow struct {
	RefundID string   `json:"refund_id"`
	ChargeID string   `json:"charge_id"`
	Amount   float64  `json:"amount"`
	Currency string   `json:"currency"`
	Created  flexTime `json:"created"`
}

type webhookRow struct {
	EventID   string   `json:"event_id"`
	ChargeID  string   `json:"charge_id"`
	InvoiceID string   `json:"invoice_id"`
	Created   flexTime `json:"created"`
}

type postingRow struct {
	RMSID          string   `json:"rms_id"`
	InvoiceNo      string   `json:"invoice_no"`
	Email          string   `json:"email"`
	AmountINR      float64  `json:"amount_inr"`
	Currency       string   `json:"currency"`
	PostedAt       flexTime `json:"posted_at"`
	StripeChargeID string   `json:"stripe_charge_id"`
}

type cardRow struct {
	ID           string   `json:"id"`
	Date         flexTime `json:"transaction_date"`
	Vendor       string   `json:"vendor"`
	CardLast4    string   `json:"card_last4"`
	Cardholder   string   `json:"cardholder"`
	Amount       float64  `json:"amount"`
	HasReceipt   bool     `json:"has_receipt"`
	InvoiceLater bool     `json:"invoice_later"`
	EnteredAt    flexTime `json:"entered_at"`
	EnteredBy    string   `json:"entered_by"`
}

// readJSON decodes a JSON array file. A missing file yields no rows.
func readJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	var rows []T
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

// FileStripe serves processor exports from a data directory.
type FileStripe struct {
	dir string
	loc *time.Location
}

// NewFileStripe creates a file-backed processor source.
func NewFileStripe(dir string, loc *time.Location) *FileStripe {
	return &FileStripe{dir: dir, loc: orUTC(loc)}
}

// Charges returns charges created within the window.
func (s *FileStripe) Charges(_ context.Context, since, until time.Time) ([]matcher.Charge, error) {
	rows, err := readJSON[chargeRow](filepath.Join(s.dir, ChargesFile))
	if err != nil {
		return nil, err
	}
	out := make([]matcher.Charge, 0, len(rows))
	for _, r := range rows {
		created, ok := r.Created.in(s.loc)
		if ok && !inWindow(created, since, until) {
			continue
		}
		out = append(out, matcher.Charge{
			ID:        r.ChargeID,
			InvoiceID: r.InvoiceID,
			Email:     r.Email,
			Amount:    r.Amount,
			Currency:  strings.ToUpper(r.Currency),
			Created:   created,
			Status:    r.Status,
		})
	}
	return out, nil
}

// Refunds returns refunds created within the window.
func (s *FileStripe) Refunds(_ context.Context, since, until time.Time) ([]matcher.Refund, error) {
	rows, err := readJSON[refundRow](filepath.Join(s.dir, RefundsFile))
	if err != nil {
		return nil, err
	}
	out := make([]matcher.Refund, 0, len(rows))
	for _, r := range rows {
		created, ok := r.Created.in(s.loc)
		if ok && !inWindow(created, since, until) {
			continue
		}
		out = append(out, matcher.Refund{
			ID:       r.RefundID,
			ChargeID: r.ChargeID,
			Amount:   r.Amount,
			Currency: strings.ToUpper(r.Currency),
			Created:  created,
		})
	}
	return out, nil
}

// WebhookEvents returns delivered events within the window.
func (s *FileStripe) WebhookEvents(_ context.Context, since, until time.Time) ([]matcher.WebhookEvent, error) {
	rows, err := readJSON[webhookRow](filepath.Join(s.dir, WebhooksFile))
	if err != nil {
		return nil, err
	}
	out := make([]matcher.WebhookEvent, 0, len(rows))
	for _, r := range rows {
		created, ok := r.Created.in(s.loc)
		if ok && !inWindow(created, since, until) {
			continue
		}
		out = append(out, matcher.WebhookEvent{
			ID:        r.EventID,
			ChargeID:  r.ChargeID,
			InvoiceID: r.InvoiceID,
			Created:   created,
		})
	}
	return out, nil
}

// FileRMS serves RMS exports from a data directory.
type FileRMS struct {
	dir string
	loc *time.Location
}

// NewFileRMS creates a file-backed RMS source.
func NewFileRMS(dir string, loc *time.Location) *FileRMS {
	return &FileRMS{dir: dir, loc: orUTC(loc)}
}

// Postings returns ledger rows posted within the window.
func (s *FileRMS) Postings(_ context.Context, since, until time.Time) ([]matcher.Posting, error) {
	rows, err := readJSON[postingRow](filepath.Join(s.dir, PostingsFile))
	if err != nil {
		return nil, err
	}
	out := make([]matcher.Posting, 0, len(rows))
	for _, r := range rows {
		posted, ok := r.PostedAt.in(s.loc)
		if ok && !inWindow(posted, since, until) {
			continue
		}
		out = append(out, matcher.Posting{
			ID:        r.RMSID,
			InvoiceNo: r.InvoiceNo,
			Email:     r.Email,
			Amount:    r.AmountINR,
			Currency:  strings.ToUpper(r.Currency),
			PostedAt:  posted,
			ChargeID:  r.StripeChargeID,
		})
	}
	return out, nil
}

// CardTransactions returns the open card export. Only the upper bound of
// the window applies: invoice-later items must keep ageing past the run
// window.
func (s *FileRMS) CardTransactions(_ context.Context, _, until time.Time) ([]txn.CardTransaction, error) {
	rows, err := readJSON[cardRow](filepath.Join(s.dir, CardFile))
	if err != nil {
		return nil, err
	}
	out := make([]txn.CardTransaction, 0, len(rows))
	for _, r := range rows {
		date, ok := r.Date.in(s.loc)
		if ok && !until.IsZero() && date.After(until) {
			continue
		}
		ct := txn.CardTransaction{
			ID:           r.ID,
			Date:         date,
			Vendor:       r.Vendor,
			CardLast4:    r.CardLast4,
			Cardholder:   r.Cardholder,
			Amount:       r.Amount,
			HasReceipt:   r.HasReceipt,
			InvoiceLater: r.InvoiceLater,
			EnteredBy:    r.EnteredBy,
		}
		if entered, ok := r.EnteredAt.in(s.loc); ok {
			ct.EnteredAt = &entered
		}
		out = append(out, ct)
	}
	return out, nil
}

// StatementDir parses every CSV statement in a directory.
type StatementDir struct {
	dir      string
	registry *Registry
	receipts *ReceiptIndex
	logger   *slog.Logger
}

// NewStatementDir creates a statement source. receipts may be nil.
func NewStatementDir(dir string, registry *Registry, receipts *ReceiptIndex, logger *slog.Logger) *StatementDir {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatementDir{dir: dir, registry: registry, receipts: receipts, logger: logger}
}

// Statement returns the records of every statement file, in file-name
// order then line order, restricted to the window. A file that cannot be
// read is skipped and its error returned alongside the other files'
// records. A file missing a required column aborts with a
// *validator.StructuralError.
func (s *StatementDir) Statement(_ context.Context, since, until time.Time) ([]txn.Record, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var (
		out  []txn.Record
		errs []error
	)
	for _, name := range names {
		f, err := os.Open(filepath.Join(s.dir, name))
		if err != nil {
			errs = append(errs, fmt.Errorf("open %s: %w", name, err))
			continue
		}
		result, err := s.registry.Parse(name, f)
		f.Close()
		if validator.IsStructural(err) {
			return nil, err
		}
		if err != nil {
			s.logger.Warn("skipped statement file", "file", name, "error", err)
			errs = append(errs, err)
			continue
		}

		for _, rej := range result.Rejected {
			s.logger.Warn("rejected statement row", "file", name, "line", rej.Line, "error", rej.Err)
		}
		s.logger.Debug("parsed statement", "file", name, "profile", result.Profile, "records", len(result.Records))

		for _, rec := range result.Records {
			if !inWindow(rec.Timestamp, since, until) {
				continue
			}
			if s.receipts != nil && rec.ReceiptCurrency == "" {
				rec.ReceiptCurrency = s.receipts.Lookup(rec.Counterparty, rec.Timestamp)
			}
			out = append(out, rec)
		}
	}
	return out, errors.Join(errs...)
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
