package sources

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/eshaffer321/recon-monitor/internal/domain/txn"
	"github.com/eshaffer321/recon-monitor/internal/domain/validator"
)

// ErrUnmappable is returned when no profile and no heuristic can map the
// statement columns onto the canonical schema.
var ErrUnmappable = errors.New("unable to map statement columns to canonical schema")

// ColumnMap names the source columns holding each canonical field.
type ColumnMap struct {
	Date      string
	Narration string
	Amount    string
	Card      string
}

func (m ColumnMap) required() []string {
	return []string{m.Date, m.Narration, m.Amount}
}

// Optional columns some exports carry.
const (
	colCurrency        = "Currency"
	colForeignAmount   = "Foreign Amount"
	colMerchantCountry = "Merchant Country"
)

// Profile is one bank's export layout. Some banks rename columns between
// export versions, so a profile may carry several maps tried in order.
type Profile struct {
	Name         string
	FilenameHint *regexp.Regexp
	Maps         []ColumnMap
}

// DefaultProfiles returns the built-in bank profiles.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Name:         "hdfc",
			FilenameHint: regexp.MustCompile(`(?i)hdfc`),
			Maps: []ColumnMap{
				{Date: "Txn Date", Narration: "Txn Description", Amount: "Amount (INR)", Card: "Card No"},
				{Date: "Transaction Date", Narration: "Description", Amount: "Amount", Card: "Card Number"},
			},
		},
		{
			Name:         "icici",
			FilenameHint: regexp.MustCompile(`(?i)icici`),
			Maps: []ColumnMap{
				{Date: "Date", Narration: "Transaction Details", Amount: "Amount (in Rs.)", Card: "Card Number"},
			},
		},
		{
			Name:         "axis",
			FilenameHint: regexp.MustCompile(`(?i)axis`),
			Maps: []ColumnMap{
				{Date: "Tran Date", Narration: "Particulars", Amount: "Amount in INR", Card: "Card No."},
			},
		},
	}
}

var (
	genericDate      = regexp.MustCompile(`(?i)date`)
	genericAmount    = regexp.MustCompile(`(?i)amount`)
	genericNarration = regexp.MustCompile(`(?i)desc|narrat|detail|particular`)
)

// RowError describes a row rejected at ingestion.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// StatementResult is a parsed statement file.
type StatementResult struct {
	Profile  string
	Records  []txn.Record
	Rejected []RowError
}

// Registry dispatches statement files to profiles.
type Registry struct {
	profiles []Profile
	loc      *time.Location
}

// NewRegistry creates a registry. Dates without a zone are read in loc.
func NewRegistry(loc *time.Location, profiles ...Profile) *Registry {
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Registry{profiles: profiles, loc: loc}
}

// Parse reads a CSV statement. Dispatch order: filename hint, then schema
// probing across all profiles, then a generic column-name heuristic.
func (r *Registry) Parse(filename string, in io.Reader) (*StatementResult, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: empty statement", filename)
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	name, cmap, missing := r.resolve(filepath.Base(filename), header)
	if missing != "" {
		return nil, fmt.Errorf("%w: %w", ErrUnmappable, &validator.StructuralError{
			Input: filepath.Base(filename),
			Field: missing,
			Rows:  len(rows) - 1,
		})
	}

	result := r.canonicalize(filepath.Base(filename), header, rows[1:], cmap)
	result.Profile = name
	return result, nil
}

// resolve returns the profile name and column map, or the first canonical
// field no column could be found for.
func (r *Registry) resolve(base string, header []string) (string, ColumnMap, string) {
	cols := make(map[string]bool, len(header))
	for _, h := range header {
		cols[h] = true
	}

	for _, p := range r.profiles {
		if p.FilenameHint != nil && p.FilenameHint.MatchString(base) {
			if m, ok := p.match(cols); ok {
				return p.Name, m, ""
			}
		}
	}

	for _, p := range r.profiles {
		if m, ok := p.match(cols); ok {
			return p.Name, m, ""
		}
	}

	m := ColumnMap{
		Date:      firstMatching(header, genericDate),
		Amount:    firstMatching(header, genericAmount),
		Narration: firstMatching(header, genericNarration),
	}
	switch {
	case m.Date == "":
		return "", ColumnMap{}, "date"
	case m.Amount == "":
		return "", ColumnMap{}, "amount"
	case m.Narration == "":
		return "", ColumnMap{}, "narration"
	}
	return "generic", m, ""
}

func (p Profile) match(cols map[string]bool) (ColumnMap, bool) {
	for _, m := range p.Maps {
		ok := true
		for _, c := range m.required() {
			if !cols[c] {
				ok = false
				break
			}
		}
		if ok {
			return m, true
		}
	}
	return ColumnMap{}, false
}

func firstMatching(header []string, rx *regexp.Regexp) string {
	for _, h := range header {
		if rx.MatchString(h) {
			return h
		}
	}
	return ""
}

func (r *Registry) canonicalize(base string, header []string, rows [][]string, cmap ColumnMap) *StatementResult {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		if _, ok := idx[h]; !ok {
			idx[h] = i
		}
	}
	get := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || col == "" || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	result := &StatementResult{}
	for n, row := range rows {
		line := n + 2
		if isBlank(row) {
			continue
		}

		ts, err := ParseTime(get(row, cmap.Date), r.loc)
		if err != nil {
			result.Rejected = append(result.Rejected, RowError{Line: line, Err: err})
			continue
		}
		amount, err := ParseAmount(get(row, cmap.Amount))
		if err != nil {
			result.Rejected = append(result.Rejected, RowError{Line: line, Err: err})
			continue
		}

		rec := txn.Record{
			ID:              fmt.Sprintf("%s:%d", base, line),
			Timestamp:       ts,
			Narration:       get(row, cmap.Narration),
			LocalAmount:     amount,
			StatedCurrency:  strings.ToUpper(get(row, colCurrency)),
			MerchantCountry: strings.ToUpper(get(row, colMerchantCountry)),
			CardLast4:       last4(get(row, cmap.Card)),
		}
		rec.Counterparty = VendorOf(rec.Narration)
		if raw := get(row, colForeignAmount); raw != "" {
			if fa, err := ParseAmount(raw); err == nil {
				rec.ForeignAmount = txn.Float(fa)
			}
		}

		result.Records = append(result.Records, rec)
	}
	return result
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func last4(card string) string {
	digits := make([]rune, 0, len(card))
	for _, c := range card {
		if c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	if len(digits) <= 4 {
		return string(digits)
	}
	return string(digits[len(digits)-4:])
}
