package sources

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"
)

// ReceiptIndex maps (vendor, date) to the currency printed on the receipt.
type ReceiptIndex struct {
	entries map[string]string
	loc     *time.Location
}

// NewReceiptIndex creates an empty index.
func NewReceiptIndex(loc *time.Location) *ReceiptIndex {
	return &ReceiptIndex{entries: make(map[string]string), loc: orUTC(loc)}
}

// LoadReceiptIndex reads a vendor,date,currency CSV. A missing file yields
// an empty index.
func LoadReceiptIndex(path string, loc *time.Location) (*ReceiptIndex, error) {
	idx := NewReceiptIndex(loc)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open receipts: %w", err)
	}
	defer f.Close()

	if err := idx.Read(f); err != nil {
		return nil, err
	}
	return idx, nil
}

// Read adds every row of a vendor,date,currency CSV with a header line.
func (r *ReceiptIndex) Read(in io.Reader) error {
	reader := csv.NewReader(in)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read receipts header: %w", err)
	}

	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	vi, vok := cols["vendor"]
	di, dok := cols["date"]
	ci, cok := cols["currency"]
	if !vok || !dok || !cok {
		return fmt.Errorf("receipts: need vendor, date and currency columns")
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read receipts: %w", err)
		}
		if len(row) <= vi || len(row) <= di || len(row) <= ci {
			continue
		}
		date, err := ParseTime(row[di], r.loc)
		if err != nil {
			continue
		}
		r.Add(row[vi], date, row[ci])
	}
}

// Add records a receipt.
func (r *ReceiptIndex) Add(vendor string, date time.Time, currency string) {
	r.entries[r.key(vendor, date)] = strings.ToUpper(strings.TrimSpace(currency))
}

// Lookup returns the receipt currency, or "" when no receipt is indexed.
func (r *ReceiptIndex) Lookup(vendor string, date time.Time) string {
	if vendor == "" {
		return ""
	}
	return r.entries[r.key(vendor, date)]
}

// Len returns the number of indexed receipts.
func (r *ReceiptIndex) Len() int {
	return len(r.entries)
}

func (r *ReceiptIndex) key(vendor string, date time.Time) string {
	return strings.ToLower(strings.TrimSpace(vendor)) + "|" + date.In(r.loc).Format("2006-01-02")
}
