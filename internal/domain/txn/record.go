// Package txn defines the canonical transaction shapes every ingestion
// adapter normalizes into before any reconciliation logic runs.
package txn

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Record is a canonical bank statement line.
//
// Records are built once per run by an ingestion adapter and treated as
// read-only afterwards.
type Record struct {
	ID        string
	Timestamp time.Time

	// Narration is the free-text description printed by the bank.
	Narration    string
	Counterparty string

	// LocalAmount is the amount charged in the local settlement currency.
	LocalAmount float64

	// ForeignAmount is the original transaction amount, when the statement
	// reports one.
	ForeignAmount *float64

	StatedCurrency  string
	ReceiptCurrency string
	MerchantCountry string
	CardLast4       string
}

// HasForeignAmount reports whether a non-zero foreign amount was captured.
func (r Record) HasForeignAmount() bool {
	return r.ForeignAmount != nil && *r.ForeignAmount != 0
}

// CardTransaction is a row from the RMS credit-card export.
type CardTransaction struct {
	ID         string
	Date       time.Time
	Vendor     string
	CardLast4  string
	Cardholder string
	Amount     float64

	HasReceipt   bool
	InvoiceLater bool

	// EnteredAt is nil until the cardholder has entered the expense.
	EnteredAt *time.Time
	EnteredBy string
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Round2 rounds v half away from zero to two decimal places.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// DateOf returns midnight of t's calendar day in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// DaysBetween returns the signed number of calendar days from a to b,
// both taken as dates in loc.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	da := DateOf(a, loc)
	db := DateOf(b, loc)
	// Compare via UTC civil dates so DST shifts never produce fractional days.
	ua := time.Date(da.Year(), da.Month(), da.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(db.Year(), db.Month(), db.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
