// Package fx classifies whether a statement line was a foreign transaction,
// a dynamic currency conversion (DCC) at the point of sale, or domestic.
package fx

import "time"

// Source identifies which signal decided a classification.
type Source string

const (
	SourceDCC       Source = "dcc"
	SourceStatement Source = "statement"
	SourceReceipt   Source = "receipt"
	SourceNarration Source = "narration"
	SourceCountry   Source = "country"
	SourceNone      Source = "none"
)

// Config controls the classifier.
type Config struct {
	// LocalCurrency is the ISO code of the settlement currency (e.g. "INR").
	LocalCurrency string

	// LocalTolerance is the absolute local-currency tolerance used when
	// weighting receipt evidence.
	LocalTolerance float64

	// Location is the process timezone used to derive Context.Date.
	Location *time.Location
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		LocalCurrency:  "INR",
		LocalTolerance: 100,
		Location:       time.UTC,
	}
}

// Input is everything the classifier looks at for one transaction.
type Input struct {
	Narration       string
	MerchantCountry string
	StatedCurrency  string
	ReceiptCurrency string

	// ExpectedLocal and ChargedLocal feed the receipt agreement term.
	ExpectedLocal *float64
	ChargedLocal  *float64

	Timestamp time.Time
}

// Context is the classifier verdict for one transaction.
type Context struct {
	IsForeign  bool
	IsDCC      bool
	Currency   string
	Source     Source
	Confidence float64
	Notes      string

	// Date is the transaction's calendar date in the process timezone,
	// zero when no timestamp was supplied.
	Date time.Time
}
