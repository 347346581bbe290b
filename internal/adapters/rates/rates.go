// Package rates provides interbank reference rates to the markup analyzer.
//
// The analyzer only sees Lookup: a rate or nothing. Sources may time out,
// retry or fail; none of that crosses the Lookup boundary.
package rates

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNoRate is returned by a Source that has no quote for the request.
var ErrNoRate = errors.New("no rate available")

// Quote is one source's answer: units of Base per 1 unit of Currency.
type Quote struct {
	Currency   string
	Base       string
	Date       time.Time
	Rate       float64
	Source     string
	Confidence float64
}

// Source fetches quotes from one provider.
type Source interface {
	Name() string
	Fetch(ctx context.Context, date time.Time, currency string) (*Quote, error)
}

// Lookup is what the reconciliation core consumes.
type Lookup interface {
	// Rate returns the rate for currency on date, or false when none is
	// available. It never returns an error.
	Rate(ctx context.Context, date time.Time, currency string) (float64, bool)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, date time.Time, currency string) (float64, bool)

// Rate implements Lookup.
func (f LookupFunc) Rate(ctx context.Context, date time.Time, currency string) (float64, bool) {
	return f(ctx, date, currency)
}

func normalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

func validQuote(q *Quote) bool {
	return q != nil && q.Rate > 0
}
