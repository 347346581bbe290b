// Package sources loads collaborator exports (bank statements, processor
// and RMS dumps) and normalizes them into canonical records.
package sources

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var amountNoise = strings.NewReplacer(",", "", "₹", "", "$", "", "€", "", "£", "", " ", "", "\u00a0", "")

var currencyPrefix = regexp.MustCompile(`^(?i)(INR|USD|EUR|GBP|AED|AUD|SGD|CAD|JPY|RS\.?)`)

// ParseAmount parses a statement amount. It accepts thousands separators,
// currency symbols or codes, parenthesised negatives and Dr/Cr suffixes
// (Cr is a credit and therefore negative on a card statement).
func ParseAmount(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	negative := false
	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "CR"):
		negative = true
		s = s[:len(s)-2]
	case strings.HasSuffix(upper, "DR"):
		s = s[:len(s)-2]
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = !negative
		s = s[1 : len(s)-1]
	}

	s = amountNoise.Replace(s)
	s = currencyPrefix.ReplaceAllString(s, "")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	f, _ := d.Round(2).Float64()
	return f, nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"02-01-2006",
	"02-Jan-2006",
	"02 Jan 2006",
	"Jan 2, 2006",
}

// ParseTime parses a timestamp. Values without a zone are taken in loc.
// Pure integers are Unix seconds.
func ParseTime(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if loc == nil {
		loc = time.UTC
	}

	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && len(s) >= 9 {
		return time.Unix(secs, 0).In(loc), nil
	}

	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

var vendorPattern = regexp.MustCompile(`^(.+?)(?:\s{2,}|\s-\s|$)`)

// VendorOf extracts a best-effort vendor name from a narration: everything
// up to the first double space or " - ".
func VendorOf(narration string) string {
	m := vendorPattern.FindStringSubmatch(strings.TrimSpace(narration))
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func inWindow(t, since, until time.Time) bool {
	if !since.IsZero() && t.Before(since) {
		return false
	}
	if !until.IsZero() && t.After(until) {
		return false
	}
	return true
}
