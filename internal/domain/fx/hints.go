package fx

import (
	"fmt"
	"regexp"
	"strings"
)

// currencyHint maps a narration fragment to the currency it implies.
type currencyHint struct {
	token    string
	currency string
}

// narrationHints is scanned in order; the first fragment found wins.
var narrationHints = []currencyHint{
	{"USD", "USD"},
	{" US$", "USD"},
	{"$", "USD"},
	{"EUR", "EUR"},
	{"€", "EUR"},
	{"GBP", "GBP"},
	{"£", "GBP"},
	{"AED", "AED"},
	{"AUD", "AUD"},
	{"SGD", "SGD"},
	{"CAD", "CAD"},
	{"JPY", "JPY"},
	{"¥", "JPY"},
}

var countryCurrency = map[string]string{
	"US": "USD",
	"GB": "GBP",
	"AE": "AED",
	"AU": "AUD",
	"SG": "SGD",
	"CA": "CAD",
	"JP": "JPY",
	"DE": "EUR",
	"FR": "EUR",
	"NL": "EUR",
}

// CurrencyForCountry returns the currency for an ISO country code.
func CurrencyForCountry(country string) (string, bool) {
	ccy, ok := countryCurrency[strings.ToUpper(strings.TrimSpace(country))]
	return ccy, ok
}

// hintedCurrency returns the first currency implied by the narration.
func hintedCurrency(narration string) (string, bool) {
	upper := strings.ToUpper(narration)
	for _, h := range narrationHints {
		if strings.Contains(upper, h.token) {
			return h.currency, true
		}
	}
	return "", false
}

// dccPattern builds the case-insensitive DCC marker expression for the
// given local currency.
func dccPattern(local string) *regexp.Regexp {
	markers := []string{
		`\bDCC\b`,
		`DYN\s*C(?:URR|URRENCY)\b`,
		`DYNAMIC\s+CURR(?:ENCY)?\b`,
		fmt.Sprintf(`%s\s*@\s*POS`, regexp.QuoteMeta(local)),
		`CURRENCY\s+CONVERSION`,
		`CONV(?:ERSION)?\s+RATE`,
		`MERCHANT\s+CONVERSION`,
	}
	return regexp.MustCompile(`(?i)` + strings.Join(markers, "|"))
}
