package matcher

import "time"

// Config holds matcher configuration
type Config struct {
	AmountTolerance float64 // Default: 10 (local currency units)
	DateWindowDays  int     // Default: 2 calendar days
	Location        *time.Location
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		AmountTolerance: 10,
		DateWindowDays:  2,
		Location:        time.UTC,
	}
}

// Charge is a processor (Stripe) charge.
type Charge struct {
	ID        string
	InvoiceID string
	Email     string
	Amount    float64
	Currency  string
	Created   time.Time
	Status    string
}

// Succeeded reports whether the charge settled. An empty status is treated
// as settled, since exports without a status column only list captures.
func (c Charge) Succeeded() bool {
	return c.Status == "" || c.Status == "succeeded"
}

// Refund is a processor refund against a charge.
type Refund struct {
	ID       string
	ChargeID string
	Amount   float64
	Currency string
	Created  time.Time
}

// Posting is an RMS ledger row. Credit memos carry a negative amount.
type Posting struct {
	ID        string
	InvoiceNo string
	Email     string
	Amount    float64
	Currency  string
	PostedAt  time.Time

	// ChargeID is the processor charge the posting references, if any.
	ChargeID string
}

// IsCredit reports whether the posting is a credit memo.
func (p Posting) IsCredit() bool {
	return p.Amount < 0
}

// WebhookEvent is a delivered processor webhook.
type WebhookEvent struct {
	ID        string
	ChargeID  string
	InvoiceID string
	Created   time.Time
}

// Tier says how a charge was paired with a posting.
type Tier string

const (
	TierPrimary   Tier = "primary"
	TierFallback  Tier = "fallback"
	TierUnmatched Tier = "unmatched"
)

// MatchRecord is the outcome for exactly one charge.
type MatchRecord struct {
	ChargeID  string
	InvoiceID string
	PostingID string // empty when unmatched
	Tier      Tier

	// AmountDelta is charge amount minus posting amount.
	AmountDelta float64
	// DateDeltaDays is posting date minus charge date in calendar days.
	DateDeltaDays int

	// Ambiguous is set when several postings carried the charge's invoice
	// and no pairing was attempted.
	Ambiguous bool
}

// Matched reports whether the record pairs a posting.
func (r MatchRecord) Matched() bool {
	return r.Tier != TierUnmatched
}

// Severity ranks a discrepancy flag.
type Severity string

const (
	SeverityP0 Severity = "P0"
	SeverityP1 Severity = "P1"
	SeverityP2 Severity = "P2"
)

// Category names the kind of discrepancy.
type Category string

const (
	CategoryIntegrationFailure Category = "IntegrationFailure"
	CategoryRefundNotPosted    Category = "RefundNotPosted"
	CategoryDuplicateCharge    Category = "DuplicateCharge"
	CategoryDuplicateRMS       Category = "DuplicateRMS"
	CategoryAmountMismatch     Category = "AmountMismatch"
	CategoryDateDrift          Category = "DateDrift"
)

// Flag is an immutable discrepancy finding.
type Flag struct {
	ID          string
	Severity    Severity
	Category    Category
	EntityKeys  []string
	ChargeID    string
	InvoiceID   string
	Reason      string
	Remediation string
}

// Input is one matching batch.
type Input struct {
	Charges  []Charge
	Refunds  []Refund
	Postings []Posting
	Webhooks []WebhookEvent
}

// Output holds one record per charge, in charge input order, and the flags.
type Output struct {
	Records []MatchRecord
	Flags   []Flag
}

// Stats summarizes match tiers.
type Stats struct {
	Total     int
	Primary   int
	Fallback  int
	Unmatched int
}

// MatchRate is the share of charges paired with a posting, 1 when empty.
func (s Stats) MatchRate() float64 {
	if s.Total == 0 {
		return 1
	}
	return float64(s.Primary+s.Fallback) / float64(s.Total)
}

// Stats counts the tiers of the output records.
func (o Output) Stats() Stats {
	s := Stats{Total: len(o.Records)}
	for _, r := range o.Records {
		switch r.Tier {
		case TierPrimary:
			s.Primary++
		case TierFallback:
			s.Fallback++
		default:
			s.Unmatched++
		}
	}
	return s
}
