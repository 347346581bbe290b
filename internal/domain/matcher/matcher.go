// Package matcher pairs processor charges with RMS postings and raises
// discrepancy flags for the pairs and for the charges, refunds and webhook
// events that did not line up.
//
// Matching runs in two phases:
//   - Primary: the charge's invoice id equals the posting's invoice number.
//     Exactly one debit posting must carry the invoice; several is a
//     DuplicateRMS finding and nothing is paired.
//   - Fallback: same payer email, amount within tolerance and date within
//     the window. The closest amount wins, then the closest date, then
//     input order.
//
// A posting is claimed by at most one charge.
//
// Example usage:
//
//	m := matcher.NewMatcher(matcher.DefaultConfig())
//	out := m.Match(matcher.Input{Charges: charges, Postings: postings})
//	for _, f := range out.Flags {
//		fmt.Println(f.Severity, f.Reason)
//	}
package matcher

import (
	"math"
	"strings"

	"github.com/eshaffer321/recon-monitor/internal/domain/txn"
)

// Matcher matches charges with RMS postings
type Matcher struct {
	config Config
}

// NewMatcher creates a new matcher with the given config
func NewMatcher(config Config) *Matcher {
	if config.Location == nil {
		config.Location = DefaultConfig().Location
	}
	return &Matcher{
		config: config,
	}
}

// Match pairs every charge and evaluates all flag rules. The result is
// fully determined by the input order.
func (m *Matcher) Match(in Input) Output {
	used := make([]bool, len(in.Postings))
	records := make([]MatchRecord, len(in.Charges))

	debitsByInvoice := make(map[string][]int)
	for i, p := range in.Postings {
		if p.IsCredit() || p.InvoiceNo == "" {
			continue
		}
		debitsByInvoice[p.InvoiceNo] = append(debitsByInvoice[p.InvoiceNo], i)
	}

	var duplicateRMS []Flag
	flaggedSets := make(map[string]bool)

	// Phase 1: invoice join
	for i, c := range in.Charges {
		records[i] = MatchRecord{
			ChargeID:  c.ID,
			InvoiceID: c.InvoiceID,
			Tier:      TierUnmatched,
		}
		if c.InvoiceID == "" {
			continue
		}

		candidates := debitsByInvoice[c.InvoiceID]
		switch {
		case len(candidates) > 1:
			records[i].Ambiguous = true
			key := postingSetKey(in.Postings, candidates)
			if !flaggedSets[key] {
				flaggedSets[key] = true
				duplicateRMS = append(duplicateRMS, invoiceDuplicateFlag(c, in.Postings, candidates))
			}
		case len(candidates) == 1 && !used[candidates[0]]:
			used[candidates[0]] = true
			records[i] = m.pair(c, in.Postings[candidates[0]], TierPrimary)
		}
	}

	// Phase 2: email, amount and date heuristic
	for i, c := range in.Charges {
		if records[i].Matched() || records[i].Ambiguous {
			continue
		}
		if idx := m.bestFallback(c, in.Postings, used); idx >= 0 {
			used[idx] = true
			records[i] = m.pair(c, in.Postings[idx], TierFallback)
		}
	}

	out := Output{Records: records}
	out.Flags = append(out.Flags, m.integrationFailures(in, records)...)
	out.Flags = append(out.Flags, m.refundsNotPosted(in)...)
	out.Flags = append(out.Flags, m.duplicateCharges(in)...)
	out.Flags = append(out.Flags, duplicateRMS...)
	out.Flags = append(out.Flags, m.duplicateChargeRefs(in, flaggedSets)...)
	out.Flags = append(out.Flags, m.amountMismatches(records)...)
	out.Flags = append(out.Flags, m.dateDrifts(records)...)
	return out
}

func (m *Matcher) pair(c Charge, p Posting, tier Tier) MatchRecord {
	return MatchRecord{
		ChargeID:      c.ID,
		InvoiceID:     c.InvoiceID,
		PostingID:     p.ID,
		Tier:          tier,
		AmountDelta:   txn.Round2(c.Amount - p.Amount),
		DateDeltaDays: txn.DaysBetween(c.Created, p.PostedAt, m.config.Location),
	}
}

// bestFallback returns the index of the best unclaimed posting for c, or -1.
func (m *Matcher) bestFallback(c Charge, postings []Posting, used []bool) int {
	email := normalizeEmail(c.Email)
	if email == "" {
		return -1
	}

	best := -1
	bestAmount := math.MaxFloat64
	bestDays := math.MaxInt

	for i, p := range postings {
		if used[i] || p.IsCredit() || normalizeEmail(p.Email) != email {
			continue
		}

		amountDiff := txn.Round2(math.Abs(c.Amount - p.Amount))
		if amountDiff > m.config.AmountTolerance {
			continue
		}

		days := absInt(txn.DaysBetween(c.Created, p.PostedAt, m.config.Location))
		if days > m.config.DateWindowDays {
			continue
		}

		// Strict comparisons keep the earliest posting on ties
		if amountDiff < bestAmount || (amountDiff == bestAmount && days < bestDays) {
			best = i
			bestAmount = amountDiff
			bestDays = days
		}
	}

	return best
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
