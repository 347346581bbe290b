package matcher

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/eshaffer321/recon-monitor/internal/domain/txn"
)

// integrationFailures flags webhook events whose charge never reached RMS.
func (m *Matcher) integrationFailures(in Input, records []MatchRecord) []Flag {
	byCharge := make(map[string]int, len(records))
	for i, r := range records {
		if _, ok := byCharge[r.ChargeID]; !ok {
			byCharge[r.ChargeID] = i
		}
	}

	var flags []Flag
	seen := make(map[string]bool)
	for _, evt := range in.Webhooks {
		if evt.ChargeID == "" || seen[evt.ChargeID] {
			continue
		}
		seen[evt.ChargeID] = true

		if idx, ok := byCharge[evt.ChargeID]; ok {
			if records[idx].Matched() || records[idx].Ambiguous {
				continue
			}
		} else if postingReferences(in.Postings, evt.ChargeID, evt.InvoiceID) {
			continue
		}

		flags = append(flags, Flag{
			ID:          "INT-" + evt.ChargeID,
			Severity:    SeverityP1,
			Category:    CategoryIntegrationFailure,
			EntityKeys:  []string{evt.ID, evt.ChargeID},
			ChargeID:    evt.ChargeID,
			InvoiceID:   evt.InvoiceID,
			Reason:      "Webhook delivered but RMS row missing",
			Remediation: "Check RMS webhook consumer logs; reprocess event",
		})
	}
	return flags
}

// postingReferences reports whether any debit posting names the charge or
// invoice.
func postingReferences(postings []Posting, chargeID, invoiceID string) bool {
	for _, p := range postings {
		if p.IsCredit() {
			continue
		}
		if p.ChargeID != "" && p.ChargeID == chargeID {
			return true
		}
		if invoiceID != "" && p.InvoiceNo == invoiceID {
			return true
		}
	}
	return false
}

// refundsNotPosted flags refunds without a matching RMS credit memo.
func (m *Matcher) refundsNotPosted(in Input) []Flag {
	invoiceOf := make(map[string]string, len(in.Charges))
	for _, c := range in.Charges {
		if _, ok := invoiceOf[c.ID]; !ok {
			invoiceOf[c.ID] = c.InvoiceID
		}
	}

	var flags []Flag
	for _, r := range in.Refunds {
		invoice := invoiceOf[r.ChargeID]
		if hasCreditMemo(in.Postings, r.ChargeID, invoice) {
			continue
		}

		keys := []string{r.ID, r.ChargeID}
		if invoice != "" {
			keys = append(keys, invoice)
		}
		flags = append(flags, Flag{
			ID:          "REF-" + r.ID,
			Severity:    SeverityP0,
			Category:    CategoryRefundNotPosted,
			EntityKeys:  keys,
			ChargeID:    r.ChargeID,
			InvoiceID:   invoice,
			Reason:      fmt.Sprintf("Refund %s of %.2f has no credit memo in RMS", r.ID, r.Amount),
			Remediation: "Post credit memo in RMS and link to charge",
		})
	}
	return flags
}

func hasCreditMemo(postings []Posting, chargeID, invoiceID string) bool {
	for _, p := range postings {
		if !p.IsCredit() {
			continue
		}
		if invoiceID != "" && p.InvoiceNo == invoiceID {
			return true
		}
		if chargeID != "" && p.ChargeID == chargeID {
			return true
		}
	}
	return false
}

// duplicateCharges flags invoices paid by more than one settled charge.
func (m *Matcher) duplicateCharges(in Input) []Flag {
	var order []string
	groups := make(map[string][]string)
	for _, c := range in.Charges {
		if c.InvoiceID == "" || !c.Succeeded() {
			continue
		}
		if _, ok := groups[c.InvoiceID]; !ok {
			order = append(order, c.InvoiceID)
		}
		groups[c.InvoiceID] = append(groups[c.InvoiceID], c.ID)
	}

	var flags []Flag
	for _, invoice := range order {
		ids := groups[invoice]
		if len(ids) < 2 {
			continue
		}
		flags = append(flags, Flag{
			ID:          "DUPCHG-" + invoice,
			Severity:    SeverityP0,
			Category:    CategoryDuplicateCharge,
			EntityKeys:  append([]string{invoice}, ids...),
			ChargeID:    ids[0],
			InvoiceID:   invoice,
			Reason:      fmt.Sprintf("%d Stripe charges for same invoice", len(ids)),
			Remediation: "Refund extras; keep a single valid charge",
		})
	}
	return flags
}

func invoiceDuplicateFlag(c Charge, postings []Posting, idxs []int) Flag {
	keys := []string{c.InvoiceID}
	for _, i := range idxs {
		keys = append(keys, postings[i].ID)
	}
	return Flag{
		ID:          "DUPRMS-" + c.InvoiceID,
		Severity:    SeverityP0,
		Category:    CategoryDuplicateRMS,
		EntityKeys:  keys,
		ChargeID:    c.ID,
		InvoiceID:   c.InvoiceID,
		Reason:      fmt.Sprintf("%d RMS rows posted against invoice %s", len(idxs), c.InvoiceID),
		Remediation: "Remove duplicates; keep single posting",
	}
}

// duplicateChargeRefs flags charges referenced by more than one debit
// posting, skipping posting sets already flagged through the invoice join.
func (m *Matcher) duplicateChargeRefs(in Input, flaggedSets map[string]bool) []Flag {
	var order []string
	groups := make(map[string][]int)
	for i, p := range in.Postings {
		if p.ChargeID == "" || p.IsCredit() {
			continue
		}
		if _, ok := groups[p.ChargeID]; !ok {
			order = append(order, p.ChargeID)
		}
		groups[p.ChargeID] = append(groups[p.ChargeID], i)
	}

	var flags []Flag
	for _, chargeID := range order {
		idxs := groups[chargeID]
		if len(idxs) < 2 {
			continue
		}
		key := postingSetKey(in.Postings, idxs)
		if flaggedSets[key] {
			continue
		}
		flaggedSets[key] = true

		keys := []string{chargeID}
		for _, i := range idxs {
			keys = append(keys, in.Postings[i].ID)
		}
		flags = append(flags, Flag{
			ID:          "DUPRMS-" + chargeID,
			Severity:    SeverityP0,
			Category:    CategoryDuplicateRMS,
			EntityKeys:  keys,
			ChargeID:    chargeID,
			InvoiceID:   in.Postings[idxs[0]].InvoiceNo,
			Reason:      fmt.Sprintf("%d RMS rows linked to same Stripe charge", len(idxs)),
			Remediation: "Remove duplicates; keep single posting",
		})
	}
	return flags
}

func postingSetKey(postings []Posting, idxs []int) string {
	ids := make([]string, 0, len(idxs))
	for _, i := range idxs {
		ids = append(ids, fmt.Sprintf("%d:%s", i, postings[i].ID))
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func (m *Matcher) amountMismatches(records []MatchRecord) []Flag {
	var flags []Flag
	for _, r := range records {
		if !r.Matched() {
			continue
		}
		delta := txn.Round2(math.Abs(r.AmountDelta))
		if delta <= m.config.AmountTolerance {
			continue
		}
		flags = append(flags, Flag{
			ID:          "AMT-" + r.ChargeID,
			Severity:    SeverityP1,
			Category:    CategoryAmountMismatch,
			EntityKeys:  []string{r.ChargeID, r.PostingID},
			ChargeID:    r.ChargeID,
			InvoiceID:   r.InvoiceID,
			Reason:      fmt.Sprintf("Amount delta %.2f exceeds tolerance %.2f", delta, m.config.AmountTolerance),
			Remediation: "Verify currency & rounding; correct RMS amount",
		})
	}
	return flags
}

func (m *Matcher) dateDrifts(records []MatchRecord) []Flag {
	var flags []Flag
	for _, r := range records {
		if !r.Matched() {
			continue
		}
		days := absInt(r.DateDeltaDays)
		if days <= m.config.DateWindowDays {
			continue
		}
		flags = append(flags, Flag{
			ID:          "DATE-" + r.ChargeID,
			Severity:    SeverityP2,
			Category:    CategoryDateDrift,
			EntityKeys:  []string{r.ChargeID, r.PostingID},
			ChargeID:    r.ChargeID,
			InvoiceID:   r.InvoiceID,
			Reason:      fmt.Sprintf("Date drift %dd exceeds ±%dd window", days, m.config.DateWindowDays),
			Remediation: "Align RMS posting date with payment date",
		})
	}
	return flags
}
