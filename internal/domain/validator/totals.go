package validator

import (
	"fmt"
	"math"

	"github.com/eshaffer321/recon-monitor/internal/domain/txn"
)

// TotalsValidation contains the result of comparing processor settlements
// with RMS postings for a window.
type TotalsValidation struct {
	// Valid is true if the totals agree within tolerance
	Valid bool

	// ProcessorNet is charges minus refunds
	ProcessorNet float64

	// LedgerNet is the sum of all RMS postings, credit memos included
	LedgerNet float64

	// Difference is ProcessorNet minus LedgerNet
	Difference float64

	// Reason explains why validation failed (empty if valid)
	Reason string
}

// ValidateTotals checks that the window's processor net agrees with the RMS
// net within tolerance. It is a coarse cross-check: a pass does not rule out
// offsetting errors, but a fail always has a cause worth reading.
func ValidateTotals(charges, refunds, postings []float64, tolerance float64) *TotalsValidation {
	var chargeSum, refundSum, ledgerSum float64
	for _, c := range charges {
		chargeSum += c
	}
	for _, r := range refunds {
		refundSum += r
	}
	for _, p := range postings {
		ledgerSum += p
	}

	processorNet := txn.Round2(chargeSum - refundSum)
	ledgerNet := txn.Round2(ledgerSum)
	diff := txn.Round2(processorNet - ledgerNet)

	result := &TotalsValidation{
		Valid:        math.Abs(diff) <= tolerance,
		ProcessorNet: processorNet,
		LedgerNet:    ledgerNet,
		Difference:   diff,
	}
	if result.Valid {
		return result
	}

	if diff > 0 {
		result.Reason = fmt.Sprintf("processor net (%.2f) exceeds RMS net (%.2f) by %.2f - postings or credit memos are missing",
			processorNet, ledgerNet, diff)
	} else {
		result.Reason = fmt.Sprintf("RMS net (%.2f) exceeds processor net (%.2f) by %.2f - possible duplicate posting",
			ledgerNet, processorNet, -diff)
	}
	return result
}
