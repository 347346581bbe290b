// Package markup measures how far a card issuer's conversion drifted from the
// interbank reference rate.
//
// For a foreign charge the analyzer derives:
//
//	expected   = foreign × interbank
//	deviation  = charged − expected
//	actualRate = charged / foreign
//	markupPct  = (actualRate − interbank) / interbank × 100
//
// and flags the line when either the percentage or the absolute deviation
// breaches its tolerance.
package markup

import (
	"fmt"
	"math"
	"strings"

	"github.com/eshaffer321/recon-monitor/internal/domain/txn"
)

// Status is the outcome category of an analysis.
type Status string

const (
	StatusSkipped  Status = "skipped"
	StatusBypassed Status = "bypassed"
	StatusOK       Status = "ok"
	StatusFlagged  Status = "flagged"
)

// Risk buckets a markup percentage.
type Risk string

const (
	RiskNone     Risk = ""
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// Config holds the flagging tolerances.
type Config struct {
	// PctTolerance is the maximum acceptable markup percentage.
	PctTolerance float64

	// AbsTolerance is the maximum acceptable absolute deviation in local
	// currency.
	AbsTolerance float64

	// CurrencyLabel prefixes amounts in reasons, e.g. "INR".
	CurrencyLabel string
}

// DefaultConfig returns the production tolerances.
func DefaultConfig() Config {
	return Config{
		PctTolerance:  2.5,
		AbsTolerance:  100,
		CurrencyLabel: "INR",
	}
}

// Input carries the amounts for one transaction. Nil means unknown.
type Input struct {
	ForeignAmount *float64
	ChargedLocal  *float64
	InterbankRate *float64
	IsDCC         bool
}

// Result is the analysis of one transaction. Numeric fields are nil unless
// Status is ok or flagged.
type Result struct {
	Status  Status
	Flagged bool
	Reason  string

	Expected   *float64
	Deviation  *float64
	ActualRate *float64
	MarkupPct  *float64
	Risk       Risk
}

// Analyzer evaluates markups. It is stateless and safe for concurrent use.
type Analyzer struct {
	config Config
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(config Config) *Analyzer {
	if config.CurrencyLabel == "" {
		config.CurrencyLabel = DefaultConfig().CurrencyLabel
	}
	return &Analyzer{config: config}
}

// Analyze evaluates one transaction.
func (a *Analyzer) Analyze(in Input) Result {
	if in.IsDCC {
		return Result{
			Status: StatusBypassed,
			Reason: "DCC detected; conversion happened at the terminal",
		}
	}

	if missing(in.ForeignAmount) || missing(in.ChargedLocal) || missing(in.InterbankRate) {
		return Result{
			Status: StatusSkipped,
			Reason: "missing foreign amount, charged amount or interbank rate",
		}
	}

	foreign := *in.ForeignAmount
	charged := *in.ChargedLocal
	rate := *in.InterbankRate

	expected := foreign * rate
	actualRate := charged / foreign
	deviation := txn.Round2(charged - expected)
	pct := txn.Round2((actualRate - rate) / rate * 100)

	var reasons []string
	if pct > a.config.PctTolerance {
		reasons = append(reasons, fmt.Sprintf("Markup %.2f%% exceeds %.2f%%", pct, a.config.PctTolerance))
	}
	if math.Abs(deviation) > a.config.AbsTolerance {
		reasons = append(reasons, fmt.Sprintf("%s difference %.2f exceeds %.2f",
			a.config.CurrencyLabel, math.Abs(deviation), a.config.AbsTolerance))
	}

	result := Result{
		Status:     StatusOK,
		Reason:     "Within thresholds",
		Expected:   txn.Float(txn.Round2(expected)),
		Deviation:  txn.Float(deviation),
		ActualRate: txn.Float(actualRate),
		MarkupPct:  txn.Float(pct),
		Risk:       RiskFor(pct),
	}
	if len(reasons) > 0 {
		result.Status = StatusFlagged
		result.Flagged = true
		result.Reason = strings.Join(reasons, "; ")
	}
	return result
}

// RiskFor buckets a markup percentage: low up to 1.5%, medium up to 2.5%,
// high up to 4%, critical beyond. Non-positive markups carry no risk.
func RiskFor(pct float64) Risk {
	switch {
	case pct <= 0:
		return RiskNone
	case pct <= 1.5:
		return RiskLow
	case pct <= 2.5:
		return RiskMedium
	case pct <= 4.0:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// ExcessCost returns the local-currency overcharge of a flagged or ok
// result, zero otherwise.
func (r Result) ExcessCost() float64 {
	if r.Deviation == nil || *r.Deviation <= 0 {
		return 0
	}
	return *r.Deviation
}

func missing(v *float64) bool {
	return v == nil || *v == 0 || math.IsNaN(*v)
}
