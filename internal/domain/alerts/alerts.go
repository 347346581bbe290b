// Package alerts turns reconciliation findings into prioritized,
// human-readable alerts for notification routing.
package alerts

import (
	"fmt"
	"sort"
	"time"

	"github.com/eshaffer321/recon-monitor/internal/domain/ageing"
	"github.com/eshaffer321/recon-monitor/internal/domain/markup"
	"github.com/eshaffer321/recon-monitor/internal/domain/matcher"
)

// Severity of an alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
	SeverityInfo:     4,
}

// Category groups alerts by the subsystem that raised them.
type Category string

const (
	CategoryStripe Category = "stripe_reconciliation"
	CategoryFX     Category = "fx_markup"
	CategoryCC     Category = "cc_ageing"
	CategoryHealth Category = "run_health"
)

// Alert is a notification-ready finding.
type Alert struct {
	ID                         string
	Severity                   Severity
	Category                   Category
	Title                      string
	Description                string
	AffectedEntities           []string
	RecommendedAction          string
	CreatedAt                  time.Time
	RequiresImmediateAttention bool

	// Stage, Audience and Owner are set for card ageing reminders.
	// Owner is the cardholder.
	Stage    ageing.Stage
	Audience string
	Owner    string
}

// MarkupFinding is an analyzed statement line.
type MarkupFinding struct {
	RecordID  string
	Narration string
	Currency  string
	Result    markup.Result
}

// AgeingFinding is a classified card transaction.
type AgeingFinding struct {
	TransactionID string
	Cardholder    string
	Vendor        string
	Amount        float64
	Record        ageing.Record
}

// Findings is everything one run produced.
type Findings struct {
	RunID   string
	Now     time.Time
	Flags   []matcher.Flag
	Markups []MarkupFinding
	Ageing  []AgeingFinding
	Match   matcher.Stats

	// BlockErrors are collaborator failures that emptied a block.
	BlockErrors map[string]string
}

// Config holds aggregate alert thresholds.
type Config struct {
	// MinMatchRate raises a run-health alert when the Stripe match rate
	// falls below it.
	MinMatchRate float64
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{MinMatchRate: 0.95}
}

// Builder builds alerts.
type Builder struct {
	config Config
}

// NewBuilder creates a builder.
func NewBuilder(config Config) *Builder {
	return &Builder{config: config}
}

// Build converts findings into alerts ordered by severity, then by the
// order findings were produced.
func (b *Builder) Build(f Findings) []Alert {
	var out []Alert

	for _, flag := range f.Flags {
		out = append(out, b.fromFlag(f, flag))
	}
	for _, m := range f.Markups {
		if m.Result.Flagged {
			out = append(out, b.fromMarkup(f, m))
		}
	}
	for _, a := range f.Ageing {
		if a.Record.Stage != ageing.StageNone {
			out = append(out, b.fromAgeing(f, a))
		}
	}
	out = append(out, b.aggregate(f)...)

	sort.SliceStable(out, func(i, j int) bool {
		return severityRank[out[i].Severity] < severityRank[out[j].Severity]
	})
	return out
}

func (b *Builder) fromFlag(f Findings, flag matcher.Flag) Alert {
	sev := SeverityLow
	switch flag.Severity {
	case matcher.SeverityP0:
		sev = SeverityCritical
	case matcher.SeverityP1:
		sev = SeverityHigh
	}
	return Alert{
		ID:                         fmt.Sprintf("%s-%s", f.RunID, flag.ID),
		Severity:                   sev,
		Category:                   CategoryStripe,
		Title:                      fmt.Sprintf("%s %s", flag.Severity, flag.Category),
		Description:                flag.Reason,
		AffectedEntities:           flag.EntityKeys,
		RecommendedAction:          flag.Remediation,
		CreatedAt:                  f.Now,
		RequiresImmediateAttention: flag.Severity == matcher.SeverityP0,
	}
}

func (b *Builder) fromMarkup(f Findings, m MarkupFinding) Alert {
	sev := SeverityMedium
	switch m.Result.Risk {
	case markup.RiskCritical:
		sev = SeverityCritical
	case markup.RiskHigh:
		sev = SeverityHigh
	}
	return Alert{
		ID:                         fmt.Sprintf("%s-FX-%s", f.RunID, m.RecordID),
		Severity:                   sev,
		Category:                   CategoryFX,
		Title:                      fmt.Sprintf("FX markup on %s transaction", m.Currency),
		Description:                fmt.Sprintf("%s: %s", m.Narration, m.Result.Reason),
		AffectedEntities:           []string{m.RecordID},
		RecommendedAction:          "Dispute the conversion with the card issuer and review card routing for this merchant",
		CreatedAt:                  f.Now,
		RequiresImmediateAttention: sev == SeverityCritical,
	}
}

func (b *Builder) fromAgeing(f Findings, a AgeingFinding) Alert {
	var sev Severity
	var action string
	switch a.Record.Stage {
	case ageing.StageD30:
		sev = SeverityHigh
		action = "Escalate to finance management; block further invoice-later use on this card"
	case ageing.StageD14:
		sev = SeverityMedium
		action = "Accounts payable to chase the supplier invoice"
	default:
		sev = SeverityLow
		action = "Cardholder to enter the expense in RMS"
	}
	return Alert{
		ID:                fmt.Sprintf("%s-CC-%s-%s", f.RunID, a.Record.Stage, a.TransactionID),
		Severity:          sev,
		Category:          CategoryCC,
		Title:             fmt.Sprintf("%s %s: %s", a.Record.Stage, a.Record.Flag, a.Vendor),
		Description:       fmt.Sprintf("Card transaction %s by %s for %.2f is at stage %s", a.TransactionID, a.Cardholder, a.Amount, a.Record.Stage),
		AffectedEntities:  []string{a.TransactionID},
		RecommendedAction: action,
		CreatedAt:         f.Now,
		Stage:             a.Record.Stage,
		Audience:          a.Record.Stage.Audience(),
		Owner:             a.Cardholder,
	}
}

func (b *Builder) aggregate(f Findings) []Alert {
	var out []Alert

	if f.Match.Total > 0 && f.Match.MatchRate() < b.config.MinMatchRate {
		out = append(out, Alert{
			ID:       fmt.Sprintf("%s-MATCHRATE", f.RunID),
			Severity: SeverityHigh,
			Category: CategoryHealth,
			Title:    "Stripe match rate below threshold",
			Description: fmt.Sprintf("%d of %d charges matched (%.1f%%, threshold %.1f%%)",
				f.Match.Primary+f.Match.Fallback, f.Match.Total, f.Match.MatchRate()*100, b.config.MinMatchRate*100),
			RecommendedAction: "Check the RMS webhook consumer and invoice numbering",
			CreatedAt:         f.Now,
		})
	}

	blocks := make([]string, 0, len(f.BlockErrors))
	for block := range f.BlockErrors {
		blocks = append(blocks, block)
	}
	sort.Strings(blocks)
	for _, block := range blocks {
		out = append(out, Alert{
			ID:                fmt.Sprintf("%s-BLOCK-%s", f.RunID, block),
			Severity:          SeverityMedium,
			Category:          CategoryHealth,
			Title:             fmt.Sprintf("%s block produced no results", block),
			Description:       f.BlockErrors[block],
			RecommendedAction: "Check collaborator credentials and availability, then rerun",
			CreatedAt:         f.Now,
		})
	}

	return out
}

// CountBySeverity tallies alerts per severity.
func CountBySeverity(alerts []Alert) map[Severity]int {
	counts := make(map[Severity]int)
	for _, a := range alerts {
		counts[a.Severity]++
	}
	return counts
}
