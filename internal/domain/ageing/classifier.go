package ageing

import (
	"time"

	"github.com/eshaffer321/recon-monitor/internal/domain/txn"
)

// Stage is the escalation rung a card transaction has reached.
type Stage string

const (
	StageNone Stage = ""
	StageD3   Stage = "D3"
	StageD14  Stage = "D14"
	StageD30  Stage = "D30"
)

// Flag is the label attached to a staged transaction.
type Flag string

const (
	FlagNone         Flag = ""
	FlagLateEntry    Flag = "LateEntry"
	FlagInvoiceLater Flag = "InvoiceLater"
	FlagNoReceipt    Flag = "NoReceipt"
)

// Config holds SLA and escalation thresholds.
type Config struct {
	SLAWorkingDays        int
	InvoiceLaterDays      int
	FinanceEscalationDays int
	Holidays              []string
	Location              *time.Location
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		SLAWorkingDays:        3,
		InvoiceLaterDays:      14,
		FinanceEscalationDays: 30,
		Location:              time.UTC,
	}
}

// Input is one card transaction as seen on a given day.
type Input struct {
	TransactionDate time.Time
	EnteredAt       *time.Time
	InvoiceLater    bool
	HasReceipt      bool
	Today           time.Time
}

// Record is the ageing verdict for one transaction.
type Record struct {
	SLADueDate          time.Time
	IsOverdue           bool
	WorkingDaysElapsed  int
	InvoiceLaterAgeDays int
	Stage               Stage
	Flag                Flag
}

// Classifier stages card transactions. Safe for concurrent use.
type Classifier struct {
	config   Config
	calendar *Calendar
}

// NewClassifier creates a classifier and its working-day calendar.
func NewClassifier(config Config) *Classifier {
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &Classifier{
		config:   config,
		calendar: NewCalendar(config.Holidays, config.Location),
	}
}

// Classify stages a transaction. D30 outranks D14, which outranks D3.
func (c *Classifier) Classify(in Input) Record {
	entered := in.EnteredAt != nil
	txnDate := txn.DateOf(in.TransactionDate, c.config.Location)
	today := txn.DateOf(in.Today, c.config.Location)

	rec := Record{
		SLADueDate:         c.calendar.AddWorkingDays(txnDate, c.config.SLAWorkingDays),
		WorkingDaysElapsed: c.calendar.WorkingDaysBetween(txnDate, today),
	}
	rec.IsOverdue = !entered && today.After(rec.SLADueDate)

	if in.InvoiceLater {
		age := txn.DaysBetween(txnDate, today, c.config.Location)
		if age > 0 {
			rec.InvoiceLaterAgeDays = age
		}
	}

	switch {
	case in.InvoiceLater && rec.InvoiceLaterAgeDays >= c.config.FinanceEscalationDays:
		rec.Stage = StageD30
	case in.InvoiceLater && rec.InvoiceLaterAgeDays >= c.config.InvoiceLaterDays:
		rec.Stage = StageD14
	case !entered && rec.WorkingDaysElapsed >= c.config.SLAWorkingDays:
		rec.Stage = StageD3
	}

	switch rec.Stage {
	case StageD3:
		rec.Flag = FlagLateEntry
	case StageD14, StageD30:
		rec.Flag = FlagInvoiceLater
		if !in.HasReceipt {
			rec.Flag = FlagNoReceipt
		}
	}

	return rec
}

// Audience returns who is reminded at a stage.
func (s Stage) Audience() string {
	switch s {
	case StageD3:
		return "user"
	case StageD14:
		return "ap"
	case StageD30:
		return "finance"
	default:
		return ""
	}
}
