package config

import (
	"time"

	"github.com/eshaffer321/recon-monitor/internal/domain/ageing"
	"github.com/eshaffer321/recon-monitor/internal/domain/alerts"
	"github.com/eshaffer321/recon-monitor/internal/domain/fx"
	"github.com/eshaffer321/recon-monitor/internal/domain/markup"
	"github.com/eshaffer321/recon-monitor/internal/domain/matcher"
)

// FXConfig returns the FX classifier settings
func (c *Config) FXConfig(loc *time.Location) fx.Config {
	return fx.Config{
		LocalCurrency:  c.App.LocalCurrency,
		LocalTolerance: c.Thresholds.FXLocalTolerance,
		Location:       loc,
	}
}

// MarkupConfig returns the markup analyzer settings
func (c *Config) MarkupConfig() markup.Config {
	return markup.Config{
		PctTolerance:  c.Thresholds.FXMarkupTolerancePct,
		AbsTolerance:  c.Thresholds.FXLocalTolerance,
		CurrencyLabel: c.App.LocalCurrency,
	}
}

// MatcherConfig returns the Stripe/RMS matcher settings
func (c *Config) MatcherConfig(loc *time.Location) matcher.Config {
	return matcher.Config{
		AmountTolerance: c.Thresholds.AmountMatchTolerance,
		DateWindowDays:  c.Thresholds.DateWindowDays,
		Location:        loc,
	}
}

// AgeingConfig returns the card ageing settings
func (c *Config) AgeingConfig(loc *time.Location) ageing.Config {
	return ageing.Config{
		SLAWorkingDays:        c.Thresholds.LateEntryWorkingDays,
		InvoiceLaterDays:      c.Thresholds.InvoiceLaterDays,
		FinanceEscalationDays: c.Thresholds.FinanceEscalationDays,
		Holidays:              c.Holidays,
		Location:              loc,
	}
}

// AlertsConfig returns the aggregate alert thresholds
func (c *Config) AlertsConfig() alerts.Config {
	return alerts.Config{MinMatchRate: c.Thresholds.MinMatchRate}
}
