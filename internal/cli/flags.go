package cli

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/eshaffer321/recon-monitor/internal/application/recon"
	"github.com/eshaffer321/recon-monitor/internal/infrastructure/config"
)

// RunFlags are the flags of the one-shot reconciliation command
type RunFlags struct {
	ConfigPath string
	DataDir    string
	ReportsDir string
	DryRun     bool
	DaysBack   int
	Since      string
	Until      string
	RunID      string
	Verbose    bool
}

// ParseRunFlags parses the recon command line
func ParseRunFlags(args []string, output io.Writer) (*RunFlags, error) {
	var flags RunFlags
	fs := flag.NewFlagSet("recon", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&flags.ConfigPath, "config", "config.yaml", "Configuration file path")
	fs.StringVar(&flags.DataDir, "data", "", "Directory holding collaborator exports (overrides config)")
	fs.StringVar(&flags.ReportsDir, "reports", "", "Report output directory (overrides config)")
	fs.BoolVar(&flags.DryRun, "dry-run", false, "Build reports without sending notifications")
	fs.IntVar(&flags.DaysBack, "days", 0, "Number of days to look back (0 = config default)")
	fs.StringVar(&flags.Since, "since", "", "Window start date YYYY-MM-DD")
	fs.StringVar(&flags.Until, "until", "", "Window end date YYYY-MM-DD")
	fs.StringVar(&flags.RunID, "run-id", "", "Run identifier (default: timestamp)")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if flags.DaysBack < 0 {
		return nil, fmt.Errorf("-days must not be negative")
	}
	return &flags, nil
}

// Apply overrides config values with the flags that were set
func (f *RunFlags) Apply(cfg *config.Config) {
	if f.DataDir != "" {
		cfg.Data.Dir = f.DataDir
	}
	if f.ReportsDir != "" {
		cfg.Reports.OutputDir = f.ReportsDir
	}
	if f.DaysBack > 0 {
		cfg.App.DaysBack = f.DaysBack
	}
	if f.Verbose {
		cfg.Observability.Logging.Level = "debug"
	}
}

// ToOptions converts the flags to run options. Dates are read in loc; the
// until date covers the whole day.
func (f *RunFlags) ToOptions(loc *time.Location) (recon.Options, error) {
	opts := recon.Options{RunID: f.RunID, DryRun: f.DryRun}
	if f.Since != "" {
		t, err := time.ParseInLocation("2006-01-02", f.Since, loc)
		if err != nil {
			return opts, fmt.Errorf("-since: %w", err)
		}
		opts.Since = t
	}
	if f.Until != "" {
		t, err := time.ParseInLocation("2006-01-02", f.Until, loc)
		if err != nil {
			return opts, fmt.Errorf("-until: %w", err)
		}
		opts.Until = time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, loc)
	}
	if !opts.Since.IsZero() && !opts.Until.IsZero() && opts.Until.Before(opts.Since) {
		return opts, fmt.Errorf("-until is before -since")
	}
	return opts, nil
}
