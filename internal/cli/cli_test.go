package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/recon-monitor/internal/adapters/notify"
	"github.com/eshaffer321/recon-monitor/internal/adapters/sources"
	"github.com/eshaffer321/recon-monitor/internal/application/recon"
	"github.com/eshaffer321/recon-monitor/internal/domain/validator"
	"github.com/eshaffer321/recon-monitor/internal/infrastructure/config"
	"github.com/eshaffer321/recon-monitor/internal/infrastructure/storage"
)

func TestParseRunFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		flags, err := ParseRunFlags(nil, io.Discard)

		require.NoError(t, err)
		assert.Equal(t, "config.yaml", flags.ConfigPath)
		assert.False(t, flags.DryRun)
		assert.Zero(t, flags.DaysBack)
	})

	t.Run("all flags", func(t *testing.T) {
		flags, err := ParseRunFlags([]string{
			"-config", "alt.yaml", "-data", "/tmp/data", "-reports", "/tmp/out",
			"-dry-run", "-days", "3", "-since", "2025-09-01", "-until", "2025-09-07",
			"-run-id", "manual", "-verbose",
		}, io.Discard)

		require.NoError(t, err)
		assert.Equal(t, "alt.yaml", flags.ConfigPath)
		assert.Equal(t, "/tmp/data", flags.DataDir)
		assert.True(t, flags.DryRun)
		assert.Equal(t, 3, flags.DaysBack)
		assert.Equal(t, "manual", flags.RunID)
	})

	t.Run("rejects negative days", func(t *testing.T) {
		_, err := ParseRunFlags([]string{"-days", "-1"}, io.Discard)
		assert.Error(t, err)
	})

	t.Run("rejects unknown flag", func(t *testing.T) {
		_, err := ParseRunFlags([]string{"-bogus"}, io.Discard)
		assert.Error(t, err)
	})
}

func TestRunFlags_Apply(t *testing.T) {
	cfg := config.Default()
	flags := &RunFlags{DataDir: "d", ReportsDir: "r", DaysBack: 4, Verbose: true}

	flags.Apply(cfg)

	assert.Equal(t, "d", cfg.Data.Dir)
	assert.Equal(t, "r", cfg.Reports.OutputDir)
	assert.Equal(t, 4, cfg.App.DaysBack)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
}

func TestRunFlags_ToOptions(t *testing.T) {
	loc := time.FixedZone("WAT", 3600)

	t.Run("dates cover whole days", func(t *testing.T) {
		flags := &RunFlags{Since: "2025-09-01", Until: "2025-09-07", RunID: "r1", DryRun: true}

		opts, err := flags.ToOptions(loc)

		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 9, 1, 0, 0, 0, 0, loc), opts.Since)
		assert.Equal(t, time.Date(2025, 9, 7, 23, 59, 59, 0, loc), opts.Until)
		assert.Equal(t, "r1", opts.RunID)
		assert.True(t, opts.DryRun)
	})

	t.Run("empty dates stay zero", func(t *testing.T) {
		opts, err := (&RunFlags{}).ToOptions(loc)

		require.NoError(t, err)
		assert.True(t, opts.Since.IsZero())
		assert.True(t, opts.Until.IsZero())
	})

	t.Run("bad dates", func(t *testing.T) {
		_, err := (&RunFlags{Since: "01/09/2025"}).ToOptions(loc)
		assert.Error(t, err)

		_, err = (&RunFlags{Since: "2025-09-07", Until: "2025-09-01"}).ToOptions(loc)
		assert.Error(t, err)
	})
}

func TestPrintRunSummary(t *testing.T) {
	// Arrange
	result := &recon.Result{
		RunID: "20250920_100000",
		Since: time.Date(2025, 9, 13, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2025, 9, 20, 23, 59, 59, 0, time.UTC),
		Summary: recon.Summary{
			StripeCharges: 3, StripeMatchedPrimary: 2, StripeUnmatched: 1, StripeMatchRate: 2.0 / 3, StripeFlags: 2,
			FXRows: 3, FXFlagged: 1, FXExcessCost: 300, Alerts: 5,
		},
		Totals:    &validator.TotalsValidation{ProcessorNet: 300, LedgerNet: 320, Difference: -20},
		Dispatch:  &notify.DispatchResult{Digests: 2, Reminders: 1},
		Errors:    map[string]string{"webhooks": "timeout", "cc": "export missing"},
		ReportDir: "reports/20250920_100000",
	}
	var buf bytes.Buffer

	// Act
	PrintHeader(&buf, true)
	PrintRunSummary(&buf, result)

	// Assert
	out := buf.String()
	assert.Contains(t, out, "DRY-RUN mode")
	assert.Contains(t, out, "Run 20250920_100000 | 2025-09-13 .. 2025-09-20")
	assert.Contains(t, out, "charges=3 primary=2 fallback=0 unmatched=1 match_rate=66.7% flags=2")
	assert.Contains(t, out, "difference=-20.00")
	assert.Contains(t, out, "excess=300.00")
	assert.Contains(t, out, "digests=2 reminders=1")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("cc: export missing")), bytes.Index(buf.Bytes(), []byte("webhooks: timeout")))
	assert.Contains(t, out, "Reports written to reports/20250920_100000")
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestRunRecon_EndToEnd(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	writeFile(t, dataDir, sources.ChargesFile, `[
		{"charge_id": "ch_1", "invoice_id": "INV-1001", "email": "a@x.com", "amount": 10000, "currency": "INR", "created": "2025-09-10T08:00:00Z", "status": "succeeded"}
	]`)
	writeFile(t, dataDir, sources.PostingsFile, `[
		{"rms_id": "r1", "invoice_no": "INV-1001", "email": "a@x.com", "amount_inr": 10000, "currency": "INR", "posted_at": "2025-09-10T09:00:00Z"}
	]`)
	writeFile(t, dataDir, filepath.Join(sources.StatementsDir, "sep_hdfc.csv"),
		"Txn Date,Txn Description,Amount (INR),Card No\n2025-09-12,SWIGGY BANGALORE,450,1111\n")

	cfg := config.Default()
	cfg.App.Timezone = "UTC"
	cfg.Storage.DatabasePath = filepath.Join(dir, "recon.db")
	cfg.Rates.Static = map[string]float64{"USD": 83}
	flags := &RunFlags{
		DataDir:    dataDir,
		ReportsDir: filepath.Join(dir, "reports"),
		DryRun:     true,
		Since:      "2025-09-01",
		Until:      "2025-09-30",
		RunID:      "e2e",
	}
	flags.Apply(cfg)

	app, err := NewApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	var buf bytes.Buffer

	// Act
	err = RunRecon(context.Background(), app, flags, &buf)

	// Assert
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Run e2e | 2025-09-01 .. 2025-09-30")
	assert.Contains(t, buf.String(), "charges=1")
	assert.FileExists(t, filepath.Join(dir, "reports", "e2e", "report.json"))
	assert.FileExists(t, filepath.Join(dir, "reports", "e2e", "FX_Annotated.csv"))

	run, err := app.Store.GetRun("e2e")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, storage.RunStatusCompleted, run.Status)
	assert.True(t, run.DryRun)
}

func TestNewApp_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.App.Timezone = "Mars/Olympus"

	_, err := NewApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Error(t, err)
}

func TestParseServeFlags(t *testing.T) {
	flags, err := ParseServeFlags([]string{"-port", "9090", "-verbose"}, io.Discard)

	require.NoError(t, err)
	assert.Equal(t, 9090, flags.Port)
	assert.True(t, flags.Verbose)
	assert.Equal(t, "config.yaml", flags.ConfigPath)
}
