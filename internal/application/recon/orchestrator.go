// Package recon sequences one reconciliation run: fetch the window, check
// its structure, run the FX, Stripe and card blocks, then summarize, report,
// notify and record.
package recon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/eshaffer321/recon-monitor/internal/adapters/rates"
	"github.com/eshaffer321/recon-monitor/internal/domain/ageing"
	"github.com/eshaffer321/recon-monitor/internal/domain/alerts"
	"github.com/eshaffer321/recon-monitor/internal/domain/fx"
	"github.com/eshaffer321/recon-monitor/internal/domain/markup"
	"github.com/eshaffer321/recon-monitor/internal/domain/matcher"
	"github.com/eshaffer321/recon-monitor/internal/domain/txn"
	"github.com/eshaffer321/recon-monitor/internal/domain/validator"
	"github.com/eshaffer321/recon-monitor/internal/infrastructure/storage"
)

// Deps are the collaborators of a run. Any of them may be nil: a nil source
// leaves its block empty, a nil sink is skipped.
type Deps struct {
	Stripe     StripeSource
	RMS        RMSSource
	Statement  StatementSource
	Rates      rates.Lookup
	Reporter   Reporter
	Dispatcher Dispatcher
	Store      storage.Repository
}

// Orchestrator runs reconciliations
type Orchestrator struct {
	deps       Deps
	config     Config
	classifier *fx.Classifier
	analyzer   *markup.Analyzer
	matcher    *matcher.Matcher
	ageing     *ageing.Classifier
	alerts     *alerts.Builder
	logger     *slog.Logger
	now        func() time.Time
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(deps Deps, config Config, logger *slog.Logger) *Orchestrator {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.DaysBack <= 0 {
		config.DaysBack = 7
	}
	config.FX.Location = config.Location
	config.Matcher.Location = config.Location
	config.Ageing.Location = config.Location
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		deps:       deps,
		config:     config,
		classifier: fx.NewClassifier(config.FX),
		analyzer:   markup.NewAnalyzer(config.Markup),
		matcher:    matcher.NewMatcher(config.Matcher),
		ageing:     ageing.NewClassifier(config.Ageing),
		alerts:     alerts.NewBuilder(config.Alerts),
		logger:     logger.With("system", "recon"),
		now:        time.Now,
	}
}

// Window returns the default run window: midnight daysBack days ago through
// the end of today, in loc.
func Window(now time.Time, daysBack int, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	y, m, d := local.Date()
	since := time.Date(y, m, d-daysBack, 0, 0, 0, 0, loc)
	until := time.Date(y, m, d, 23, 59, 59, 0, loc)
	return since, until
}

// RunID formats the default run identifier.
func RunID(now time.Time, loc *time.Location) string {
	return now.In(loc).Format("20060102_150405")
}

func (o *Orchestrator) resolveOptions(opts Options) Options {
	if opts.Now.IsZero() {
		opts.Now = o.now()
	}
	if opts.Since.IsZero() || opts.Until.IsZero() {
		since, until := Window(opts.Now, o.config.DaysBack, o.config.Location)
		if opts.Since.IsZero() {
			opts.Since = since
		}
		if opts.Until.IsZero() {
			opts.Until = until
		}
	}
	if opts.RunID == "" {
		opts.RunID = RunID(opts.Now, o.config.Location)
	}
	return opts
}

// Run executes one reconciliation. Only a structural input failure or a
// cancelled context returns an error; collaborator failures empty their
// block and are listed in Result.Errors.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	opts = o.resolveOptions(opts)
	logger := o.logger.With("run_id", opts.RunID)

	logger.Info("Starting run",
		"since", opts.Since.Format(time.RFC3339),
		"until", opts.Until.Format(time.RFC3339),
		"dry_run", opts.DryRun,
	)

	o.recordStart(logger, opts)

	result := &Result{
		RunID:  opts.RunID,
		Since:  opts.Since,
		Until:  opts.Until,
		Errors: make(map[string]string),
	}

	batch, fetchErrs := o.fetch(ctx, opts)
	if err := ctx.Err(); err != nil {
		o.recordFailure(logger, opts.RunID, err)
		return nil, err
	}
	for _, block := range slices.Sorted(maps.Keys(fetchErrs)) {
		err := fetchErrs[block]
		if validator.IsStructural(err) {
			logger.Error("Structural input failure", "block", block, "error", err)
			o.recordFailure(logger, opts.RunID, err)
			return nil, fmt.Errorf("input validation failed: %w", err)
		}
		logger.Warn("Block fetch failed", "block", block, "error", err)
		result.Errors[block] = err.Error()
	}

	if err := validator.ValidateBatch(batch.Batch); err != nil {
		logger.Error("Structural validation failed", "error", err)
		o.recordFailure(logger, opts.RunID, err)
		return nil, fmt.Errorf("input validation failed: %w", err)
	}

	result.FX = o.analyzeRecords(ctx, batch.Statement)

	out := o.matcher.Match(matcher.Input{
		Charges:  batch.Charges,
		Refunds:  batch.Refunds,
		Postings: batch.Postings,
		Webhooks: batch.Webhooks,
	})
	result.Matches = out.Records
	result.Flags = out.Flags
	if batch.stripeOK {
		result.Totals = o.totals(batch)
	}

	result.CC = o.classifyCards(batch.CardExport, opts.Now)

	stats := out.Stats()
	result.Alerts = o.alerts.Build(alerts.Findings{
		RunID:       opts.RunID,
		Now:         opts.Now,
		Flags:       result.Flags,
		Markups:     markupFindings(result.FX),
		Ageing:      ageingFindings(result.CC),
		Match:       stats,
		BlockErrors: blockErrors(result.Errors),
	})

	result.Summary = summarize(opts, result, stats)
	result.Sheets = buildSheets(result)

	o.deliver(ctx, logger, opts, result)

	logger.Info("Run complete",
		"stripe_flags", result.Summary.StripeFlags,
		"cc_late_entries", result.Summary.CCLateEntries,
		"cc_invoice_later", result.Summary.CCInvoiceLater,
		"fx_flagged", result.Summary.FXFlagged,
		"alerts", result.Summary.Alerts,
		"errors", len(result.Errors),
	)
	return result, nil
}

// fetched is the window's data plus which blocks arrived intact.
type fetched struct {
	validator.Batch
	stripeOK bool
}

// fetch calls every source concurrently. Each source writes only its own
// fields, so results merge without ordering effects.
func (o *Orchestrator) fetch(ctx context.Context, opts Options) (fetched, map[string]error) {
	var (
		b        fetched
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures = make(map[string]error)
	)
	fail := func(block string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if prev, ok := failures[block]; ok {
			err = fmt.Errorf("%w; %w", prev, err)
		}
		failures[block] = err
	}
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	var (
		charges  []matcher.Charge
		refunds  []matcher.Refund
		postings []matcher.Posting
		stripeOK = o.deps.Stripe != nil && o.deps.RMS != nil
	)

	if o.deps.Stripe != nil {
		run(func() {
			v, err := o.deps.Stripe.Charges(ctx, opts.Since, opts.Until)
			if err != nil {
				fail(BlockStripe, fmt.Errorf("charges: %w", err))
				return
			}
			charges = v
		})
		run(func() {
			v, err := o.deps.Stripe.Refunds(ctx, opts.Since, opts.Until)
			if err != nil {
				fail(BlockStripe, fmt.Errorf("refunds: %w", err))
				return
			}
			refunds = v
		})
		run(func() {
			// The webhook log only sharpens IntegrationFailure flags; the
			// block runs without it.
			v, err := o.deps.Stripe.WebhookEvents(ctx, opts.Since, opts.Until)
			if err != nil {
				fail("webhooks", err)
				return
			}
			b.Webhooks = v
		})
	}
	if o.deps.RMS != nil {
		run(func() {
			v, err := o.deps.RMS.Postings(ctx, opts.Since, opts.Until)
			if err != nil {
				fail(BlockStripe, fmt.Errorf("postings: %w", err))
				return
			}
			postings = v
		})
		run(func() {
			v, err := o.deps.RMS.CardTransactions(ctx, opts.Since, opts.Until)
			if err != nil {
				fail(BlockCC, err)
				return
			}
			b.CardExport = v
		})
	}
	if o.deps.Statement != nil {
		run(func() {
			// Records of the files that parsed are kept next to the error.
			v, err := o.deps.Statement.Statement(ctx, opts.Since, opts.Until)
			if err != nil {
				fail(BlockFX, err)
			}
			b.Statement = v
		})
	}

	wg.Wait()

	if _, failed := failures[BlockStripe]; failed {
		stripeOK = false
	}
	if stripeOK {
		b.Charges, b.Refunds, b.Postings = charges, refunds, postings
	} else {
		b.Webhooks = nil
	}
	b.stripeOK = stripeOK
	return b, failures
}

// AnalyzeRecord classifies one statement line and analyzes its markup.
func (o *Orchestrator) AnalyzeRecord(ctx context.Context, rec txn.Record) FXRow {
	return o.analyzeRecords(ctx, []txn.Record{rec})[0]
}

// rateKey identifies one rate lookup.
type rateKey struct {
	date     string
	currency string
}

func (o *Orchestrator) analyzeRecords(ctx context.Context, records []txn.Record) []FXRow {
	if len(records) == 0 {
		return nil
	}

	inputs := make([]fx.Input, len(records))
	for i, rec := range records {
		inputs[i] = fxInput(rec)
	}
	contexts := o.classifier.ClassifyBatch(inputs)

	// One lookup per distinct (date, currency), in parallel.
	wanted := make(map[rateKey]time.Time)
	for i, c := range contexts {
		if c.IsForeign && records[i].HasForeignAmount() && !c.Date.IsZero() {
			wanted[rateKey{c.Date.Format(time.DateOnly), c.Currency}] = c.Date
		}
	}
	found := o.lookupRates(ctx, wanted)

	rows := make([]FXRow, len(records))
	for i, rec := range records {
		c := contexts[i]
		row := FXRow{Record: rec, Context: c}

		if c.IsForeign && rec.HasForeignAmount() && !c.Date.IsZero() {
			if rate, ok := found[rateKey{c.Date.Format(time.DateOnly), c.Currency}]; ok {
				row.Rate = txn.Float(rate)
				row.Expected = txn.Float(txn.Round2(*rec.ForeignAmount * rate))

				// Receipt confidence depends on how well the converted
				// receipt amount agrees with the charge.
				if c.Source == fx.SourceReceipt {
					in := inputs[i]
					in.ExpectedLocal = row.Expected
					row.Context = o.classifier.Classify(in)
				}
			}
		}

		row.Markup = o.analyzer.Analyze(markup.Input{
			ForeignAmount: rec.ForeignAmount,
			ChargedLocal:  localAmount(rec),
			InterbankRate: row.Rate,
			IsDCC:         row.Context.IsDCC,
		})
		rows[i] = row
	}
	return rows
}

func (o *Orchestrator) lookupRates(ctx context.Context, wanted map[rateKey]time.Time) map[rateKey]float64 {
	found := make(map[rateKey]float64, len(wanted))
	if o.deps.Rates == nil || len(wanted) == 0 {
		return found
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for key, date := range wanted {
		wg.Add(1)
		go func(key rateKey, date time.Time) {
			defer wg.Done()
			rate, ok := o.deps.Rates.Rate(ctx, date, key.currency)
			if !ok {
				o.logger.Debug("No rate", "date", key.date, "currency", key.currency)
				return
			}
			mu.Lock()
			found[key] = rate
			mu.Unlock()
		}(key, date)
	}
	wg.Wait()
	return found
}

func fxInput(rec txn.Record) fx.Input {
	return fx.Input{
		Narration:       rec.Narration,
		MerchantCountry: rec.MerchantCountry,
		StatedCurrency:  rec.StatedCurrency,
		ReceiptCurrency: rec.ReceiptCurrency,
		ChargedLocal:    localAmount(rec),
		Timestamp:       rec.Timestamp,
	}
}

func localAmount(rec txn.Record) *float64 {
	if rec.LocalAmount == 0 {
		return nil
	}
	return txn.Float(rec.LocalAmount)
}

func (o *Orchestrator) totals(b fetched) *validator.TotalsValidation {
	var charges, refunds, postings []float64
	for _, c := range b.Charges {
		if c.Succeeded() {
			charges = append(charges, c.Amount)
		}
	}
	for _, r := range b.Refunds {
		refunds = append(refunds, r.Amount)
	}
	for _, p := range b.Postings {
		postings = append(postings, p.Amount)
	}
	return validator.ValidateTotals(charges, refunds, postings, o.config.Matcher.AmountTolerance)
}

func (o *Orchestrator) classifyCards(cards []txn.CardTransaction, now time.Time) []CCRow {
	if len(cards) == 0 {
		return nil
	}
	rows := make([]CCRow, len(cards))
	for i, c := range cards {
		rows[i] = CCRow{
			Transaction: c,
			Ageing: o.ageing.Classify(ageing.Input{
				TransactionDate: c.Date,
				EnteredAt:       c.EnteredAt,
				InvoiceLater:    c.InvoiceLater,
				HasReceipt:      c.HasReceipt,
				Today:           now,
			}),
		}
	}
	return rows
}

// deliver hands the run to the reporter, dispatcher and store. Failures are
// recorded on the result and never fail the run.
func (o *Orchestrator) deliver(ctx context.Context, logger *slog.Logger, opts Options, result *Result) {
	if o.deps.Reporter != nil {
		dir, err := o.deps.Reporter.Write(opts.RunID, result.Sheets)
		if err != nil {
			logger.Error("Report failed", "error", err)
			result.Errors["report"] = err.Error()
		}
		result.ReportDir = dir
	}

	if o.deps.Dispatcher != nil && !opts.DryRun {
		dedupKey := opts.Now.In(o.config.Location).Format(time.DateOnly)
		dispatched, err := o.deps.Dispatcher.Dispatch(ctx, dedupKey, result.Alerts)
		if err != nil {
			logger.Error("Notification failed", "error", err)
			result.Errors["notify"] = err.Error()
		}
		result.Dispatch = &dispatched
	}

	if o.deps.Store == nil {
		return
	}
	if err := o.deps.Store.SaveFlags(opts.RunID, storageFlags(result.Flags)); err != nil {
		logger.Error("Failed to save flags", "error", err)
		result.Errors["storage"] = err.Error()
	}
	summary, err := encodeSummary(result.Summary)
	if err != nil {
		logger.Error("Failed to encode run summary", "error", err)
		result.Errors["storage"] = err.Error()
	}
	if err := o.deps.Store.CompleteRun(opts.RunID, summary, len(result.Flags), result.ReportDir); err != nil {
		logger.Error("Failed to complete run record", "error", err)
		result.Errors["storage"] = err.Error()
	}
}

// encodeSummary renders the summary stored with the run record.
func encodeSummary(s Summary) (json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	return data, nil
}

func (o *Orchestrator) recordStart(logger *slog.Logger, opts Options) {
	if o.deps.Store == nil {
		return
	}
	err := o.deps.Store.StartRun(&storage.Run{
		ID:        opts.RunID,
		StartedAt: opts.Now,
		Since:     opts.Since.Format(time.RFC3339),
		Until:     opts.Until.Format(time.RFC3339),
		DryRun:    opts.DryRun,
	})
	if err != nil {
		logger.Warn("Failed to record run start", "error", err)
	}
}

func (o *Orchestrator) recordFailure(logger *slog.Logger, runID string, cause error) {
	if o.deps.Store == nil {
		return
	}
	if err := o.deps.Store.FailRun(runID, cause.Error()); err != nil {
		logger.Warn("Failed to record run failure", "error", err)
	}
}

func storageFlags(flags []matcher.Flag) []storage.RunFlag {
	out := make([]storage.RunFlag, len(flags))
	for i, f := range flags {
		out[i] = storage.RunFlag{
			FlagID:      f.ID,
			Severity:    string(f.Severity),
			Category:    string(f.Category),
			ChargeID:    f.ChargeID,
			InvoiceID:   f.InvoiceID,
			EntityKeys:  f.EntityKeys,
			Reason:      f.Reason,
			Remediation: f.Remediation,
		}
	}
	return out
}

func markupFindings(rows []FXRow) []alerts.MarkupFinding {
	var out []alerts.MarkupFinding
	for _, r := range rows {
		if !r.Markup.Flagged {
			continue
		}
		out = append(out, alerts.MarkupFinding{
			RecordID:  r.Record.ID,
			Narration: r.Record.Narration,
			Currency:  r.Context.Currency,
			Result:    r.Markup,
		})
	}
	return out
}

func ageingFindings(rows []CCRow) []alerts.AgeingFinding {
	out := make([]alerts.AgeingFinding, 0, len(rows))
	for _, r := range rows {
		out = append(out, alerts.AgeingFinding{
			TransactionID: r.Transaction.ID,
			Cardholder:    r.Transaction.Cardholder,
			Vendor:        r.Transaction.Vendor,
			Amount:        r.Transaction.Amount,
			Record:        r.Ageing,
		})
	}
	return out
}

// blockErrors keeps the failures that emptied a block.
func blockErrors(errs map[string]string) map[string]string {
	out := make(map[string]string)
	for _, block := range []string{BlockStripe, BlockCC, BlockFX} {
		if msg, ok := errs[block]; ok {
			out[block] = msg
		}
	}
	return out
}

func summarize(opts Options, r *Result, stats matcher.Stats) Summary {
	s := Summary{
		RunID:  opts.RunID,
		RunTS:  opts.Now,
		Since:  opts.Since,
		Until:  opts.Until,
		DryRun: opts.DryRun,

		StripeCharges:         stats.Total,
		StripeMatchedPrimary:  stats.Primary,
		StripeMatchedFallback: stats.Fallback,
		StripeUnmatched:       stats.Unmatched,
		StripeMatchRate:       stats.MatchRate(),
		StripeFlags:           len(r.Flags),

		CCRows: len(r.CC),
		FXRows: len(r.FX),

		Alerts:      len(r.Alerts),
		BlockErrors: len(blockErrors(r.Errors)),
	}
	if r.Totals != nil {
		s.StripeTotalsDifference = r.Totals.Difference
	}

	for _, c := range r.CC {
		switch c.Ageing.Flag {
		case ageing.FlagLateEntry:
			s.CCLateEntries++
		case ageing.FlagInvoiceLater:
			s.CCInvoiceLater++
		case ageing.FlagNoReceipt:
			s.CCNoReceipt++
		}
		if c.Ageing.IsOverdue {
			s.CCOverdue++
		}
	}

	var excess float64
	for _, f := range r.FX {
		if f.Context.IsForeign {
			s.FXForeign++
		}
		if f.Context.IsDCC {
			s.FXDCC++
		}
		switch f.Markup.Status {
		case markup.StatusFlagged:
			s.FXFlagged++
			excess += f.Markup.ExcessCost()
		case markup.StatusSkipped:
			s.FXSkipped++
		}
	}
	s.FXExcessCost = txn.Round2(excess)
	return s
}
