package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/eshaffer321/recon-monitor/internal/adapters/notify"
	"github.com/eshaffer321/recon-monitor/internal/adapters/rates"
	"github.com/eshaffer321/recon-monitor/internal/adapters/report"
	"github.com/eshaffer321/recon-monitor/internal/adapters/sources"
	"github.com/eshaffer321/recon-monitor/internal/application/recon"
	"github.com/eshaffer321/recon-monitor/internal/infrastructure/config"
	"github.com/eshaffer321/recon-monitor/internal/infrastructure/storage"
)

// App holds the components shared by the recon and serve commands
type App struct {
	Config       *config.Config
	Location     *time.Location
	Logger       *slog.Logger
	Store        *storage.Storage
	Orchestrator *recon.Orchestrator
}

// NewApp wires storage, collaborators and the orchestrator from cfg
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStorageWithLogger(cfg.Storage.DatabasePath, logger.With("system", "storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	lookup, err := NewRateLookup(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	dataDir := cfg.Data.Dir
	receipts, err := sources.LoadReceiptIndex(filepath.Join(dataDir, sources.ReceiptsFile), loc)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	logger.Debug("loaded receipt index", "receipts", receipts.Len())

	registry := sources.NewRegistry(loc)
	orchestrator := recon.NewOrchestrator(recon.Deps{
		Stripe:     sources.NewFileStripe(dataDir, loc),
		RMS:        sources.NewFileRMS(dataDir, loc),
		Statement:  sources.NewStatementDir(filepath.Join(dataDir, sources.StatementsDir), registry, receipts, logger.With("system", "sources")),
		Rates:      lookup,
		Reporter:   report.NewWriter(cfg.Reports.OutputDir, logger),
		Dispatcher: NewDispatcher(cfg, store, logger),
		Store:      store,
	}, recon.Config{
		FX:       cfg.FXConfig(loc),
		Markup:   cfg.MarkupConfig(),
		Matcher:  cfg.MatcherConfig(loc),
		Ageing:   cfg.AgeingConfig(loc),
		Alerts:   cfg.AlertsConfig(),
		Location: loc,
		DaysBack: cfg.App.DaysBack,
	}, logger)

	return &App{
		Config:       cfg,
		Location:     loc,
		Logger:       logger,
		Store:        store,
		Orchestrator: orchestrator,
	}, nil
}

// Close releases the database
func (a *App) Close() error {
	return a.Store.Close()
}

// NewRateLookup builds the rate chain: static and HTTP sources behind a
// resolver, memoized per (date, currency)
func NewRateLookup(cfg *config.Config, logger *slog.Logger) (rates.Lookup, error) {
	var srcs []rates.Source

	if cfg.Rates.HTTP.Enabled {
		timeout, err := cfg.Rates.HTTP.TimeoutDuration()
		if err != nil {
			return nil, err
		}
		srcs = append(srcs, rates.NewHTTPSource(rates.HTTPConfig{
			Name:     cfg.Rates.HTTP.Name,
			BaseURL:  cfg.Rates.HTTP.BaseURL,
			APIKey:   cfg.Rates.HTTP.APIKey,
			Base:     cfg.App.LocalCurrency,
			Timeout:  timeout,
			RetryMax: cfg.Rates.HTTP.RetryMax,
		}, logger))
	}
	if len(cfg.Rates.Static) > 0 {
		srcs = append(srcs, rates.NewStaticSource("static", cfg.App.LocalCurrency, cfg.Rates.Static))
	}
	if len(srcs) == 0 {
		logger.Warn("no rate sources configured; markup checks will be skipped")
	}

	resolver := rates.NewResolver(cfg.Rates.Preferred, logger.With("system", "rates"), srcs...)
	return rates.NewCached(resolver, cfg.Rates.CacheSize)
}

// NewDispatcher builds the notification dispatcher. The log channel is
// always on; a webhook is added when configured.
func NewDispatcher(cfg *config.Config, reminders storage.ReminderRepository, logger *slog.Logger) *notify.Dispatcher {
	notifiers := []notify.Notifier{notify.NewLogNotifier(logger)}
	if cfg.Notifications.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Notifications.WebhookURL, 3, 10*time.Second))
	}

	routing := notify.Routing{
		UserDomain: cfg.Notifications.UserDomain,
		AP:         cfg.Notifications.APTeam,
		Finance:    cfg.Notifications.Finance,
		Compliance: cfg.Notifications.Compliance,
	}
	return notify.NewDispatcher(routing, reminders, logger, notifiers...)
}
