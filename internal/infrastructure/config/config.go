// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv_WithPath("config.yaml")
//	loc, err := cfg.Location()
//	m := matcher.NewMatcher(cfg.MatcherConfig(loc))
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	App           AppConfig           `yaml:"app"`
	Thresholds    ThresholdsConfig    `yaml:"thresholds"`
	Holidays      []string            `yaml:"holidays"`
	Data          DataConfig          `yaml:"data"`
	Rates         RatesConfig         `yaml:"rates"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Reports       ReportsConfig       `yaml:"reports"`
	Storage       StorageConfig       `yaml:"storage"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// AppConfig holds process-wide settings
type AppConfig struct {
	Timezone      string `yaml:"timezone"`
	LocalCurrency string `yaml:"local_currency"`
	DaysBack      int    `yaml:"days_back"`
}

// ThresholdsConfig holds every tolerance the reconciliation core consumes
type ThresholdsConfig struct {
	FXMarkupTolerancePct  float64 `yaml:"fx_markup_tolerance_pct"`
	FXLocalTolerance      float64 `yaml:"fx_local_tolerance"`
	AmountMatchTolerance  float64 `yaml:"amount_match_tolerance"`
	DateWindowDays        int     `yaml:"date_window_days"`
	LateEntryWorkingDays  int     `yaml:"late_entry_working_days"`
	InvoiceLaterDays      int     `yaml:"invoice_later_days"`
	FinanceEscalationDays int     `yaml:"finance_escalation_days"`
	MinMatchRate          float64 `yaml:"min_match_rate"`
}

// DataConfig points at collaborator exports
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// RatesConfig configures interbank rate sources
type RatesConfig struct {
	Preferred string             `yaml:"preferred"`
	CacheSize int                `yaml:"cache_size"`
	Static    map[string]float64 `yaml:"static"`
	HTTP      HTTPRatesConfig    `yaml:"http"`
}

// HTTPRatesConfig configures the fixer-compatible rate endpoint
type HTTPRatesConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Name     string `yaml:"name"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Timeout  string `yaml:"timeout"`
	RetryMax int    `yaml:"retry_max"`
}

// NotificationsConfig configures alert delivery
type NotificationsConfig struct {
	WebhookURL string   `yaml:"webhook_url"`
	UserDomain string   `yaml:"user_domain"`
	APTeam     []string `yaml:"ap_team"`
	Finance    []string `yaml:"finance"`
	Compliance []string `yaml:"compliance"`
}

// ReportsConfig holds report output settings
type ReportsConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with production defaults
func Default() *Config {
	return &Config{
		App: AppConfig{
			Timezone:      "Africa/Lagos",
			LocalCurrency: "INR",
			DaysBack:      7,
		},
		Thresholds: ThresholdsConfig{
			FXMarkupTolerancePct:  2.5,
			FXLocalTolerance:      100,
			AmountMatchTolerance:  10,
			DateWindowDays:        2,
			LateEntryWorkingDays:  3,
			InvoiceLaterDays:      14,
			FinanceEscalationDays: 30,
			MinMatchRate:          0.95,
		},
		Data:    DataConfig{Dir: "data"},
		Rates:   RatesConfig{Preferred: "fixer", CacheSize: 512},
		Reports: ReportsConfig{OutputDir: "reports"},
		Storage: StorageConfig{DatabasePath: "recon.db"},
		Server:  ServerConfig{Port: 8085},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{Level: "info", Format: "text"},
		},
	}
}

// Load reads and parses the config file. Unset values keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${FX_API_KEY})
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	d := Default()
	cfg := &Config{
		App: AppConfig{
			Timezone:      getEnv("APP_TIMEZONE", d.App.Timezone),
			LocalCurrency: getEnv("APP_LOCAL_CURRENCY", d.App.LocalCurrency),
			DaysBack:      getEnvInt("RECON_DAYS_BACK", d.App.DaysBack),
		},
		Thresholds: ThresholdsConfig{
			FXMarkupTolerancePct:  getEnvFloat("FX_MARKUP_TOL_PCT", d.Thresholds.FXMarkupTolerancePct),
			FXLocalTolerance:      getEnvFloat("FX_INR_TOL", d.Thresholds.FXLocalTolerance),
			AmountMatchTolerance:  getEnvFloat("AMOUNT_MATCH_TOL_INR", d.Thresholds.AmountMatchTolerance),
			DateWindowDays:        getEnvInt("DATE_WINDOW_DAYS", d.Thresholds.DateWindowDays),
			LateEntryWorkingDays:  getEnvInt("LATE_ENTRY_WORKING_DAYS", d.Thresholds.LateEntryWorkingDays),
			InvoiceLaterDays:      getEnvInt("INVOICE_LATER_DAYS", d.Thresholds.InvoiceLaterDays),
			FinanceEscalationDays: getEnvInt("FINANCE_ESCALATION_DAYS", d.Thresholds.FinanceEscalationDays),
			MinMatchRate:          getEnvFloat("MIN_MATCH_RATE", d.Thresholds.MinMatchRate),
		},
		Holidays: getEnvList("APP_HOLIDAYS"),
		Data:     DataConfig{Dir: getEnv("RECON_DATA_DIR", d.Data.Dir)},
		Rates: RatesConfig{
			Preferred: getEnv("FX_PROVIDER", d.Rates.Preferred),
			CacheSize: getEnvInt("FX_CACHE_SIZE", d.Rates.CacheSize),
			HTTP: HTTPRatesConfig{
				Enabled: os.Getenv("FX_API_KEY") != "",
				Name:    getEnv("FX_PROVIDER", "fixer"),
				BaseURL: getEnv("FX_BASE_URL", "https://data.fixer.io/api"),
				APIKey:  os.Getenv("FX_API_KEY"),
			},
		},
		Notifications: NotificationsConfig{
			WebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
			UserDomain: os.Getenv("USER_EMAIL_DOMAIN"),
			APTeam:     getEnvList("AP_TEAM_EMAILS"),
			Finance:    getEnvList("FINANCE_MGMT_EMAILS"),
			Compliance: getEnvList("COMPLIANCE_EMAILS"),
		},
		Reports: ReportsConfig{OutputDir: getEnv("RECON_REPORTS_DIR", d.Reports.OutputDir)},
		Storage: StorageConfig{DatabasePath: getEnv("RECON_DB_PATH", d.Storage.DatabasePath)},
		Server:  ServerConfig{Port: getEnvInt("PORT", d.Server.Port), AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS")},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
	return cfg
}

// LoadOrEnv_WithPath tries to load from specified path, falls back to environment variables
func LoadOrEnv_WithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if strings.TrimSpace(c.App.LocalCurrency) == "" {
		return fmt.Errorf("app.local_currency is required")
	}

	t := c.Thresholds
	if t.FXMarkupTolerancePct < 0 || t.FXLocalTolerance < 0 || t.AmountMatchTolerance < 0 {
		return fmt.Errorf("thresholds: tolerances must not be negative")
	}
	if t.DateWindowDays < 0 || t.LateEntryWorkingDays < 0 {
		return fmt.Errorf("thresholds: day counts must not be negative")
	}
	if t.InvoiceLaterDays > t.FinanceEscalationDays {
		return fmt.Errorf("thresholds: invoice_later_days (%d) exceeds finance_escalation_days (%d)",
			t.InvoiceLaterDays, t.FinanceEscalationDays)
	}

	for _, h := range c.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return fmt.Errorf("holidays: %q is not YYYY-MM-DD", h)
		}
	}

	if c.Rates.HTTP.Enabled && c.Rates.HTTP.BaseURL == "" {
		return fmt.Errorf("rates.http.base_url is required when enabled")
	}
	if _, err := c.Rates.HTTP.TimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// Location resolves the process timezone
func (c *Config) Location() (*time.Location, error) {
	tz := c.App.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("app.timezone %q: %w", tz, err)
	}
	return loc, nil
}

// TimeoutDuration parses the HTTP timeout, 10s when unset
func (h HTTPRatesConfig) TimeoutDuration() (time.Duration, error) {
	if h.Timeout == "" {
		return 10 * time.Second, nil
	}
	d, err := time.ParseDuration(h.Timeout)
	if err != nil {
		return 0, fmt.Errorf("rates.http.timeout: %w", err)
	}
	return d, nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvFloat retrieves a float environment variable with a fallback default
func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvList splits a comma-separated environment variable
func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
