package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// HTTPConfig configures an HTTPSource.
type HTTPConfig struct {
	Name       string
	BaseURL    string // e.g. https://data.fixer.io/api
	APIKey     string
	Base       string // the local currency the rates are quoted in
	Timeout    time.Duration
	RetryMax   int
	Confidence float64
}

// HTTPSource fetches historical rates from a fixer-compatible endpoint:
//
//	GET {base_url}/{YYYY-MM-DD}?access_key=...&base=USD&symbols=INR
//	{"success": true, "rates": {"INR": 83.12}}
type HTTPSource struct {
	config HTTPConfig
	client *retryablehttp.Client
	logger *slog.Logger
}

// NewHTTPSource creates an HTTP-backed source with retries.
func NewHTTPSource(config HTTPConfig, logger *slog.Logger) *HTTPSource {
	if config.Name == "" {
		config.Name = "fixer"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Confidence == 0 {
		config.Confidence = 0.9
	}
	if logger == nil {
		logger = slog.Default()
	}
	config.Base = normalizeCurrency(config.Base)

	client := retryablehttp.NewClient()
	client.RetryMax = config.RetryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = config.Timeout
	client.Logger = nil

	return &HTTPSource{
		config: config,
		client: client,
		logger: logger.With("source", config.Name),
	}
}

type fixerResponse struct {
	Success bool               `json:"success"`
	Rates   map[string]float64 `json:"rates"`
	Error   *struct {
		Code int    `json:"code"`
		Info string `json:"info"`
	} `json:"error,omitempty"`
}

// Name implements Source.
func (s *HTTPSource) Name() string {
	return s.config.Name
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context, date time.Time, currency string) (*Quote, error) {
	ccy := normalizeCurrency(currency)

	q := url.Values{}
	if s.config.APIKey != "" {
		q.Set("access_key", s.config.APIKey)
	}
	q.Set("base", ccy)
	q.Set("symbols", s.config.Base)
	endpoint := fmt.Sprintf("%s/%s?%s", strings.TrimRight(s.config.BaseURL, "/"), date.Format("2006-01-02"), q.Encode())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", s.config.Name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", s.config.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s: status %d: %s", s.config.Name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload fixerResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", s.config.Name, err)
	}
	if !payload.Success {
		if payload.Error != nil {
			return nil, fmt.Errorf("%s: provider error %d: %s", s.config.Name, payload.Error.Code, payload.Error.Info)
		}
		return nil, fmt.Errorf("%s: %s: %w", s.config.Name, ccy, ErrNoRate)
	}

	rate, ok := payload.Rates[s.config.Base]
	if !ok || rate <= 0 {
		return nil, fmt.Errorf("%s: %s/%s: %w", s.config.Name, ccy, s.config.Base, ErrNoRate)
	}

	s.logger.Debug("fetched rate", "currency", ccy, "date", date.Format("2006-01-02"), "rate", rate)

	return &Quote{
		Currency:   ccy,
		Base:       s.config.Base,
		Date:       date,
		Rate:       rate,
		Source:     s.config.Name,
		Confidence: s.config.Confidence,
	}, nil
}
