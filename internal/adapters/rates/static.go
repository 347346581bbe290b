package rates

import (
	"context"
	"fmt"
	"time"
)

// StaticSource serves a fixed table of rates per currency, optionally
// overridden per date. Useful for offline runs and as a last-resort source.
type StaticSource struct {
	name       string
	base       string
	rates      map[string]float64
	dated      map[string]map[string]float64 // date -> currency -> rate
	confidence float64
}

// NewStaticSource creates a source from currency -> rate. Rates are units of
// base per 1 unit of the currency.
func NewStaticSource(name, base string, table map[string]float64) *StaticSource {
	rates := make(map[string]float64, len(table))
	for ccy, r := range table {
		rates[normalizeCurrency(ccy)] = r
	}
	return &StaticSource{
		name:       name,
		base:       normalizeCurrency(base),
		rates:      rates,
		dated:      make(map[string]map[string]float64),
		confidence: 0.6,
	}
}

// WithDatedRate pins a rate for one calendar date.
func (s *StaticSource) WithDatedRate(date time.Time, currency string, rate float64) *StaticSource {
	key := date.Format("2006-01-02")
	if s.dated[key] == nil {
		s.dated[key] = make(map[string]float64)
	}
	s.dated[key][normalizeCurrency(currency)] = rate
	return s
}

// Name implements Source.
func (s *StaticSource) Name() string {
	return s.name
}

// Fetch implements Source.
func (s *StaticSource) Fetch(_ context.Context, date time.Time, currency string) (*Quote, error) {
	ccy := normalizeCurrency(currency)
	if ccy == s.base {
		return &Quote{Currency: ccy, Base: s.base, Date: date, Rate: 1, Source: s.name, Confidence: 1}, nil
	}

	rate, ok := s.dated[date.Format("2006-01-02")][ccy]
	if !ok {
		rate, ok = s.rates[ccy]
	}
	if !ok || rate <= 0 {
		return nil, fmt.Errorf("%s: %s: %w", s.name, ccy, ErrNoRate)
	}

	return &Quote{
		Currency:   ccy,
		Base:       s.base,
		Date:       date,
		Rate:       rate,
		Source:     s.name,
		Confidence: s.confidence,
	}, nil
}
