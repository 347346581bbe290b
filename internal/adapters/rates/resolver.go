package rates

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Resolver queries every registered source in parallel and settles on one
// canonical rate.
//
// Selection order:
//  1. the preferred source, if it answered
//  2. the highest-confidence answer
//  3. the earliest-registered source among equal confidence
type Resolver struct {
	sources   []Source
	preferred string
	logger    *slog.Logger
}

// NewResolver creates a resolver over sources, in priority order.
func NewResolver(preferred string, logger *slog.Logger, sources ...Source) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		sources:   sources,
		preferred: preferred,
		logger:    logger,
	}
}

// Quotes fetches from all sources concurrently and returns the successful
// quotes in registration order.
func (r *Resolver) Quotes(ctx context.Context, date time.Time, currency string) []*Quote {
	results := make([]*Quote, len(r.sources))

	var wg sync.WaitGroup
	for i, src := range r.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					r.logger.Warn("rate source panicked", "source", src.Name(), "panic", p)
				}
			}()

			q, err := src.Fetch(ctx, date, currency)
			if err != nil {
				r.logger.Debug("rate source failed", "source", src.Name(), "currency", currency, "error", err)
				return
			}
			if validQuote(q) {
				results[i] = q
			}
		}(i, src)
	}
	wg.Wait()

	quotes := make([]*Quote, 0, len(results))
	for _, q := range results {
		if q != nil {
			quotes = append(quotes, q)
		}
	}
	return quotes
}

// Resolve returns the canonical quote, or nil when no source answered.
func (r *Resolver) Resolve(ctx context.Context, date time.Time, currency string) *Quote {
	quotes := r.Quotes(ctx, date, currency)
	if len(quotes) == 0 {
		return nil
	}

	var best *Quote
	for _, q := range quotes {
		if r.preferred != "" && q.Source == r.preferred {
			return q
		}
		if best == nil || q.Confidence > best.Confidence {
			best = q
		}
	}
	return best
}

// Rate implements Lookup.
func (r *Resolver) Rate(ctx context.Context, date time.Time, currency string) (float64, bool) {
	q := r.Resolve(ctx, date, normalizeCurrency(currency))
	if q == nil {
		return 0, false
	}
	return q.Rate, true
}
