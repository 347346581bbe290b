package fx

import (
	"fmt"
	"math"
	"regexp"
	"runtime"
	"strings"
	"sync"

	"github.com/eshaffer321/recon-monitor/internal/domain/txn"
)

// Classifier decides the FX context of statement lines. It is pure and safe
// for concurrent use.
type Classifier struct {
	config  Config
	local   string
	dcc     *regexp.Regexp
	workers int
}

// NewClassifier creates a classifier for the given configuration.
func NewClassifier(config Config) *Classifier {
	local := strings.ToUpper(strings.TrimSpace(config.LocalCurrency))
	if local == "" {
		local = DefaultConfig().LocalCurrency
	}
	if config.LocalTolerance <= 0 {
		config.LocalTolerance = DefaultConfig().LocalTolerance
	}
	return &Classifier{
		config:  config,
		local:   local,
		dcc:     dccPattern(local),
		workers: runtime.GOMAXPROCS(0),
	}
}

// Classify applies the precedence chain: DCC markers, stated currency,
// receipt currency, narration hint, merchant country, then domestic.
func (c *Classifier) Classify(in Input) Context {
	ctx := c.classify(in)
	if !in.Timestamp.IsZero() {
		ctx.Date = txn.DateOf(in.Timestamp, c.config.Location)
	}
	return ctx
}

func (c *Classifier) classify(in Input) Context {
	narration := in.Narration
	country := strings.ToUpper(strings.TrimSpace(in.MerchantCountry))
	hasCountry := country != ""
	absErr := c.agreement(in)

	if m := c.dcc.FindString(narration); m != "" {
		return Context{
			IsDCC:      true,
			Currency:   c.local,
			Source:     SourceDCC,
			Confidence: 1.0,
			Notes:      fmt.Sprintf("DCC marker %q in narration; markup analysis bypassed", m),
		}
	}

	if stated := normalize(in.StatedCurrency); stated != "" && stated != c.local {
		return Context{
			IsForeign:  true,
			Currency:   stated,
			Source:     SourceStatement,
			Confidence: 0.9,
			Notes:      "currency stated on statement",
		}
	}

	if receipt := normalize(in.ReceiptCurrency); receipt != "" && receipt != c.local {
		return Context{
			IsForeign:  true,
			Currency:   receipt,
			Source:     SourceReceipt,
			Confidence: c.confidence(true, hasCountry, absErr),
			Notes:      "currency taken from receipt",
		}
	}

	if hinted, ok := hintedCurrency(narration); ok && hinted != c.local {
		return Context{
			IsForeign:  true,
			Currency:   hinted,
			Source:     SourceNarration,
			Confidence: c.confidence(false, hasCountry, absErr),
			Notes:      fmt.Sprintf("narration mentions %s", hinted),
		}
	}

	if ccy, ok := CurrencyForCountry(country); ok && ccy != c.local {
		return Context{
			IsForeign:  true,
			Currency:   ccy,
			Source:     SourceCountry,
			Confidence: c.confidence(false, true, absErr),
			Notes:      fmt.Sprintf("merchant country %s", country),
		}
	}

	confidence := 0.5
	if strings.Contains(strings.ToUpper(narration), c.local) {
		confidence = 0.8
	}
	return Context{
		Currency:   c.local,
		Source:     SourceNone,
		Confidence: confidence,
		Notes:      "no foreign currency evidence",
	}
}

// ClassifyBatch classifies every input concurrently. The output is in input
// order.
func (c *Classifier) ClassifyBatch(inputs []Input) []Context {
	out := make([]Context, len(inputs))
	if len(inputs) == 0 {
		return out
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < c.batchWorkers(len(inputs)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				out[i] = c.Classify(inputs[i])
			}
		}()
	}
	for i := range inputs {
		indexes <- i
	}
	close(indexes)
	wg.Wait()
	return out
}

// batchWorkers is the pool size for n inputs.
func (c *Classifier) batchWorkers(n int) int {
	return max(1, min(c.workers, n))
}

// confidence weighs the available evidence:
// +0.5 receipt, +0.3 merchant country, and +0.2 when expected and charged
// amounts agree within half the tolerance (+0.1 within the full tolerance).
func (c *Classifier) confidence(receipt, country bool, absErr *float64) float64 {
	score := 0.0
	if receipt {
		score += 0.5
	}
	if country {
		score += 0.3
	}
	if absErr != nil {
		tol := c.config.LocalTolerance
		if *absErr <= tol/2 {
			score += 0.2
		} else if *absErr <= tol {
			score += 0.1
		}
	}
	return math.Min(1.0, txn.Round2(score))
}

func (c *Classifier) agreement(in Input) *float64 {
	if in.ExpectedLocal == nil || in.ChargedLocal == nil {
		return nil
	}
	d := math.Abs(*in.ChargedLocal - *in.ExpectedLocal)
	return &d
}

func normalize(ccy string) string {
	return strings.ToUpper(strings.TrimSpace(ccy))
}
