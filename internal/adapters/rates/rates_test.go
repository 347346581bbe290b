package rates

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	name  string
	quote *Quote
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context, date time.Time, currency string) (*Quote, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.quote, f.err
}

func quote(source string, rate, confidence float64) *Quote {
	return &Quote{Currency: "USD", Base: "INR", Rate: rate, Source: source, Confidence: confidence}
}

func TestStaticSource(t *testing.T) {
	s := NewStaticSource("static", "inr", map[string]float64{"usd": 83.2, "EUR": 90.1}).
		WithDatedRate(day, "USD", 82.0)

	q, err := s.Fetch(context.Background(), day, "USD")
	require.NoError(t, err)
	assert.Equal(t, 82.0, q.Rate, "dated override wins")

	q, err = s.Fetch(context.Background(), day.AddDate(0, 0, 1), "usd")
	require.NoError(t, err)
	assert.Equal(t, 83.2, q.Rate)

	q, err = s.Fetch(context.Background(), day, "INR")
	require.NoError(t, err)
	assert.Equal(t, 1.0, q.Rate)

	_, err = s.Fetch(context.Background(), day, "CHF")
	assert.True(t, errors.Is(err, ErrNoRate))
}

func TestResolver_PreferredSourceWins(t *testing.T) {
	r := NewResolver("rbi", nil,
		&fakeSource{name: "fixer", quote: quote("fixer", 83.0, 0.9)},
		&fakeSource{name: "rbi", quote: quote("rbi", 82.9, 0.7)},
	)

	q := r.Resolve(context.Background(), day, "USD")

	require.NotNil(t, q)
	assert.Equal(t, "rbi", q.Source)
}

func TestResolver_HighestConfidenceThenRegistrationOrder(t *testing.T) {
	r := NewResolver("missing", nil,
		&fakeSource{name: "a", quote: quote("a", 83.0, 0.6)},
		&fakeSource{name: "b", quote: quote("b", 83.1, 0.9), delay: 5 * time.Millisecond},
		&fakeSource{name: "c", quote: quote("c", 83.2, 0.9)},
		&fakeSource{name: "d", err: fmt.Errorf("timeout")},
	)

	for i := 0; i < 10; i++ {
		q := r.Resolve(context.Background(), day, "USD")
		require.NotNil(t, q)
		assert.Equal(t, "b", q.Source, "completion order must not matter")
	}
}

func TestResolver_NoAnswers(t *testing.T) {
	r := NewResolver("", nil,
		&fakeSource{name: "a", err: ErrNoRate},
		&fakeSource{name: "b", quote: &Quote{Rate: 0}},
	)

	rate, ok := r.Rate(context.Background(), day, "USD")

	assert.False(t, ok)
	assert.Zero(t, rate)
}

func TestCached(t *testing.T) {
	var calls atomic.Int32
	next := LookupFunc(func(ctx context.Context, date time.Time, currency string) (float64, bool) {
		calls.Add(1)
		if currency == "CHF" {
			return 0, false
		}
		return 83.5, true
	})

	c, err := NewCached(next, 8)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rate, ok := c.Rate(context.Background(), day, "usd")
		assert.True(t, ok)
		assert.Equal(t, 83.5, rate)
	}
	assert.Equal(t, int32(1), calls.Load())

	_, ok := c.Rate(context.Background(), day, "CHF")
	assert.False(t, ok)
	_, ok = c.Rate(context.Background(), day, "CHF")
	assert.False(t, ok)
	assert.Equal(t, int32(3), calls.Load(), "misses are not cached")
	assert.Equal(t, 1, c.Len())
}

func TestHTTPSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2025-04-10", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("access_key"))
		assert.Equal(t, "INR", r.URL.Query().Get("symbols"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("base") {
		case "USD":
			fmt.Fprint(w, `{"success": true, "rates": {"INR": 83.12}}`)
		case "EUR":
			fmt.Fprint(w, `{"success": false, "error": {"code": 106, "info": "no data"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, "unknown")
		}
	}))
	defer server.Close()

	s := NewHTTPSource(HTTPConfig{BaseURL: server.URL + "/", APIKey: "secret", Base: "inr"}, nil)

	t.Run("success", func(t *testing.T) {
		q, err := s.Fetch(context.Background(), day, "usd")

		require.NoError(t, err)
		assert.Equal(t, 83.12, q.Rate)
		assert.Equal(t, "fixer", q.Source)
		assert.Equal(t, 0.9, q.Confidence)
	})

	t.Run("provider error", func(t *testing.T) {
		_, err := s.Fetch(context.Background(), day, "EUR")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "provider error 106")
	})

	t.Run("bad status", func(t *testing.T) {
		_, err := s.Fetch(context.Background(), day, "XYZ")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
	})

	t.Run("through resolver absent on failure", func(t *testing.T) {
		r := NewResolver("", nil, s)

		rate, ok := r.Rate(context.Background(), day, "XYZ")
		assert.False(t, ok)
		assert.Zero(t, rate)

		rate, ok = r.Rate(context.Background(), day, "USD")
		assert.True(t, ok)
		assert.Equal(t, 83.12, rate)
	})
}
