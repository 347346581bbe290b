package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/recon-monitor/internal/adapters/rates"
	"github.com/eshaffer321/recon-monitor/internal/api"
	"github.com/eshaffer321/recon-monitor/internal/api/dto"
	"github.com/eshaffer321/recon-monitor/internal/application/recon"
	"github.com/eshaffer321/recon-monitor/internal/application/service"
	"github.com/eshaffer321/recon-monitor/internal/domain/ageing"
	"github.com/eshaffer321/recon-monitor/internal/domain/alerts"
	"github.com/eshaffer321/recon-monitor/internal/domain/fx"
	"github.com/eshaffer321/recon-monitor/internal/domain/markup"
	"github.com/eshaffer321/recon-monitor/internal/domain/matcher"
	"github.com/eshaffer321/recon-monitor/internal/infrastructure/storage"
)

type stubRunner struct {
	release chan struct{}
}

func (s *stubRunner) Run(ctx context.Context, opts recon.Options) (*recon.Result, error) {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &recon.Result{
		RunID:     opts.RunID,
		Summary:   recon.Summary{RunID: opts.RunID, StripeFlags: 1},
		ReportDir: "reports/" + opts.RunID,
		Errors:    map[string]string{"webhooks": "log unavailable"},
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, runner service.Runner) (*api.Server, *storage.MockRepository, *service.RunService) {
	t.Helper()
	repo := storage.NewMockRepository()

	var svc *service.RunService
	if runner != nil {
		svc = service.NewRunService(runner, time.UTC, testLogger())
	}

	orchestrator := recon.NewOrchestrator(recon.Deps{
		Rates: rates.LookupFunc(func(_ context.Context, _ time.Time, ccy string) (float64, bool) {
			return 83, ccy == "USD"
		}),
	}, recon.Config{
		FX:       fx.DefaultConfig(),
		Markup:   markup.DefaultConfig(),
		Matcher:  matcher.DefaultConfig(),
		Ageing:   ageing.DefaultConfig(),
		Alerts:   alerts.DefaultConfig(),
		Location: time.UTC,
		DaysBack: 7,
	}, testLogger())

	server := api.NewServer(api.DefaultConfig(), repo, svc, orchestrator, testLogger())
	return server, repo, svc
}

func serve(server *api.Server, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func seedRun(t *testing.T, repo *storage.MockRepository, id string) {
	t.Helper()
	require.NoError(t, repo.StartRun(&storage.Run{
		ID:        id,
		StartedAt: time.Date(2025, 9, 20, 10, 0, 0, 0, time.UTC),
		Since:     "2025-09-13",
		Until:     "2025-09-20",
	}))
	require.NoError(t, repo.SaveFlags(id, []storage.RunFlag{
		{RunID: id, FlagID: "INT-ch_3", Severity: "P0", Category: "IntegrityMismatch", ChargeID: "ch_3", EntityKeys: []string{"ch_3"}, Reason: "amount mismatch"},
		{RunID: id, FlagID: "AMT-ch_2", Severity: "P1", Category: "AmountMismatch", ChargeID: "ch_2", EntityKeys: []string{"ch_2"}, Reason: "delta 20"},
	}))
	require.NoError(t, repo.CompleteRun(id, json.RawMessage(`{"stripe_flags":2}`), 2, "reports/"+id))
}

func TestServer_HealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t, nil)

	rec := serve(server, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response dto.HealthResponse
	err := json.NewDecoder(rec.Body).Decode(&response)
	require.NoError(t, err)
	assert.Equal(t, "ok", response.Status)
}

func TestServer_RunsEndpoints(t *testing.T) {
	t.Run("GET /api/runs returns stored runs", func(t *testing.T) {
		server, repo, _ := newTestServer(t, nil)
		seedRun(t, repo, "20250920_100000")

		rec := serve(server, http.MethodGet, "/api/runs", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var response dto.RunListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		require.Equal(t, 1, response.Count)
		assert.Equal(t, "completed", response.Runs[0].Status)
		assert.Equal(t, 2, response.Runs[0].FlagCount)
		assert.Equal(t, 20, response.Limit)
	})

	t.Run("GET /api/runs rejects bad limit", func(t *testing.T) {
		server, _, _ := newTestServer(t, nil)

		rec := serve(server, http.MethodGet, "/api/runs?limit=0", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("GET /api/runs/{id} returns single run", func(t *testing.T) {
		server, repo, _ := newTestServer(t, nil)
		seedRun(t, repo, "20250920_100000")

		rec := serve(server, http.MethodGet, "/api/runs/20250920_100000", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var response dto.RunResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, "20250920_100000", response.ID)
		assert.Equal(t, "2025-09-13", response.Since)
		assert.JSONEq(t, `{"stripe_flags":2}`, string(response.Summary))
		assert.NotEmpty(t, response.CompletedAt)
	})

	t.Run("GET /api/runs/{id} returns 404 for unknown run", func(t *testing.T) {
		server, _, _ := newTestServer(t, nil)

		rec := serve(server, http.MethodGet, "/api/runs/missing", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		var response dto.APIError
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, dto.ErrCodeNotFound, response.Code)
	})

	t.Run("GET /api/runs/{id}/flags filters by severity", func(t *testing.T) {
		server, repo, _ := newTestServer(t, nil)
		seedRun(t, repo, "20250920_100000")

		rec := serve(server, http.MethodGet, "/api/runs/20250920_100000/flags?severity=P0", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var response dto.FlagListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		require.Equal(t, 1, response.Count)
		assert.Equal(t, "INT-ch_3", response.Flags[0].FlagID)
	})

	t.Run("GET /api/runs/{id}/flags returns 404 for unknown run", func(t *testing.T) {
		server, _, _ := newTestServer(t, nil)

		rec := serve(server, http.MethodGet, "/api/runs/missing/flags", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_JobEndpoints(t *testing.T) {
	t.Run("POST /api/runs starts a job", func(t *testing.T) {
		server, _, svc := newTestServer(t, &stubRunner{})

		rec := serve(server, http.MethodPost, "/api/runs", dto.StartRunRequest{DryRun: true, Since: "2025-09-01", Until: "2025-09-07"})

		require.Equal(t, http.StatusAccepted, rec.Code)
		var started dto.StartRunResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&started))
		assert.NotEmpty(t, started.JobID)
		assert.NotEmpty(t, started.RunID)
		assert.Equal(t, "pending", started.Status)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := svc.Wait(ctx, started.JobID)
		require.NoError(t, err)

		rec = serve(server, http.MethodGet, "/api/jobs/"+started.JobID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var job dto.JobResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&job))
		assert.Equal(t, "completed", job.Status)
		assert.True(t, job.DryRun)
		assert.Equal(t, "reports/"+started.RunID, job.ReportDir)
		assert.Equal(t, "log unavailable", job.BlockErrors["webhooks"])
		assert.NotNil(t, job.CompletedAt)
	})

	t.Run("POST /api/runs accepts an empty body", func(t *testing.T) {
		server, _, svc := newTestServer(t, &stubRunner{})

		rec := serve(server, http.MethodPost, "/api/runs", nil)

		require.Equal(t, http.StatusAccepted, rec.Code)
		var started dto.StartRunResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&started))
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := svc.Wait(ctx, started.JobID)
		require.NoError(t, err)
	})

	t.Run("POST /api/runs validates dates", func(t *testing.T) {
		server, _, _ := newTestServer(t, &stubRunner{})

		rec := serve(server, http.MethodPost, "/api/runs", dto.StartRunRequest{Since: "09/01/2025"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = serve(server, http.MethodPost, "/api/runs", dto.StartRunRequest{Since: "2025-09-07", Until: "2025-09-01"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = serve(server, http.MethodPost, "/api/runs", dto.StartRunRequest{DaysBack: -2})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("POST /api/runs conflicts while a run is active", func(t *testing.T) {
		runner := &stubRunner{release: make(chan struct{})}
		server, _, svc := newTestServer(t, runner)

		first := serve(server, http.MethodPost, "/api/runs", dto.StartRunRequest{})
		require.Equal(t, http.StatusAccepted, first.Code)
		var started dto.StartRunResponse
		require.NoError(t, json.NewDecoder(first.Body).Decode(&started))

		second := serve(server, http.MethodPost, "/api/runs", dto.StartRunRequest{})

		assert.Equal(t, http.StatusConflict, second.Code)
		var apiErr dto.APIError
		require.NoError(t, json.NewDecoder(second.Body).Decode(&apiErr))
		assert.Equal(t, dto.ErrCodeRunConflict, apiErr.Code)

		close(runner.release)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := svc.Wait(ctx, started.JobID)
		require.NoError(t, err)
	})

	t.Run("DELETE /api/jobs/{id} cancels a running job", func(t *testing.T) {
		runner := &stubRunner{release: make(chan struct{})}
		server, _, _ := newTestServer(t, runner)

		rec := serve(server, http.MethodPost, "/api/runs", dto.StartRunRequest{})
		require.Equal(t, http.StatusAccepted, rec.Code)
		var started dto.StartRunResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&started))

		rec = serve(server, http.MethodDelete, "/api/jobs/"+started.JobID, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = serve(server, http.MethodDelete, "/api/jobs/"+started.JobID, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = serve(server, http.MethodGet, "/api/jobs/"+started.JobID, nil)
		var job dto.JobResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&job))
		assert.Equal(t, "cancelled", job.Status)
	})

	t.Run("unknown job returns 404", func(t *testing.T) {
		server, _, _ := newTestServer(t, &stubRunner{})

		assert.Equal(t, http.StatusNotFound, serve(server, http.MethodGet, "/api/jobs/nope", nil).Code)
		assert.Equal(t, http.StatusNotFound, serve(server, http.MethodDelete, "/api/jobs/nope", nil).Code)
	})

	t.Run("GET /api/jobs lists jobs", func(t *testing.T) {
		server, _, _ := newTestServer(t, &stubRunner{})

		rec := serve(server, http.MethodGet, "/api/jobs", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var response dto.JobListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, 0, response.Count)
	})

	t.Run("job endpoints absent without a run service", func(t *testing.T) {
		server, _, _ := newTestServer(t, nil)

		rec := serve(server, http.MethodPost, "/api/runs", dto.StartRunRequest{})

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestServer_FXAnalyze(t *testing.T) {
	t.Run("flags a marked-up foreign charge", func(t *testing.T) {
		server, _, _ := newTestServer(t, nil)
		foreign := 100.0

		rec := serve(server, http.MethodPost, "/api/fx/analyze", dto.AnalyzeRecordRequest{
			ID:             "s1",
			Timestamp:      "2025-09-18",
			Narration:      "AWS EMEA",
			LocalAmount:    8715,
			ForeignAmount:  &foreign,
			StatedCurrency: "USD",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		var response dto.AnalyzeRecordResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.True(t, response.IsForeign)
		assert.Equal(t, "USD", response.Currency)
		require.NotNil(t, response.InterbankRate)
		assert.Equal(t, 83.0, *response.InterbankRate)
		require.NotNil(t, response.ExpectedLocal)
		assert.InDelta(t, 8300.0, *response.ExpectedLocal, 0.001)
		assert.Equal(t, "flagged", response.MarkupStatus)
		assert.True(t, response.Flagged)
	})

	t.Run("rejects bad timestamp", func(t *testing.T) {
		server, _, _ := newTestServer(t, nil)

		rec := serve(server, http.MethodPost, "/api/fx/analyze", dto.AnalyzeRecordRequest{ID: "s1", Timestamp: "yesterday"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		server, _, _ := newTestServer(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/fx/analyze", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()

		server.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
