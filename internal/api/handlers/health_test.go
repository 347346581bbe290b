package handlers_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/recon-monitor/internal/api/dto"
	"github.com/eshaffer321/recon-monitor/internal/api/handlers"
	"github.com/eshaffer321/recon-monitor/internal/infrastructure/storage"
)

type brokenRepo struct {
	*storage.MockRepository
}

func (b brokenRepo) ListRuns(storage.RunFilters) ([]storage.Run, error) {
	return nil, errors.New("database is locked")
}

func TestHealthHandler_ServeHTTP(t *testing.T) {
	t.Run("returns 200 OK with health status", func(t *testing.T) {
		handler := handlers.NewHealthHandler(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var response dto.HealthResponse
		err := json.NewDecoder(rec.Body).Decode(&response)
		require.NoError(t, err)

		assert.Equal(t, "ok", response.Status)
		assert.NotEmpty(t, response.Timestamp)
	})

	t.Run("reports database ok", func(t *testing.T) {
		handler := handlers.NewHealthHandler(storage.NewMockRepository())

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		var response dto.HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", response.Database)
	})

	t.Run("degraded when storage fails", func(t *testing.T) {
		handler := handlers.NewHealthHandler(brokenRepo{storage.NewMockRepository()})

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		var response dto.HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "degraded", response.Status)
		assert.Equal(t, "unavailable", response.Database)
	})
}
