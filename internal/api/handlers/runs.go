package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/recon-monitor/internal/api/dto"
	"github.com/eshaffer321/recon-monitor/internal/infrastructure/storage"
)

// RunsHandler serves the stored run history.
type RunsHandler struct {
	*Base
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(repo storage.Repository) *RunsHandler {
	return &RunsHandler{
		Base: NewBase(repo),
	}
}

// List handles GET /api/runs - returns stored runs, newest first.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	params := dto.DefaultRunListParams()
	params.Status = r.URL.Query().Get("status")
	params.Limit = ParseIntParam(r, "limit", params.Limit)
	params.Offset = ParseIntParam(r, "offset", params.Offset)

	if params.Limit <= 0 || params.Limit > 500 {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("limit must be between 1 and 500"))
		return
	}
	if params.Offset < 0 {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("offset must not be negative"))
		return
	}

	runs, err := h.repo.ListRuns(storage.RunFilters{
		Status: params.Status,
		Limit:  params.Limit,
		Offset: params.Offset,
	})
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.RunListResponse{
		Runs:   make([]dto.RunResponse, 0, len(runs)),
		Count:  len(runs),
		Limit:  params.Limit,
		Offset: params.Offset,
	}
	for _, run := range runs {
		response.Runs = append(response.Runs, toRunResponse(run))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/runs/{id} - returns a single run by ID.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.WriteJSON(w, http.StatusOK, toRunResponse(*run))
}

// Flags handles GET /api/runs/{id}/flags - returns the discrepancy flags of
// a run, optionally filtered by severity and category.
func (h *RunsHandler) Flags(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}

	flags, err := h.repo.ListFlags(run.ID, storage.FlagFilters{
		Severity: r.URL.Query().Get("severity"),
		Category: r.URL.Query().Get("category"),
	})
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.FlagListResponse{
		RunID: run.ID,
		Flags: make([]dto.FlagResponse, 0, len(flags)),
		Count: len(flags),
	}
	for _, f := range flags {
		response.Flags = append(response.Flags, dto.FlagResponse{
			FlagID:      f.FlagID,
			Severity:    f.Severity,
			Category:    f.Category,
			ChargeID:    f.ChargeID,
			InvoiceID:   f.InvoiceID,
			EntityKeys:  f.EntityKeys,
			Reason:      f.Reason,
			Remediation: f.Remediation,
		})
	}

	h.WriteJSON(w, http.StatusOK, response)
}

func (h *RunsHandler) lookup(w http.ResponseWriter, r *http.Request) (*storage.Run, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("run ID is required"))
		return nil, false
	}

	run, err := h.repo.GetRun(id)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return nil, false
	}
	if run == nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("run"))
		return nil, false
	}
	return run, true
}

// toRunResponse converts a storage Run to an API response.
func toRunResponse(run storage.Run) dto.RunResponse {
	response := dto.RunResponse{
		ID:           run.ID,
		StartedAt:    run.StartedAt.Format(time.RFC3339),
		Since:        run.Since,
		Until:        run.Until,
		DryRun:       run.DryRun,
		Status:       run.Status,
		FlagCount:    run.FlagCount,
		ReportDir:    run.ReportDir,
		ErrorMessage: run.ErrorMessage,
		Summary:      run.Summary,
	}
	if run.CompletedAt != nil {
		response.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	return response
}
