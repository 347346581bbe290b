package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/recon-monitor/internal/api/dto"
	"github.com/eshaffer321/recon-monitor/internal/application/service"
)

// JobsHandler starts and tracks background run jobs.
type JobsHandler struct {
	*Base
	runService *service.RunService
	location   *time.Location
}

// NewJobsHandler creates a new jobs handler. Request dates are read in loc.
func NewJobsHandler(runService *service.RunService, loc *time.Location) *JobsHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &JobsHandler{
		Base:       &Base{},
		runService: runService,
		location:   loc,
	}
}

// StartRun handles POST /api/runs - starts a new reconciliation job.
func (h *JobsHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req dto.StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}

	if req.DaysBack < 0 {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("days_back must not be negative"))
		return
	}

	serviceReq := service.RunRequest{
		DryRun:   req.DryRun,
		DaysBack: req.DaysBack,
	}

	var err error
	if serviceReq.Since, err = h.parseDate(req.Since, false); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("since must be YYYY-MM-DD"))
		return
	}
	if serviceReq.Until, err = h.parseDate(req.Until, true); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("until must be YYYY-MM-DD"))
		return
	}
	if !serviceReq.Since.IsZero() && !serviceReq.Until.IsZero() && serviceReq.Until.Before(serviceReq.Since) {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("until must not be before since"))
		return
	}

	jobID, err := h.runService.StartRun(r.Context(), serviceReq)
	if err != nil {
		if errors.Is(err, service.ErrRunInProgress) {
			h.WriteError(w, http.StatusConflict, dto.NewAPIError(dto.ErrCodeRunConflict, err.Error()))
			return
		}
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError(err.Error()))
		return
	}

	job, err := h.runService.GetJob(jobID)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	h.WriteJSON(w, http.StatusAccepted, dto.StartRunResponse{
		JobID:  jobID,
		RunID:  job.RunID,
		Status: string(service.StatusPending),
	})
}

// List handles GET /api/jobs - lists jobs known to this process.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.runService.ListJobs()

	response := dto.JobListResponse{
		Jobs:  make([]dto.JobResponse, 0, len(jobs)),
		Count: len(jobs),
	}
	for _, job := range jobs {
		response.Jobs = append(response.Jobs, toJobResponse(job))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/jobs/{id} - gets job status.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("job ID is required"))
		return
	}

	job, err := h.runService.GetJob(jobID)
	if err != nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("job"))
		return
	}

	h.WriteJSON(w, http.StatusOK, toJobResponse(job))
}

// Cancel handles DELETE /api/jobs/{id} - cancels a job.
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("job ID is required"))
		return
	}

	if err := h.runService.CancelRun(jobID); err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			h.WriteError(w, http.StatusNotFound, dto.NotFoundError("job"))
			return
		}
		h.WriteError(w, http.StatusConflict, dto.NewAPIError(dto.ErrCodeCancelFailed, err.Error()))
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.MessageResponse{
		Message: "Run job cancelled successfully",
	})
}

func (h *JobsHandler) parseDate(value string, endOfDay bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", value, h.location)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, h.location)
	}
	return t, nil
}

// toJobResponse converts a service job to an API response.
func toJobResponse(job service.RunJob) dto.JobResponse {
	response := dto.JobResponse{
		JobID:     job.ID,
		RunID:     job.RunID,
		Status:    string(job.Status),
		DryRun:    job.Request.DryRun,
		StartedAt: job.StartedAt.Format(time.RFC3339),
	}

	if job.CompletedAt != nil {
		completedAt := job.CompletedAt.Format(time.RFC3339)
		response.CompletedAt = &completedAt
	}

	if job.Result != nil {
		response.Summary = job.Result.Summary
		response.ReportDir = job.Result.ReportDir
		if len(job.Result.Errors) > 0 {
			response.BlockErrors = job.Result.Errors
		}
	}

	if job.Error != nil {
		errStr := job.Error.Error()
		response.Error = &errStr
	}

	return response
}
