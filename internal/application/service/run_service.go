package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/recon-monitor/internal/application/recon"
)

// RunStatus represents the current state of a run job.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// DefaultJobMaxDuration is the maximum time a job can run before being
// forcefully marked as failed.
const DefaultJobMaxDuration = 30 * time.Minute

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("a reconciliation run is already in progress")

// ErrJobNotFound is returned for unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// Runner executes one reconciliation.
type Runner interface {
	Run(ctx context.Context, opts recon.Options) (*recon.Result, error)
}

// RunRequest holds parameters for starting a run. An explicit window wins
// over DaysBack.
type RunRequest struct {
	DryRun   bool
	DaysBack int
	Since    time.Time
	Until    time.Time
}

// RunJob represents a running or completed run job.
type RunJob struct {
	ID          string
	RunID       string
	Status      RunStatus
	Request     RunRequest
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      *recon.Result
	Error       error
	cancelFunc  context.CancelFunc
}

// RunService manages background reconciliation runs. Only one run is active
// at a time.
type RunService struct {
	runner   Runner
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time

	jobs      map[string]*RunJob
	jobsMutex sync.RWMutex
	runLock   sync.Mutex

	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// NewRunService creates a new run service.
func NewRunService(runner Runner, location *time.Location, logger *slog.Logger) *RunService {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RunService{
		runner:   runner,
		location: location,
		logger:   logger.With("system", "service"),
		now:      time.Now,
		jobs:     make(map[string]*RunJob),
	}
}

// StartRun starts a new run job asynchronously.
// The passed context is NOT used as the parent for the background job, so the
// job outlives the HTTP request that started it. Use CancelRun to stop it.
func (s *RunService) StartRun(_ context.Context, req RunRequest) (string, error) {
	if s.runner == nil {
		return "", errors.New("no runner configured")
	}
	if req.DaysBack < 0 {
		return "", fmt.Errorf("invalid days_back: %d", req.DaysBack)
	}
	if !req.Since.IsZero() && !req.Until.IsZero() && req.Until.Before(req.Since) {
		return "", errors.New("until must not be before since")
	}

	if !s.runLock.TryLock() {
		return "", ErrRunInProgress
	}

	now := s.now()
	opts := recon.Options{
		RunID:  recon.RunID(now, s.location),
		Since:  req.Since,
		Until:  req.Until,
		Now:    now,
		DryRun: req.DryRun,
	}
	if req.DaysBack > 0 && (opts.Since.IsZero() || opts.Until.IsZero()) {
		since, until := recon.Window(now, req.DaysBack, s.location)
		if opts.Since.IsZero() {
			opts.Since = since
		}
		if opts.Until.IsZero() {
			opts.Until = until
		}
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	job := &RunJob{
		ID:         uuid.NewString(),
		RunID:      opts.RunID,
		Status:     StatusPending,
		Request:    req,
		StartedAt:  now,
		cancelFunc: cancel,
	}

	s.jobsMutex.Lock()
	s.jobs[job.ID] = job
	s.jobsMutex.Unlock()

	go s.runJob(jobCtx, job.ID, opts)

	s.logger.Info("run job started", "job_id", job.ID, "run_id", opts.RunID, "dry_run", req.DryRun)
	return job.ID, nil
}

// GetJob returns a snapshot of a job.
func (s *RunService) GetJob(jobID string) (RunJob, error) {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return RunJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return *job, nil
}

// ListJobs returns snapshots of all jobs, newest first.
func (s *RunService) ListJobs() []RunJob {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	jobs := make([]RunJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.After(jobs[j].StartedAt) })
	return jobs
}

// ActiveJob returns the pending or running job, if any.
func (s *RunService) ActiveJob() (RunJob, bool) {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	for _, job := range s.jobs {
		if job.Status == StatusPending || job.Status == StatusRunning {
			return *job, true
		}
	}
	return RunJob{}, false
}

// CancelRun cancels a pending or running job.
func (s *RunService) CancelRun(jobID string) error {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.Status != StatusPending && job.Status != StatusRunning {
		return fmt.Errorf("job cannot be cancelled: status=%s", job.Status)
	}

	job.cancelFunc()
	job.Status = StatusCancelled
	now := s.now()
	job.CompletedAt = &now

	s.logger.Info("run job cancelled", "job_id", jobID)
	return nil
}

// Wait blocks until the job leaves the pending and running states or ctx ends.
func (s *RunService) Wait(ctx context.Context, jobID string) (RunJob, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		job, err := s.GetJob(jobID)
		if err != nil {
			return RunJob{}, err
		}
		if job.Status != StatusPending && job.Status != StatusRunning {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *RunService) runJob(ctx context.Context, jobID string, opts recon.Options) {
	s.setStatus(jobID, StatusRunning)

	result, err := s.execute(ctx, opts)

	// Unlock before publishing the outcome so waiters can start the next run.
	s.runLock.Unlock()

	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			// Already marked as cancelled or stale
			return
		}
		s.failJob(jobID, err)
		return
	}
	s.completeJob(jobID, result)
}

func (s *RunService) execute(ctx context.Context, opts recon.Options) (result *recon.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()
	return s.runner.Run(ctx, opts)
}

func (s *RunService) setStatus(jobID string, status RunStatus) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if job, exists := s.jobs[jobID]; exists && job.Status == StatusPending {
		job.Status = status
	}
}

func (s *RunService) completeJob(jobID string, result *recon.Result) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists || job.Status == StatusCancelled {
		return
	}
	now := s.now()
	job.Status = StatusCompleted
	job.CompletedAt = &now
	job.Result = result
	s.logger.Info("run job completed",
		"job_id", jobID,
		"run_id", result.RunID,
		"stripe_flags", result.Summary.StripeFlags,
		"fx_flagged", result.Summary.FXFlagged,
	)
}

func (s *RunService) failJob(jobID string, err error) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists || job.Status == StatusCancelled {
		return
	}
	now := s.now()
	job.Status = StatusFailed
	job.CompletedAt = &now
	job.Error = err
	s.logger.Error("run job failed", "job_id", jobID, "error", err)
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (s *RunService) CleanupOldJobs(maxAge time.Duration) int {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for id, job := range s.jobs {
		if job.Status == StatusPending || job.Status == StatusRunning {
			continue
		}
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// MarkStaleJobsAsFailed cancels and fails jobs running longer than
// maxDuration. The run lock is released by the job goroutine once the
// runner returns.
func (s *RunService) MarkStaleJobsAsFailed(maxDuration time.Duration) int {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	now := s.now()
	marked := 0
	for id, job := range s.jobs {
		if job.Status != StatusRunning && job.Status != StatusPending {
			continue
		}
		if now.Sub(job.StartedAt) <= maxDuration {
			continue
		}
		job.cancelFunc()
		job.Status = StatusFailed
		job.CompletedAt = &now
		job.Error = fmt.Errorf("job marked as stale: exceeded max duration of %v", maxDuration)
		s.logger.Warn("marked stale job as failed", "job_id", id, "started_at", job.StartedAt)
		marked++
	}
	return marked
}

// StartBackgroundCleanup periodically fails stale jobs and drops jobs
// finished more than a day ago. Call StopBackgroundCleanup to stop it.
func (s *RunService) StartBackgroundCleanup(checkInterval time.Duration) {
	s.cleanupStop = make(chan struct{})
	s.cleanupDone = make(chan struct{})

	go func() {
		defer close(s.cleanupDone)

		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.cleanupStop:
				return
			case <-ticker.C:
				if n := s.MarkStaleJobsAsFailed(DefaultJobMaxDuration); n > 0 {
					s.logger.Info("marked stale jobs as failed", "count", n)
				}
				s.CleanupOldJobs(24 * time.Hour)
			}
		}
	}()
}

// StopBackgroundCleanup stops the cleanup goroutine and waits for it.
func (s *RunService) StopBackgroundCleanup() {
	if s.cleanupStop == nil {
		return
	}
	close(s.cleanupStop)
	<-s.cleanupDone
	s.cleanupStop = nil
}
