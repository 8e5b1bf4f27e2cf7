package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/domain/repositories"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/security"
)

// RecomputeService runs historical recomputation as cancellable,
// resumable batch jobs. Progress is checkpointed to the job store after
// every conversion, so an interrupted job resumes from its cursor on
// the next process start.
type RecomputeService struct {
	jobs        repositories.JobRepository
	conversions repositories.ConversionRepository
	results     repositories.ResultRepository
	processor   *ConversionProcessor
	performance *ChannelPerformanceService
	batchSize   int
	logger      *logging.ChanneledLogger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewRecomputeService(
	repos repositories.Bundle,
	processor *ConversionProcessor,
	performance *ChannelPerformanceService,
	batchSize int,
	logger *logging.ChanneledLogger,
) *RecomputeService {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &RecomputeService{
		jobs:        repos.Jobs,
		conversions: repos.Conversions,
		results:     repos.Results,
		processor:   processor,
		performance: performance,
		batchSize:   batchSize,
		logger:      logger,
		cancels:     make(map[string]context.CancelFunc),
	}
}

// Start creates and launches a recompute job for one model with new
// parameters over every conversion since fromDate. It returns the job
// immediately; progress is observable through Status.
func (s *RecomputeService) Start(ctx context.Context, model attribution.ModelType, params attribution.ModelParams, windowDays int, fromDate time.Time) (*attribution.RecomputeJob, error) {
	if err := params.ValidateFor(model); err != nil {
		return nil, err
	}
	if windowDays <= 0 {
		windowDays = attribution.DefaultWindowDays
	}

	now := time.Now().UTC()
	job := &attribution.RecomputeJob{
		ID:         security.GenerateULID(),
		ModelType:  model,
		Params:     params,
		WindowDays: windowDays,
		FromDate:   fromDate,
		State:      attribution.JobRunning,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.jobs.Store(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to store recompute job: %w", err)
	}

	s.launch(job)
	s.logger.Jobs().Info("Recompute job started",
		"jobId", job.ID, "model", model, "fromDate", fromDate.Format(time.RFC3339))
	return job, nil
}

// Cancel requests cancellation of a running job. The job stops at the
// next conversion boundary, never mid-conversion.
func (s *RecomputeService) Cancel(ctx context.Context, jobID string) error {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State != attribution.JobRunning {
		return attribution.NewValidationError("jobId", "job is not running")
	}

	s.mu.Lock()
	cancel, ok := s.cancels[jobID]
	s.mu.Unlock()
	if ok {
		cancel()
		return nil
	}

	// Not running in this process (e.g. found after restart but not
	// resumed yet). Mark it cancelled directly.
	job.State = attribution.JobCancelled
	return s.jobs.Update(ctx, job)
}

// Status returns the persisted view of a job.
func (s *RecomputeService) Status(ctx context.Context, jobID string) (*attribution.RecomputeJob, error) {
	return s.jobs.FindByID(ctx, jobID)
}

// ResumeInterrupted relaunches jobs left in the running state by a
// previous process, continuing from their persisted cursors. Called
// once at startup.
func (s *RecomputeService) ResumeInterrupted(ctx context.Context) error {
	running, err := s.jobs.FindRunning(ctx)
	if err != nil {
		return fmt.Errorf("failed to find interrupted jobs: %w", err)
	}
	for _, job := range running {
		s.logger.Jobs().Info("Resuming interrupted recompute job",
			"jobId", job.ID, "model", job.ModelType, "cursor", job.Cursor, "processed", job.Processed)
		s.launch(job)
	}
	return nil
}

func (s *RecomputeService) launch(job *attribution.RecomputeJob) {
	jobCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[job.ID] = cancel
	s.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.cancels, job.ID)
			s.mu.Unlock()
		}()
		s.run(jobCtx, job)
	}()
}

// run drives one job to a terminal state. Cancellation is honored
// between conversions only; the checkpoint after each conversion makes
// the cursor the resume point.
func (s *RecomputeService) run(ctx context.Context, job *attribution.RecomputeJob) {
	spec := attribution.ModelSpec{Type: job.ModelType, Params: job.Params}

	for {
		batch, err := s.conversions.FindBatchAfter(ctx, job.FromDate, job.Cursor, s.batchSize)
		if err != nil {
			s.fail(job, err)
			return
		}
		if len(batch) == 0 {
			break
		}

		for _, conv := range batch {
			select {
			case <-ctx.Done():
				s.finish(job, attribution.JobCancelled)
				return
			default:
			}

			version, err := s.results.LatestVersion(ctx, conv.ID, job.ModelType)
			if err != nil {
				s.fail(job, err)
				return
			}
			if err := s.processor.ProcessModel(ctx, conv, spec, job.WindowDays, version+1); err != nil {
				s.fail(job, err)
				return
			}

			job.Cursor = conv.ID
			job.Processed++
			if err := s.jobs.Update(context.Background(), job); err != nil {
				s.logger.LogError(logging.ChannelJobs, "checkpoint_job", err, map[string]any{"jobId": job.ID})
			}
		}
	}

	s.finish(job, attribution.JobCompleted)
	s.performance.InvalidateCache()
}

func (s *RecomputeService) finish(job *attribution.RecomputeJob, state attribution.JobState) {
	job.State = state
	if err := s.jobs.Update(context.Background(), job); err != nil {
		s.logger.LogError(logging.ChannelJobs, "finish_job", err, map[string]any{"jobId": job.ID})
	}
	s.logger.Jobs().Info("Recompute job finished",
		"jobId", job.ID, "state", state, "processed", job.Processed)
}

func (s *RecomputeService) fail(job *attribution.RecomputeJob, cause error) {
	if errors.Is(cause, context.Canceled) {
		s.finish(job, attribution.JobCancelled)
		return
	}
	job.State = attribution.JobFailed
	job.Error = cause.Error()
	if err := s.jobs.Update(context.Background(), job); err != nil {
		s.logger.LogError(logging.ChannelJobs, "fail_job", err, map[string]any{"jobId": job.ID})
	}
	s.logger.Jobs().Error("Recompute job failed",
		"jobId", job.ID, "processed", job.Processed, "error", cause.Error())
}
