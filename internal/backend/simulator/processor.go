package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/docintel/internal/backend/model"
	"github.com/cuongbtq/docintel/internal/backend/storage"
	"github.com/cuongbtq/docintel/internal/domain"
)

// failAfterSteps is how far a job marked for failure gets before it fails
const failAfterSteps = 2

// jobFailure is a scripted failure reported to the client as the job's error
type jobFailure struct {
	message string
}

func (e *jobFailure) Error() string { return e.message }

// processJob claims a job, runs its pipeline and records the outcome. A nil
// return means the delivery can be acknowledged.
func (s *Simulator) processJob(ctx context.Context, workerName, jobID string) error {
	job, err := s.store.ClaimJob(ctx, jobID, workerName)
	if err != nil {
		if errors.Is(err, storage.ErrJobAlreadyClaimed) {
			return fmt.Errorf("job already claimed: %w", err)
		}
		return &RetryableError{Err: fmt.Errorf("failed to claim job: %w", err)}
	}

	logger := s.logger.With(
		slog.String("job_id", job.JobID),
		slog.String("job_type", job.JobType),
		slog.String("worker_name", workerName),
	)
	logger.Info("Processing job")

	p, ok := pipelines[domain.JobType(job.JobType)]
	if !ok {
		s.fail(ctx, logger, job, "error", "unsupported job type")
		return fmt.Errorf("%w: unknown job type %q", ErrInvalidPayload, job.JobType)
	}

	jobCtx := ctx
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	result, err := s.run(jobCtx, job, p)
	if err != nil {
		var failure *jobFailure
		switch {
		case errors.As(err, &failure):
			s.fail(ctx, logger, job, p.failed, failure.message)
		case errors.Is(err, context.DeadlineExceeded):
			s.fail(ctx, logger, job, p.failed, "job timed out")
		case ctx.Err() != nil:
			s.fail(ctx, logger, job, p.failed, "job interrupted")
		default:
			s.fail(ctx, logger, job, p.failed, err.Error())
		}
		if errors.Is(err, ErrInvalidPayload) {
			return err
		}
		return nil
	}

	// settle even if the pool is shutting down
	finishCtx := context.WithoutCancel(ctx)

	paid, err := s.store.ConsumeCredit(finishCtx, job.UserID)
	if err != nil {
		logger.Error("Failed to consume credit", slog.String("error", err.Error()))
		s.fail(ctx, logger, job, p.failed, "billing unavailable")
		return nil
	}

	outcome := "completed"
	if !paid {
		result = withheld()
		outcome = "low_balance"
	}
	if err := s.store.CompleteJob(finishCtx, job.JobID, p.done, result, !paid); err != nil {
		logger.Error("Failed to update job status to COMPLETED", slog.String("error", err.Error()))
		return nil
	}

	observe(job.JobType, outcome)
	logger.Info("Job finished", slog.String("outcome", outcome))
	return nil
}

// run walks the pipeline steps and returns the encoded result
func (s *Simulator) run(ctx context.Context, job *model.Job, p pipeline) ([]byte, error) {
	failing := s.failMarker != "" && strings.Contains(strings.ToLower(job.Payload), strings.ToLower(s.failMarker))

	for i, st := range p.steps {
		if err := sleep(ctx, s.stepInterval); err != nil {
			return nil, err
		}
		if failing && i == failAfterSteps {
			return nil, &jobFailure{message: "processing failed: quota exceeded"}
		}
		if err := s.store.UpdateProgress(ctx, job.JobID, st.phase, st.progress, st.message); err != nil {
			return nil, fmt.Errorf("failed to update progress: %w", err)
		}
	}

	if err := sleep(ctx, s.stepInterval); err != nil {
		return nil, err
	}

	value, err := p.result(job)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return raw, nil
}

func (s *Simulator) fail(ctx context.Context, logger *slog.Logger, job *model.Job, phase, message string) {
	if err := s.store.FailJob(context.WithoutCancel(ctx), job.JobID, phase, message); err != nil {
		logger.Error("Failed to update job status to FAILED", slog.String("error", err.Error()))
		return
	}
	observe(job.JobType, "failed")
	logger.Info("Job failed", slog.String("error", message))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
