// Package simulator is the stub backend's worker pool. It walks each
// dispatched job through a scripted pipeline, writing progress to the store.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/docintel/internal/backend/dispatch"
	"github.com/cuongbtq/docintel/internal/backend/storage"
	"github.com/cuongbtq/docintel/internal/metrics"
)

// Config holds simulator configuration
type Config struct {
	Logger       *slog.Logger
	Store        storage.Store
	Dispatcher   dispatch.Dispatcher
	WorkerID     string
	Concurrency  int
	StepInterval time.Duration
	JobTimeout   time.Duration
	// FailMarker fails any job whose payload contains it
	FailMarker string
}

// Simulator processes dispatched jobs with a fixed number of goroutines
type Simulator struct {
	logger       *slog.Logger
	store        storage.Store
	dispatcher   dispatch.Dispatcher
	workerID     string
	concurrency  int
	stepInterval time.Duration
	jobTimeout   time.Duration
	failMarker   string

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a new Simulator
func New(cfg *Config) *Simulator {
	return &Simulator{
		logger:       cfg.Logger,
		store:        cfg.Store,
		dispatcher:   cfg.Dispatcher,
		workerID:     cfg.WorkerID,
		concurrency:  max(cfg.Concurrency, 1),
		stepInterval: cfg.StepInterval,
		jobTimeout:   cfg.JobTimeout,
		failMarker:   cfg.FailMarker,
		stopChan:     make(chan struct{}),
	}
}

// Start subscribes to the dispatcher and spawns the pool. It returns once
// the workers are running.
func (s *Simulator) Start(ctx context.Context) error {
	deliveries, err := s.dispatcher.Deliveries(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to dispatcher: %w", err)
	}

	s.logger.Info("Starting simulator",
		slog.Int("concurrency", s.concurrency),
		slog.Duration("step_interval", s.stepInterval),
		slog.Duration("job_timeout", s.jobTimeout),
	)

	for i := 0; i < s.concurrency; i++ {
		s.wg.Add(1)
		go s.workerLoop(ctx, i, deliveries)
	}
	return nil
}

// Stop signals the workers and waits for in-flight jobs to finish
func (s *Simulator) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	s.logger.Info("Simulator stopped")
}

func (s *Simulator) workerLoop(ctx context.Context, workerNum int, deliveries <-chan dispatch.Delivery) {
	defer s.wg.Done()

	workerName := fmt.Sprintf("%s-%d", s.workerID, workerNum)
	logger := s.logger.With(slog.String("worker_name", workerName))

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}

			err := s.processJob(ctx, workerName, d.JobID())
			if err == nil {
				if ackErr := d.Ack(); ackErr != nil {
					logger.Error("Failed to ACK message",
						slog.String("job_id", d.JobID()),
						slog.String("error", ackErr.Error()),
					)
				}
				continue
			}

			requeue := shouldRequeue(err)
			logger.Warn("Job processing failed",
				slog.String("job_id", d.JobID()),
				slog.Bool("requeue", requeue),
				slog.String("error", err.Error()),
			)
			if nackErr := d.Nack(requeue); nackErr != nil {
				logger.Error("Failed to NACK message",
					slog.String("job_id", d.JobID()),
					slog.String("error", nackErr.Error()),
				)
			}
		}
	}
}

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

func shouldRequeue(err error) bool {
	if errors.Is(err, storage.ErrJobAlreadyClaimed) || errors.Is(err, ErrInvalidPayload) {
		return false
	}
	var retryable *RetryableError
	return errors.As(err, &retryable)
}

func observe(jobType, outcome string) {
	metrics.IncBackendJob(jobType, outcome)
}
