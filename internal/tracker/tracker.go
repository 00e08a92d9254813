// Package tracker drives one backend job per slot from submission to a
// terminal phase, polling on a timer and discarding results that belong to a
// cancelled or superseded job.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/docintel/internal/domain"
)

const (
	// DefaultMaxFailures bounds consecutive transport failures while polling
	DefaultMaxFailures = 60
	defaultInterval    = time.Second
)

// ErrCanceled is returned by Start when the tracker was cancelled or reused
// while the submission was in flight.
var ErrCanceled = errors.New("tracking canceled")

// Adapter is one job type bound to its transport
type Adapter interface {
	Type() domain.JobType
	Interval() time.Duration
	Submit(ctx context.Context, payload any) (string, error)
	Poll(ctx context.Context, jobID string) (domain.Snapshot, error)
}

// Callbacks receive lifecycle events. Any of them may be nil.
//
// Callbacks are invoked with the tracker locked, so that nothing from a job
// can be observed after Cancel or Start returns. They must not call methods
// of the same Tracker; start follow-up work on another goroutine instead.
type Callbacks struct {
	OnProgress   func(phase domain.Phase, progress int)
	OnCompleted  func(result any)
	OnError      func(err error)
	OnLowBalance func()
}

// Options holds tracker configuration
type Options struct {
	// MaxFailures is the number of consecutive transport failures after
	// which polling gives up with ErrTimedOut
	MaxFailures int
	// FailureWindow bounds how long a failure streak may last in wall-clock
	// time. Zero means MaxFailures times the poll interval.
	FailureWindow time.Duration
	// RequestTimeout aborts a single poll that takes longer. Zero leaves it
	// to the transport.
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Handle identifies one tracked job
type Handle struct {
	JobID string
	Epoch uint64
}

// Tracker owns the lifecycle of at most one active job
type Tracker struct {
	mu     sync.Mutex
	opts   Options
	logger *slog.Logger

	epoch  uint64
	job    domain.Job
	active bool
	stop   context.CancelFunc
}

// New creates a new Tracker
func New(opts Options) *Tracker {
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Tracker{
		opts:   opts,
		logger: logger,
	}
}

// Start submits a new job and begins polling it. Any job the tracker was
// following is invalidated first.
//
// Submission is not retried. A transport failure leaves the job in phase
// error and returns an error wrapping domain.ErrSubmitFailed; validation,
// session and backend errors are returned as they are. Callbacks only fire
// for events after a successful submission.
func (t *Tracker) Start(ctx context.Context, a Adapter, payload any, cb Callbacks) (Handle, error) {
	t.mu.Lock()
	t.invalidateLocked()
	claimed := t.epoch
	t.active = true
	t.job = domain.Job{Type: a.Type(), Phase: domain.PhaseUploading, Epoch: claimed}
	t.mu.Unlock()

	jobID, err := a.Submit(ctx, payload)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.epoch != claimed {
		if err == nil {
			t.logger.Warn("Submitted job abandoned before tracking started",
				slog.String("job_type", string(a.Type())),
				slog.String("job_id", jobID),
			)
		}
		return Handle{}, ErrCanceled
	}

	if err != nil {
		t.active = false
		return Handle{}, t.submitFailedLocked(a, err)
	}

	t.epoch++
	t.job.ID = jobID
	t.job.Phase = domain.PhaseQueued
	t.job.Epoch = t.epoch
	t.launchLocked(a, jobID, cb)

	t.logger.Info("Job submitted",
		slog.String("job_type", string(a.Type())),
		slog.String("job_id", jobID),
		slog.Uint64("epoch", t.epoch),
	)

	return Handle{JobID: jobID, Epoch: t.epoch}, nil
}

// Follow begins polling a job that was already submitted, for example a
// deferred chat reply or a job recorded before a restart.
func (t *Tracker) Follow(a Adapter, jobID string, cb Callbacks) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.invalidateLocked()
	t.epoch++
	t.active = true
	t.job = domain.Job{ID: jobID, Type: a.Type(), Phase: domain.PhaseQueued, Epoch: t.epoch}
	t.launchLocked(a, jobID, cb)

	t.logger.Debug("Following job",
		slog.String("job_type", string(a.Type())),
		slog.String("job_id", jobID),
		slog.Uint64("epoch", t.epoch),
	)

	return Handle{JobID: jobID, Epoch: t.epoch}
}

// Cancel invalidates the current job: the pending poll is cleared, an
// in-flight request is aborted and any response that still arrives is
// dropped. Calling it on an idle tracker does nothing.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active {
		return
	}
	t.invalidateLocked()

	t.logger.Debug("Tracking canceled",
		slog.String("job_id", t.job.ID),
		slog.Uint64("epoch", t.epoch),
	)
}

// Job returns a snapshot of the tracked job
func (t *Tracker) Job() domain.Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job
}

// Epoch returns the current epoch
func (t *Tracker) Epoch() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.epoch
}

// Active reports whether a job is being submitted or polled
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// invalidateLocked bumps the epoch when a job is active and stops its loop
func (t *Tracker) invalidateLocked() {
	if t.active {
		t.epoch++
		t.active = false
	}
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
}

func (t *Tracker) launchLocked(a Adapter, jobID string, cb Callbacks) {
	ctx, cancel := context.WithCancel(context.Background())
	t.stop = cancel

	r := &run{
		adapter: a,
		jobID:   jobID,
		epoch:   t.epoch,
		cb:      cb,
		started: time.Now(),
	}
	go t.poll(ctx, r)
}

func (t *Tracker) submitFailedLocked(a Adapter, err error) error {
	t.logger.Warn("Job submission failed",
		slog.String("job_type", string(a.Type())),
		slog.String("error", err.Error()),
	)

	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		t.job.Phase = domain.PhaseError
		t.job.ErrorMessage = validation.Error()
		return err
	case errors.Is(err, domain.ErrInsufficientBalance):
		t.job.Phase = domain.PhaseLowBalance
		return err
	case errors.Is(err, domain.ErrSessionExpired):
		t.job.Phase = domain.PhaseError
		t.job.ErrorMessage = err.Error()
		return err
	case domain.IsTransient(err):
		t.job.Phase = domain.PhaseError
		t.job.ErrorMessage = domain.ErrSubmitFailed.Error()
		return fmt.Errorf("%w: %w", domain.ErrSubmitFailed, err)
	default:
		t.job.Phase = domain.PhaseError
		t.job.ErrorMessage = err.Error()
		return err
	}
}
