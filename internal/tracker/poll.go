package tracker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/docintel/internal/domain"
	"github.com/cuongbtq/docintel/internal/metrics"
	"github.com/cuongbtq/docintel/internal/progress"
)

// run is the state of one polling loop; it belongs to a single epoch
type run struct {
	adapter Adapter
	jobID   string
	epoch   uint64
	cb      Callbacks
	started time.Time

	failures     int
	failingSince time.Time
}

// poll issues one request per tick. The next tick is armed only after the
// previous response has been applied, so requests never overlap.
func (t *Tracker) poll(ctx context.Context, r *run) {
	interval := r.adapter.Interval()
	if interval <= 0 {
		interval = defaultInterval
	}
	window := t.opts.FailureWindow
	if window <= 0 {
		window = time.Duration(t.opts.MaxFailures) * interval
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		pollCtx, cancel := ctx, context.CancelFunc(func() {})
		if t.opts.RequestTimeout > 0 {
			pollCtx, cancel = context.WithTimeout(ctx, t.opts.RequestTimeout)
		}
		snap, err := r.adapter.Poll(pollCtx, r.jobID)
		cancel()

		t.mu.Lock()
		if t.epoch != r.epoch || ctx.Err() != nil {
			t.mu.Unlock()
			metrics.IncStalePoll(string(r.adapter.Type()))
			t.logger.Debug("Discarded stale poll",
				slog.String("job_id", r.jobID),
				slog.Uint64("poll_epoch", r.epoch),
			)
			return
		}

		var done bool
		if err != nil {
			done = t.failedLocked(r, err, window)
		} else {
			done = t.appliedLocked(r, snap)
		}
		t.mu.Unlock()

		if done {
			return
		}
		timer.Reset(interval)
	}
}

// failedLocked handles a poll that returned an error and reports whether
// the job reached a terminal state
func (t *Tracker) failedLocked(r *run, err error, window time.Duration) bool {
	if domain.IsTransient(err) {
		now := time.Now()
		r.failures++
		if r.failingSince.IsZero() {
			r.failingSince = now
		}
		metrics.IncPollFailure(string(r.adapter.Type()))

		if r.failures >= t.opts.MaxFailures || now.Sub(r.failingSince) >= window {
			t.logger.Error("Polling gave up",
				slog.String("job_id", r.jobID),
				slog.Int("failures", r.failures),
				slog.Duration("failing_for", now.Sub(r.failingSince)),
				slog.String("error", err.Error()),
			)
			t.finishErrorLocked(r, domain.PhaseError, domain.ErrTimedOut, "timed_out")
			return true
		}

		t.logger.Warn("Transient poll failure",
			slog.String("job_id", r.jobID),
			slog.Int("failures", r.failures),
			slog.Int("max_failures", t.opts.MaxFailures),
			slog.String("error", err.Error()),
		)
		return false
	}

	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		t.finishErrorLocked(r, domain.PhaseNotFound, domain.ErrJobNotFound, "not_found")
	case errors.Is(err, domain.ErrInsufficientBalance):
		t.finishLowBalanceLocked(r)
	default:
		t.finishErrorLocked(r, domain.PhaseError, err, "error")
	}
	return true
}

// appliedLocked applies a successful poll and reports whether the job
// reached a terminal state
func (t *Tracker) appliedLocked(r *run, snap domain.Snapshot) bool {
	r.failures = 0
	r.failingSince = time.Time{}

	switch snap.Phase {
	case domain.PhaseNotFound:
		t.finishErrorLocked(r, domain.PhaseNotFound, domain.ErrJobNotFound, "not_found")
		return true

	case domain.PhaseError:
		t.finishErrorLocked(r, domain.PhaseError, &domain.JobFailedError{Message: snap.Message}, "error")
		return true

	case domain.PhaseLowBalance:
		t.finishLowBalanceLocked(r)
		return true

	case domain.PhaseCompleted:
		if snap.LowBalance {
			t.finishLowBalanceLocked(r)
			return true
		}
		t.job.Phase = domain.PhaseCompleted
		t.job.Progress = progress.Complete
		t.job.Result = snap.Value
		t.endLocked(r, "completed")
		if r.cb.OnCompleted != nil {
			r.cb.OnCompleted(snap.Value)
		}
		return true
	}

	t.job.Phase = snap.Phase
	t.job.Progress = progress.Estimate(snap.Progress, t.job.Progress)

	t.logger.Debug("Job progress",
		slog.String("job_id", r.jobID),
		slog.String("phase", string(snap.Phase)),
		slog.Int("server_progress", snap.Progress),
		slog.Int("progress", t.job.Progress),
	)

	if r.cb.OnProgress != nil {
		r.cb.OnProgress(t.job.Phase, t.job.Progress)
	}
	return false
}

func (t *Tracker) finishErrorLocked(r *run, phase domain.Phase, err error, outcome string) {
	t.job.Phase = phase
	t.job.ErrorMessage = err.Error()
	t.endLocked(r, outcome)
	if r.cb.OnError != nil {
		r.cb.OnError(err)
	}
}

func (t *Tracker) finishLowBalanceLocked(r *run) {
	t.job.Phase = domain.PhaseLowBalance
	t.endLocked(r, "low_balance")
	if r.cb.OnLowBalance != nil {
		r.cb.OnLowBalance()
	}
}

// endLocked marks the tracker idle; the epoch is left untouched so that a
// later Cancel has nothing to invalidate
func (t *Tracker) endLocked(r *run, outcome string) {
	t.active = false
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}

	elapsed := time.Since(r.started)
	metrics.ObserveJobOutcome(string(r.adapter.Type()), outcome, elapsed)

	t.logger.Info("Job finished",
		slog.String("job_type", string(r.adapter.Type())),
		slog.String("job_id", r.jobID),
		slog.String("outcome", outcome),
		slog.Duration("elapsed", elapsed),
	)
}
