package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/docintel/internal/domain"
)

const (
	testInterval = 5 * time.Millisecond
	waitFor      = 2 * time.Second
	tick         = 2 * time.Millisecond
)

type fakeAdapter struct {
	jobType  domain.JobType
	interval time.Duration
	submit   func(ctx context.Context, payload any) (string, error)
	poll     func(ctx context.Context, n int) (domain.Snapshot, error)

	mu    sync.Mutex
	polls int
}

func newFake(poll func(ctx context.Context, n int) (domain.Snapshot, error)) *fakeAdapter {
	return &fakeAdapter{
		jobType:  domain.JobTypePdfAnalysis,
		interval: testInterval,
		submit: func(context.Context, any) (string, error) {
			return "job-1", nil
		},
		poll: poll,
	}
}

func (f *fakeAdapter) Type() domain.JobType    { return f.jobType }
func (f *fakeAdapter) Interval() time.Duration { return f.interval }

func (f *fakeAdapter) Submit(ctx context.Context, payload any) (string, error) {
	return f.submit(ctx, payload)
}

func (f *fakeAdapter) Poll(ctx context.Context, _ string) (domain.Snapshot, error) {
	f.mu.Lock()
	f.polls++
	n := f.polls
	f.mu.Unlock()
	return f.poll(ctx, n)
}

func (f *fakeAdapter) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

type recorder struct {
	mu         sync.Mutex
	phases     []domain.Phase
	progress   []int
	completed  []any
	errs       []error
	lowBalance int
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(phase domain.Phase, progress int) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.phases = append(r.phases, phase)
			r.progress = append(r.progress, progress)
		},
		OnCompleted: func(result any) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.completed = append(r.completed, result)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
		OnLowBalance: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.lowBalance++
		},
	}
}

func (r *recorder) events() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.progress) + len(r.completed) + len(r.errs) + r.lowBalance
}

func (r *recorder) terminal() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed) + len(r.errs) + r.lowBalance
}

func (r *recorder) lastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

func working(progress int) (domain.Snapshot, error) {
	return domain.Snapshot{Phase: domain.PhaseAnalyzing, Progress: progress}, nil
}

func transient() (domain.Snapshot, error) {
	return domain.Snapshot{}, domain.NewTransportError("poll", errors.New("connection refused"))
}

func TestTracker_CreepsThenCompletesOnce(t *testing.T) {
	a := newFake(func(_ context.Context, n int) (domain.Snapshot, error) {
		if n <= 3 {
			return working(0)
		}
		return domain.Snapshot{Phase: domain.PhaseCompleted, Value: "explained"}, nil
	})
	rec := &recorder{}
	tr := New(Options{})

	h, err := tr.Start(context.Background(), a, "doc", rec.callbacks())
	require.NoError(t, err)
	assert.Equal(t, "job-1", h.JobID)

	require.Eventually(t, func() bool { return rec.terminal() == 1 }, waitFor, tick)

	// give a stray timer the chance to fire
	time.Sleep(5 * testInterval)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, rec.progress)
	assert.Equal(t, []domain.Phase{domain.PhaseAnalyzing, domain.PhaseAnalyzing, domain.PhaseAnalyzing}, rec.phases)
	assert.Equal(t, []any{"explained"}, rec.completed)
	assert.Empty(t, rec.errs)
	assert.Equal(t, 4, a.pollCount())

	job := tr.Job()
	assert.Equal(t, domain.PhaseCompleted, job.Phase)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, "explained", job.Result)
	assert.False(t, tr.Active())
}

func TestTracker_ServerProgressIsMonotonic(t *testing.T) {
	seq := []int{10, 40, 20, 0, 70}
	a := newFake(func(_ context.Context, n int) (domain.Snapshot, error) {
		if n <= len(seq) {
			return domain.Snapshot{Phase: domain.PhaseProcessing, Progress: seq[n-1]}, nil
		}
		return domain.Snapshot{Phase: domain.PhaseCompleted}, nil
	})
	rec := &recorder{}
	tr := New(Options{})

	_, err := tr.Start(context.Background(), a, nil, rec.callbacks())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.terminal() == 1 }, waitFor, tick)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []int{10, 40, 40, 41, 70}, rec.progress)
}

func TestTracker_TerminalOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		poll      func() (domain.Snapshot, error)
		wantPhase domain.Phase
		checkErr  func(t *testing.T, err error)
		wantLow   int
	}{
		{
			name: "backend error carries its message",
			poll: func() (domain.Snapshot, error) {
				return domain.Snapshot{Phase: domain.PhaseError, Message: "quota exceeded"}, nil
			},
			wantPhase: domain.PhaseError,
			checkErr: func(t *testing.T, err error) {
				var failed *domain.JobFailedError
				require.ErrorAs(t, err, &failed)
				assert.Equal(t, "quota exceeded", failed.Message)
			},
		},
		{
			name: "not found phase",
			poll: func() (domain.Snapshot, error) {
				return domain.Snapshot{Phase: domain.PhaseNotFound}, nil
			},
			wantPhase: domain.PhaseNotFound,
			checkErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrJobNotFound)
			},
		},
		{
			name: "bare 404",
			poll: func() (domain.Snapshot, error) {
				return domain.Snapshot{}, domain.ErrJobNotFound
			},
			wantPhase: domain.PhaseNotFound,
			checkErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrJobNotFound)
			},
		},
		{
			name: "session expired is not retried",
			poll: func() (domain.Snapshot, error) {
				return domain.Snapshot{}, domain.ErrSessionExpired
			},
			wantPhase: domain.PhaseError,
			checkErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrSessionExpired)
			},
		},
		{
			name: "low balance phase",
			poll: func() (domain.Snapshot, error) {
				return domain.Snapshot{Phase: domain.PhaseLowBalance, LowBalance: true}, nil
			},
			wantPhase: domain.PhaseLowBalance,
			wantLow:   1,
		},
		{
			name: "completed result withheld for low balance",
			poll: func() (domain.Snapshot, error) {
				return domain.Snapshot{Phase: domain.PhaseCompleted, LowBalance: true, Value: "hidden"}, nil
			},
			wantPhase: domain.PhaseLowBalance,
			wantLow:   1,
		},
		{
			name: "402 while polling",
			poll: func() (domain.Snapshot, error) {
				return domain.Snapshot{}, domain.ErrInsufficientBalance
			},
			wantPhase: domain.PhaseLowBalance,
			wantLow:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newFake(func(context.Context, int) (domain.Snapshot, error) { return tt.poll() })
			rec := &recorder{}
			tr := New(Options{})

			_, err := tr.Start(context.Background(), a, nil, rec.callbacks())
			require.NoError(t, err)
			require.Eventually(t, func() bool { return rec.terminal() == 1 }, waitFor, tick)
			time.Sleep(5 * testInterval)

			assert.Equal(t, 1, a.pollCount())
			assert.Equal(t, tt.wantPhase, tr.Job().Phase)
			assert.False(t, tr.Active())

			rec.mu.Lock()
			defer rec.mu.Unlock()
			assert.Empty(t, rec.completed)
			assert.Equal(t, tt.wantLow, rec.lowBalance)
			if tt.checkErr != nil {
				require.Len(t, rec.errs, 1)
				tt.checkErr(t, rec.errs[0])
			} else {
				assert.Empty(t, rec.errs)
			}
		})
	}
}

func TestTracker_CancelDiscardsInFlightPoll(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	a := newFake(func(_ context.Context, n int) (domain.Snapshot, error) {
		if n == 1 {
			close(entered)
			<-release
		}
		return domain.Snapshot{Phase: domain.PhaseCompleted, Value: "late"}, nil
	})
	rec := &recorder{}
	tr := New(Options{})

	_, err := tr.Start(context.Background(), a, nil, rec.callbacks())
	require.NoError(t, err)

	<-entered
	before := tr.Epoch()
	tr.Cancel()
	assert.Equal(t, before+1, tr.Epoch())
	close(release)

	assert.Never(t, func() bool { return rec.events() > 0 }, 20*testInterval, tick)
	assert.Equal(t, 1, a.pollCount())
	assert.NotEqual(t, domain.PhaseCompleted, tr.Job().Phase)
	assert.False(t, tr.Active())
}

func TestTracker_CancelAbortsRequestContext(t *testing.T) {
	aborted := make(chan struct{})
	a := newFake(func(ctx context.Context, _ int) (domain.Snapshot, error) {
		<-ctx.Done()
		close(aborted)
		return domain.Snapshot{}, domain.NewTransportError("poll", ctx.Err())
	})
	rec := &recorder{}
	tr := New(Options{})

	_, err := tr.Start(context.Background(), a, nil, rec.callbacks())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return a.pollCount() == 1 }, waitFor, tick)

	tr.Cancel()

	select {
	case <-aborted:
	case <-time.After(waitFor):
		t.Fatal("in-flight poll was not aborted")
	}
	assert.Never(t, func() bool { return rec.events() > 0 }, 10*testInterval, tick)
}

func TestTracker_StartSupersedesPreviousJob(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	first := newFake(func(_ context.Context, n int) (domain.Snapshot, error) {
		if n == 1 {
			close(entered)
			<-release
		}
		return domain.Snapshot{Phase: domain.PhaseCompleted, Value: "first"}, nil
	})
	second := newFake(func(context.Context, int) (domain.Snapshot, error) {
		return domain.Snapshot{Phase: domain.PhaseCompleted, Value: "second"}, nil
	})
	second.submit = func(context.Context, any) (string, error) { return "job-2", nil }

	firstRec, secondRec := &recorder{}, &recorder{}
	tr := New(Options{})

	_, err := tr.Start(context.Background(), first, nil, firstRec.callbacks())
	require.NoError(t, err)
	<-entered

	h, err := tr.Start(context.Background(), second, nil, secondRec.callbacks())
	require.NoError(t, err)
	close(release)

	require.Eventually(t, func() bool { return secondRec.terminal() == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return firstRec.events() > 0 }, 10*testInterval, tick)

	job := tr.Job()
	assert.Equal(t, "job-2", job.ID)
	assert.Equal(t, h.Epoch, job.Epoch)
	assert.Equal(t, "second", job.Result)
}

func TestTracker_CancelIsIdempotent(t *testing.T) {
	tr := New(Options{})
	tr.Cancel()
	assert.Equal(t, uint64(0), tr.Epoch())

	a := newFake(func(context.Context, int) (domain.Snapshot, error) { return working(10) })
	_, err := tr.Start(context.Background(), a, nil, Callbacks{})
	require.NoError(t, err)

	tr.Cancel()
	after := tr.Epoch()
	tr.Cancel()
	tr.Cancel()

	assert.Equal(t, after, tr.Epoch())
	assert.False(t, tr.Active())
}

func TestTracker_CancelAfterTerminalDoesNothing(t *testing.T) {
	a := newFake(func(context.Context, int) (domain.Snapshot, error) {
		return domain.Snapshot{Phase: domain.PhaseCompleted}, nil
	})
	rec := &recorder{}
	tr := New(Options{})

	_, err := tr.Start(context.Background(), a, nil, rec.callbacks())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.terminal() == 1 }, waitFor, tick)

	epoch := tr.Epoch()
	tr.Cancel()
	assert.Equal(t, epoch, tr.Epoch())
	assert.Equal(t, domain.PhaseCompleted, tr.Job().Phase)
}

func TestTracker_TimesOutAfterMaxFailures(t *testing.T) {
	a := newFake(func(context.Context, int) (domain.Snapshot, error) { return transient() })
	rec := &recorder{}
	tr := New(Options{MaxFailures: 3, FailureWindow: time.Hour})

	_, err := tr.Start(context.Background(), a, nil, rec.callbacks())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.terminal() == 1 }, waitFor, tick)
	time.Sleep(5 * testInterval)

	assert.ErrorIs(t, rec.lastErr(), domain.ErrTimedOut)
	assert.Equal(t, 3, a.pollCount())
	assert.Equal(t, domain.PhaseError, tr.Job().Phase)
	assert.Equal(t, "timed out", tr.Job().ErrorMessage)
}

func TestTracker_TimesOutAfterFailureWindow(t *testing.T) {
	a := newFake(func(context.Context, int) (domain.Snapshot, error) { return transient() })
	rec := &recorder{}
	tr := New(Options{MaxFailures: 10000, FailureWindow: 10 * testInterval})

	_, err := tr.Start(context.Background(), a, nil, rec.callbacks())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.terminal() == 1 }, waitFor, tick)

	assert.ErrorIs(t, rec.lastErr(), domain.ErrTimedOut)
	assert.Less(t, a.pollCount(), 10000)
}

func TestTracker_RecoveryResetsFailureStreak(t *testing.T) {
	a := newFake(func(_ context.Context, n int) (domain.Snapshot, error) {
		switch n {
		case 1, 2, 4, 5:
			return transient()
		case 3:
			return working(50)
		default:
			return domain.Snapshot{Phase: domain.PhaseCompleted, Value: "ok"}, nil
		}
	})
	rec := &recorder{}
	tr := New(Options{MaxFailures: 3, FailureWindow: time.Hour})

	_, err := tr.Start(context.Background(), a, nil, rec.callbacks())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.terminal() == 1 }, waitFor, tick)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.errs)
	assert.Equal(t, []any{"ok"}, rec.completed)
	assert.Equal(t, []int{50}, rec.progress)
}

func TestTracker_RequestTimeoutCountsAsFailure(t *testing.T) {
	a := newFake(func(ctx context.Context, _ int) (domain.Snapshot, error) {
		<-ctx.Done()
		return domain.Snapshot{}, domain.NewTransportError("poll", ctx.Err())
	})
	rec := &recorder{}
	tr := New(Options{MaxFailures: 2, FailureWindow: time.Hour, RequestTimeout: testInterval})

	_, err := tr.Start(context.Background(), a, nil, rec.callbacks())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.terminal() == 1 }, waitFor, tick)

	assert.ErrorIs(t, rec.lastErr(), domain.ErrTimedOut)
	assert.Equal(t, 2, a.pollCount())
}

func TestTracker_StartSubmitFailures(t *testing.T) {
	tests := []struct {
		name        string
		submitErr   error
		wantPhase   domain.Phase
		wantMessage string
		checkErr    func(t *testing.T, err error)
	}{
		{
			name:        "transport failure",
			submitErr:   domain.NewTransportError("submit", errors.New("connection reset")),
			wantPhase:   domain.PhaseError,
			wantMessage: "failed to submit job",
			checkErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrSubmitFailed)
				assert.True(t, domain.IsTransient(err))
			},
		},
		{
			name:        "validation",
			submitErr:   domain.NewValidationError("document", "no file selected"),
			wantPhase:   domain.PhaseError,
			wantMessage: "invalid document: no file selected",
			checkErr: func(t *testing.T, err error) {
				var validation *domain.ValidationError
				assert.ErrorAs(t, err, &validation)
				assert.NotErrorIs(t, err, domain.ErrSubmitFailed)
			},
		},
		{
			name:      "insufficient credits",
			submitErr: domain.ErrInsufficientBalance,
			wantPhase: domain.PhaseLowBalance,
			checkErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
			},
		},
		{
			name:        "session expired",
			submitErr:   domain.ErrSessionExpired,
			wantPhase:   domain.PhaseError,
			wantMessage: "session expired",
			checkErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrSessionExpired)
			},
		},
		{
			name:        "backend rejection",
			submitErr:   &domain.JobFailedError{Message: "file too large"},
			wantPhase:   domain.PhaseError,
			wantMessage: "file too large",
			checkErr: func(t *testing.T, err error) {
				var failed *domain.JobFailedError
				assert.ErrorAs(t, err, &failed)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newFake(func(context.Context, int) (domain.Snapshot, error) { return working(1) })
			a.submit = func(context.Context, any) (string, error) { return "", tt.submitErr }
			rec := &recorder{}
			tr := New(Options{})

			_, err := tr.Start(context.Background(), a, nil, rec.callbacks())
			require.Error(t, err)
			tt.checkErr(t, err)

			time.Sleep(5 * testInterval)
			assert.Equal(t, 0, a.pollCount())
			assert.Equal(t, 0, rec.events())
			assert.False(t, tr.Active())

			job := tr.Job()
			assert.Equal(t, tt.wantPhase, job.Phase)
			assert.Equal(t, tt.wantMessage, job.ErrorMessage)
		})
	}
}

func TestTracker_CancelDuringSubmit(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	a := newFake(func(context.Context, int) (domain.Snapshot, error) { return working(1) })
	a.submit = func(context.Context, any) (string, error) {
		close(entered)
		<-release
		return "job-late", nil
	}
	tr := New(Options{})

	errCh := make(chan error, 1)
	go func() {
		_, err := tr.Start(context.Background(), a, nil, Callbacks{})
		errCh <- err
	}()

	<-entered
	assert.True(t, tr.Active())
	tr.Cancel()
	close(release)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCanceled)
	case <-time.After(waitFor):
		t.Fatal("start did not return")
	}

	time.Sleep(5 * testInterval)
	assert.Equal(t, 0, a.pollCount())
	assert.Empty(t, tr.Job().ID)
}

func TestTracker_Follow(t *testing.T) {
	a := newFake(func(_ context.Context, n int) (domain.Snapshot, error) {
		if n == 1 {
			return working(0)
		}
		return domain.Snapshot{Phase: domain.PhaseCompleted, Value: "answer"}, nil
	})
	a.submit = func(context.Context, any) (string, error) {
		t.Error("follow must not submit")
		return "", nil
	}
	rec := &recorder{}
	tr := New(Options{})

	h := tr.Follow(a, "chat-7", rec.callbacks())
	assert.Equal(t, "chat-7", h.JobID)
	assert.Equal(t, uint64(1), h.Epoch)
	assert.True(t, tr.Active())

	require.Eventually(t, func() bool { return rec.terminal() == 1 }, waitFor, tick)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []int{1}, rec.progress)
	assert.Equal(t, []any{"answer"}, rec.completed)
}
