package storage

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cuongbtq/docintel/internal/backend/model"
)

// MemoryStore keeps everything in process memory
type MemoryStore struct {
	mu       sync.Mutex
	policy   CreditPolicy
	jobs     map[string]*model.Job
	balances map[string]int
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore(policy CreditPolicy) *MemoryStore {
	return &MemoryStore{
		policy:   policy,
		jobs:     make(map[string]*model.Job),
		balances: make(map[string]int),
		now:      time.Now,
	}
}

func (s *MemoryStore) CreateJob(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *job
	s.jobs[job.JobID] = &stored
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, jobID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	out := *job
	return &out, nil
}

func (s *MemoryStore) ListJobs(_ context.Context, filter JobFilter) ([]model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []model.Job
	for _, job := range s.jobs {
		if filter.UserID != "" && job.UserID != filter.UserID {
			continue
		}
		if filter.JobType != "" && job.JobType != filter.JobType {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if c := filter.Cursor; c != nil && !before(job, c) {
			continue
		}
		jobs = append(jobs, *job)
	}

	// created_at DESC, job_id DESC
	slices.SortFunc(jobs, func(a, b model.Job) int {
		if n := b.CreatedAt.Compare(a.CreatedAt); n != 0 {
			return n
		}
		return cmp.Compare(b.JobID, a.JobID)
	})

	if filter.PageSize > 0 && len(jobs) > filter.PageSize+1 {
		jobs = jobs[:filter.PageSize+1]
	}
	return jobs, nil
}

// before reports whether job sorts after the cursor in descending order
func before(job *model.Job, c *JobCursor) bool {
	if job.CreatedAt.Equal(c.CreatedAt) {
		return job.JobID < c.JobID
	}
	return job.CreatedAt.Before(c.CreatedAt)
}

func (s *MemoryStore) ClaimJob(_ context.Context, jobID, workerID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.Status != model.StatusPending {
		return nil, ErrJobAlreadyClaimed
	}

	job.Status = model.StatusRunning
	job.WorkerID = workerID
	job.UpdatedAt = s.now()
	out := *job
	return &out, nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, jobID, phase string, progress int, message string) error {
	return s.update(jobID, func(job *model.Job) {
		job.Phase = phase
		job.Progress = progress
		job.Message = message
	})
}

func (s *MemoryStore) CompleteJob(_ context.Context, jobID, phase string, result []byte, lowBalance bool) error {
	return s.update(jobID, func(job *model.Job) {
		now := s.now()
		job.Status = model.StatusCompleted
		job.Phase = phase
		job.Progress = 100
		job.Message = ""
		job.Result = slices.Clone(result)
		job.LowBalance = lowBalance
		job.CompletedAt = &now
	})
}

func (s *MemoryStore) FailJob(_ context.Context, jobID, phase, errorMsg string) error {
	return s.update(jobID, func(job *model.Job) {
		now := s.now()
		job.Status = model.StatusFailed
		job.Phase = phase
		job.ErrorMessage = errorMsg
		job.CompletedAt = &now
	})
}

func (s *MemoryStore) update(jobID string, fn func(job *model.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	fn(job)
	job.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) HasCredit(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limited, start := s.policy.limited(userID)
	if !limited {
		return true, nil
	}
	return s.balanceLocked(userID, start) > 0, nil
}

func (s *MemoryStore) ConsumeCredit(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limited, start := s.policy.limited(userID)
	if !limited {
		return true, nil
	}
	balance := s.balanceLocked(userID, start)
	if balance <= 0 {
		return false, nil
	}
	s.balances[userID] = balance - 1
	return true, nil
}

func (s *MemoryStore) balanceLocked(userID string, start int) int {
	balance, ok := s.balances[userID]
	if !ok {
		balance = start
		s.balances[userID] = balance
	}
	return balance
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
