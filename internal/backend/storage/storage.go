// Package storage persists stub backend jobs and user credit balances.
package storage

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/cuongbtq/docintel/internal/backend/model"
)

var (
	// ErrJobNotFound is returned when a job cannot be found
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when claiming a job that is not pending
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in PENDING status")
)

// Store is implemented by the in-memory and PostgreSQL backends
type Store interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)

	// ClaimJob moves a pending job to running on behalf of workerID
	ClaimJob(ctx context.Context, jobID, workerID string) (*model.Job, error)
	UpdateProgress(ctx context.Context, jobID, phase string, progress int, message string) error
	CompleteJob(ctx context.Context, jobID, phase string, result []byte, lowBalance bool) error
	FailJob(ctx context.Context, jobID, phase, errorMsg string) error

	// HasCredit reports whether userID can pay for one more job
	HasCredit(ctx context.Context, userID string) (bool, error)
	// ConsumeCredit spends one credit, reporting false when none is left
	ConsumeCredit(ctx context.Context, userID string) (bool, error)

	Ping(ctx context.Context) error
}

type JobFilter struct {
	UserID   string
	JobType  string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor marks the last job of a page in (created_at, job_id) order
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// CreditPolicy decides the starting balance of a user
type CreditPolicy struct {
	// Initial is the starting balance. Zero means unlimited.
	Initial int
	// Empty lists users that start with nothing
	Empty []string
}

// limited reports whether userID has a finite balance, and its start value
func (p CreditPolicy) limited(userID string) (bool, int) {
	if slices.Contains(p.Empty, userID) {
		return true, 0
	}
	if p.Initial <= 0 {
		return false, 0
	}
	return true, p.Initial
}
