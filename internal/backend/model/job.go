// Package model holds the job records persisted by the stub backend.
package model

import "time"

// Job lifecycle statuses. Phase carries the finer-grained, job-type specific
// stage reported to clients.
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// PhaseQueued is the phase of a job nobody has claimed yet
const PhaseQueued = "queued"

type Job struct {
	JobID        string     `db:"job_id"`
	UserID       string     `db:"user_id"`
	JobType      string     `db:"job_type"`
	Payload      string     `db:"payload"`
	Status       string     `db:"status"`
	Phase        string     `db:"phase"`
	Progress     int        `db:"progress"`
	Message      string     `db:"message"`
	Result       []byte     `db:"result"`
	LowBalance   bool       `db:"low_balance"`
	ErrorMessage string     `db:"error_message"`
	WorkerID     string     `db:"worker_id"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	CompletedAt  *time.Time `db:"completed_at"`
}

// IsFinished reports whether the job reached a terminal status
func (j *Job) IsFinished() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
