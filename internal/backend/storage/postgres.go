package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/docintel/internal/backend/model"
	"github.com/jmoiron/sqlx"
)

// Schema creates the tables used by Postgres
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id        UUID PRIMARY KEY,
	user_id       TEXT NOT NULL,
	job_type      TEXT NOT NULL,
	payload       TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	phase         TEXT NOT NULL,
	progress      INTEGER NOT NULL DEFAULT 0,
	message       TEXT NOT NULL DEFAULT '',
	result        JSONB,
	low_balance   BOOLEAN NOT NULL DEFAULT FALSE,
	error_message TEXT NOT NULL DEFAULT '',
	worker_id     TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS jobs_user_created_idx ON jobs (user_id, created_at DESC, job_id DESC);

CREATE TABLE IF NOT EXISTS user_credits (
	user_id TEXT PRIMARY KEY,
	balance INTEGER NOT NULL
);
`

const jobColumns = `
	job_id, user_id, job_type, payload, status, phase, progress, message,
	result, low_balance, error_message, worker_id, created_at, updated_at, completed_at
`

// Postgres stores jobs in PostgreSQL through sqlx
type Postgres struct {
	db     *sqlx.DB
	policy CreditPolicy
	logger *slog.Logger
}

// NewPostgres creates a new Postgres store
func NewPostgres(db *sqlx.DB, policy CreditPolicy, logger *slog.Logger) *Postgres {
	return &Postgres{db: db, policy: policy, logger: logger}
}

// Migrate creates the schema if it does not exist
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (s *Postgres) CreateJob(ctx context.Context, job *model.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, user_id, job_type, payload, status, phase,
			progress, message, created_at, updated_at
		) VALUES (
			:job_id, :user_id, :job_type, :payload, :status, :phase,
			:progress, :message, :created_at, :updated_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *Postgres) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	query := `SELECT` + jobColumns + `FROM jobs WHERE job_id = $1`

	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *Postgres) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT` + jobColumns + `FROM jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}

	if filter.JobType != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, filter.JobType)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"

	// one extra row tells the caller whether another page exists
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []model.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// ClaimJob uses the status column as an optimistic lock
func (s *Postgres) ClaimJob(ctx context.Context, jobID, workerID string) (*model.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    worker_id = $2,
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
		RETURNING` + jobColumns

	var job model.Job
	err := s.db.GetContext(ctx, &job, query, model.StatusRunning, workerID, jobID, model.StatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.String("job_id", jobID),
				slog.String("worker_id", workerID),
			)
			return nil, ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return &job, nil
}

func (s *Postgres) UpdateProgress(ctx context.Context, jobID, phase string, progress int, message string) error {
	query := `
		UPDATE jobs
		SET phase = $1, progress = $2, message = $3, updated_at = NOW()
		WHERE job_id = $4
	`
	return s.exec(ctx, "update job progress", query, phase, progress, message, jobID)
}

func (s *Postgres) CompleteJob(ctx context.Context, jobID, phase string, result []byte, lowBalance bool) error {
	query := `
		UPDATE jobs
		SET status = $1, phase = $2, progress = 100, message = '',
		    result = $3, low_balance = $4,
		    completed_at = NOW(), updated_at = NOW()
		WHERE job_id = $5
	`
	return s.exec(ctx, "complete job", query, model.StatusCompleted, phase, result, lowBalance, jobID)
}

func (s *Postgres) FailJob(ctx context.Context, jobID, phase, errorMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1, phase = $2, error_message = $3,
		    completed_at = NOW(), updated_at = NOW()
		WHERE job_id = $4
	`
	return s.exec(ctx, "fail job", query, model.StatusFailed, phase, errorMsg, jobID)
}

func (s *Postgres) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *Postgres) HasCredit(ctx context.Context, userID string) (bool, error) {
	limited, start := s.policy.limited(userID)
	if !limited {
		return true, nil
	}
	if err := s.seedBalance(ctx, userID, start); err != nil {
		return false, err
	}

	var balance int
	if err := s.db.GetContext(ctx, &balance, `SELECT balance FROM user_credits WHERE user_id = $1`, userID); err != nil {
		return false, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance > 0, nil
}

func (s *Postgres) ConsumeCredit(ctx context.Context, userID string) (bool, error) {
	limited, start := s.policy.limited(userID)
	if !limited {
		return true, nil
	}
	if err := s.seedBalance(ctx, userID, start); err != nil {
		return false, err
	}

	var balance int
	err := s.db.GetContext(ctx, &balance, `
		UPDATE user_credits SET balance = balance - 1
		WHERE user_id = $1 AND balance > 0
		RETURNING balance
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to consume credit: %w", err)
	}
	return true, nil
}

func (s *Postgres) seedBalance(ctx context.Context, userID string, start int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_credits (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, start)
	if err != nil {
		return fmt.Errorf("failed to seed balance: %w", err)
	}
	return nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
