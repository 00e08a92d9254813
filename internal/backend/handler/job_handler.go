package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/docintel/internal/backend/dto"
	"github.com/cuongbtq/docintel/internal/backend/model"
	"github.com/cuongbtq/docintel/internal/backend/storage"
	"github.com/cuongbtq/docintel/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// SubmitPdfAnalysis handles POST /pdf/analyze
func (h *JobHandler) SubmitPdfAnalysis(c *gin.Context) {
	var req dto.PdfAnalysisRequest
	if !h.bind(c, &req) {
		return
	}
	h.submit(c, domain.JobTypePdfAnalysis, req)
}

// SubmitVideoGeneration handles POST /video/generate
func (h *JobHandler) SubmitVideoGeneration(c *gin.Context) {
	var req dto.VideoGenerationRequest
	if !h.bind(c, &req) {
		return
	}
	h.submit(c, domain.JobTypeVideoGeneration, req)
}

// SubmitYoutubeAnalysis handles POST /youtube/analyze
func (h *JobHandler) SubmitYoutubeAnalysis(c *gin.Context) {
	var req dto.YoutubeAnalysisRequest
	if !h.bind(c, &req) {
		return
	}
	h.submit(c, domain.JobTypeYoutubeAnalysis, req)
}

func (h *JobHandler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.Envelope{Status: "error", Message: "invalid request body"})
		return false
	}
	return true
}

func (h *JobHandler) submit(c *gin.Context, jobType domain.JobType, req any) {
	ctx := c.Request.Context()
	user := userID(c)

	hasCredit, err := h.store.HasCredit(ctx, user)
	if err != nil {
		h.logger.Error("Failed to check balance", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.Envelope{Status: "error", Message: "failed to check balance"})
		return
	}
	if !hasCredit {
		c.JSON(http.StatusPaymentRequired, dto.Envelope{Status: "low_balance", Message: "insufficient credits"})
		return
	}

	job, ok := h.enqueue(c, jobType, user, req)
	if !ok {
		return
	}

	c.JSON(http.StatusAccepted, dto.Envelope{
		Status: "success",
		Data: dto.JobData{
			JobID:    job.JobID,
			Phase:    job.Phase,
			Progress: job.Progress,
			Message:  job.Message,
		},
	})
}

// enqueue stores a pending job and dispatches it, writing the error
// response itself when it fails
func (h *JobHandler) enqueue(c *gin.Context, jobType domain.JobType, user string, req any) (*model.Job, bool) {
	ctx := c.Request.Context()

	payload, err := json.Marshal(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.Envelope{Status: "error", Message: "invalid request body"})
		return nil, false
	}

	now := time.Now().UTC()
	job := &model.Job{
		JobID:     uuid.New().String(),
		UserID:    user,
		JobType:   string(jobType),
		Payload:   string(payload),
		Status:    model.StatusPending,
		Phase:     model.PhaseQueued,
		Message:   "Job queued",
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.CreateJob(ctx, job); err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.Envelope{Status: "error", Message: "failed to create job"})
		return nil, false
	}

	if err := h.dispatcher.Dispatch(ctx, job.JobID); err != nil {
		h.logger.Error("Failed to dispatch job",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		if failErr := h.store.FailJob(ctx, job.JobID, "error", "failed to dispatch job"); failErr != nil {
			h.logger.Error("Failed to mark undispatched job", slog.String("error", failErr.Error()))
		}
		c.JSON(http.StatusServiceUnavailable, dto.Envelope{Status: "error", Message: "failed to dispatch job"})
		return nil, false
	}

	h.logger.Info("Job submitted",
		slog.String("job_id", job.JobID),
		slog.String("job_type", job.JobType),
		slog.String("user_id", user),
	)
	return job, true
}

// JobStatus serves the status route of jobType. Unknown ids answer a bare
// 404, or a not_found envelope when notFoundEnvelope is set.
func (h *JobHandler) JobStatus(jobType domain.JobType, notFoundEnvelope bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")

		var job *model.Job
		err := storage.ErrJobNotFound
		if _, parseErr := uuid.Parse(jobID); parseErr == nil {
			job, err = h.store.GetJob(c.Request.Context(), jobID)
		}
		// other users' jobs and other routes' jobs are invisible
		if err == nil && (job.JobType != string(jobType) || job.UserID != userID(c)) {
			err = storage.ErrJobNotFound
		}

		switch {
		case errors.Is(err, storage.ErrJobNotFound):
			if notFoundEnvelope {
				c.JSON(http.StatusNotFound, dto.Envelope{Status: "not_found", Message: "job not found"})
				return
			}
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		case err != nil:
			h.logger.Error("Failed to get job",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, dto.Envelope{Status: "error", Message: "failed to get job"})
			return
		}

		c.JSON(http.StatusOK, statusEnvelope(job))
	}
}

func statusEnvelope(job *model.Job) dto.Envelope {
	data := dto.JobData{
		JobID:      job.JobID,
		Phase:      job.Phase,
		Progress:   job.Progress,
		Message:    job.Message,
		LowBalance: job.LowBalance,
	}
	if len(job.Result) > 0 {
		data.Result = json.RawMessage(job.Result)
	}

	if job.Status == model.StatusFailed {
		data.Message = job.ErrorMessage
		return dto.Envelope{Status: "error", Message: job.ErrorMessage, Data: data}
	}
	return dto.Envelope{Status: "success", Data: data}
}

// ListJobs handles GET /jobs
// Lists the caller's jobs newest first with cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Envelope{Status: "error", Message: "invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.Envelope{Status: "error", Message: "invalid cursor"})
		return
	}

	jobs, err := h.store.ListJobs(c.Request.Context(), storage.JobFilter{
		UserID:   userID(c),
		JobType:  req.JobType,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.Envelope{Status: "error", Message: "failed to list jobs"})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(jobs))}
	for i, job := range jobs {
		resp.Jobs[i] = dto.JobDTO{
			JobID:     job.JobID,
			JobType:   job.JobType,
			Status:    job.Status,
			Phase:     job.Phase,
			Progress:  job.Progress,
			CreatedAt: job.CreatedAt.Format(time.RFC3339),
			UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
		}
	}
	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = EncodeJobCursor(&storage.JobCursor{CreatedAt: last.CreatedAt, JobID: last.JobID})
	}

	c.JSON(http.StatusOK, dto.Envelope{Status: "success", Data: resp})
}
