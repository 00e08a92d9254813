// Package dto holds the stub backend's request and response bodies.
package dto

type PdfAnalysisRequest struct {
	DocumentID string `json:"documentId" binding:"required"`
	FileName   string `json:"fileName"`
	Pages      []int  `json:"pages" binding:"omitempty,dive,min=1"`
	Language   string `json:"language"`
}

type VideoGenerationRequest struct {
	DocumentID string `json:"documentId" binding:"required"`
	Voice      string `json:"voice"`
	Language   string `json:"language"`
}

type YoutubeAnalysisRequest struct {
	URL      string `json:"url" binding:"required,url"`
	Language string `json:"language"`
}

type ChatQueryRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
}

type ListJobsRequest struct {
	JobType  string `form:"job_type"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// Envelope wraps every response
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// JobData is the data of submit and status responses
type JobData struct {
	JobID      string `json:"jobId"`
	Phase      string `json:"phase"`
	Progress   int    `json:"progress"`
	Message    string `json:"message,omitempty"`
	Result     any    `json:"result,omitempty"`
	LowBalance bool   `json:"lowBalance"`
}

// ChatData is the data of a chat query response
type ChatData struct {
	Data       string `json:"data,omitempty"`
	ChatID     string `json:"chat_id,omitempty"`
	Message    string `json:"message,omitempty"`
	LowBalance bool   `json:"lowBalance,omitempty"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

type JobDTO struct {
	JobID     string `json:"jobId"`
	JobType   string `json:"jobType"`
	Status    string `json:"status"`
	Phase     string `json:"phase"`
	Progress  int    `json:"progress"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}
