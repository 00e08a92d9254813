// Package handler implements the stub backend's job and chat endpoints.
package handler

import (
	"log/slog"

	"github.com/cuongbtq/docintel/internal/backend/dispatch"
	"github.com/cuongbtq/docintel/internal/backend/storage"
	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key holding the authenticated user
const UserIDKey = "user_id"

// AnonymousUser owns requests served with authentication disabled
const AnonymousUser = "anonymous"

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger     *slog.Logger
	Store      storage.Store
	Dispatcher dispatch.Dispatcher
	// FailMarker makes a chat query fail when it contains it
	FailMarker string
	// DeferKeywords route a chat query through a follow-up job
	DeferKeywords []string
}

// JobHandler handles job and chat HTTP requests
type JobHandler struct {
	logger        *slog.Logger
	store         storage.Store
	dispatcher    dispatch.Dispatcher
	failMarker    string
	deferKeywords []string
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:        deps.Logger,
		store:         deps.Store,
		dispatcher:    deps.Dispatcher,
		failMarker:    deps.FailMarker,
		deferKeywords: deps.DeferKeywords,
	}
}

func userID(c *gin.Context) string {
	if id := c.GetString(UserIDKey); id != "" {
		return id
	}
	return AnonymousUser
}
