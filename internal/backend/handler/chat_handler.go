package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/cuongbtq/docintel/internal/backend/dto"
	"github.com/cuongbtq/docintel/internal/backend/simulator"
	"github.com/cuongbtq/docintel/internal/domain"
	"github.com/gin-gonic/gin"
)

// ChatQuery handles POST /chat/query
// Answers at once, or defers to a follow-up job when the question needs the
// document to be analyzed first
func (h *JobHandler) ChatQuery(c *gin.Context) {
	var req dto.ChatQueryRequest
	if !h.bind(c, &req) {
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	user := userID(c)

	if h.failMarker != "" && containsFold(req.Query, h.failMarker) {
		c.JSON(http.StatusOK, dto.Envelope{Status: "error", Message: "failed to answer question"})
		return
	}

	if h.deferred(req.Query) {
		job, ok := h.enqueue(c, domain.JobTypeChatFollowup, user, simulator.ChatQuery{
			Query:     req.Query,
			SessionID: req.SessionID,
		})
		if !ok {
			return
		}
		c.JSON(http.StatusOK, dto.Envelope{
			Status: string(domain.ChatStatusProcessing),
			Data:   dto.ChatData{ChatID: job.JobID, Message: "Analyzing document"},
		})
		return
	}

	paid, err := h.store.ConsumeCredit(c.Request.Context(), user)
	if err != nil {
		h.logger.Error("Failed to consume credit", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.Envelope{Status: "error", Message: "failed to check balance"})
		return
	}
	if !paid {
		c.JSON(http.StatusOK, dto.Envelope{
			Status: "success",
			Data:   dto.ChatData{LowBalance: true, Message: "insufficient credits"},
		})
		return
	}

	h.logger.Info("Chat query answered",
		slog.String("session_id", req.SessionID),
		slog.String("user_id", user),
	)
	c.JSON(http.StatusOK, dto.Envelope{
		Status: "success",
		Data:   dto.ChatData{Data: simulator.Answer(req.Query)},
	})
}

func (h *JobHandler) deferred(query string) bool {
	for _, kw := range h.deferKeywords {
		if kw != "" && containsFold(query, kw) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
