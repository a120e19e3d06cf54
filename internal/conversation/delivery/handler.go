package delivery

import (
	"errors"
	"net/http"
	"strconv"

	"raid-mail-agent/internal/conversation/domain"
	conversationdto "raid-mail-agent/internal/conversation/dto"
	"raid-mail-agent/internal/conversation/usecase"

	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	conversationUsecase usecase.ConversationUsecase
}

func NewConversationHandler(conversationUsecase usecase.ConversationUsecase) *ConversationHandler {
	return &ConversationHandler{conversationUsecase: conversationUsecase}
}

// ListThreads GET /api/threads?status=&limit=&offset=
func (h *ConversationHandler) ListThreads(c *gin.Context) {
	limit, offset := pagination(c)
	threads, total, err := h.conversationUsecase.ListThreads(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversationdto.ThreadsResponse{
		Threads: threads,
		Limit:   limit,
		Offset:  offset,
		Total:   total,
	})
}

// GetThread GET /api/threads/:id
func (h *ConversationHandler) GetThread(c *gin.Context) {
	view, err := h.conversationUsecase.GetThread(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ResetThread POST /api/threads/:id/reset
func (h *ConversationHandler) ResetThread(c *gin.Context) {
	wf, err := h.conversationUsecase.ResetThread(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, wf)
}

// ProcessThread POST /api/threads/:id/process
func (h *ConversationHandler) ProcessThread(c *gin.Context) {
	wf, err := h.conversationUsecase.ProcessThread(c.Request.Context(), c.Param("id"))
	if err != nil {
		if wf != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "workflow": wf})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

// ListApplications GET /api/applications?limit=&offset=
func (h *ConversationHandler) ListApplications(c *gin.Context) {
	limit, offset := pagination(c)
	apps, total, err := h.conversationUsecase.ListApplications(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversationdto.ApplicationsResponse{
		Applications: apps,
		Limit:        limit,
		Offset:       offset,
		Total:        total,
	})
}

// GetApplication GET /api/applications/:email
func (h *ConversationHandler) GetApplication(c *gin.Context) {
	app, err := h.conversationUsecase.GetApplication(c.Request.Context(), c.Param("email"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// SearchApplications POST /api/applications/search
func (h *ConversationHandler) SearchApplications(c *gin.Context) {
	var req conversationdto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit <= 0 || req.Limit > 50 {
		req.Limit = 10
	}

	apps, err := h.conversationUsecase.SearchApplications(c.Request.Context(), req.Query, req.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversationdto.SearchResponse{Query: req.Query, Applications: apps})
}

func pagination(c *gin.Context) (int, int) {
	limit := 20
	offset := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrWorkflowNotFound), errors.Is(err, domain.ErrApplicationMissing):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownStatus), errors.Is(err, usecase.ErrEmptyQuery):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
