package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aulalabs/aula-api/internal/models"
	"github.com/aulalabs/aula-api/internal/service"
	appErrors "github.com/aulalabs/aula-api/pkg/errors"
	"github.com/aulalabs/aula-api/pkg/response"
)

// MessageHandler exposes messaging and announcement endpoints.
type MessageHandler struct {
	messages *service.MessageService
}

// NewMessageHandler constructs MessageHandler.
func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// Inbox godoc
// @Summary List the current user's threads
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size"
// @Param skip query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /messages/threads [get]
func (h *MessageHandler) Inbox(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	threads, err := h.messages.Inbox(c.Request.Context(), claimsFromContext(c), limit, skip)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, threads, nil)
}

// CreateThread godoc
// @Summary Open a conversation or post an announcement
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateThreadRequest true "Thread payload"
// @Success 201 {object} response.Envelope
// @Router /messages/threads [post]
func (h *MessageHandler) CreateThread(c *gin.Context) {
	var req models.CreateThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	thread, err := h.messages.CreateThread(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, thread)
}

// GetThread godoc
// @Summary Read a thread and mark it read
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Thread ID"
// @Success 200 {object} response.Envelope
// @Router /messages/threads/{id} [get]
func (h *MessageHandler) GetThread(c *gin.Context) {
	thread, messages, err := h.messages.GetThread(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"thread": thread, "messages": messages}, nil)
}

// Reply godoc
// @Summary Reply inside a thread
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Thread ID"
// @Param payload body models.ReplyRequest true "Reply payload"
// @Success 201 {object} response.Envelope
// @Router /messages/threads/{id}/reply [post]
func (h *MessageHandler) Reply(c *gin.Context) {
	var req models.ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	message, err := h.messages.Reply(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, message)
}

// UnreadCount godoc
// @Summary Count unread threads
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /messages/unread-count [get]
func (h *MessageHandler) UnreadCount(c *gin.Context) {
	count, err := h.messages.UnreadCount(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"unread": count}, nil)
}

// Announcements godoc
// @Summary List a course's announcements
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/announcements [get]
func (h *MessageHandler) Announcements(c *gin.Context) {
	threads, err := h.messages.Announcements(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, threads, nil)
}
