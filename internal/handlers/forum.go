package handlers

import (
	"errors"
	"net/http"

	"yoforex/internal/services"
	"yoforex/internal/utils"

	"github.com/gin-gonic/gin"
)

// ForumHandler is the thread/reply write path that feeds the coin economy.
type ForumHandler struct {
	activity *services.ActivityService
}

func NewForumHandler(activity *services.ActivityService) *ForumHandler {
	return &ForumHandler{activity: activity}
}

type threadRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// CreateThread 发布主题 (POST /threads)
func (h *ForumHandler) CreateThread(c *gin.Context) {
	var req threadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonFail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	user := currentUser(c)

	thread, earned, err := h.activity.CreateThread(c.Request.Context(), user.ID, req.Title, req.Content)
	if errors.Is(err, services.ErrEmptyContent) {
		jsonFail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"message":      "thread created",
		"thread":       thread,
		"content_html": utils.RenderMarkdown(thread.Content),
		"coins_earned": earned,
	})
}

type replyRequest struct {
	Content string `json:"content"`
}

// CreateReply 发表回复 (POST /threads/:id/replies)
func (h *ForumHandler) CreateReply(c *gin.Context) {
	threadID, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonFail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	user := currentUser(c)

	reply, earned, err := h.activity.CreateReply(c.Request.Context(), user.ID, threadID, req.Content)
	switch {
	case errors.Is(err, services.ErrEmptyContent):
		jsonFail(c, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, services.ErrThreadNotFound):
		jsonFail(c, http.StatusNotFound, err.Error())
		return
	case err != nil:
		internalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"message":      "reply created",
		"reply":        reply,
		"content_html": utils.RenderMarkdown(reply.Content),
		"coins_earned": earned,
	})
}
