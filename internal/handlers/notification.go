package handlers

import (
	"net/http"

	"yoforex/internal/services"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notifications *services.NotificationService
}

func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

func (h *NotificationHandler) List(c *gin.Context) {
	user := currentUser(c)
	ctx := c.Request.Context()

	list, err := h.notifications.List(ctx, user.ID)
	if err != nil {
		internalError(c, err)
		return
	}
	unread, err := h.notifications.UnreadCount(ctx, user.ID)
	if err != nil {
		internalError(c, err)
		return
	}
	jsonOK(c, "", gin.H{"notifications": list, "unread": unread})
}

func (h *NotificationHandler) Read(c *gin.Context) {
	user := currentUser(c)
	id, valid := paramID(c, "id")
	if !valid {
		return
	}

	found, err := h.notifications.MarkRead(c.Request.Context(), user.ID, id)
	if err != nil {
		internalError(c, err)
		return
	}
	if !found {
		jsonFail(c, http.StatusNotFound, "notification not found")
		return
	}
	jsonOK(c, "notification marked as read", nil)
}

func (h *NotificationHandler) ReadAll(c *gin.Context) {
	user := currentUser(c)
	if err := h.notifications.MarkAllRead(c.Request.Context(), user.ID); err != nil {
		internalError(c, err)
		return
	}
	jsonOK(c, "all notifications marked as read", nil)
}
