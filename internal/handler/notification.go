package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/incubator-platform/support-chat/internal/auth"
	"github.com/incubator-platform/support-chat/internal/errs"
	"github.com/incubator-platform/support-chat/internal/notification"
)

type NotificationHandler struct {
	sched *notification.Scheduler
}

func NewNotificationHandler(sched *notification.Scheduler) *NotificationHandler {
	return &NotificationHandler{sched: sched}
}

func (h *NotificationHandler) GetPreferences(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)
	c.JSON(http.StatusOK, h.sched.Preferences().Get(id.UserID))
}

// UpdatePreferences applies the body over the current preferences, so
// omitted fields keep their value.
func (h *NotificationHandler) UpdatePreferences(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)
	p := h.sched.Preferences().Get(id.UserID)
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	updated, err := h.sched.Preferences().Update(id.UserID, p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *NotificationHandler) Schedule(c *gin.Context) {
	sess, ok := h.bindSession(c)
	if !ok {
		return
	}
	pending, err := h.sched.Schedule(c.Request.Context(), sess)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": sess.ID, "pending": pending})
}

func (h *NotificationHandler) Reschedule(c *gin.Context) {
	sess, ok := h.bindSession(c)
	if !ok {
		return
	}
	pending, err := h.sched.Reschedule(c.Request.Context(), sess)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sess.ID, "pending": pending})
}

func (h *NotificationHandler) Cancel(c *gin.Context) {
	n := h.sched.Cancel(c.Param("id"))
	if n == 0 {
		writeError(c, errs.ErrSessionNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": c.Param("id"), "cancelled": n})
}

func (h *NotificationHandler) Pending(c *gin.Context) {
	items := h.sched.Pending(c.Query("session_id"))
	c.JSON(http.StatusOK, gin.H{"pending": items, "total": len(items)})
}

func (h *NotificationHandler) bindSession(c *gin.Context) (notification.Session, bool) {
	var sess notification.Session
	if err := c.ShouldBindJSON(&sess); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return sess, false
	}
	sess.ID = c.Param("id")
	return sess, true
}
