package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/incubator-platform/support-chat/internal/auth"
	"github.com/incubator-platform/support-chat/internal/errs"
	"github.com/incubator-platform/support-chat/internal/model"
	"github.com/incubator-platform/support-chat/internal/service"
)

// TicketBroadcaster pushes REST-side ticket changes to live sockets.
type TicketBroadcaster interface {
	BroadcastTicket(t *model.Ticket)
}

type TicketHandler struct {
	svc       service.SupportChat
	broadcast TicketBroadcaster
}

func NewTicketHandler(svc service.SupportChat, broadcast TicketBroadcaster) *TicketHandler {
	return &TicketHandler{svc: svc, broadcast: broadcast}
}

// List returns the caller's tickets. Admins list everything, filtered by
// user_id, coach_id, status, priority or category.
func (h *TicketHandler) List(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)
	ctx := c.Request.Context()

	switch id.Role {
	case auth.RoleUser:
		items, err := h.svc.GetUserTickets(ctx, id.UserID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tickets": items, "total": len(items)})
		return
	case auth.RoleCoach:
		items, err := h.svc.GetCoachTickets(ctx, id.UserID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tickets": items, "total": len(items)})
		return
	}

	filter := make(map[string]any)
	for _, col := range []string{"user_id", "coach_id", "status", "priority", "category"} {
		if v := c.Query(col); v != "" {
			filter[col+" = ?"] = v
		}
	}
	limit := 0
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	items, total, err := h.svc.ListTickets(ctx, filter, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tickets": items,
		"total":   total,
	})
}

func (h *TicketHandler) Get(c *gin.Context) {
	t, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) Messages(c *gin.Context) {
	t, ok := h.load(c)
	if !ok {
		return
	}
	msgs, err := h.svc.GetMessages(c.Request.Context(), t.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type updateStatusRequest struct {
	Status model.TicketStatus `json:"status" binding:"required"`
}

func (h *TicketHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if _, ok := h.load(c); !ok {
		return
	}
	t, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.broadcast != nil {
		h.broadcast.BroadcastTicket(t)
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) AvailableCoaches(c *gin.Context) {
	coaches, err := h.svc.GetAvailableCoaches(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coaches": coaches})
}

// load fetches the :id ticket and checks the caller may see it.
func (h *TicketHandler) load(c *gin.Context) (*model.Ticket, bool) {
	id, _ := auth.IdentityFrom(c)
	t, err := h.svc.GetTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if !id.CanAccess(t) {
		writeError(c, errs.ErrForbidden)
		return nil, false
	}
	return t, true
}
