package gateway

import (
	"encoding/json"

	"github.com/incubator-platform/support-chat/internal/model"
)

// Client requests.
const (
	RPCCreateTicket       = "create_ticket"
	RPCSendMessage        = "send_message"
	RPCAssignCoach        = "assign_coach"
	RPCRequestHumanCoach  = "request_human_coach"
	RPCMarkMessagesRead   = "mark_messages_read"
	RPCCoachTyping        = "coach_typing"
	RPCGetOnlineCoaches   = "get_online_coaches"
	RPCCloseTicket        = "close_ticket"
	RPCJoinTicket         = "join_ticket"
	RPCGetMessages        = "get_messages"
	RPCUpdateTicketStatus = "update_ticket_status"
)

// Server pushed events.
const (
	EventConnected            = "connected"
	EventOnlineCoaches        = "online_coaches"
	EventCoachStatusChanged   = "coach_status_changed"
	EventNewTicketAvailable   = "new_ticket_available"
	EventNewMessage           = "new_message"
	EventTicketAssigned       = "ticket_assigned"
	EventUrgentTicketAssigned = "urgent_ticket_assigned"
	EventCoachAssigned        = "coach_assigned"
	EventTicketClosed         = "ticket_closed"
	EventTicketStatusChanged  = "ticket_status_changed"
	EventMessagesRead         = "messages_read"
	EventUserTyping           = "user_typing"
	EventUserLeft             = "user_left"
	EventNoCoachAvailable     = "no_coach_available"
	EventError                = "error"
)

// Request is a client frame. ID is echoed back on the reply.
type Request struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Frame is a server frame: a reply when ID is set, an event otherwise.
type Frame struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`
	Data any    `json:"data"`
}

type CreateTicketRequest struct {
	Title          string               `json:"title" validate:"required,max=255"`
	Description    string               `json:"description" validate:"max=10000"`
	Category       string               `json:"category" validate:"max=64"`
	Priority       model.TicketPriority `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	InitialMessage string               `json:"initial_message" validate:"max=10000"`
}

type SendMessageRequest struct {
	TicketID    string            `json:"ticket_id" validate:"required"`
	Content     string            `json:"content" validate:"required,max=10000"`
	MessageType model.MessageType `json:"message_type" validate:"omitempty,oneof=text file"`
}

type AssignCoachRequest struct {
	TicketID string `json:"ticket_id" validate:"required"`
	CoachID  string `json:"coach_id"`
}

// TicketRequest carries only a ticket id.
type TicketRequest struct {
	TicketID string `json:"ticket_id" validate:"required"`
}

type TypingRequest struct {
	TicketID string `json:"ticket_id" validate:"required"`
	IsTyping bool   `json:"is_typing"`
}

type UpdateStatusRequest struct {
	TicketID string             `json:"ticket_id" validate:"required"`
	Status   model.TicketStatus `json:"status" validate:"required,oneof=open assigned in_progress resolved closed"`
}

type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

var succeeded = Result{Success: true}

type TicketResult struct {
	Result
	Ticket *model.Ticket `json:"ticket,omitempty"`
}

type MessageResult struct {
	Result
	Message *model.ChatMessage `json:"message,omitempty"`
}

type AssignResult struct {
	Result
	Ticket  *model.Ticket `json:"ticket,omitempty"`
	CoachID string        `json:"coachId,omitempty"`
}

type CoachesResult struct {
	Result
	Coaches []model.Coach `json:"coaches"`
}

type MessagesResult struct {
	Result
	Messages []model.ChatMessage `json:"messages"`
}

type MarkReadResult struct {
	Result
	Count int64 `json:"count"`
}

type ConnectedEvent struct {
	UserID  string         `json:"user_id"`
	Role    string         `json:"role"`
	Tickets []model.Ticket `json:"tickets"`
}

type OnlineCoachesEvent struct {
	Coaches []model.Coach `json:"coaches"`
}

type CoachStatusEvent struct {
	CoachID string `json:"coach_id"`
	Online  bool   `json:"online"`
}

type TicketEvent struct {
	TicketID string        `json:"ticket_id"`
	Ticket   *model.Ticket `json:"ticket,omitempty"`
}

type NewMessageEvent struct {
	TicketID string             `json:"ticket_id"`
	Message  *model.ChatMessage `json:"message"`
}

type CoachAssignedEvent struct {
	TicketID string        `json:"ticket_id"`
	CoachID  string        `json:"coach_id"`
	Ticket   *model.Ticket `json:"ticket"`
}

type MessagesReadEvent struct {
	TicketID string `json:"ticket_id"`
	ReaderID string `json:"reader_id"`
	Count    int64  `json:"count"`
}

type TypingEvent struct {
	TicketID string `json:"ticket_id"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type UserLeftEvent struct {
	TicketID string `json:"ticket_id"`
	UserID   string `json:"user_id"`
}

type NoCoachEvent struct {
	TicketID string `json:"ticket_id"`
	Message  string `json:"message"`
}

type ErrorEvent struct {
	RequestID string `json:"request_id,omitempty"`
	Request   string `json:"request,omitempty"`
	Message   string `json:"message"`
}
