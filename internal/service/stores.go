package service

import (
	"context"
	"time"

	"github.com/incubator-platform/support-chat/internal/model"
)

// TicketStore persists tickets and chat messages.
type TicketStore interface {
	CreateTicket(ctx context.Context, t *model.Ticket) error
	// GetTicket returns the ticket with messages (ascending) and coach loaded.
	GetTicket(ctx context.Context, id string) (*model.Ticket, error)
	ListTicketsByUser(ctx context.Context, userID string) ([]model.Ticket, error)
	ListTicketsByCoach(ctx context.Context, coachID string) ([]model.Ticket, error)
	ListTickets(ctx context.Context, filter map[string]any, limit, offset int) ([]model.Ticket, int64, error)
	// UpdateOpenTicket applies changes only while the ticket is not closed.
	// It reports false when the ticket exists but is closed.
	UpdateOpenTicket(ctx context.Context, id string, changes map[string]any) (bool, error)
	TransitionStatus(ctx context.Context, id string, from, to model.TicketStatus, at time.Time) (bool, error)
	CreateMessage(ctx context.Context, m *model.ChatMessage) error
	ListMessages(ctx context.Context, ticketID string) ([]model.ChatMessage, error)
	MarkMessagesRead(ctx context.Context, ticketID, readerID string) (int64, error)
}

// CoachDirectory lists coaches eligible for assignment.
type CoachDirectory interface {
	ListAvailable(ctx context.Context) ([]model.Coach, error)
}

// CoachSelector picks the coach for a ticket among the available ones.
// It returns nil when none fits.
type CoachSelector interface {
	Select(ctx context.Context, t *model.Ticket, coaches []model.Coach) *model.Coach
}

// FirstAvailable takes the first coach of the directory listing.
type FirstAvailable struct{}

func (FirstAvailable) Select(_ context.Context, _ *model.Ticket, coaches []model.Coach) *model.Coach {
	if len(coaches) == 0 {
		return nil
	}
	c := coaches[0]
	return &c
}
