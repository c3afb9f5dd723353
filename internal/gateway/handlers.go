package gateway

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/incubator-platform/support-chat/internal/auth"
	"github.com/incubator-platform/support-chat/internal/errs"
	"github.com/incubator-platform/support-chat/internal/model"
	"github.com/incubator-platform/support-chat/internal/service"
)

const noCoachMessage = "Aucun coach n'est disponible pour le moment. Nous revenons vers vous dès que possible."

func (s *Server) authorize(ctx context.Context, c *Client, ticketID string) (*model.Ticket, error) {
	t, err := s.svc.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !c.Identity().CanAccess(t) {
		return nil, errs.ErrForbidden
	}
	return t, nil
}

func senderType(id auth.Identity) model.SenderType {
	if id.Role == auth.RoleUser {
		return model.SenderUser
	}
	return model.SenderCoach
}

func (s *Server) createTicket(ctx context.Context, c *Client, req Request) (any, error) {
	in, err := decode[CreateTicketRequest](s, req)
	if err != nil {
		return nil, err
	}
	t, err := s.svc.CreateTicket(ctx, service.CreateTicketInput{
		UserID:         c.UserID(),
		Title:          in.Title,
		Description:    in.Description,
		Category:       in.Category,
		Priority:       in.Priority,
		InitialMessage: in.InitialMessage,
	})
	if err != nil {
		return nil, err
	}
	s.hub.Join(c, t.ID)
	s.hub.Broadcast(Frame{Type: EventNewTicketAvailable, Data: TicketEvent{TicketID: t.ID, Ticket: t}}, func(o *Client) bool {
		return o.Identity().IsCoach()
	})
	return TicketResult{Result: succeeded, Ticket: t}, nil
}

func (s *Server) sendMessage(ctx context.Context, c *Client, req Request) (any, error) {
	in, err := decode[SendMessageRequest](s, req)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, c, in.TicketID); err != nil {
		return nil, err
	}
	res, err := s.svc.AddMessage(ctx, service.AddMessageInput{
		TicketID:    in.TicketID,
		SenderID:    c.UserID(),
		SenderType:  senderType(c.Identity()),
		Content:     in.Content,
		MessageType: in.MessageType,
	})
	if err != nil {
		return nil, err
	}
	s.hub.BroadcastRoom(in.TicketID, Frame{Type: EventNewMessage, Data: NewMessageEvent{TicketID: in.TicketID, Message: res.Message}}, nil)

	if res.Promoted && !res.Ticket.HasCoach() {
		s.botReply(ctx, res.Ticket, in.Content)
	}
	return MessageResult{Result: succeeded, Message: res.Message}, nil
}

// botReply answers the first user message of a ticket nobody handles yet.
// Failures are logged; the user's message already went through.
func (s *Server) botReply(ctx context.Context, t *model.Ticket, content string) {
	reply := s.svc.BotResponse(content, t.Category)
	res, err := s.svc.AddMessage(ctx, service.AddMessageInput{
		TicketID:   t.ID,
		SenderID:   model.SystemSenderID,
		SenderType: model.SenderBot,
		Content:    reply.Text,
	})
	if err != nil {
		s.log.Warn("bot reply failed", zap.String("ticket_id", t.ID), zap.Error(err))
		return
	}
	s.log.Info("bot replied", zap.String("ticket_id", t.ID), zap.String("rule", string(reply.Rule)), zap.Bool("priority", reply.Priority))
	s.hub.BroadcastRoom(t.ID, Frame{Type: EventNewMessage, Data: NewMessageEvent{TicketID: t.ID, Message: res.Message}}, nil)
}

func (s *Server) assignCoach(ctx context.Context, c *Client, req Request) (any, error) {
	in, err := decode[AssignCoachRequest](s, req)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, c, in.TicketID); err != nil {
		return nil, err
	}
	res, err := s.svc.AssignCoach(ctx, in.TicketID, in.CoachID)
	if err != nil {
		return nil, err
	}
	if !res.Assigned {
		return nil, errs.ErrNoCoachAvailable
	}
	s.announceAssignment(res)
	return AssignResult{Result: succeeded, Ticket: res.Ticket, CoachID: res.CoachID}, nil
}

func (s *Server) requestHumanCoach(ctx context.Context, c *Client, req Request) (any, error) {
	in, err := decode[TicketRequest](s, req)
	if err != nil {
		return nil, err
	}
	t, err := s.authorize(ctx, c, in.TicketID)
	if err != nil {
		return nil, err
	}
	if t.UserID != c.UserID() && !c.Identity().IsAdmin() {
		return nil, errs.ErrForbidden
	}
	res, err := s.svc.AssignCoach(ctx, in.TicketID, "")
	if err != nil {
		return nil, err
	}
	if !res.Assigned {
		c.Send(Frame{Type: EventNoCoachAvailable, Data: NoCoachEvent{TicketID: in.TicketID, Message: noCoachMessage}})
		return AssignResult{Result: Result{Success: false, Error: errs.ErrNoCoachAvailable.Error()}}, nil
	}
	s.announceAssignment(res)
	return AssignResult{Result: succeeded, Ticket: res.Ticket, CoachID: res.CoachID}, nil
}

// announceAssignment joins the coach's live socket to the room, tells the
// coach and then the room.
func (s *Server) announceAssignment(res *service.AssignResult) {
	t := res.Ticket
	if coach, online := s.hub.Client(res.CoachID); online && s.hub.Join(coach, t.ID) {
		coach.Send(Frame{Type: EventTicketAssigned, Data: TicketEvent{TicketID: t.ID, Ticket: t}})
		if t.Priority == model.PriorityUrgent {
			coach.Send(Frame{Type: EventUrgentTicketAssigned, Data: TicketEvent{TicketID: t.ID, Ticket: t}})
		}
	}
	s.hub.BroadcastRoom(t.ID, Frame{Type: EventCoachAssigned, Data: CoachAssignedEvent{TicketID: t.ID, CoachID: res.CoachID, Ticket: t}}, nil)
}

func (s *Server) markMessagesRead(ctx context.Context, c *Client, req Request) (any, error) {
	in, err := decode[TicketRequest](s, req)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, c, in.TicketID); err != nil {
		return nil, err
	}
	n, err := s.svc.MarkMessagesRead(ctx, in.TicketID, c.UserID())
	if err != nil {
		return nil, err
	}
	s.hub.BroadcastRoom(in.TicketID, Frame{Type: EventMessagesRead, Data: MessagesReadEvent{TicketID: in.TicketID, ReaderID: c.UserID(), Count: n}}, nil)
	return MarkReadResult{Result: succeeded, Count: n}, nil
}

// coachTyping relays to the room without touching the store. Only room
// members may signal.
func (s *Server) coachTyping(_ context.Context, c *Client, req Request) (any, error) {
	in, err := decode[TypingRequest](s, req)
	if err != nil {
		return nil, err
	}
	if !s.hub.InRoom(c, in.TicketID) {
		return nil, errs.ErrForbidden
	}
	s.hub.BroadcastRoom(in.TicketID, Frame{Type: EventUserTyping, Data: TypingEvent{TicketID: in.TicketID, UserID: c.UserID(), IsTyping: in.IsTyping}}, c)
	return nil, nil
}

func (s *Server) getOnlineCoaches(ctx context.Context, _ *Client, _ Request) (any, error) {
	coaches, err := s.onlineCoaches(ctx)
	if err != nil {
		return nil, err
	}
	return CoachesResult{Result: succeeded, Coaches: coaches}, nil
}

// onlineCoaches is the coach directory filtered by live presence.
func (s *Server) onlineCoaches(ctx context.Context) ([]model.Coach, error) {
	all, err := s.svc.GetAvailableCoaches(ctx)
	if err != nil {
		return nil, err
	}
	out := []model.Coach{}
	for _, coach := range all {
		if s.hub.IsOnline(coach.ID) {
			out = append(out, coach)
		}
	}
	return out, nil
}

func (s *Server) closeTicket(ctx context.Context, c *Client, req Request) (any, error) {
	in, err := decode[TicketRequest](s, req)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, c, in.TicketID); err != nil {
		return nil, err
	}
	t, err := s.svc.CloseTicket(ctx, in.TicketID)
	if err != nil {
		return nil, err
	}
	s.hub.BroadcastRoom(t.ID, Frame{Type: EventTicketClosed, Data: TicketEvent{TicketID: t.ID, Ticket: t}}, nil)
	return TicketResult{Result: succeeded, Ticket: t}, nil
}

func (s *Server) joinTicket(ctx context.Context, c *Client, req Request) (any, error) {
	in, err := decode[TicketRequest](s, req)
	if err != nil {
		return nil, err
	}
	t, err := s.authorize(ctx, c, in.TicketID)
	if err != nil {
		return nil, err
	}
	s.hub.Join(c, t.ID)
	return TicketResult{Result: succeeded, Ticket: t}, nil
}

func (s *Server) getMessages(ctx context.Context, c *Client, req Request) (any, error) {
	in, err := decode[TicketRequest](s, req)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, c, in.TicketID); err != nil {
		return nil, err
	}
	msgs, err := s.svc.GetMessages(ctx, in.TicketID)
	if err != nil {
		return nil, err
	}
	return MessagesResult{Result: succeeded, Messages: msgs}, nil
}

func (s *Server) updateTicketStatus(ctx context.Context, c *Client, req Request) (any, error) {
	in, err := decode[UpdateStatusRequest](s, req)
	if err != nil {
		return nil, err
	}
	if c.Identity().Role == auth.RoleUser {
		return nil, errs.ErrForbidden
	}
	if _, err := s.authorize(ctx, c, in.TicketID); err != nil {
		return nil, err
	}
	t, err := s.svc.UpdateStatus(ctx, in.TicketID, in.Status)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidStatus) {
			return nil, errs.Invalid("invalid status %q", in.Status)
		}
		return nil, err
	}
	s.BroadcastTicket(t)
	return TicketResult{Result: succeeded, Ticket: t}, nil
}
