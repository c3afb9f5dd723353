package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/incubator-platform/support-chat/internal/bot"
	"github.com/incubator-platform/support-chat/internal/errs"
	"github.com/incubator-platform/support-chat/internal/kafka"
	"github.com/incubator-platform/support-chat/internal/model"
)

const (
	msgTicketOpened  = "Merci pour votre demande. Un coach va la prendre en charge très prochainement."
	msgCoachAssigned = "Un coach a été assigné à votre ticket : %s."
	msgTicketClosed  = "Ce ticket a été fermé. N'hésitez pas à en ouvrir un nouveau si besoin."
	msgStatusChanged = "Le statut du ticket est passé à « %s »."
)

// SupportChat is what the gateway and the REST handlers depend on.
type SupportChat interface {
	CreateTicket(ctx context.Context, in CreateTicketInput) (*model.Ticket, error)
	AddMessage(ctx context.Context, in AddMessageInput) (*AddMessageResult, error)
	AssignCoach(ctx context.Context, ticketID, coachID string) (*AssignResult, error)
	CloseTicket(ctx context.Context, ticketID string) (*model.Ticket, error)
	UpdateStatus(ctx context.Context, ticketID string, status model.TicketStatus) (*model.Ticket, error)
	MarkMessagesRead(ctx context.Context, ticketID, readerID string) (int64, error)
	BotResponse(message, category string) bot.Reply
	GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error)
	GetUserTickets(ctx context.Context, userID string) ([]model.Ticket, error)
	GetCoachTickets(ctx context.Context, coachID string) ([]model.Ticket, error)
	GetMessages(ctx context.Context, ticketID string) ([]model.ChatMessage, error)
	GetAvailableCoaches(ctx context.Context) ([]model.Coach, error)
	ListTickets(ctx context.Context, filter map[string]any, limit, offset int) ([]model.Ticket, int64, error)
}

type CreateTicketInput struct {
	UserID         string
	Title          string
	Description    string
	Category       string
	Priority       model.TicketPriority
	InitialMessage string
}

type AddMessageInput struct {
	TicketID    string
	SenderID    string
	SenderType  model.SenderType
	Content     string
	MessageType model.MessageType
}

type AddMessageResult struct {
	Message *model.ChatMessage
	// Promoted is true when this message moved the ticket from open to assigned.
	Promoted bool
	Ticket   *model.Ticket
}

type AssignResult struct {
	Ticket  *model.Ticket
	CoachID string
	// Assigned is false when no coach could be resolved; the ticket is then unchanged.
	Assigned bool
}

type Option func(*SupportService)

func WithSelector(s CoachSelector) Option { return func(svc *SupportService) { svc.selector = s } }

func WithProducer(p kafka.TicketEventProducer) Option {
	return func(svc *SupportService) { svc.producer = p }
}

func WithClock(now func() time.Time) Option { return func(svc *SupportService) { svc.now = now } }

func WithLogger(l *zap.Logger) Option { return func(svc *SupportService) { svc.log = l } }

// SupportService owns ticket and message mutation semantics.
type SupportService struct {
	store    TicketStore
	coaches  CoachDirectory
	selector CoachSelector
	producer kafka.TicketEventProducer
	bot      bot.Responder
	now      func() time.Time
	log      *zap.Logger
}

func NewSupportService(store TicketStore, coaches CoachDirectory, opts ...Option) *SupportService {
	s := &SupportService{
		store:    store,
		coaches:  coaches,
		selector: FirstAvailable{},
		now:      func() time.Time { return time.Now().UTC() },
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *SupportService) CreateTicket(ctx context.Context, in CreateTicketInput) (*model.Ticket, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.UserID == "" {
		return nil, errs.Invalid("user id is required")
	}
	if in.Title == "" {
		return nil, errs.Invalid("title is required")
	}
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, errs.Invalid("invalid priority %q", in.Priority)
	}
	now := s.now()
	t := &model.Ticket{
		UserID:      in.UserID,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Status:      model.TicketStatusOpen,
		Priority:    in.Priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTicket(ctx, t); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	if strings.TrimSpace(in.InitialMessage) != "" {
		if err := s.store.CreateMessage(ctx, &model.ChatMessage{
			TicketID:    t.ID,
			SenderID:    in.UserID,
			SenderType:  model.SenderUser,
			Content:     in.InitialMessage,
			MessageType: model.MessageText,
			CreatedAt:   now,
		}); err != nil {
			return nil, fmt.Errorf("create initial message: %w", err)
		}
	}
	if err := s.appendSystem(ctx, t.ID, msgTicketOpened); err != nil {
		return nil, err
	}
	full, err := s.store.GetTicket(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	s.publish(kafka.EventTicketCreated, full)
	return full, nil
}

// AddMessage stores a message and touches the ticket. A user message on an
// open ticket moves it to assigned, whether or not a coach exists.
func (s *SupportService) AddMessage(ctx context.Context, in AddMessageInput) (*AddMessageResult, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, errs.Invalid("content is required")
	}
	if in.MessageType == "" {
		in.MessageType = model.MessageText
	}
	if !in.MessageType.Valid() {
		return nil, errs.Invalid("invalid message type %q", in.MessageType)
	}
	t, err := s.store.GetTicket(ctx, in.TicketID)
	if err != nil {
		return nil, err
	}
	if t.IsClosed() {
		return nil, errs.ErrTicketClosed
	}
	now := s.now()
	applied, err := s.store.UpdateOpenTicket(ctx, t.ID, map[string]any{"updated_at": now})
	if err != nil {
		return nil, fmt.Errorf("touch ticket: %w", err)
	}
	if !applied {
		return nil, errs.ErrTicketClosed
	}
	m := &model.ChatMessage{
		TicketID:    t.ID,
		SenderID:    in.SenderID,
		SenderType:  in.SenderType,
		Content:     in.Content,
		MessageType: in.MessageType,
		CreatedAt:   now,
	}
	if err := s.store.CreateMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	res := &AddMessageResult{Message: m, Ticket: t}
	if in.SenderType == model.SenderUser && t.Status == model.TicketStatusOpen {
		promoted, err := s.store.TransitionStatus(ctx, t.ID, model.TicketStatusOpen, model.TicketStatusAssigned, now)
		if err != nil {
			return nil, fmt.Errorf("promote ticket: %w", err)
		}
		if promoted {
			res.Promoted = true
			t.Status = model.TicketStatusAssigned
		}
	}
	t.UpdatedAt = now
	s.publish(kafka.EventTicketMessageAdded, t)
	return res, nil
}

// AssignCoach sets the ticket coach. With an empty coachID the selector
// picks from the directory; when nothing resolves the ticket is returned
// unchanged with Assigned=false.
func (s *SupportService) AssignCoach(ctx context.Context, ticketID, coachID string) (*AssignResult, error) {
	t, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.IsClosed() {
		return nil, errs.ErrTicketClosed
	}
	coaches, err := s.coaches.ListAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list coaches: %w", err)
	}
	var c *model.Coach
	if coachID == "" {
		c = s.selector.Select(ctx, t, coaches)
	} else {
		c = findCoach(coaches, coachID)
	}
	if c == nil {
		s.log.Info("no coach resolvable", zap.String("ticket_id", t.ID), zap.String("requested", coachID))
		return &AssignResult{Ticket: t}, nil
	}
	applied, err := s.store.UpdateOpenTicket(ctx, t.ID, map[string]any{
		"coach_id":   c.ID,
		"status":     model.TicketStatusAssigned,
		"updated_at": s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("assign coach: %w", err)
	}
	if !applied {
		return nil, errs.ErrTicketClosed
	}
	if err := s.appendSystem(ctx, t.ID, fmt.Sprintf(msgCoachAssigned, c.Name)); err != nil {
		return nil, err
	}
	full, err := s.store.GetTicket(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	s.publish(kafka.EventTicketAssigned, full)
	return &AssignResult{Ticket: full, CoachID: c.ID, Assigned: true}, nil
}

// findCoach resolves an explicit coach id against the directory listing.
func findCoach(coaches []model.Coach, id string) *model.Coach {
	for i := range coaches {
		if coaches[i].ID == id {
			c := coaches[i]
			return &c
		}
	}
	return nil
}

// CloseTicket is idempotent: closing a closed ticket returns it unchanged.
func (s *SupportService) CloseTicket(ctx context.Context, ticketID string) (*model.Ticket, error) {
	t, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.IsClosed() {
		return t, nil
	}
	now := s.now()
	applied, err := s.store.UpdateOpenTicket(ctx, t.ID, map[string]any{
		"status":     model.TicketStatusClosed,
		"closed_at":  now,
		"updated_at": now,
	})
	if err != nil {
		return nil, fmt.Errorf("close ticket: %w", err)
	}
	if !applied {
		// Closed concurrently; the other close wrote the system message.
		return s.store.GetTicket(ctx, t.ID)
	}
	if err := s.appendSystem(ctx, t.ID, msgTicketClosed); err != nil {
		return nil, err
	}
	full, err := s.store.GetTicket(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	s.publish(kafka.EventTicketClosed, full)
	return full, nil
}

func (s *SupportService) UpdateStatus(ctx context.Context, ticketID string, status model.TicketStatus) (*model.Ticket, error) {
	if !status.Valid() {
		return nil, errs.ErrInvalidStatus
	}
	if status == model.TicketStatusClosed {
		return s.CloseTicket(ctx, ticketID)
	}
	t, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.IsClosed() {
		return nil, errs.ErrTicketClosed
	}
	if t.Status == status {
		return t, nil
	}
	applied, err := s.store.UpdateOpenTicket(ctx, t.ID, map[string]any{"status": status, "updated_at": s.now()})
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if !applied {
		return nil, errs.ErrTicketClosed
	}
	if err := s.appendSystem(ctx, t.ID, fmt.Sprintf(msgStatusChanged, status)); err != nil {
		return nil, err
	}
	full, err := s.store.GetTicket(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	s.publish(kafka.EventTicketStatusChanged, full)
	return full, nil
}

func (s *SupportService) MarkMessagesRead(ctx context.Context, ticketID, readerID string) (int64, error) {
	if _, err := s.store.GetTicket(ctx, ticketID); err != nil {
		return 0, err
	}
	return s.store.MarkMessagesRead(ctx, ticketID, readerID)
}

func (s *SupportService) BotResponse(message, category string) bot.Reply {
	return s.bot.Respond(message, category)
}

func (s *SupportService) GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error) {
	return s.store.GetTicket(ctx, ticketID)
}

func (s *SupportService) GetUserTickets(ctx context.Context, userID string) ([]model.Ticket, error) {
	return s.store.ListTicketsByUser(ctx, userID)
}

func (s *SupportService) GetCoachTickets(ctx context.Context, coachID string) ([]model.Ticket, error) {
	return s.store.ListTicketsByCoach(ctx, coachID)
}

func (s *SupportService) GetMessages(ctx context.Context, ticketID string) ([]model.ChatMessage, error) {
	if _, err := s.store.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, ticketID)
}

func (s *SupportService) GetAvailableCoaches(ctx context.Context) ([]model.Coach, error) {
	return s.coaches.ListAvailable(ctx)
}

func (s *SupportService) ListTickets(ctx context.Context, filter map[string]any, limit, offset int) ([]model.Ticket, int64, error) {
	return s.store.ListTickets(ctx, filter, limit, offset)
}

func (s *SupportService) appendSystem(ctx context.Context, ticketID, content string) error {
	err := s.store.CreateMessage(ctx, &model.ChatMessage{
		TicketID:    ticketID,
		SenderID:    model.SystemSenderID,
		SenderType:  model.SenderSystem,
		Content:     content,
		MessageType: model.MessageSystem,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return fmt.Errorf("create system message: %w", err)
	}
	return nil
}

// publish is fire-and-forget: the event must go out even if the request
// context is cancelled, but with its own timeout.
func (s *SupportService) publish(event string, t *model.Ticket) {
	if s.producer == nil || t == nil {
		return
	}
	snapshot := *t
	snapshot.Messages = nil
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.producer.ProduceTicketEvent(ctx, event, &snapshot)
	}()
}
