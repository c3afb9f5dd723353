package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/incubator-platform/support-chat/internal/errs"
	"github.com/incubator-platform/support-chat/internal/model"
)

// MemoryStore keeps tickets, messages and coaches in process memory. It
// backs DB_DRIVER=memory for local runs and the package tests.
type MemoryStore struct {
	mu       sync.RWMutex
	tickets  map[string]*model.Ticket
	messages map[string][]model.ChatMessage
	coaches  []model.Coach
	seq      int64
}

func NewMemoryStore(coaches ...model.Coach) *MemoryStore {
	return &MemoryStore{
		tickets:  make(map[string]*model.Ticket),
		messages: make(map[string][]model.ChatMessage),
		coaches:  append([]model.Coach(nil), coaches...),
	}
}

func (s *MemoryStore) ListAvailable(_ context.Context) ([]model.Coach, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Coach
	for _, c := range s.coaches {
		if c.Available {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateTicket(_ context.Context, t *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, ok := s.tickets[t.ID]; ok {
		return fmt.Errorf("ticket %s already exists", t.ID)
	}
	cp := *t
	cp.Messages = nil
	cp.Coach = nil
	s.tickets[t.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTicket(_ context.Context, id string) (*model.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, errs.ErrTicketNotFound
	}
	out := s.loadLocked(t)
	out.Messages = s.sortedMessagesLocked(id)
	return out, nil
}

func (s *MemoryStore) ListTicketsByUser(_ context.Context, userID string) ([]model.Ticket, error) {
	return s.filter(func(t *model.Ticket) bool { return t.UserID == userID }), nil
}

func (s *MemoryStore) ListTicketsByCoach(_ context.Context, coachID string) ([]model.Ticket, error) {
	return s.filter(func(t *model.Ticket) bool {
		return t.CoachID != nil && *t.CoachID == coachID && !t.IsClosed()
	}), nil
}

// ListTickets understands the "<column> = ?" filter keys the REST layer builds.
func (s *MemoryStore) ListTickets(_ context.Context, filter map[string]any, limit, offset int) ([]model.Ticket, int64, error) {
	items := s.filter(func(t *model.Ticket) bool {
		for k, v := range filter {
			col := strings.TrimSpace(strings.TrimSuffix(k, "= ?"))
			want := fmt.Sprint(v)
			switch col {
			case "user_id":
				if t.UserID != want {
					return false
				}
			case "coach_id":
				if t.CoachID == nil || *t.CoachID != want {
					return false
				}
			case "status":
				if string(t.Status) != want {
					return false
				}
			case "priority":
				if string(t.Priority) != want {
					return false
				}
			case "category":
				if t.Category != want {
					return false
				}
			}
		}
		return true
	})
	total := int64(len(items))
	if offset > 0 {
		if offset >= len(items) {
			return []model.Ticket{}, total, nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, total, nil
}

func (s *MemoryStore) UpdateOpenTicket(_ context.Context, id string, changes map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return false, errs.ErrTicketNotFound
	}
	if t.IsClosed() {
		return false, nil
	}
	return true, applyChanges(t, changes)
}

func applyChanges(t *model.Ticket, changes map[string]any) error {
	for k, v := range changes {
		switch k {
		case "status":
			t.Status = model.TicketStatus(fmt.Sprint(v))
		case "priority":
			t.Priority = model.TicketPriority(fmt.Sprint(v))
		case "coach_id":
			c := fmt.Sprint(v)
			t.CoachID = &c
		case "title":
			t.Title = fmt.Sprint(v)
		case "description":
			t.Description = fmt.Sprint(v)
		case "category":
			t.Category = fmt.Sprint(v)
		case "updated_at":
			t.UpdatedAt = v.(time.Time)
		case "closed_at":
			at := v.(time.Time)
			t.ClosedAt = &at
		default:
			return fmt.Errorf("memory store: unsupported column %q", k)
		}
	}
	return nil
}

func (s *MemoryStore) TransitionStatus(_ context.Context, id string, from, to model.TicketStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	t.UpdatedAt = at
	return true, nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, m *model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[m.TicketID]; !ok {
		return errs.ErrTicketNotFound
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	s.seq++
	m.Seq = s.seq
	s.messages[m.TicketID] = append(s.messages[m.TicketID], *m)
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, ticketID string) ([]model.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedMessagesLocked(ticketID), nil
}

func (s *MemoryStore) MarkMessagesRead(_ context.Context, ticketID, readerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	msgs := s.messages[ticketID]
	for i := range msgs {
		if !msgs[i].IsRead && msgs[i].SenderID != readerID {
			msgs[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) filter(keep func(*model.Ticket) bool) []model.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Ticket{}
	for _, t := range s.tickets {
		if keep(t) {
			out = append(out, *s.loadLocked(t))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func (s *MemoryStore) loadLocked(t *model.Ticket) *model.Ticket {
	cp := *t
	if t.CoachID != nil {
		for _, c := range s.coaches {
			if c.ID == *t.CoachID {
				coach := c
				cp.Coach = &coach
				break
			}
		}
	}
	return &cp
}

func (s *MemoryStore) sortedMessagesLocked(ticketID string) []model.ChatMessage {
	out := append([]model.ChatMessage(nil), s.messages[ticketID]...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
