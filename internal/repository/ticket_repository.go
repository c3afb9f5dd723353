package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/incubator-platform/support-chat/internal/errs"
	"github.com/incubator-platform/support-chat/internal/model"
)

// TicketRepository is the gorm-backed ticket and message store.
type TicketRepository struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

func (r *TicketRepository) CreateTicket(ctx context.Context, t *model.Ticket) error {
	return r.db.WithContext(ctx).Omit("Messages", "Coach").Create(t).Error
}

func (r *TicketRepository) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	var t model.Ticket
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, seq ASC") }).
		Preload("Coach").
		First(&t, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TicketRepository) ListTicketsByUser(ctx context.Context, userID string) ([]model.Ticket, error) {
	var items []model.Ticket
	err := r.db.WithContext(ctx).Preload("Coach").
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&items).Error
	return items, err
}

func (r *TicketRepository) ListTicketsByCoach(ctx context.Context, coachID string) ([]model.Ticket, error) {
	var items []model.Ticket
	err := r.db.WithContext(ctx).
		Where("coach_id = ? AND status <> ?", coachID, model.TicketStatusClosed).
		Order("updated_at DESC").
		Find(&items).Error
	return items, err
}

func (r *TicketRepository) ListTickets(ctx context.Context, filter map[string]any, limit, offset int) ([]model.Ticket, int64, error) {
	var items []model.Ticket
	var total int64
	tx := r.db.WithContext(ctx).Model(&model.Ticket{})
	for k, v := range filter {
		tx = tx.Where(k, v)
	}
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if offset > 0 {
		tx = tx.Offset(offset)
	}
	if err := tx.Order("updated_at DESC, id").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UpdateOpenTicket applies changes guarded by status <> closed, so a
// concurrent close cannot be overwritten.
func (r *TicketRepository) UpdateOpenTicket(ctx context.Context, id string, changes map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Ticket{}).
		Where("id = ? AND status <> ?", id, model.TicketStatusClosed).
		Updates(changes)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Ticket{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	if n == 0 {
		return false, errs.ErrTicketNotFound
	}
	return false, nil
}

// TransitionStatus moves a ticket from one status to another only if it
// is still in the from status. It reports whether the row changed.
func (r *TicketRepository) TransitionStatus(ctx context.Context, id string, from, to model.TicketStatus, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Ticket{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *TicketRepository) CreateMessage(ctx context.Context, m *model.ChatMessage) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *TicketRepository) ListMessages(ctx context.Context, ticketID string) ([]model.ChatMessage, error) {
	var items []model.ChatMessage
	err := r.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at ASC, seq ASC").
		Find(&items).Error
	return items, err
}

func (r *TicketRepository) MarkMessagesRead(ctx context.Context, ticketID, readerID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.ChatMessage{}).
		Where("ticket_id = ? AND sender_id <> ? AND is_read = ?", ticketID, readerID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}
