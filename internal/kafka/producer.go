package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/incubator-platform/support-chat/internal/model"
)

const (
	EventTicketCreated       = "ticket.created"
	EventTicketUpdated       = "ticket.updated"
	EventTicketMessageAdded  = "ticket.message_added"
	EventTicketAssigned      = "ticket.assigned"
	EventTicketStatusChanged = "ticket.status_changed"
	EventTicketClosed        = "ticket.closed"
)

// TicketEventProducer is the seam the support service publishes through;
// tests substitute a recorder.
type TicketEventProducer interface {
	ProduceTicketEvent(ctx context.Context, event string, t *model.Ticket)
}

// TicketEvent is the message body written to the ticket topic.
type TicketEvent struct {
	Event    string    `json:"event"`
	TicketID string    `json:"ticket_id"`
	UserID   string    `json:"user_id"`
	CoachID  string    `json:"coach_id,omitempty"`
	Title    string    `json:"title"`
	Category string    `json:"category,omitempty"`
	Status   string    `json:"status"`
	Priority string    `json:"priority"`
	At       time.Time `json:"at"`
}

func NewTicketEvent(event string, t *model.Ticket) TicketEvent {
	ev := TicketEvent{
		Event:    event,
		TicketID: t.ID,
		UserID:   t.UserID,
		Title:    t.Title,
		Category: t.Category,
		Status:   string(t.Status),
		Priority: string(t.Priority),
		At:       t.UpdatedAt,
	}
	if t.CoachID != nil {
		ev.CoachID = *t.CoachID
	}
	return ev
}

// Producer writes ticket events to a Kafka topic (best effort, never blocks the caller's result).
type Producer struct {
	writer *kafka.Writer
	topic  string
	log    *zap.Logger
}

// NewProducer returns a producer. With no brokers or no topic every method is a no-op.
func NewProducer(brokers []string, topic string, log *zap.Logger) *Producer {
	if len(brokers) == 0 || topic == "" {
		return &Producer{log: log}
	}
	return &Producer{
		topic: topic,
		log:   log,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Producer) Enabled() bool { return p.writer != nil }

// ProduceTicketEvent keys messages by ticket id so a ticket's events stay ordered within a partition.
func (p *Producer) ProduceTicketEvent(ctx context.Context, event string, t *model.Ticket) {
	if p.writer == nil || t == nil {
		return
	}
	body, err := json.Marshal(NewTicketEvent(event, t))
	if err != nil {
		p.log.Error("kafka: marshal ticket event", zap.Error(err))
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(t.ID), Value: body}); err != nil {
		p.log.Warn("kafka: write ticket event", zap.String("event", event), zap.String("ticket_id", t.ID), zap.Error(err))
	}
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
