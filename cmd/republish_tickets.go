package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/incubator-platform/support-chat/internal/database"
	"github.com/incubator-platform/support-chat/internal/kafka"
	"github.com/incubator-platform/support-chat/internal/repository"
)

var republishTicketsCmd = &cobra.Command{
	Use:   "republish-tickets",
	Short: "Publish a ticket.updated event for every stored ticket so consumers can rebuild their views",
	RunE:  runRepublishTickets,
}

var republishBatch int

func init() {
	republishTicketsCmd.Flags().IntVar(&republishBatch, "batch", 200, "tickets loaded per page")
}

func runRepublishTickets(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if cfg.StoreDriver != "postgres" {
		return fmt.Errorf("republish-tickets: needs DB_DRIVER=postgres, got %q", cfg.StoreDriver)
	}
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket, log)
	if !producer.Enabled() {
		return errors.New("republish-tickets: KAFKA_BROKERS is not set")
	}
	defer producer.Close()

	conn, err := database.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	repo := repository.NewTicketRepository(conn)

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	if republishBatch <= 0 {
		republishBatch = 200
	}
	sent := 0
	for offset := 0; ; offset += republishBatch {
		tickets, total, err := repo.ListTickets(ctx, nil, republishBatch, offset)
		if err != nil {
			return fmt.Errorf("list tickets: %w", err)
		}
		for i := range tickets {
			producer.ProduceTicketEvent(ctx, kafka.EventTicketUpdated, &tickets[i])
		}
		sent += len(tickets)
		log.Info("republish-tickets: progress", zap.Int("sent", sent), zap.Int64("total", total))
		if len(tickets) < republishBatch || int64(sent) >= total {
			break
		}
	}
	log.Info("republish-tickets: done", zap.Int("sent", sent))
	return nil
}
