package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"kasirinaja/backoffice/internal/observer"
)

const eventVersion = 1

// messageWriter is the part of *kafka.Writer the notifier needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Notifier publishes rendered notifications as JSON to a Kafka topic, keyed
// by entity id so every change to one entity lands on the same partition.
type Notifier struct {
	logger *zap.Logger
	writer messageWriter
	topic  string
}

var _ observer.Notifier = (*Notifier)(nil)

func NewNotifier(logger *zap.Logger, brokers []string, topic string) *Notifier {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return newNotifier(logger, writer, topic)
}

func newNotifier(logger *zap.Logger, writer messageWriter, topic string) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{logger: logger, writer: writer, topic: topic}
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

type notificationMessage struct {
	EventID       string    `json:"event_id"`
	EventVersion  int       `json:"event_version"`
	SourceEventID string    `json:"source_event_id"`
	EventType     string    `json:"event_type"`
	Entity        string    `json:"entity"`
	EntityID      string    `json:"entity_id"`
	Message       string    `json:"message"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (n *Notifier) Send(ctx context.Context, notification observer.Notification) error {
	occurredAt := notification.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(notificationMessage{
		EventID:       uuid.New().String(),
		EventVersion:  eventVersion,
		SourceEventID: notification.EventID,
		EventType:     notification.Entity + "." + notification.EventType,
		Entity:        notification.Entity,
		EntityID:      notification.EntityID,
		Message:       notification.Message,
		OccurredAt:    occurredAt,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(notification.EntityID),
		Value: value,
	}
	if err := n.writer.WriteMessages(ctx, message); err != nil {
		n.logger.Error("failed to publish notification",
			zap.Error(err),
			zap.String("topic", n.topic),
			zap.String("entity_id", notification.EntityID),
		)
		return fmt.Errorf("publish notification: %w", err)
	}

	n.logger.Debug("notification published",
		zap.String("topic", n.topic),
		zap.String("event_type", notification.EventType),
		zap.String("entity_id", notification.EntityID),
	)
	return nil
}
