package observer

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kasirinaja/backoffice/internal/domain"
)

// Notification is the user-facing message rendered for one event.
type Notification struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Entity     string    `json:"entity"`
	EntityID   string    `json:"entity_id"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier delivers rendered notifications to their audience.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, notification Notification) error {
	n.logger.Info("notification",
		zap.String("event_type", notification.EventType),
		zap.String("entity_id", notification.EntityID),
		zap.String("message", notification.Message),
	)
	return nil
}

type NotificationObserver struct {
	notifier Notifier
}

func NewNotificationObserver(notifier Notifier) *NotificationObserver {
	return &NotificationObserver{notifier: notifier}
}

func (o *NotificationObserver) Handle(ctx context.Context, event domain.Event) error {
	message := RenderMessage(event)
	if message == "" {
		return nil
	}
	return o.notifier.Send(ctx, Notification{
		EventID:    event.ID,
		EventType:  string(event.Type),
		Entity:     string(event.Entity),
		EntityID:   event.EntityID,
		Message:    message,
		OccurredAt: event.OccurredAt,
	})
}

// RenderMessage returns the operator-facing text for event, or "" when the
// event carries nothing worth announcing.
func RenderMessage(event domain.Event) string {
	switch event.Entity {
	case domain.EntityTransaction:
		return renderTransaction(event)
	case domain.EntityPayment:
		return renderPayment(event)
	default:
		return ""
	}
}

func renderTransaction(event domain.Event) string {
	if event.Transaction == nil {
		return ""
	}
	before, after := event.Transaction.Before, event.Transaction.After
	current := after
	if current == nil {
		current = before
	}
	if current == nil {
		return ""
	}

	switch event.Type {
	case domain.EventCreated:
		return fmt.Sprintf("Transaction %s opened for %s, total %s", current.ID, current.CustomerName, formatAmount(current.TotalCents))
	case domain.EventCompleted:
		return fmt.Sprintf("Transaction %s for %s completed, total %s", current.ID, current.CustomerName, formatAmount(current.TotalCents))
	case domain.EventCancelled:
		return fmt.Sprintf("Transaction %s for %s was cancelled", current.ID, current.CustomerName)
	case domain.EventItemAdded, domain.EventItemUpdated, domain.EventItemRemoved:
		if event.LineItem == nil {
			return ""
		}
		verb := map[domain.EventType]string{
			domain.EventItemAdded:   "added to",
			domain.EventItemUpdated: "updated on",
			domain.EventItemRemoved: "removed from",
		}[event.Type]
		return fmt.Sprintf("%d x %s %s transaction %s", event.LineItem.Qty, event.LineItem.ProductID, verb, current.ID)
	case domain.EventUpdated:
		switch {
		case after == nil:
			return fmt.Sprintf("Transaction %s was deleted", current.ID)
		case before != nil && before.Status != after.Status:
			return fmt.Sprintf("Transaction %s reopened from %s", current.ID, before.Status)
		default:
			return fmt.Sprintf("Transaction %s updated, total %s", current.ID, formatAmount(current.TotalCents))
		}
	default:
		return ""
	}
}

func renderPayment(event domain.Event) string {
	if event.Payment == nil {
		return ""
	}
	before, after := event.Payment.Before, event.Payment.After
	current := after
	if current == nil {
		current = before
	}
	if current == nil {
		return ""
	}

	switch event.Type {
	case domain.EventCreated:
		return fmt.Sprintf("Payment %s of %s by %s recorded for transaction %s", current.ID, formatAmount(current.AmountDueCents), current.Method, current.TransactionID)
	case domain.EventItemAdded:
		if event.Installment == nil {
			return ""
		}
		return fmt.Sprintf("Installment of %s received for payment %s, %s remaining", formatAmount(event.Installment.AmountCents), current.ID, formatAmount(current.RemainingCents()))
	case domain.EventCompleted:
		return fmt.Sprintf("Payment %s for transaction %s is fully paid", current.ID, current.TransactionID)
	case domain.EventCancelled:
		return fmt.Sprintf("Payment %s for transaction %s was cancelled", current.ID, current.TransactionID)
	case domain.EventUpdated:
		if after == nil {
			return fmt.Sprintf("Payment %s was deleted", current.ID)
		}
		return fmt.Sprintf("Payment %s is now %s", current.ID, current.Status)
	default:
		return ""
	}
}

func formatAmount(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
