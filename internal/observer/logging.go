package observer

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/store"
)

// EventLog writes one structured log line and one audit record per event.
type EventLog struct {
	logger *zap.Logger
	audit  store.AuditRepository
}

func NewEventLog(logger *zap.Logger, audit store.AuditRepository) *EventLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventLog{logger: logger, audit: audit}
}

func (o *EventLog) Handle(ctx context.Context, event domain.Event) error {
	actor, ok := domain.ActorFromContext(ctx)
	if !ok {
		actor = domain.SystemActor
	}

	o.logger.Info("lifecycle event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("entity", string(event.Entity)),
		zap.String("entity_id", event.EntityID),
		zap.String("actor", actor.Username),
	)
	if o.audit == nil {
		return nil
	}

	detail, err := auditDetail(event)
	if err != nil {
		return err
	}
	entry := domain.AuditLog{
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        fmt.Sprintf("%s_%s", event.Entity, event.Type),
		EntityType:    string(event.Entity),
		EntityID:      event.EntityID,
		Detail:        detail,
		CreatedAt:     event.OccurredAt,
	}
	if err := o.audit.CreateAuditLog(ctx, entry); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

type auditPayload struct {
	EventID     string              `json:"event_id"`
	FromStatus  string              `json:"from_status,omitempty"`
	ToStatus    string              `json:"to_status,omitempty"`
	LineItem    *domain.LineItem    `json:"line_item,omitempty"`
	Installment *domain.Installment `json:"installment,omitempty"`
}

func auditDetail(event domain.Event) (string, error) {
	payload := auditPayload{
		EventID:     event.ID,
		LineItem:    event.LineItem,
		Installment: event.Installment,
	}
	switch {
	case event.Transaction != nil:
		if event.Transaction.Before != nil {
			payload.FromStatus = string(event.Transaction.Before.Status)
		}
		if event.Transaction.After != nil {
			payload.ToStatus = string(event.Transaction.After.Status)
		}
	case event.Payment != nil:
		if event.Payment.Before != nil {
			payload.FromStatus = string(event.Payment.Before.Status)
		}
		if event.Payment.After != nil {
			payload.ToStatus = string(event.Payment.After.Status)
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode audit detail: %w", err)
	}
	return string(raw), nil
}
