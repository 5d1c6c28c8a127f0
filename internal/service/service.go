package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/observer"
	"kasirinaja/backoffice/internal/store"
	"kasirinaja/backoffice/internal/xid"
)

var (
	ErrForbidden            = errors.New("admin role required")
	ErrAnalyticsUnavailable = errors.New("daily analytics not configured")
)

// DailyTotals reads the analytics totals persisted for one day.
type DailyTotals interface {
	Day(ctx context.Context, at time.Time) (domain.AnalyticsDelta, error)
}

type Service struct {
	repo       store.Repository
	dispatcher *observer.Dispatcher
	analytics  *observer.Analytics
	daily      DailyTotals
	locks      *keyedLocker
	logger     *zap.Logger
	now        func() time.Time
}

// New wires the façade. A nil dispatcher gets a private one with no
// observers; a nil analytics observer reports zeroes.
func New(repo store.Repository, dispatcher *observer.Dispatcher, analytics *observer.Analytics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dispatcher == nil {
		dispatcher = observer.NewDispatcher(logger)
	}

	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		analytics:  analytics,
		locks:      newKeyedLocker(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithDailyTotals enables per-day analytics reads.
func (s *Service) WithDailyTotals(daily DailyTotals) *Service {
	s.daily = daily
	return s
}

func (s *Service) RegisterObserver(name string, handler observer.Handler, types ...domain.EventType) error {
	return s.dispatcher.Register(name, handler, types...)
}

func (s *Service) UnregisterObserver(name string) bool {
	return s.dispatcher.Unregister(name)
}

func (s *Service) ObserverNames() []string {
	return s.dispatcher.Names()
}

func (s *Service) AnalyticsReport(_ context.Context) domain.AnalyticsReport {
	if s.analytics == nil {
		return observer.BuildReport(domain.AnalyticsDelta{})
	}
	return s.analytics.Report()
}

func (s *Service) DailyAnalyticsReport(ctx context.Context, day time.Time) (domain.AnalyticsReport, error) {
	if s.daily == nil {
		return domain.AnalyticsReport{}, ErrAnalyticsUnavailable
	}
	totals, err := s.daily.Day(ctx, day)
	if err != nil {
		return domain.AnalyticsReport{}, err
	}
	return observer.BuildReport(totals), nil
}

func (s *Service) ListAuditLogs(ctx context.Context, entityID string, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, strings.TrimSpace(entityID), limit)
}

func (s *Service) GetStock(ctx context.Context, productIDs []string) (map[string]int, error) {
	normalized := make([]string, 0, len(productIDs))
	for _, productID := range productIDs {
		if productID = strings.ToUpper(strings.TrimSpace(productID)); productID != "" {
			normalized = append(normalized, productID)
		}
	}
	if len(normalized) == 0 {
		return map[string]int{}, nil
	}
	return s.repo.GetStock(ctx, normalized)
}

// SetStock overwrites on-hand stock for a product. Stock counts are not part
// of the event stream, so the change is audited directly.
func (s *Service) SetStock(ctx context.Context, productID string, qty int) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	productID = strings.ToUpper(strings.TrimSpace(productID))
	if productID == "" || qty < 0 {
		return store.ErrInvalidRecord
	}
	if err := s.repo.SetStock(ctx, productID, qty); err != nil {
		return err
	}
	s.logAudit(ctx, "stock_set", "product", productID, fmt.Sprintf("qty=%d", qty))
	return nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := domain.ActorFromContext(ctx)
	if !ok {
		actor = domain.SystemActor
	}

	err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	})
	if err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.String("entity_id", entityID), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, events ...domain.Event) {
	for _, event := range events {
		s.dispatcher.Notify(ctx, event)
	}
}

func (s *Service) transactionEvent(eventType domain.EventType, before *domain.Transaction, after *domain.Transaction) domain.Event {
	entityID := ""
	switch {
	case after != nil:
		entityID = after.ID
	case before != nil:
		entityID = before.ID
	}
	return domain.Event{
		ID:          xid.New("evt"),
		Type:        eventType,
		Entity:      domain.EntityTransaction,
		EntityID:    entityID,
		OccurredAt:  s.now(),
		Transaction: &domain.TransactionChange{Before: before, After: after},
	}
}

func (s *Service) paymentEvent(eventType domain.EventType, before *domain.Payment, after *domain.Payment) domain.Event {
	entityID := ""
	switch {
	case after != nil:
		entityID = after.ID
	case before != nil:
		entityID = before.ID
	}
	return domain.Event{
		ID:         xid.New("evt"),
		Type:       eventType,
		Entity:     domain.EntityPayment,
		EntityID:   entityID,
		OccurredAt: s.now(),
		Payment:    &domain.PaymentChange{Before: before, After: after},
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := domain.ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

func transactionLockKey(id string) string {
	return "transaction:" + id
}

func paymentLockKey(id string) string {
	return "payment:" + id
}

// paymentRefLockKey guards the one-payment-per-transaction check.
func paymentRefLockKey(transactionID string) string {
	return "payment-ref:" + transactionID
}
