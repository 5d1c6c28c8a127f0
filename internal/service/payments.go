package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/lifecycle"
	"kasirinaja/backoffice/internal/selection"
	"kasirinaja/backoffice/internal/store"
	"kasirinaja/backoffice/internal/xid"
)

// CreatePayment records the single payment a transaction may carry. Cash is
// settled on the spot and comes back paid.
func (s *Service) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (domain.Payment, error) {
	transactionID := strings.TrimSpace(req.TransactionID)
	unlock := s.locks.Lock(paymentRefLockKey(transactionID))
	result, err := s.createPaymentLocked(ctx, transactionID, req)
	unlock()
	if err != nil {
		return domain.Payment{}, err
	}

	events := []domain.Event{s.paymentEvent(domain.EventCreated, nil, clonePayment(result.Payment))}
	if result.Promoted {
		events = append(events, s.paymentEvent(domain.EventCompleted, nil, clonePayment(result.Payment)))
	}
	s.publish(ctx, events...)
	return result.Payment, nil
}

func (s *Service) createPaymentLocked(ctx context.Context, transactionID string, req domain.CreatePaymentRequest) (lifecycle.PaymentResult, error) {
	result, err := lifecycle.NewPayment(xid.New("pay"), transactionID, req.AmountDueCents, req.Method, xid.New("inst"), s.now())
	if err != nil {
		return lifecycle.PaymentResult{}, err
	}

	existing, err := s.repo.FindPaymentByTransaction(ctx, transactionID)
	switch {
	case err == nil:
		return lifecycle.PaymentResult{}, fmt.Errorf("%w: %s already has payment %s", store.ErrDuplicateTransaction, transactionID, existing.ID)
	case !errors.Is(err, store.ErrNotFound):
		return lifecycle.PaymentResult{}, err
	}

	if err := s.repo.SavePayment(ctx, result.Payment); err != nil {
		return lifecycle.PaymentResult{}, err
	}
	return result, nil
}

func (s *Service) GetPayment(ctx context.Context, id string) (domain.Payment, error) {
	p, err := s.repo.LoadPayment(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Payment{}, err
	}
	return *p, nil
}

func (s *Service) ListPayments(ctx context.Context, query domain.ListQuery) (domain.ListResult[domain.Payment], error) {
	items, err := s.repo.ListPayments(ctx)
	if err != nil {
		return domain.ListResult[domain.Payment]{}, err
	}
	return selection.Payments.Apply(items, query), nil
}

// UpdatePaymentStatus moves a payment to the requested status. Moving a
// pending payment to installment may carry a first installment; moving to
// paid records whatever balance remains.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id string, req domain.PaymentStatusUpdateRequest) (domain.Payment, error) {
	target, ok := domain.ParsePaymentStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !ok {
		return domain.Payment{}, fmt.Errorf("%w: unknown payment status %q", lifecycle.ErrInvalidInput, req.Status)
	}
	kind, err := lifecycle.ActionForStatus(target)
	if err != nil {
		return domain.Payment{}, err
	}

	amount := int64(0)
	if kind == lifecycle.PaymentBeginInstallment {
		amount = req.InitialInstallmentCents
		if amount < 0 {
			return domain.Payment{}, fmt.Errorf("%w: initial installment must not be negative", lifecycle.ErrInvalidAmount)
		}
	}

	before, result, err := s.mutatePayment(ctx, id, lifecycle.PaymentAction{Kind: kind, AmountCents: amount})
	if err != nil {
		return domain.Payment{}, err
	}

	statusEvent := domain.EventUpdated
	if kind == lifecycle.PaymentCancel {
		statusEvent = domain.EventCancelled
	}
	s.publish(ctx, s.paymentResultEvents(statusEvent, before, result)...)
	return result.Payment, nil
}

func (s *Service) AddInstallment(ctx context.Context, id string, req domain.InstallmentRequest) (domain.Payment, error) {
	before, result, err := s.mutatePayment(ctx, id, lifecycle.PaymentAction{Kind: lifecycle.PaymentAddInstallment, AmountCents: req.AmountCents})
	if err != nil {
		return domain.Payment{}, err
	}

	s.publish(ctx, s.paymentResultEvents("", before, result)...)
	return result.Payment, nil
}

// paymentResultEvents lists the events for one payment transition: the
// optional status event, then the installment, then promotion to paid.
func (s *Service) paymentResultEvents(statusEvent domain.EventType, before domain.Payment, result lifecycle.PaymentResult) []domain.Event {
	events := make([]domain.Event, 0, 3)
	if statusEvent != "" {
		events = append(events, s.paymentEvent(statusEvent, clonePayment(before), clonePayment(result.Payment)))
	}
	if result.Added != nil {
		event := s.paymentEvent(domain.EventItemAdded, clonePayment(before), clonePayment(result.Payment))
		inst := *result.Added
		event.Installment = &inst
		events = append(events, event)
	}
	if result.Promoted {
		events = append(events, s.paymentEvent(domain.EventCompleted, clonePayment(before), clonePayment(result.Payment)))
	}
	return events
}

// DeletePayment removes a payment that is still being paid off.
func (s *Service) DeletePayment(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	unlock := s.locks.Lock(paymentLockKey(id))
	deleted, err := s.deletePaymentLocked(ctx, id)
	unlock()
	if err != nil {
		return err
	}

	s.publish(ctx, s.paymentEvent(domain.EventUpdated, &deleted, nil))
	return nil
}

func (s *Service) deletePaymentLocked(ctx context.Context, id string) (domain.Payment, error) {
	current, err := s.repo.LoadPayment(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := lifecycle.CheckPaymentDeletable(*current); err != nil {
		return domain.Payment{}, err
	}
	if err := s.repo.DeletePayment(ctx, id); err != nil {
		return domain.Payment{}, err
	}
	return *current, nil
}

func (s *Service) mutatePayment(ctx context.Context, id string, action lifecycle.PaymentAction) (domain.Payment, lifecycle.PaymentResult, error) {
	id = strings.TrimSpace(id)
	unlock := s.locks.Lock(paymentLockKey(id))
	defer unlock()

	current, err := s.repo.LoadPayment(ctx, id)
	if err != nil {
		return domain.Payment{}, lifecycle.PaymentResult{}, err
	}
	before := current.Clone()

	action.InstallmentID = xid.New("inst")
	action.At = s.now()
	result, err := lifecycle.TransitionPayment(current.Clone(), action)
	if err != nil {
		return domain.Payment{}, lifecycle.PaymentResult{}, err
	}
	if err := s.repo.SavePayment(ctx, result.Payment); err != nil {
		return domain.Payment{}, lifecycle.PaymentResult{}, err
	}
	return before, result, nil
}

func clonePayment(p domain.Payment) *domain.Payment {
	c := p.Clone()
	return &c
}
