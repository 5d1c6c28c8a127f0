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

func (s *Service) CreateTransaction(ctx context.Context, req domain.CreateTransactionRequest) (domain.Transaction, error) {
	tx, err := lifecycle.NewTransaction(xid.New("tx"), req, s.now())
	if err != nil {
		return domain.Transaction{}, err
	}

	unlock := s.locks.Lock(transactionLockKey(tx.ID))
	err = s.repo.SaveTransaction(ctx, tx)
	unlock()
	if err != nil {
		return domain.Transaction{}, err
	}

	after := tx.Clone()
	s.publish(ctx, s.transactionEvent(domain.EventCreated, nil, &after))
	return tx, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := s.repo.LoadTransaction(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

func (s *Service) ListTransactions(ctx context.Context, query domain.ListQuery) (domain.ListResult[domain.Transaction], error) {
	items, err := s.repo.ListTransactions(ctx)
	if err != nil {
		return domain.ListResult[domain.Transaction]{}, err
	}
	return selection.Transactions.Apply(items, query), nil
}

func (s *Service) UpdateTransaction(ctx context.Context, id string, req domain.TransactionUpdateRequest) (domain.Transaction, error) {
	before, after, err := s.mutateTransaction(ctx, id, func(tx domain.Transaction) (domain.Transaction, error) {
		return lifecycle.UpdateDetails(tx, req, s.now())
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.publish(ctx, s.transactionEvent(domain.EventUpdated, &before, cloneTx(after)))
	return after, nil
}

func (s *Service) CompleteTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	return s.transition(ctx, id, lifecycle.ActionComplete, domain.EventCompleted)
}

func (s *Service) CancelTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	return s.transition(ctx, id, lifecycle.ActionCancel, domain.EventCancelled)
}

// ReopenTransaction moves a completed or cancelled sale back to in progress.
// Only admins may do this.
func (s *Service) ReopenTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Transaction{}, err
	}
	return s.transition(ctx, id, lifecycle.ActionReopen, domain.EventUpdated)
}

func (s *Service) transition(ctx context.Context, id string, action lifecycle.TransactionAction, eventType domain.EventType) (domain.Transaction, error) {
	before, after, err := s.mutateTransaction(ctx, id, func(tx domain.Transaction) (domain.Transaction, error) {
		return lifecycle.TransitionTransaction(tx, action, s.now())
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.publish(ctx, s.transactionEvent(eventType, &before, cloneTx(after)))
	return after, nil
}

func (s *Service) AddLineItem(ctx context.Context, transactionID string, input domain.LineItemInput) (domain.LineItem, error) {
	var added domain.LineItem
	before, after, err := s.mutateTransaction(ctx, transactionID, func(tx domain.Transaction) (domain.Transaction, error) {
		next, item, err := lifecycle.AddLineItem(tx, input, s.now())
		added = item
		return next, err
	})
	if err != nil {
		return domain.LineItem{}, err
	}

	s.publishLineItem(ctx, domain.EventItemAdded, before, after, added)
	return added, nil
}

func (s *Service) UpdateLineItem(ctx context.Context, transactionID string, productID string, req domain.LineItemUpdateRequest) (domain.Transaction, error) {
	var updated domain.LineItem
	before, after, err := s.mutateTransaction(ctx, transactionID, func(tx domain.Transaction) (domain.Transaction, error) {
		next, item, err := lifecycle.UpdateLineItem(tx, productID, req, s.now())
		updated = item
		return next, err
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.publishLineItem(ctx, domain.EventItemUpdated, before, after, updated)
	return after, nil
}

func (s *Service) RemoveLineItem(ctx context.Context, transactionID string, productID string) (domain.Transaction, error) {
	var removed domain.LineItem
	before, after, err := s.mutateTransaction(ctx, transactionID, func(tx domain.Transaction) (domain.Transaction, error) {
		next, item, err := lifecycle.RemoveLineItem(tx, productID, s.now())
		removed = item
		return next, err
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.publishLineItem(ctx, domain.EventItemRemoved, before, after, removed)
	return after, nil
}

// publishLineItem emits the line event followed by the transaction update
// it caused.
func (s *Service) publishLineItem(ctx context.Context, eventType domain.EventType, before domain.Transaction, after domain.Transaction, item domain.LineItem) {
	lineEvent := s.transactionEvent(eventType, cloneTx(before), cloneTx(after))
	lineEvent.LineItem = &item
	s.publish(ctx, lineEvent, s.transactionEvent(domain.EventUpdated, cloneTx(before), cloneTx(after)))
}

// DeleteTransaction removes an in-progress or cancelled sale. A sale that
// already carries a payment must have the payment removed first. The
// payment reference lock is taken before the transaction lock, so the
// payment check and the delete cannot interleave with CreatePayment.
func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	unlockRef := s.locks.Lock(paymentRefLockKey(id))
	unlock := s.locks.Lock(transactionLockKey(id))
	deleted, err := s.deleteTransactionLocked(ctx, id)
	unlock()
	unlockRef()
	if err != nil {
		return err
	}

	s.publish(ctx, s.transactionEvent(domain.EventUpdated, &deleted, nil))
	return nil
}

func (s *Service) deleteTransactionLocked(ctx context.Context, id string) (domain.Transaction, error) {
	current, err := s.repo.LoadTransaction(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := lifecycle.CheckTransactionDeletable(*current); err != nil {
		return domain.Transaction{}, err
	}

	_, err = s.repo.FindPaymentByTransaction(ctx, id)
	switch {
	case err == nil:
		return domain.Transaction{}, fmt.Errorf("%w: transaction %s has a payment", lifecycle.ErrNotDeletable, id)
	case !errors.Is(err, store.ErrNotFound):
		return domain.Transaction{}, err
	}

	if err := s.repo.DeleteTransaction(ctx, id); err != nil {
		return domain.Transaction{}, err
	}
	return *current, nil
}

// mutateTransaction runs load, apply and save under the transaction's lock
// and returns the versions before and after. Events are published by the
// caller once the lock is released.
func (s *Service) mutateTransaction(ctx context.Context, id string, apply func(domain.Transaction) (domain.Transaction, error)) (domain.Transaction, domain.Transaction, error) {
	id = strings.TrimSpace(id)
	unlock := s.locks.Lock(transactionLockKey(id))
	defer unlock()

	current, err := s.repo.LoadTransaction(ctx, id)
	if err != nil {
		return domain.Transaction{}, domain.Transaction{}, err
	}
	before := current.Clone()

	next, err := apply(current.Clone())
	if err != nil {
		return domain.Transaction{}, domain.Transaction{}, err
	}
	if err := s.repo.SaveTransaction(ctx, next); err != nil {
		return domain.Transaction{}, domain.Transaction{}, err
	}
	return before, next, nil
}

func cloneTx(tx domain.Transaction) *domain.Transaction {
	c := tx.Clone()
	return &c
}
