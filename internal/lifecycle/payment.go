package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"kasirinaja/backoffice/internal/domain"
)

type PaymentActionKind string

const (
	PaymentBeginInstallment PaymentActionKind = "begin_installment"
	PaymentAddInstallment   PaymentActionKind = "add_installment"
	PaymentSettle           PaymentActionKind = "settle"
	PaymentCancel           PaymentActionKind = "cancel"
)

// PaymentAction carries the identifier and timestamp for any installment the
// action records, so transitions stay free of clocks and id generators.
type PaymentAction struct {
	Kind          PaymentActionKind
	AmountCents   int64
	InstallmentID string
	At            time.Time
}

// PaymentResult is the outcome of a payment transition. Added is set when an
// installment was appended; Promoted when the payment became paid.
type PaymentResult struct {
	Payment  domain.Payment
	Added    *domain.Installment
	Promoted bool
}

const entityPayment = "payment"

// NewPayment records a payment for a transaction. Methods settled at the
// counter start out paid with a single installment covering the full amount.
func NewPayment(id string, transactionID string, amountDueCents int64, method string, installmentID string, at time.Time) (PaymentResult, error) {
	transactionID = strings.TrimSpace(transactionID)
	if id == "" || transactionID == "" {
		return PaymentResult{}, fmt.Errorf("%w: transaction reference is required", ErrInvalidInput)
	}
	if amountDueCents <= 0 {
		return PaymentResult{}, fmt.Errorf("%w: amount due must be positive", ErrInvalidAmount)
	}
	m, ok := domain.ParsePaymentMethod(strings.ToLower(strings.TrimSpace(method)))
	if !ok {
		return PaymentResult{}, fmt.Errorf("%w: unsupported payment method %q", ErrInvalidInput, method)
	}

	p := domain.Payment{
		ID:             id,
		TransactionID:  transactionID,
		AmountDueCents: amountDueCents,
		Method:         m,
		Status:         domain.PaymentStatusPending,
		Installments:   []domain.Installment{},
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	if !m.SettlesOnCreate() {
		return PaymentResult{Payment: p}, nil
	}

	inst := domain.Installment{ID: installmentID, PaymentID: id, AmountCents: amountDueCents, CreatedAt: at}
	p.Installments = append(p.Installments, inst)
	p.Status = domain.PaymentStatusPaid
	return PaymentResult{Payment: p, Added: &inst, Promoted: true}, nil
}

// TransitionPayment applies action to p. A paid payment rejects everything
// with ErrAlreadySettled; a cancelled one with ErrInvalidState.
func TransitionPayment(p domain.Payment, action PaymentAction) (PaymentResult, error) {
	switch p.Status {
	case domain.PaymentStatusPending:
		switch action.Kind {
		case PaymentBeginInstallment:
			next := p.Clone()
			next.Status = domain.PaymentStatusInstallment
			next.UpdatedAt = action.At
			// The first installment is optional; without one the payment
			// waits in installment status with nothing accrued.
			if action.AmountCents == 0 {
				return PaymentResult{Payment: next}, nil
			}
			return AddInstallment(next, newInstallment(p.ID, action))
		case PaymentSettle:
			return settle(p, action)
		case PaymentCancel:
			return cancel(p, action)
		case PaymentAddInstallment:
			return PaymentResult{Payment: p}, stateError(entityPayment, string(p.Status), string(action.Kind), ErrInvalidState)
		}
	case domain.PaymentStatusInstallment:
		switch action.Kind {
		case PaymentAddInstallment, PaymentBeginInstallment:
			return AddInstallment(p, newInstallment(p.ID, action))
		case PaymentSettle:
			return settle(p, action)
		case PaymentCancel:
			return cancel(p, action)
		}
	case domain.PaymentStatusPaid:
		return PaymentResult{Payment: p}, stateError(entityPayment, string(p.Status), string(action.Kind), ErrAlreadySettled)
	case domain.PaymentStatusCancelled:
		return PaymentResult{Payment: p}, stateError(entityPayment, string(p.Status), string(action.Kind), ErrInvalidState)
	default:
		return PaymentResult{Payment: p}, stateError(entityPayment, string(p.Status), string(action.Kind), ErrInvalidState)
	}
	return PaymentResult{Payment: p}, fmt.Errorf("%w: unknown payment action %q", ErrInvalidInput, action.Kind)
}

// ActionForStatus maps a requested target status onto a payment action.
func ActionForStatus(target domain.PaymentStatus) (PaymentActionKind, error) {
	switch target {
	case domain.PaymentStatusInstallment:
		return PaymentBeginInstallment, nil
	case domain.PaymentStatusPaid:
		return PaymentSettle, nil
	case domain.PaymentStatusCancelled:
		return PaymentCancel, nil
	case domain.PaymentStatusPending:
		return "", fmt.Errorf("%w: a payment cannot be moved back to pending", ErrInvalidState)
	default:
		return "", fmt.Errorf("%w: unknown payment status %q", ErrInvalidInput, target)
	}
}

// CanDeletePayment is true only for payments still being paid off.
func CanDeletePayment(p domain.Payment) bool {
	switch p.Status {
	case domain.PaymentStatusInstallment:
		return true
	case domain.PaymentStatusPending, domain.PaymentStatusPaid, domain.PaymentStatusCancelled:
		return false
	default:
		return false
	}
}

func CheckPaymentDeletable(p domain.Payment) error {
	if !CanDeletePayment(p) {
		return stateError(entityPayment, string(p.Status), "delete", ErrNotDeletable)
	}
	return nil
}

func settle(p domain.Payment, action PaymentAction) (PaymentResult, error) {
	remaining := p.RemainingCents()
	next := p.Clone()
	next.Status = domain.PaymentStatusInstallment
	if remaining == 0 {
		next.Status = domain.PaymentStatusPaid
		next.UpdatedAt = action.At
		return PaymentResult{Payment: next, Promoted: true}, nil
	}
	action.AmountCents = remaining
	return AddInstallment(next, newInstallment(p.ID, action))
}

func cancel(p domain.Payment, action PaymentAction) (PaymentResult, error) {
	next := p.Clone()
	next.Status = domain.PaymentStatusCancelled
	next.UpdatedAt = action.At
	return PaymentResult{Payment: next}, nil
}

func newInstallment(paymentID string, action PaymentAction) domain.Installment {
	return domain.Installment{
		ID:          action.InstallmentID,
		PaymentID:   paymentID,
		AmountCents: action.AmountCents,
		CreatedAt:   action.At,
	}
}
