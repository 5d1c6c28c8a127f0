package lifecycle

import (
	"fmt"

	"kasirinaja/backoffice/internal/domain"
)

// AddInstallment appends inst to an installment-state payment and promotes
// it to paid in the same step once the accrued sum reaches the amount due.
// Amounts beyond the remaining balance are rejected.
func AddInstallment(p domain.Payment, inst domain.Installment) (PaymentResult, error) {
	if inst.AmountCents <= 0 {
		return PaymentResult{Payment: p}, fmt.Errorf("%w: installment amount must be positive", ErrInvalidAmount)
	}
	switch p.Status {
	case domain.PaymentStatusInstallment:
	case domain.PaymentStatusPaid:
		return PaymentResult{Payment: p}, stateError(entityPayment, string(p.Status), "add installment", ErrAlreadySettled)
	default:
		return PaymentResult{Payment: p}, stateError(entityPayment, string(p.Status), "add installment", ErrInvalidState)
	}
	if remaining := p.RemainingCents(); inst.AmountCents > remaining {
		return PaymentResult{Payment: p}, fmt.Errorf("%w: installment %d exceeds remaining balance %d", ErrInvalidAmount, inst.AmountCents, remaining)
	}
	if inst.ID == "" {
		return PaymentResult{Payment: p}, fmt.Errorf("%w: installment id is required", ErrInvalidInput)
	}

	inst.PaymentID = p.ID
	next := p.Clone()
	next.Installments = append(next.Installments, inst)
	next.UpdatedAt = inst.CreatedAt

	promoted := false
	if next.PaidCents() >= next.AmountDueCents {
		next.Status = domain.PaymentStatusPaid
		promoted = true
	}
	return PaymentResult{Payment: next, Added: &inst, Promoted: promoted}, nil
}
