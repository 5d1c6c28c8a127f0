// Package lifecycle holds the pure transition logic for sales transactions
// and payments. Functions take the current entity by value and return a new
// one; the input is never modified.
package lifecycle

import (
	"fmt"
	"math"
	"strings"
	"time"

	"kasirinaja/backoffice/internal/domain"
)

type TransactionAction string

const (
	ActionComplete TransactionAction = "complete"
	ActionCancel   TransactionAction = "cancel"
	ActionReopen   TransactionAction = "reopen"
)

const entityTransaction = "transaction"

// NewTransaction builds an in-progress transaction. Lines for the same
// product are merged, keeping the first unit price seen.
func NewTransaction(id string, req domain.CreateTransactionRequest, at time.Time) (domain.Transaction, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	customerName := strings.TrimSpace(req.CustomerName)
	if id == "" || customerID == "" || customerName == "" {
		return domain.Transaction{}, fmt.Errorf("%w: customer id and name are required", ErrInvalidInput)
	}

	tx := domain.Transaction{
		ID:           id,
		CustomerID:   customerID,
		CustomerName: customerName,
		Items:        make([]domain.LineItem, 0, len(req.Items)),
		Status:       domain.TxStatusInProgress,
		Note:         strings.TrimSpace(req.Note),
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	for _, input := range req.Items {
		item, err := newLineItem(input)
		if err != nil {
			return domain.Transaction{}, err
		}
		if idx := tx.FindItem(item.ProductID); idx >= 0 {
			merged := tx.Items[idx]
			if merged.Qty > math.MaxInt-item.Qty {
				return domain.Transaction{}, fmt.Errorf("%w: quantity for %s is too large", ErrInvalidAmount, item.ProductID)
			}
			merged.Qty += item.Qty
			if merged.SubtotalCents, err = lineSubtotal(merged.Qty, merged.UnitPriceCents); err != nil {
				return domain.Transaction{}, err
			}
			tx.Items[idx] = merged
			continue
		}
		tx.Items = append(tx.Items, item)
	}
	total, err := sumItems(tx.Items)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx.TotalCents = total
	return tx, nil
}

// TransitionTransaction applies a status action. Completed and cancelled
// transactions only accept an explicit reopen.
func TransitionTransaction(tx domain.Transaction, action TransactionAction, at time.Time) (domain.Transaction, error) {
	next := tx.Clone()
	switch tx.Status {
	case domain.TxStatusInProgress:
		switch action {
		case ActionComplete:
			next.Status = domain.TxStatusCompleted
		case ActionCancel:
			next.Status = domain.TxStatusCancelled
		case ActionReopen:
			return tx, stateError(entityTransaction, string(tx.Status), string(action), ErrInvalidState)
		default:
			return tx, fmt.Errorf("%w: unknown transaction action %q", ErrInvalidInput, action)
		}
	case domain.TxStatusCompleted, domain.TxStatusCancelled:
		switch action {
		case ActionReopen:
			next.Status = domain.TxStatusInProgress
		case ActionComplete, ActionCancel:
			return tx, stateError(entityTransaction, string(tx.Status), string(action), ErrInvalidState)
		default:
			return tx, fmt.Errorf("%w: unknown transaction action %q", ErrInvalidInput, action)
		}
	default:
		return tx, stateError(entityTransaction, string(tx.Status), string(action), ErrInvalidState)
	}
	next.UpdatedAt = at
	return next, nil
}

func AddLineItem(tx domain.Transaction, input domain.LineItemInput, at time.Time) (domain.Transaction, domain.LineItem, error) {
	if err := requireInProgress(tx, "add line item"); err != nil {
		return tx, domain.LineItem{}, err
	}
	item, err := newLineItem(input)
	if err != nil {
		return tx, domain.LineItem{}, err
	}
	if tx.FindItem(item.ProductID) >= 0 {
		return tx, domain.LineItem{}, fmt.Errorf("%w: product %s is already on the transaction", ErrInvalidInput, item.ProductID)
	}

	next := tx.Clone()
	next.Items = append(next.Items, item)
	if next.TotalCents, err = sumItems(next.Items); err != nil {
		return tx, domain.LineItem{}, err
	}
	next.UpdatedAt = at
	return next, item, nil
}

func UpdateLineItem(tx domain.Transaction, productID string, req domain.LineItemUpdateRequest, at time.Time) (domain.Transaction, domain.LineItem, error) {
	if err := requireInProgress(tx, "update line item"); err != nil {
		return tx, domain.LineItem{}, err
	}
	productID = normalizeProductID(productID)
	idx := tx.FindItem(productID)
	if idx < 0 {
		return tx, domain.LineItem{}, fmt.Errorf("%w: product %s is not on the transaction", ErrInvalidInput, productID)
	}

	next := tx.Clone()
	item := next.Items[idx]
	if req.Qty != nil {
		if *req.Qty < 1 {
			return tx, domain.LineItem{}, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
		}
		item.Qty = *req.Qty
	}
	if req.UnitPriceCents != nil {
		if *req.UnitPriceCents < 0 {
			return tx, domain.LineItem{}, fmt.Errorf("%w: unit price must not be negative", ErrInvalidAmount)
		}
		item.UnitPriceCents = *req.UnitPriceCents
	}
	subtotal, err := lineSubtotal(item.Qty, item.UnitPriceCents)
	if err != nil {
		return tx, domain.LineItem{}, err
	}
	item.SubtotalCents = subtotal
	next.Items[idx] = item
	if next.TotalCents, err = sumItems(next.Items); err != nil {
		return tx, domain.LineItem{}, err
	}
	next.UpdatedAt = at
	return next, item, nil
}

func RemoveLineItem(tx domain.Transaction, productID string, at time.Time) (domain.Transaction, domain.LineItem, error) {
	if err := requireInProgress(tx, "remove line item"); err != nil {
		return tx, domain.LineItem{}, err
	}
	productID = normalizeProductID(productID)
	idx := tx.FindItem(productID)
	if idx < 0 {
		return tx, domain.LineItem{}, fmt.Errorf("%w: product %s is not on the transaction", ErrInvalidInput, productID)
	}

	removed := tx.Items[idx]
	next := tx.Clone()
	next.Items = append(next.Items[:idx], next.Items[idx+1:]...)
	// Dropping a line only shrinks a total that already fit.
	next.TotalCents, _ = sumItems(next.Items)
	next.UpdatedAt = at
	return next, removed, nil
}

func UpdateDetails(tx domain.Transaction, req domain.TransactionUpdateRequest, at time.Time) (domain.Transaction, error) {
	if err := requireInProgress(tx, "update"); err != nil {
		return tx, err
	}
	next := tx.Clone()
	if req.CustomerName != nil {
		name := strings.TrimSpace(*req.CustomerName)
		if name == "" {
			return tx, fmt.Errorf("%w: customer name must not be empty", ErrInvalidInput)
		}
		next.CustomerName = name
	}
	if req.Note != nil {
		next.Note = strings.TrimSpace(*req.Note)
	}
	next.UpdatedAt = at
	return next, nil
}

// CanDeleteTransaction is false once a sale has been completed.
func CanDeleteTransaction(tx domain.Transaction) bool {
	switch tx.Status {
	case domain.TxStatusInProgress, domain.TxStatusCancelled:
		return true
	case domain.TxStatusCompleted:
		return false
	default:
		return false
	}
}

func CheckTransactionDeletable(tx domain.Transaction) error {
	if !CanDeleteTransaction(tx) {
		return stateError(entityTransaction, string(tx.Status), "delete", ErrNotDeletable)
	}
	return nil
}

func requireInProgress(tx domain.Transaction, op string) error {
	if tx.Status != domain.TxStatusInProgress {
		return stateError(entityTransaction, string(tx.Status), op, ErrInvalidState)
	}
	return nil
}

func newLineItem(input domain.LineItemInput) (domain.LineItem, error) {
	productID := normalizeProductID(input.ProductID)
	if productID == "" || input.Qty < 1 {
		return domain.LineItem{}, fmt.Errorf("%w: line item needs a product and a quantity of at least 1", ErrInvalidInput)
	}
	if input.UnitPriceCents < 0 {
		return domain.LineItem{}, fmt.Errorf("%w: unit price must not be negative", ErrInvalidAmount)
	}
	subtotal, err := lineSubtotal(input.Qty, input.UnitPriceCents)
	if err != nil {
		return domain.LineItem{}, err
	}
	return domain.LineItem{
		ProductID:      productID,
		Qty:            input.Qty,
		UnitPriceCents: input.UnitPriceCents,
		SubtotalCents:  subtotal,
	}, nil
}

func normalizeProductID(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// lineSubtotal expects qty >= 1 and price >= 0.
func lineSubtotal(qty int, price int64) (int64, error) {
	if price > 0 && int64(qty) > math.MaxInt64/price {
		return 0, fmt.Errorf("%w: line subtotal exceeds the supported range", ErrInvalidAmount)
	}
	return int64(qty) * price, nil
}

func sumItems(items []domain.LineItem) (int64, error) {
	var total int64
	for _, item := range items {
		if total > math.MaxInt64-item.SubtotalCents {
			return 0, fmt.Errorf("%w: transaction total exceeds the supported range", ErrInvalidAmount)
		}
		total += item.SubtotalCents
	}
	return total, nil
}
