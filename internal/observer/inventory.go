package observer

import (
	"context"
	"fmt"

	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/store"
)

// Inventory reserves stock while a sale is open and returns it when lines
// are removed or the sale is cancelled or deleted. Only what the store
// recorded as reserved for the sale is ever returned, so a reservation that
// failed for lack of stock never adds phantom units later.
type Inventory struct {
	repo store.InventoryRepository
}

func NewInventory(repo store.InventoryRepository) *Inventory {
	return &Inventory{repo: repo}
}

func (o *Inventory) Handle(ctx context.Context, event domain.Event) error {
	change := ReservationFor(event)
	if change.ReleaseAll {
		if err := o.repo.ReleaseReservation(ctx, event.EntityID); err != nil {
			return fmt.Errorf("release stock for %s: %w", event.EntityID, err)
		}
		return nil
	}
	if len(change.Adjustments) == 0 {
		return nil
	}
	if err := o.repo.ReserveStock(ctx, event.EntityID, change.Adjustments); err != nil {
		return fmt.Errorf("reserve stock for %s: %w", event.EntityID, err)
	}
	return nil
}

// Reservation is the stock change a transaction event asks for. Positive
// quantities reserve more units, negative ones hand units back. ReleaseAll
// returns whatever the sale still holds.
type Reservation struct {
	Adjustments []domain.StockAdjustment
	ReleaseAll  bool
}

// ReservationFor maps a transaction event onto a reservation change.
func ReservationFor(event domain.Event) Reservation {
	if event.Entity != domain.EntityTransaction || event.Transaction == nil {
		return Reservation{}
	}
	before, after := event.Transaction.Before, event.Transaction.After

	switch event.Type {
	case domain.EventCreated:
		if after != nil {
			return Reservation{Adjustments: itemAdjustments(after.Items, 1)}
		}
	case domain.EventItemAdded:
		if event.LineItem != nil {
			return Reservation{Adjustments: []domain.StockAdjustment{{ProductID: event.LineItem.ProductID, Qty: event.LineItem.Qty}}}
		}
	case domain.EventItemUpdated:
		if event.LineItem == nil || before == nil {
			return Reservation{}
		}
		idx := before.FindItem(event.LineItem.ProductID)
		if idx < 0 {
			return Reservation{}
		}
		if delta := event.LineItem.Qty - before.Items[idx].Qty; delta != 0 {
			return Reservation{Adjustments: []domain.StockAdjustment{{ProductID: event.LineItem.ProductID, Qty: delta}}}
		}
	case domain.EventItemRemoved:
		if event.LineItem != nil {
			return Reservation{Adjustments: []domain.StockAdjustment{{ProductID: event.LineItem.ProductID, Qty: -event.LineItem.Qty}}}
		}
	case domain.EventCancelled:
		return Reservation{ReleaseAll: true}
	case domain.EventUpdated:
		switch {
		case before != nil && after == nil:
			return Reservation{ReleaseAll: true}
		case before != nil && after != nil && before.Status == domain.TxStatusCancelled && after.Status == domain.TxStatusInProgress:
			return Reservation{Adjustments: itemAdjustments(after.Items, 1)}
		}
	}
	return Reservation{}
}

func itemAdjustments(items []domain.LineItem, sign int) []domain.StockAdjustment {
	out := make([]domain.StockAdjustment, 0, len(items))
	for _, item := range items {
		out = append(out, domain.StockAdjustment{ProductID: item.ProductID, Qty: sign * item.Qty})
	}
	return out
}
