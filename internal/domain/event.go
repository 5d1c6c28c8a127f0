package domain

import "time"

type EventType string

const (
	EventCreated     EventType = "created"
	EventUpdated     EventType = "updated"
	EventCompleted   EventType = "completed"
	EventCancelled   EventType = "cancelled"
	EventItemAdded   EventType = "item_added"
	EventItemUpdated EventType = "item_updated"
	EventItemRemoved EventType = "item_removed"
)

type EntityKind string

const (
	EntityTransaction EntityKind = "transaction"
	EntityPayment     EntityKind = "payment"
)

type TransactionChange struct {
	Before *Transaction `json:"before,omitempty"`
	After  *Transaction `json:"after,omitempty"`
}

type PaymentChange struct {
	Before *Payment `json:"before,omitempty"`
	After  *Payment `json:"after,omitempty"`
}

// Event describes one committed state transition. Before is nil for
// creations and After is nil for deletions.
type Event struct {
	ID          string             `json:"id"`
	Type        EventType          `json:"type"`
	Entity      EntityKind         `json:"entity"`
	EntityID    string             `json:"entity_id"`
	OccurredAt  time.Time          `json:"occurred_at"`
	Transaction *TransactionChange `json:"transaction,omitempty"`
	Payment     *PaymentChange     `json:"payment,omitempty"`
	LineItem    *LineItem          `json:"line_item,omitempty"`
	Installment *Installment       `json:"installment,omitempty"`
}

func (e Event) Clone() Event {
	out := e
	if e.Transaction != nil {
		out.Transaction = &TransactionChange{
			Before: cloneTransactionPtr(e.Transaction.Before),
			After:  cloneTransactionPtr(e.Transaction.After),
		}
	}
	if e.Payment != nil {
		out.Payment = &PaymentChange{
			Before: clonePaymentPtr(e.Payment.Before),
			After:  clonePaymentPtr(e.Payment.After),
		}
	}
	if e.LineItem != nil {
		item := *e.LineItem
		out.LineItem = &item
	}
	if e.Installment != nil {
		inst := *e.Installment
		out.Installment = &inst
	}
	return out
}

func cloneTransactionPtr(tx *Transaction) *Transaction {
	if tx == nil {
		return nil
	}
	c := tx.Clone()
	return &c
}

func clonePaymentPtr(p *Payment) *Payment {
	if p == nil {
		return nil
	}
	c := p.Clone()
	return &c
}
