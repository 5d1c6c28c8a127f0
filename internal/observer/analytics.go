package observer

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"kasirinaja/backoffice/internal/domain"
)

// AnalyticsSink receives every non-zero delta, for example to fold it into
// per-day counters.
type AnalyticsSink interface {
	Record(ctx context.Context, delta domain.AnalyticsDelta) error
}

// Analytics keeps running sales totals in memory and forwards each change to
// an optional sink.
type Analytics struct {
	mu     sync.Mutex
	totals domain.AnalyticsDelta
	sink   AnalyticsSink
}

func NewAnalytics(sink AnalyticsSink) *Analytics {
	return &Analytics{sink: sink}
}

func (a *Analytics) Handle(ctx context.Context, event domain.Event) error {
	delta := AnalyticsDeltaFor(event)
	if delta.IsZero() {
		return nil
	}

	a.mu.Lock()
	a.totals.RevenueCents += delta.RevenueCents
	a.totals.LossCents += delta.LossCents
	a.totals.CompletedTransactions += delta.CompletedTransactions
	a.totals.CancelledTransactions += delta.CancelledTransactions
	a.totals.SettledPayments += delta.SettledPayments
	a.totals.CollectedCents += delta.CollectedCents
	a.mu.Unlock()

	if a.sink == nil {
		return nil
	}
	return a.sink.Record(ctx, delta)
}

// AnalyticsDeltaFor derives the change event makes to the sales figures.
func AnalyticsDeltaFor(event domain.Event) domain.AnalyticsDelta {
	delta := domain.AnalyticsDelta{At: event.OccurredAt}

	switch event.Entity {
	case domain.EntityTransaction:
		if event.Transaction == nil {
			return delta
		}
		before, after := event.Transaction.Before, event.Transaction.After
		switch event.Type {
		case domain.EventCompleted:
			if after != nil {
				delta.RevenueCents = after.TotalCents
				delta.CompletedTransactions = 1
			}
		case domain.EventCancelled:
			if before != nil {
				delta.LossCents = before.TotalCents
				delta.CancelledTransactions = 1
			}
		case domain.EventUpdated:
			// Reopening undoes whatever the closing transition counted.
			if before == nil || after == nil || after.Status != domain.TxStatusInProgress {
				return delta
			}
			switch before.Status {
			case domain.TxStatusCompleted:
				delta.RevenueCents = -before.TotalCents
				delta.CompletedTransactions = -1
			case domain.TxStatusCancelled:
				delta.LossCents = -before.TotalCents
				delta.CancelledTransactions = -1
			case domain.TxStatusInProgress:
			}
		}
	case domain.EntityPayment:
		if event.Payment == nil {
			return delta
		}
		switch event.Type {
		case domain.EventCreated:
			if event.Payment.After != nil {
				delta.CollectedCents = event.Payment.After.PaidCents()
			}
		case domain.EventItemAdded:
			if event.Installment != nil {
				delta.CollectedCents = event.Installment.AmountCents
			}
		case domain.EventCompleted:
			delta.SettledPayments = 1
		}
	}
	return delta
}

// Report snapshots the running totals. The average ticket is revenue per
// completed transaction with two decimals; the loss ratio is loss over
// revenue plus loss with four.
func (a *Analytics) Report() domain.AnalyticsReport {
	a.mu.Lock()
	totals := a.totals
	a.mu.Unlock()

	return BuildReport(totals)
}

func BuildReport(totals domain.AnalyticsDelta) domain.AnalyticsReport {
	average := decimal.Zero
	if totals.CompletedTransactions > 0 {
		average = decimal.NewFromInt(totals.RevenueCents).Div(decimal.NewFromInt(totals.CompletedTransactions))
	}
	ratio := decimal.Zero
	if gross := totals.RevenueCents + totals.LossCents; gross > 0 {
		ratio = decimal.NewFromInt(totals.LossCents).Div(decimal.NewFromInt(gross))
	}

	return domain.AnalyticsReport{
		RevenueCents:          totals.RevenueCents,
		LossCents:             totals.LossCents,
		CompletedTransactions: totals.CompletedTransactions,
		CancelledTransactions: totals.CancelledTransactions,
		SettledPayments:       totals.SettledPayments,
		CollectedCents:        totals.CollectedCents,
		AverageTicketCents:    average.StringFixed(2),
		LossRatio:             ratio.StringFixed(4),
	}
}
