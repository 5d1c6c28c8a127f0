package lifecycle

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kasirinaja/backoffice/internal/domain"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestTransaction(t *testing.T) domain.Transaction {
	t.Helper()
	tx, err := NewTransaction("tx-1", domain.CreateTransactionRequest{
		CustomerID:   "cust-1",
		CustomerName: "Budi",
		Items: []domain.LineItemInput{
			{ProductID: "sku-beras-01", Qty: 2, UnitPriceCents: 100000},
			{ProductID: "SKU-MINYAK-01", Qty: 1, UnitPriceCents: 250000},
		},
	}, testNow)
	require.NoError(t, err)
	return tx
}

func TestNewTransactionComputesTotals(t *testing.T) {
	tx := newTestTransaction(t)

	require.Equal(t, domain.TxStatusInProgress, tx.Status)
	require.Len(t, tx.Items, 2)
	require.Equal(t, "SKU-BERAS-01", tx.Items[0].ProductID)
	require.Equal(t, int64(200000), tx.Items[0].SubtotalCents)
	require.Equal(t, int64(450000), tx.TotalCents)
}

func TestNewTransactionMergesDuplicateProducts(t *testing.T) {
	tx, err := NewTransaction("tx-2", domain.CreateTransactionRequest{
		CustomerID:   "cust-1",
		CustomerName: "Budi",
		Items: []domain.LineItemInput{
			{ProductID: "SKU-A", Qty: 1, UnitPriceCents: 5000},
			{ProductID: "sku-a", Qty: 2, UnitPriceCents: 9999},
		},
	}, testNow)
	require.NoError(t, err)
	require.Len(t, tx.Items, 1)
	require.Equal(t, 3, tx.Items[0].Qty)
	require.Equal(t, int64(15000), tx.TotalCents)
}

func TestNewTransactionRejectsBadInput(t *testing.T) {
	_, err := NewTransaction("tx-3", domain.CreateTransactionRequest{CustomerID: "", CustomerName: "Budi"}, testNow)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewTransaction("tx-3", domain.CreateTransactionRequest{
		CustomerID:   "c",
		CustomerName: "Budi",
		Items:        []domain.LineItemInput{{ProductID: "SKU-A", Qty: 0, UnitPriceCents: 1}},
	}, testNow)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewTransaction("tx-3", domain.CreateTransactionRequest{
		CustomerID:   "c",
		CustomerName: "Budi",
		Items:        []domain.LineItemInput{{ProductID: "SKU-A", Qty: 1, UnitPriceCents: -1}},
	}, testNow)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestTransitionTransaction(t *testing.T) {
	tests := []struct {
		name    string
		from    domain.TransactionStatus
		action  TransactionAction
		want    domain.TransactionStatus
		wantErr error
	}{
		{"complete in progress", domain.TxStatusInProgress, ActionComplete, domain.TxStatusCompleted, nil},
		{"cancel in progress", domain.TxStatusInProgress, ActionCancel, domain.TxStatusCancelled, nil},
		{"reopen in progress", domain.TxStatusInProgress, ActionReopen, "", ErrInvalidState},
		{"complete completed", domain.TxStatusCompleted, ActionComplete, "", ErrInvalidState},
		{"cancel completed", domain.TxStatusCompleted, ActionCancel, "", ErrInvalidState},
		{"complete cancelled", domain.TxStatusCancelled, ActionComplete, "", ErrInvalidState},
		{"cancel cancelled", domain.TxStatusCancelled, ActionCancel, "", ErrInvalidState},
		{"reopen completed", domain.TxStatusCompleted, ActionReopen, domain.TxStatusInProgress, nil},
		{"reopen cancelled", domain.TxStatusCancelled, ActionReopen, domain.TxStatusInProgress, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tx := newTestTransaction(t)
			tx.Status = tc.from

			next, err := TransitionTransaction(tx, tc.action, testNow.Add(time.Minute))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.Contains(t, err.Error(), string(tc.from))
				require.Equal(t, tc.from, tx.Status)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, next.Status)
			require.Equal(t, tc.from, tx.Status, "input must not be mutated")
		})
	}
}

func TestTransitionTransactionUnknownAction(t *testing.T) {
	_, err := TransitionTransaction(newTestTransaction(t), TransactionAction("archive"), testNow)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestLineItemMutationsRecomputeTotal(t *testing.T) {
	tx := newTestTransaction(t)

	added, item, err := AddLineItem(tx, domain.LineItemInput{ProductID: "SKU-GULA-01", Qty: 3, UnitPriceCents: 17400}, testNow)
	require.NoError(t, err)
	require.Equal(t, int64(52200), item.SubtotalCents)
	require.Equal(t, int64(502200), added.TotalCents)
	require.Len(t, tx.Items, 2, "input must not be mutated")

	qty := 5
	updated, item, err := UpdateLineItem(added, "sku-gula-01", domain.LineItemUpdateRequest{Qty: &qty}, testNow)
	require.NoError(t, err)
	require.Equal(t, int64(87000), item.SubtotalCents)
	require.Equal(t, int64(537000), updated.TotalCents)
	require.Equal(t, 3, added.Items[2].Qty)

	removed, item, err := RemoveLineItem(tx, "SKU-MINYAK-01", testNow)
	require.NoError(t, err)
	require.Equal(t, "SKU-MINYAK-01", item.ProductID)
	require.Equal(t, int64(200000), removed.TotalCents)
	require.Len(t, removed.Items, 1)
	require.Len(t, tx.Items, 2)
}

func TestAmountsBeyondInt64AreRejected(t *testing.T) {
	_, err := NewTransaction("tx-big", domain.CreateTransactionRequest{
		CustomerID:   "c",
		CustomerName: "Budi",
		Items:        []domain.LineItemInput{{ProductID: "SKU-A", Qty: 2, UnitPriceCents: math.MaxInt64/2 + 1}},
	}, testNow)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = NewTransaction("tx-big", domain.CreateTransactionRequest{
		CustomerID:   "c",
		CustomerName: "Budi",
		Items: []domain.LineItemInput{
			{ProductID: "SKU-A", Qty: 1, UnitPriceCents: math.MaxInt64},
			{ProductID: "SKU-B", Qty: 1, UnitPriceCents: 1},
		},
	}, testNow)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = NewTransaction("tx-big", domain.CreateTransactionRequest{
		CustomerID:   "c",
		CustomerName: "Budi",
		Items: []domain.LineItemInput{
			{ProductID: "SKU-A", Qty: math.MaxInt, UnitPriceCents: 0},
			{ProductID: "sku-a", Qty: 1, UnitPriceCents: 0},
		},
	}, testNow)
	require.ErrorIs(t, err, ErrInvalidAmount)

	tx := newTestTransaction(t)
	_, _, err = AddLineItem(tx, domain.LineItemInput{ProductID: "SKU-GULA-01", Qty: 1, UnitPriceCents: math.MaxInt64}, testNow)
	require.ErrorIs(t, err, ErrInvalidAmount)

	price := int64(math.MaxInt64/2 + 1)
	_, _, err = UpdateLineItem(tx, "SKU-BERAS-01", domain.LineItemUpdateRequest{UnitPriceCents: &price}, testNow)
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.Equal(t, int64(100000), tx.Items[0].UnitPriceCents)

	fits := int64(math.MaxInt64 - 250000)
	one := 1
	updated, _, err := UpdateLineItem(tx, "SKU-BERAS-01", domain.LineItemUpdateRequest{Qty: &one, UnitPriceCents: &fits}, testNow)
	require.NoError(t, err)
	require.Equal(t, int64(math.MaxInt64), updated.TotalCents)
}

func TestLineItemDuplicateAndMissing(t *testing.T) {
	tx := newTestTransaction(t)

	_, _, err := AddLineItem(tx, domain.LineItemInput{ProductID: "SKU-BERAS-01", Qty: 1, UnitPriceCents: 1}, testNow)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = RemoveLineItem(tx, "SKU-NOPE", testNow)
	require.ErrorIs(t, err, ErrInvalidInput)

	zero := 0
	_, _, err = UpdateLineItem(tx, "SKU-BERAS-01", domain.LineItemUpdateRequest{Qty: &zero}, testNow)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestClosedTransactionRejectsMutation(t *testing.T) {
	for _, status := range []domain.TransactionStatus{domain.TxStatusCompleted, domain.TxStatusCancelled} {
		tx := newTestTransaction(t)
		tx.Status = status

		_, _, err := AddLineItem(tx, domain.LineItemInput{ProductID: "SKU-X", Qty: 1, UnitPriceCents: 1}, testNow)
		require.ErrorIs(t, err, ErrInvalidState)

		qty := 4
		_, _, err = UpdateLineItem(tx, "SKU-BERAS-01", domain.LineItemUpdateRequest{Qty: &qty}, testNow)
		require.ErrorIs(t, err, ErrInvalidState)

		_, _, err = RemoveLineItem(tx, "SKU-BERAS-01", testNow)
		require.ErrorIs(t, err, ErrInvalidState)

		note := "late note"
		_, err = UpdateDetails(tx, domain.TransactionUpdateRequest{Note: &note}, testNow)
		require.ErrorIs(t, err, ErrInvalidState)

		var stateErr *StateError
		require.True(t, errors.As(err, &stateErr))
		require.Equal(t, string(status), stateErr.State)
	}
}

func TestCanDeleteTransaction(t *testing.T) {
	tx := newTestTransaction(t)
	require.True(t, CanDeleteTransaction(tx))

	tx.Status = domain.TxStatusCancelled
	require.True(t, CanDeleteTransaction(tx))

	tx.Status = domain.TxStatusCompleted
	require.False(t, CanDeleteTransaction(tx))
	require.ErrorIs(t, CheckTransactionDeletable(tx), ErrNotDeletable)
}
