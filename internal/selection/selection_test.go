package selection

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kasirinaja/backoffice/internal/domain"
)

func sampleTransactions() []domain.Transaction {
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	return []domain.Transaction{
		{ID: "tx-1", CustomerName: "Citra", TotalCents: 5000, Status: domain.TxStatusCompleted, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "tx-2", CustomerName: "ani", TotalCents: 12000, Status: domain.TxStatusInProgress, Note: "Antar ke gudang", CreatedAt: base},
		{ID: "tx-3", CustomerName: "Budi", TotalCents: 5000, Status: domain.TxStatusCancelled, CreatedAt: base.Add(time.Hour)},
	}
}

func ids(items []domain.Transaction) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestTransactionsSort(t *testing.T) {
	items := sampleTransactions()

	require.Equal(t, []string{"tx-2", "tx-3", "tx-1"}, ids(Transactions.Sort(items, "date", "")))
	require.Equal(t, []string{"tx-1", "tx-3", "tx-2"}, ids(Transactions.Sort(items, "date", "DESC")))
	require.Equal(t, []string{"tx-2", "tx-3", "tx-1"}, ids(Transactions.Sort(items, "customer", "asc")))
	require.Equal(t, []string{"tx-1", "tx-3", "tx-2"}, ids(Transactions.Sort(items, "total", "asc")), "ties keep input order")
	require.Equal(t, []string{"tx-1", "tx-2", "tx-3"}, ids(items), "input must not be reordered")
}

func TestUnknownKeysPassThrough(t *testing.T) {
	items := sampleTransactions()

	require.Equal(t, ids(items), ids(Transactions.Sort(items, "margin", "desc")))
	require.Equal(t, ids(items), ids(Transactions.Filter(items, "cashier", "budi")))
	require.Equal(t, ids(items), ids(Transactions.Filter(items, "customer", "  ")))
}

func TestTransactionsFilterIsCaseInsensitiveSubstring(t *testing.T) {
	items := sampleTransactions()

	require.Equal(t, []string{"tx-2"}, ids(Transactions.Filter(items, "customer", "AN")))
	require.Equal(t, []string{"tx-2"}, ids(Transactions.Filter(items, "note", "gudang")))
	require.Equal(t, []string{"tx-1", "tx-3"}, ids(Transactions.Filter(items, "total", "5000")))
	require.Equal(t, []string{"tx-3"}, ids(Transactions.Filter(items, "status", "cancel")))
	require.Empty(t, Transactions.Filter(items, "id", "tx-9"))
}

func TestPaginate(t *testing.T) {
	items := make([]int, 45)
	for i := range items {
		items[i] = i
	}

	page := Paginate(items, 0, 0)
	require.Equal(t, 1, page.Page)
	require.Equal(t, DefaultLimit, page.Limit)
	require.Equal(t, 45, page.TotalCount)
	require.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 20)

	page = Paginate(items, 3, 20)
	require.Equal(t, []int{40, 41, 42, 43, 44}, page.Items)

	page = Paginate(items, 4, 20)
	require.NotNil(t, page.Items)
	require.Empty(t, page.Items)

	page = Paginate(items, 1, 500)
	require.Equal(t, MaxLimit, page.Limit)
	require.Equal(t, 1, page.TotalPages)
	require.Len(t, page.Items, 45)

	far := Paginate([]int{1, 2, 3}, math.MaxInt, 20)
	require.Empty(t, far.Items)
	require.Equal(t, math.MaxInt, far.Page)
	require.Equal(t, 1, far.TotalPages)

	empty := Paginate([]int{}, 1, 10)
	require.Equal(t, 0, empty.TotalPages)
	require.Empty(t, empty.Items)
}

func TestApplySortsThenFiltersThenPages(t *testing.T) {
	result := Transactions.Apply(sampleTransactions(), domain.ListQuery{
		SortBy:      "date",
		Order:       "desc",
		FilterField: "total",
		Keyword:     "5000",
		Page:        1,
		Limit:       1,
	})
	require.Equal(t, 2, result.TotalCount)
	require.Equal(t, 2, result.TotalPages)
	require.Equal(t, []string{"tx-1"}, ids(result.Items))
}

func TestPaymentsStrategy(t *testing.T) {
	payments := []domain.Payment{
		{ID: "pay-1", TransactionID: "tx-1", AmountDueCents: 3000, Method: domain.PaymentMethodEWallet, Status: domain.PaymentStatusPaid},
		{ID: "pay-2", TransactionID: "tx-2", AmountDueCents: 1000, Method: domain.PaymentMethodCash, Status: domain.PaymentStatusPaid},
		{ID: "pay-3", TransactionID: "tx-3", AmountDueCents: 2000, Method: domain.PaymentMethodBankTransfer, Status: domain.PaymentStatusInstallment},
	}

	sorted := Payments.Sort(payments, "amount", "desc")
	require.Equal(t, "pay-1", sorted[0].ID)
	require.Equal(t, "pay-2", sorted[2].ID)

	byMethod := Payments.Sort(payments, "method", "")
	require.Equal(t, domain.PaymentMethodBankTransfer, byMethod[0].Method)

	filtered := Payments.Filter(payments, "status", "INSTALL")
	require.Len(t, filtered, 1)
	require.Equal(t, "pay-3", filtered[0].ID)

	require.Equal(t, []string{"amount", "date", "method", "status"}, Payments.SortKeys())
	require.Contains(t, Payments.FilterFields(), "transaction")
}
