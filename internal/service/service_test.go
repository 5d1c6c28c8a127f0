package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/lifecycle"
	"kasirinaja/backoffice/internal/observer"
	"kasirinaja/backoffice/internal/store"
	"kasirinaja/backoffice/internal/store/memory"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) handler(name string) observer.HandlerFunc {
	return func(_ context.Context, event domain.Event) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.events = append(l.events, name+":"+string(event.Entity)+"."+string(event.Type))
		return nil
	}
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo, err := memory.NewSeeded(nil)
	require.NoError(t, err)
	svc := New(repo, nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return svc, repo
}

func adminCtx() context.Context {
	return domain.WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func cashierCtx() context.Context {
	return domain.WithActor(context.Background(), domain.Actor{Username: "cashier", Role: domain.RoleCashier})
}

func createSale(t *testing.T, svc *Service) domain.Transaction {
	t.Helper()
	tx, err := svc.CreateTransaction(cashierCtx(), domain.CreateTransactionRequest{
		CustomerID:   "cust-1",
		CustomerName: "Budi",
		Items: []domain.LineItemInput{
			{ProductID: "sku-beras-01", Qty: 2, UnitPriceCents: 100000},
			{ProductID: "SKU-MINYAK-01", Qty: 1, UnitPriceCents: 250000},
		},
	})
	require.NoError(t, err)
	return tx
}

func TestTransactionTotalsAndRemoveLineItemEvents(t *testing.T) {
	svc, _ := newTestService(t)
	events := &eventLog{}
	require.NoError(t, svc.RegisterObserver("recorder", events.handler("recorder")))

	tx := createSale(t, svc)
	require.Equal(t, int64(450000), tx.TotalCents)
	require.Equal(t, []string{"recorder:transaction.created"}, events.snapshot())

	events.reset()
	updated, err := svc.RemoveLineItem(cashierCtx(), tx.ID, "sku-minyak-01")
	require.NoError(t, err)
	require.Equal(t, int64(200000), updated.TotalCents)
	require.Equal(t, []string{"recorder:transaction.item_removed", "recorder:transaction.updated"}, events.snapshot())

	stored, err := svc.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, updated, stored)
}

func TestEveryObserverCalledOnceInOrder(t *testing.T) {
	svc, _ := newTestService(t)
	events := &eventLog{}
	for _, name := range []string{"first", "second", "third"} {
		require.NoError(t, svc.RegisterObserver(name, events.handler(name)))
	}
	require.Equal(t, []string{"first", "second", "third"}, svc.ObserverNames())

	tx := createSale(t, svc)
	events.reset()

	_, err := svc.CompleteTransaction(cashierCtx(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, []string{
		"first:transaction.completed",
		"second:transaction.completed",
		"third:transaction.completed",
	}, events.snapshot())

	require.True(t, svc.UnregisterObserver("second"))
	require.Equal(t, []string{"first", "third"}, svc.ObserverNames())
}

func TestClosedTransactionsRejectChanges(t *testing.T) {
	svc, _ := newTestService(t)
	events := &eventLog{}
	tx := createSale(t, svc)

	_, err := svc.CompleteTransaction(cashierCtx(), tx.ID)
	require.NoError(t, err)
	require.NoError(t, svc.RegisterObserver("recorder", events.handler("recorder")))

	_, err = svc.CompleteTransaction(cashierCtx(), tx.ID)
	require.ErrorIs(t, err, lifecycle.ErrInvalidState)
	_, err = svc.CancelTransaction(cashierCtx(), tx.ID)
	require.ErrorIs(t, err, lifecycle.ErrInvalidState)
	_, err = svc.AddLineItem(cashierCtx(), tx.ID, domain.LineItemInput{ProductID: "SKU-GULA-01", Qty: 1, UnitPriceCents: 17000})
	require.ErrorIs(t, err, lifecycle.ErrInvalidState)
	name := "Budi Santoso"
	_, err = svc.UpdateTransaction(cashierCtx(), tx.ID, domain.TransactionUpdateRequest{CustomerName: &name})
	require.ErrorIs(t, err, lifecycle.ErrInvalidState)

	require.Empty(t, events.snapshot(), "failed operations must not notify")
}

func TestUnknownIdentifiersAreNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CompleteTransaction(cashierCtx(), "tx-missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.AddLineItem(cashierCtx(), "tx-missing", domain.LineItemInput{ProductID: "SKU-A", Qty: 1})
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.UpdatePaymentStatus(cashierCtx(), "pay-missing", domain.PaymentStatusUpdateRequest{Status: "paid"})
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.AddInstallment(cashierCtx(), "pay-missing", domain.InstallmentRequest{AmountCents: 100})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, svc.DeletePayment(cashierCtx(), "pay-missing"), store.ErrNotFound)
}

func TestReopenRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	tx := createSale(t, svc)
	_, err := svc.CancelTransaction(cashierCtx(), tx.ID)
	require.NoError(t, err)

	_, err = svc.ReopenTransaction(cashierCtx(), tx.ID)
	require.ErrorIs(t, err, ErrForbidden)

	reopened, err := svc.ReopenTransaction(adminCtx(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusInProgress, reopened.Status)
}

func TestInstallmentPaymentFlow(t *testing.T) {
	svc, _ := newTestService(t)
	events := &eventLog{}
	require.NoError(t, svc.RegisterObserver("recorder", events.handler("recorder")))
	ctx := cashierCtx()

	cash, err := svc.CreatePayment(ctx, domain.CreatePaymentRequest{TransactionID: "tx-cash", AmountDueCents: 1000, Method: "cash"})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPaid, cash.Status)
	require.Len(t, cash.Installments, 1)
	require.Equal(t, []string{"recorder:payment.created", "recorder:payment.completed"}, events.snapshot())

	events.reset()
	p, err := svc.CreatePayment(ctx, domain.CreatePaymentRequest{TransactionID: "tx-credit", AmountDueCents: 3000, Method: "bank_transfer"})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPending, p.Status)

	p, err = svc.UpdatePaymentStatus(ctx, p.ID, domain.PaymentStatusUpdateRequest{Status: "installment", InitialInstallmentCents: 1000})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusInstallment, p.Status)
	require.Len(t, p.Installments, 1)

	p, err = svc.AddInstallment(ctx, p.ID, domain.InstallmentRequest{AmountCents: 1000})
	require.NoError(t, err)
	require.Len(t, p.Installments, 2)
	require.Equal(t, domain.PaymentStatusInstallment, p.Status)

	p, err = svc.AddInstallment(ctx, p.ID, domain.InstallmentRequest{AmountCents: 1000})
	require.NoError(t, err)
	require.Len(t, p.Installments, 3)
	require.Equal(t, domain.PaymentStatusPaid, p.Status)

	_, err = svc.AddInstallment(ctx, p.ID, domain.InstallmentRequest{AmountCents: 500})
	require.ErrorIs(t, err, lifecycle.ErrAlreadySettled)
	require.ErrorIs(t, svc.DeletePayment(ctx, p.ID), lifecycle.ErrNotDeletable)

	require.Equal(t, []string{
		"recorder:payment.created",
		"recorder:payment.updated",
		"recorder:payment.item_added",
		"recorder:payment.item_added",
		"recorder:payment.item_added",
		"recorder:payment.completed",
	}, events.snapshot())
}

func TestCreatePaymentRejectsSecondPaymentForTransaction(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx()

	_, err := svc.CreatePayment(ctx, domain.CreatePaymentRequest{TransactionID: "tx-1", AmountDueCents: 1000, Method: "ewallet"})
	require.NoError(t, err)
	_, err = svc.CreatePayment(ctx, domain.CreatePaymentRequest{TransactionID: " tx-1 ", AmountDueCents: 1000, Method: "cash"})
	require.ErrorIs(t, err, store.ErrDuplicateTransaction)

	_, err = svc.CreatePayment(ctx, domain.CreatePaymentRequest{TransactionID: "tx-2", AmountDueCents: 0, Method: "cash"})
	require.ErrorIs(t, err, lifecycle.ErrInvalidAmount)
}

func TestConcurrentCreatePaymentAllowsExactlyOne(t *testing.T) {
	svc, _ := newTestService(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created, duplicates := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreatePayment(context.Background(), domain.CreatePaymentRequest{TransactionID: "tx-race", AmountDueCents: 500, Method: "credit_card"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, store.ErrDuplicateTransaction):
				duplicates++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, created)
	require.Equal(t, 19, duplicates)
}

func TestConcurrentInstallmentsNeverOverpay(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.CreatePayment(ctx, domain.CreatePaymentRequest{TransactionID: "tx-1", AmountDueCents: 1000, Method: "ewallet"})
	require.NoError(t, err)
	_, err = svc.UpdatePaymentStatus(ctx, p.ID, domain.PaymentStatusUpdateRequest{Status: "installment"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.AddInstallment(ctx, p.ID, domain.InstallmentRequest{AmountCents: 100})
		}()
	}
	wg.Wait()

	final, err := svc.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPaid, final.Status)
	require.Len(t, final.Installments, 10)
	require.Equal(t, int64(1000), final.PaidCents())
}

func TestDeleteTransaction(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx()

	done := createSale(t, svc)
	_, err := svc.CompleteTransaction(ctx, done.ID)
	require.NoError(t, err)
	require.ErrorIs(t, svc.DeleteTransaction(ctx, done.ID), lifecycle.ErrNotDeletable)

	paid := createSale(t, svc)
	_, err = svc.CreatePayment(ctx, domain.CreatePaymentRequest{TransactionID: paid.ID, AmountDueCents: paid.TotalCents, Method: "cash"})
	require.NoError(t, err)
	require.ErrorIs(t, svc.DeleteTransaction(ctx, paid.ID), lifecycle.ErrNotDeletable)

	open := createSale(t, svc)
	require.NoError(t, svc.DeleteTransaction(ctx, open.ID))
	_, err = svc.GetTransaction(ctx, open.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestBuiltinsTrackStockAuditAndAnalytics(t *testing.T) {
	repo, err := memory.NewSeeded(nil)
	require.NoError(t, err)
	dispatcher := observer.NewDispatcher(nil)
	analytics, err := observer.RegisterBuiltins(dispatcher, observer.Builtins{Inventory: repo, Audit: repo})
	require.NoError(t, err)
	svc := New(repo, dispatcher, analytics, nil)
	ctx := cashierCtx()

	tx := createSale(t, svc)
	stock, err := svc.GetStock(ctx, []string{"sku-beras-01", "SKU-MINYAK-01"})
	require.NoError(t, err)
	require.Equal(t, map[string]int{"SKU-BERAS-01": 118, "SKU-MINYAK-01": 119}, stock)

	_, err = svc.UpdateLineItem(ctx, tx.ID, "SKU-BERAS-01", domain.LineItemUpdateRequest{Qty: intPtr(5)})
	require.NoError(t, err)
	_, err = svc.CancelTransaction(ctx, tx.ID)
	require.NoError(t, err)
	stock, err = svc.GetStock(ctx, []string{"SKU-BERAS-01", "SKU-MINYAK-01"})
	require.NoError(t, err)
	require.Equal(t, map[string]int{"SKU-BERAS-01": 120, "SKU-MINYAK-01": 120}, stock)

	sold := createSale(t, svc)
	_, err = svc.CompleteTransaction(ctx, sold.ID)
	require.NoError(t, err)

	report := svc.AnalyticsReport(ctx)
	require.Equal(t, int64(450000), report.RevenueCents)
	require.Equal(t, int64(1), report.CompletedTransactions)
	require.Equal(t, int64(1), report.CancelledTransactions)

	logs, err := svc.ListAuditLogs(adminCtx(), sold.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, "cashier", logs[0].ActorUsername)

	_, err = svc.ListAuditLogs(ctx, "", 10)
	require.ErrorIs(t, err, ErrForbidden)
}

type failingSaveRepo struct {
	*memory.Store
	err error
}

func (r failingSaveRepo) SaveTransaction(context.Context, domain.Transaction) error {
	return r.err
}

func TestPersistenceErrorsPassThroughWithoutNotifying(t *testing.T) {
	diskFull := errors.New("disk full")
	svc := New(failingSaveRepo{Store: memory.New(), err: diskFull}, nil, nil, nil)
	events := &eventLog{}
	require.NoError(t, svc.RegisterObserver("recorder", events.handler("recorder")))

	_, err := svc.CreateTransaction(context.Background(), domain.CreateTransactionRequest{CustomerID: "c-1", CustomerName: "Ani"})
	require.Same(t, diskFull, err)
	require.Empty(t, events.snapshot())
}

func TestFailingObserverDoesNotFailOperation(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.RegisterObserver("broken", observer.HandlerFunc(func(context.Context, domain.Event) error {
		panic("observer bug")
	})))

	tx := createSale(t, svc)
	_, err := svc.CompleteTransaction(cashierCtx(), tx.ID)
	require.NoError(t, err)
}

func TestListTransactionsAppliesQuery(t *testing.T) {
	svc, _ := newTestService(t)
	for i := 0; i < 3; i++ {
		createSale(t, svc)
	}

	page, err := svc.ListTransactions(context.Background(), domain.ListQuery{SortBy: "customer", FilterField: "customer", Keyword: "BUD", Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 3, page.TotalCount)
	require.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 1)
}

func TestDailyAnalyticsNeedsSource(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.DailyAnalyticsReport(context.Background(), time.Now())
	require.ErrorIs(t, err, ErrAnalyticsUnavailable)

	svc.WithDailyTotals(fixedDaily{RevenueCents: 9000, CompletedTransactions: 2})
	report, err := svc.DailyAnalyticsReport(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, "4500.00", report.AverageTicketCents)
}

type fixedDaily domain.AnalyticsDelta

func (d fixedDaily) Day(context.Context, time.Time) (domain.AnalyticsDelta, error) {
	return domain.AnalyticsDelta(d), nil
}

func intPtr(v int) *int {
	return &v
}

func TestCancelAfterStockShortageKeepsStockUnchanged(t *testing.T) {
	repo, err := memory.NewSeeded(nil)
	require.NoError(t, err)
	dispatcher := observer.NewDispatcher(nil)
	analytics, err := observer.RegisterBuiltins(dispatcher, observer.Builtins{Inventory: repo, Audit: repo})
	require.NoError(t, err)
	svc := New(repo, dispatcher, analytics, nil)

	require.NoError(t, svc.SetStock(adminCtx(), "SKU-GULA-01", 1))
	tx, err := svc.CreateTransaction(cashierCtx(), domain.CreateTransactionRequest{
		CustomerID:   "cust-9",
		CustomerName: "Rina",
		Items:        []domain.LineItemInput{{ProductID: "SKU-GULA-01", Qty: 5, UnitPriceCents: 1500}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), dispatcher.Failures())

	_, err = svc.CancelTransaction(cashierCtx(), tx.ID)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteTransaction(cashierCtx(), tx.ID))

	stock, err := svc.GetStock(cashierCtx(), []string{"SKU-GULA-01"})
	require.NoError(t, err)
	require.Equal(t, 1, stock["SKU-GULA-01"])
}

// pausingFindRepo blocks the first payment lookup until release is closed.
type pausingFindRepo struct {
	*memory.Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (r *pausingFindRepo) FindPaymentByTransaction(ctx context.Context, transactionID string) (*domain.Payment, error) {
	r.once.Do(func() {
		close(r.entered)
		<-r.release
	})
	return r.Store.FindPaymentByTransaction(ctx, transactionID)
}

func TestDeleteTransactionSerialisesWithPaymentCreation(t *testing.T) {
	repo := &pausingFindRepo{Store: memory.New(), entered: make(chan struct{}), release: make(chan struct{})}
	svc := New(repo, nil, nil, nil)
	ctx := cashierCtx()

	tx, err := svc.CreateTransaction(ctx, domain.CreateTransactionRequest{CustomerID: "c-1", CustomerName: "Ani"})
	require.NoError(t, err)

	deleted := make(chan error, 1)
	go func() { deleted <- svc.DeleteTransaction(ctx, tx.ID) }()
	<-repo.entered

	created := make(chan error, 1)
	go func() {
		_, err := svc.CreatePayment(ctx, domain.CreatePaymentRequest{TransactionID: tx.ID, AmountDueCents: 1000, Method: "ewallet"})
		created <- err
	}()

	select {
	case err := <-created:
		t.Fatalf("payment created while the delete was still checking for one: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(repo.release)
	require.NoError(t, <-deleted)
	require.NoError(t, <-created)

	_, err = svc.GetTransaction(ctx, tx.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}
