package store

import (
	"context"
	"errors"

	"kasirinaja/backoffice/internal/domain"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrDuplicateTransaction = errors.New("transaction already has a payment")
	ErrInvalidRecord        = errors.New("invalid record")
)

// TransactionRepository persists sales transactions. Save is an upsert keyed
// by transaction id.
type TransactionRepository interface {
	LoadTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	SaveTransaction(ctx context.Context, tx domain.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
}

// PaymentRepository persists payments and their installments. A transaction
// carries at most one payment; saving a second one for the same transaction
// fails with ErrDuplicateTransaction.
type PaymentRepository interface {
	LoadPayment(ctx context.Context, id string) (*domain.Payment, error)
	SavePayment(ctx context.Context, p domain.Payment) error
	DeletePayment(ctx context.Context, id string) error
	ListPayments(ctx context.Context) ([]domain.Payment, error)
	FindPaymentByTransaction(ctx context.Context, transactionID string) (*domain.Payment, error)
}

// InventoryRepository tracks on-hand stock per product and the units each
// open transaction holds.
type InventoryRepository interface {
	GetStock(ctx context.Context, productIDs []string) (map[string]int, error)
	SetStock(ctx context.Context, productID string, qty int) error
	// ReserveStock changes the units held for transactionID. A positive Qty
	// moves units out of stock into the reservation; if any product is short
	// nothing is applied and ErrInsufficientStock is returned. A negative Qty
	// hands back at most what the transaction still holds for that product.
	ReserveStock(ctx context.Context, transactionID string, adjustments []domain.StockAdjustment) error
	// ReleaseReservation returns every unit held for transactionID to stock.
	// Releasing a transaction that holds nothing is a no-op.
	ReleaseReservation(ctx context.Context, transactionID string) error
}

type AuditRepository interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, entityID string, limit int) ([]domain.AuditLog, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	TransactionRepository
	PaymentRepository
	InventoryRepository
	AuditRepository
	UserRepository
}
