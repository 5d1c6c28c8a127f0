package domain

import "time"

type TransactionStatus string

const (
	TxStatusInProgress TransactionStatus = "in_progress"
	TxStatusCompleted  TransactionStatus = "completed"
	TxStatusCancelled  TransactionStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending     PaymentStatus = "pending"
	PaymentStatusInstallment PaymentStatus = "installment"
	PaymentStatusPaid        PaymentStatus = "paid"
	PaymentStatusCancelled   PaymentStatus = "cancelled"
)

// ParsePaymentStatus accepts the wire spelling of a payment status.
func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	switch status := PaymentStatus(raw); status {
	case PaymentStatusPending, PaymentStatusInstallment, PaymentStatusPaid, PaymentStatusCancelled:
		return status, true
	default:
		return "", false
	}
}

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodEWallet      PaymentMethod = "ewallet"
)

func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch method := PaymentMethod(raw); method {
	case PaymentMethodCash, PaymentMethodCreditCard, PaymentMethodBankTransfer, PaymentMethodEWallet:
		return method, true
	default:
		return "", false
	}
}

// SettlesOnCreate reports whether money changes hands at the counter, so the
// payment is fully paid the moment it is recorded.
func (m PaymentMethod) SettlesOnCreate() bool {
	switch m {
	case PaymentMethodCash:
		return true
	case PaymentMethodCreditCard, PaymentMethodBankTransfer, PaymentMethodEWallet:
		return false
	default:
		return false
	}
}

type LineItem struct {
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

type Transaction struct {
	ID           string            `json:"id"`
	CustomerID   string            `json:"customer_id"`
	CustomerName string            `json:"customer_name"`
	Items        []LineItem        `json:"items"`
	TotalCents   int64             `json:"total_cents"`
	Status       TransactionStatus `json:"status"`
	Note         string            `json:"note,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Clone returns a deep copy so callers can keep the previous version around.
func (t Transaction) Clone() Transaction {
	out := t
	if t.Items != nil {
		out.Items = make([]LineItem, len(t.Items))
		copy(out.Items, t.Items)
	}
	return out
}

// FindItem returns the index of the line for productID, or -1.
func (t Transaction) FindItem(productID string) int {
	for i, item := range t.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

type Installment struct {
	ID          string    `json:"id"`
	PaymentID   string    `json:"payment_id"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

type Payment struct {
	ID             string        `json:"id"`
	TransactionID  string        `json:"transaction_id"`
	AmountDueCents int64         `json:"amount_due_cents"`
	Method         PaymentMethod `json:"method"`
	Status         PaymentStatus `json:"status"`
	Installments   []Installment `json:"installments"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (p Payment) Clone() Payment {
	out := p
	if p.Installments != nil {
		out.Installments = make([]Installment, len(p.Installments))
		copy(out.Installments, p.Installments)
	}
	return out
}

// PaidCents is the accrued sum of all installments.
func (p Payment) PaidCents() int64 {
	var sum int64
	for _, inst := range p.Installments {
		sum += inst.AmountCents
	}
	return sum
}

func (p Payment) RemainingCents() int64 {
	remaining := p.AmountDueCents - p.PaidCents()
	if remaining < 0 {
		return 0
	}
	return remaining
}

type StockAdjustment struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

type Actor struct {
	Username string
	Role     string
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// UserAccount is an internal model for operator credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type StockUpdateRequest struct {
	Qty int `json:"qty"`
}

type LineItemInput struct {
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type CreateTransactionRequest struct {
	CustomerID   string          `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	Items        []LineItemInput `json:"items"`
	Note         string          `json:"note"`
}

type TransactionUpdateRequest struct {
	CustomerName *string `json:"customer_name,omitempty"`
	Note         *string `json:"note,omitempty"`
}

type LineItemUpdateRequest struct {
	Qty            *int   `json:"qty,omitempty"`
	UnitPriceCents *int64 `json:"unit_price_cents,omitempty"`
}

type CreatePaymentRequest struct {
	TransactionID  string `json:"transaction_id"`
	AmountDueCents int64  `json:"amount_due_cents"`
	Method         string `json:"method"`
}

type PaymentStatusUpdateRequest struct {
	Status                  string `json:"status"`
	InitialInstallmentCents int64  `json:"initial_installment_cents,omitempty"`
}

type InstallmentRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

type ListQuery struct {
	SortBy      string
	Order       string
	FilterField string
	Keyword     string
	Page        int
	Limit       int
}

type ListResult[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
}

// AnalyticsDelta is the change one event makes to the running sales
// figures. Reopening a closed transaction produces negative values.
type AnalyticsDelta struct {
	At                    time.Time
	RevenueCents          int64
	LossCents             int64
	CompletedTransactions int64
	CancelledTransactions int64
	SettledPayments       int64
	CollectedCents        int64
}

func (d AnalyticsDelta) IsZero() bool {
	return d.RevenueCents == 0 && d.LossCents == 0 && d.CompletedTransactions == 0 &&
		d.CancelledTransactions == 0 && d.SettledPayments == 0 && d.CollectedCents == 0
}

type AnalyticsReport struct {
	RevenueCents          int64  `json:"revenue_cents"`
	LossCents             int64  `json:"loss_cents"`
	CompletedTransactions int64  `json:"completed_transactions"`
	CancelledTransactions int64  `json:"cancelled_transactions"`
	SettledPayments       int64  `json:"settled_payments"`
	CollectedCents        int64  `json:"collected_cents"`
	AverageTicketCents    string `json:"average_ticket_cents"`
	LossRatio             string `json:"loss_ratio"`
}
