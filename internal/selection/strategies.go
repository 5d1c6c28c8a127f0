package selection

import (
	"cmp"
	"strconv"
	"strings"

	"kasirinaja/backoffice/internal/domain"
)

// Transactions sorts by date, total, customer or status and filters on id,
// customer, customer_id, status, note or total.
var Transactions = NewStrategy(
	map[string]func(a, b domain.Transaction) int{
		"date": func(a, b domain.Transaction) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		},
		"total": func(a, b domain.Transaction) int {
			return cmp.Compare(a.TotalCents, b.TotalCents)
		},
		"customer": func(a, b domain.Transaction) int {
			return cmp.Compare(strings.ToLower(a.CustomerName), strings.ToLower(b.CustomerName))
		},
		"status": func(a, b domain.Transaction) int {
			return cmp.Compare(a.Status, b.Status)
		},
	},
	map[string]func(domain.Transaction) string{
		"id":          func(t domain.Transaction) string { return t.ID },
		"customer":    func(t domain.Transaction) string { return t.CustomerName },
		"customer_id": func(t domain.Transaction) string { return t.CustomerID },
		"status":      func(t domain.Transaction) string { return string(t.Status) },
		"note":        func(t domain.Transaction) string { return t.Note },
		"total":       func(t domain.Transaction) string { return strconv.FormatInt(t.TotalCents, 10) },
	},
)

// Payments sorts by date, amount, status or method and filters on id,
// transaction, status, method or amount.
var Payments = NewStrategy(
	map[string]func(a, b domain.Payment) int{
		"date": func(a, b domain.Payment) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		},
		"amount": func(a, b domain.Payment) int {
			return cmp.Compare(a.AmountDueCents, b.AmountDueCents)
		},
		"status": func(a, b domain.Payment) int {
			return cmp.Compare(a.Status, b.Status)
		},
		"method": func(a, b domain.Payment) int {
			return cmp.Compare(a.Method, b.Method)
		},
	},
	map[string]func(domain.Payment) string{
		"id":          func(p domain.Payment) string { return p.ID },
		"transaction": func(p domain.Payment) string { return p.TransactionID },
		"status":      func(p domain.Payment) string { return string(p.Status) },
		"method":      func(p domain.Payment) string { return string(p.Method) },
		"amount":      func(p domain.Payment) string { return strconv.FormatInt(p.AmountDueCents, 10) },
	},
)
