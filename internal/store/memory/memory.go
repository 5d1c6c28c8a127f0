package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/store"
	"kasirinaja/backoffice/internal/xid"
)

type Store struct {
	mu                   sync.RWMutex
	transactionsByID     map[string]domain.Transaction
	paymentsByID         map[string]domain.Payment
	paymentByTransaction map[string]string
	stock                map[string]int
	reservations         map[string]map[string]int
	auditLogs            []domain.AuditLog
	usersByUsername      map[string]domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

// New returns an empty store with no stock and no users.
func New() *Store {
	return &Store{
		transactionsByID:     make(map[string]domain.Transaction),
		paymentsByID:         make(map[string]domain.Payment),
		paymentByTransaction: make(map[string]string),
		stock:                make(map[string]int),
		reservations:         make(map[string]map[string]int),
		auditLogs:            make([]domain.AuditLog, 0, 128),
		usersByUsername:      make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with demo stock and operator accounts for local
// runs. The backend uses PostgreSQL whenever DATABASE_URL is set.
func NewSeeded(logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()
	for _, productID := range []string{
		"SKU-BERAS-01", "SKU-MINYAK-01", "SKU-GULA-01", "SKU-TELUR-01",
		"SKU-SUSU-01", "SKU-KOPI-01", "SKU-TEH-01", "SKU-SABUN-01",
	} {
		s.stock[productID] = 120
	}
	users, err := seedUsers(logger)
	if err != nil {
		return nil, err
	}
	s.usersByUsername = users
	return s, nil
}

// seedUsers reads SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD and falls
// back to dev defaults with a warning.
func seedUsers(logger *zap.Logger) (map[string]domain.UserAccount, error) {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn("memory store uses default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) LoadTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := tx.Clone()
	return &out, nil
}

func (s *Store) SaveTransaction(_ context.Context, tx domain.Transaction) error {
	if tx.ID == "" {
		return store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactionsByID[tx.ID] = tx.Clone()
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactionsByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.transactionsByID, id)
	return nil
}

func (s *Store) ListTransactions(_ context.Context) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, len(s.transactionsByID))
	for _, tx := range s.transactionsByID {
		result = append(result, tx.Clone())
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		return cmpString(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) LoadPayment(_ context.Context, id string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.paymentsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := p.Clone()
	return &out, nil
}

func (s *Store) SavePayment(_ context.Context, p domain.Payment) error {
	if p.ID == "" || p.TransactionID == "" {
		return store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.paymentByTransaction[p.TransactionID]; ok && owner != p.ID {
		return store.ErrDuplicateTransaction
	}
	if prev, ok := s.paymentsByID[p.ID]; ok && prev.TransactionID != p.TransactionID {
		delete(s.paymentByTransaction, prev.TransactionID)
	}
	s.paymentsByID[p.ID] = p.Clone()
	s.paymentByTransaction[p.TransactionID] = p.ID
	return nil
}

func (s *Store) DeletePayment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.paymentsByID[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.paymentsByID, id)
	delete(s.paymentByTransaction, p.TransactionID)
	return nil
}

func (s *Store) ListPayments(_ context.Context) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Payment, 0, len(s.paymentsByID))
	for _, p := range s.paymentsByID {
		result = append(result, p.Clone())
	}
	slices.SortFunc(result, func(a, b domain.Payment) int {
		return cmpString(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) FindPaymentByTransaction(_ context.Context, transactionID string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.paymentByTransaction[transactionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := s.paymentsByID[id].Clone()
	return &out, nil
}

func (s *Store) GetStock(_ context.Context, productIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stockMap := make(map[string]int, len(productIDs))
	for _, productID := range productIDs {
		stockMap[productID] = s.stock[productID]
	}
	return stockMap, nil
}

func (s *Store) SetStock(_ context.Context, productID string, qty int) error {
	if productID == "" || qty < 0 {
		return store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stock[productID] = qty
	return nil
}

func (s *Store) ReserveStock(_ context.Context, transactionID string, adjustments []domain.StockAdjustment) error {
	if transactionID == "" {
		return store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	held := s.reservations[transactionID]
	nextStock := make(map[string]int, len(adjustments))
	nextHeld := make(map[string]int, len(adjustments))
	for _, adj := range adjustments {
		if adj.ProductID == "" {
			return store.ErrInvalidRecord
		}
		stock, seen := nextStock[adj.ProductID]
		if !seen {
			stock = s.stock[adj.ProductID]
		}
		reserved, seen := nextHeld[adj.ProductID]
		if !seen {
			reserved = held[adj.ProductID]
		}

		move := adj.Qty
		if move < 0 {
			move = -min(-move, reserved)
		}
		if stock-move < 0 {
			return fmt.Errorf("%w: %s", store.ErrInsufficientStock, adj.ProductID)
		}
		nextStock[adj.ProductID] = stock - move
		nextHeld[adj.ProductID] = reserved + move
	}

	if held == nil {
		held = make(map[string]int, len(nextHeld))
		s.reservations[transactionID] = held
	}
	for productID, qty := range nextStock {
		s.stock[productID] = qty
	}
	for productID, qty := range nextHeld {
		if qty == 0 {
			delete(held, productID)
			continue
		}
		held[productID] = qty
	}
	if len(held) == 0 {
		delete(s.reservations, transactionID)
	}
	return nil
}

func (s *Store) ReleaseReservation(_ context.Context, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for productID, qty := range s.reservations[transactionID] {
		s.stock[productID] += qty
	}
	delete(s.reservations, transactionID)
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

// ListAuditLogs returns the newest entries first. An empty entityID matches
// every entry.
func (s *Store) ListAuditLogs(_ context.Context, entityID string, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entityID != "" && entry.EntityID != entityID {
			continue
		}
		result = append(result, entry)
	}

	slices.SortStableFunc(result, func(a, b domain.AuditLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidRecord
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
