package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/store"
	"kasirinaja/backoffice/internal/xid"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded goose migrations.
func (s *Store) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.db)
}

func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

func (s *Store) LoadTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, customer_name, items, total_cents, status, note, created_at, updated_at
		FROM transactions
		WHERE id = $1
	`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (s *Store) SaveTransaction(ctx context.Context, tx domain.Transaction) error {
	if tx.ID == "" {
		return store.ErrInvalidRecord
	}
	items, err := json.Marshal(nonNilItems(tx.Items))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, customer_id, customer_name, items, total_cents, status, note, created_at, updated_at)
		VALUES ($1,$2,$3,$4::jsonb,$5,$6,$7,$8,$9)
		ON CONFLICT (id)
		DO UPDATE SET
			customer_name = EXCLUDED.customer_name,
			items = EXCLUDED.items,
			total_cents = EXCLUDED.total_cents,
			status = EXCLUDED.status,
			note = EXCLUDED.note,
			updated_at = EXCLUDED.updated_at
	`, tx.ID, tx.CustomerID, tx.CustomerName, string(items), tx.TotalCents, string(tx.Status), tx.Note, tx.CreatedAt, tx.UpdatedAt)
	return err
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, customer_name, items, total_cents, status, note, created_at, updated_at
		FROM transactions
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) LoadPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return s.findPayment(ctx, "id", id)
}

func (s *Store) FindPaymentByTransaction(ctx context.Context, transactionID string) (*domain.Payment, error) {
	return s.findPayment(ctx, "transaction_id", transactionID)
}

func (s *Store) findPayment(ctx context.Context, column string, value string) (*domain.Payment, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, transaction_id, amount_due_cents, method, status, installments, created_at, updated_at
		FROM payments
		WHERE %s = $1
	`, column), value)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) SavePayment(ctx context.Context, p domain.Payment) error {
	if p.ID == "" || p.TransactionID == "" {
		return store.ErrInvalidRecord
	}
	installments := p.Installments
	if installments == nil {
		installments = []domain.Installment{}
	}
	payload, err := json.Marshal(installments)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO payments (id, transaction_id, amount_due_cents, method, status, installments, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7,$8)
		ON CONFLICT (id)
		DO UPDATE SET
			status = EXCLUDED.status,
			installments = EXCLUDED.installments,
			updated_at = EXCLUDED.updated_at
	`, p.ID, p.TransactionID, p.AmountDueCents, string(p.Method), string(p.Status), string(payload), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateTransaction
		}
		return err
	}
	return nil
}

func (s *Store) DeletePayment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, amount_due_cents, method, status, installments, created_at, updated_at
		FROM payments
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Payment, 0, 64)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetStock(ctx context.Context, productIDs []string) (map[string]int, error) {
	stockMap := make(map[string]int, len(productIDs))
	if len(productIDs) == 0 {
		return stockMap, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, qty
		FROM inventory_stocks
		WHERE product_id = ANY($1)
	`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var productID string
		var qty int
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		stockMap[productID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, productID := range productIDs {
		if _, ok := stockMap[productID]; !ok {
			stockMap[productID] = 0
		}
	}
	return stockMap, nil
}

func (s *Store) SetStock(ctx context.Context, productID string, qty int) error {
	if productID == "" || qty < 0 {
		return store.ErrInvalidRecord
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_stocks (product_id, qty, updated_at)
		VALUES ($1,$2,now())
		ON CONFLICT (product_id)
		DO UPDATE SET qty = EXCLUDED.qty, updated_at = now()
	`, productID, qty)
	return err
}

func (s *Store) ReserveStock(ctx context.Context, transactionID string, adjustments []domain.StockAdjustment) error {
	if transactionID == "" {
		return store.ErrInvalidRecord
	}
	if len(adjustments) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, adj := range adjustments {
		if adj.ProductID == "" {
			return store.ErrInvalidRecord
		}
		switch {
		case adj.Qty > 0:
			if err := reserveUnits(ctx, tx, transactionID, adj.ProductID, adj.Qty); err != nil {
				return err
			}
		case adj.Qty < 0:
			if err := returnUnits(ctx, tx, transactionID, adj.ProductID, -adj.Qty); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func reserveUnits(ctx context.Context, tx *sql.Tx, transactionID string, productID string, qty int) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE inventory_stocks
		SET qty = qty - $2, updated_at = now()
		WHERE product_id = $1 AND qty >= $2
	`, productID, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", store.ErrInsufficientStock, productID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_reservations (transaction_id, product_id, qty, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (transaction_id, product_id)
		DO UPDATE SET qty = stock_reservations.qty + EXCLUDED.qty, updated_at = now()
	`, transactionID, productID, qty)
	return err
}

// returnUnits hands back up to qty units, bounded by what the transaction
// holds for productID.
func returnUnits(ctx context.Context, tx *sql.Tx, transactionID string, productID string, qty int) error {
	var held int
	err := tx.QueryRowContext(ctx, `
		SELECT qty FROM stock_reservations
		WHERE transaction_id = $1 AND product_id = $2
		FOR UPDATE
	`, transactionID, productID).Scan(&held)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	release := min(qty, held)
	if release == held {
		_, err = tx.ExecContext(ctx, `DELETE FROM stock_reservations WHERE transaction_id = $1 AND product_id = $2`, transactionID, productID)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE stock_reservations SET qty = qty - $3, updated_at = now()
			WHERE transaction_id = $1 AND product_id = $2
		`, transactionID, productID, release)
	}
	if err != nil {
		return err
	}
	return restock(ctx, tx, productID, release)
}

func restock(ctx context.Context, tx *sql.Tx, productID string, qty int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_stocks (product_id, qty, updated_at)
		VALUES ($1,$2,now())
		ON CONFLICT (product_id)
		DO UPDATE SET qty = inventory_stocks.qty + EXCLUDED.qty, updated_at = now()
	`, productID, qty)
	return err
}

func (s *Store) ReleaseReservation(ctx context.Context, transactionID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		DELETE FROM stock_reservations
		WHERE transaction_id = $1
		RETURNING product_id, qty
	`, transactionID)
	if err != nil {
		return err
	}
	released := make([]domain.StockAdjustment, 0, 8)
	for rows.Next() {
		var adj domain.StockAdjustment
		if err := rows.Scan(&adj.ProductID, &adj.Qty); err != nil {
			rows.Close()
			return err
		}
		released = append(released, adj)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, adj := range released {
		if err := restock(ctx, tx, adj.ProductID, adj.Qty); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, entityID string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE $1 = '' OR entity_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidRecord
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		tx     domain.Transaction
		items  []byte
		status string
	)
	if err := row.Scan(&tx.ID, &tx.CustomerID, &tx.CustomerName, &items, &tx.TotalCents, &status, &tx.Note, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
		return domain.Transaction{}, err
	}
	if err := json.Unmarshal(items, &tx.Items); err != nil {
		return domain.Transaction{}, fmt.Errorf("decode items of %s: %w", tx.ID, err)
	}
	tx.Items = nonNilItems(tx.Items)
	tx.Status = domain.TransactionStatus(status)
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.UpdatedAt = tx.UpdatedAt.UTC()
	return tx, nil
}

func scanPayment(row rowScanner) (domain.Payment, error) {
	var (
		p            domain.Payment
		method       string
		status       string
		installments []byte
	)
	if err := row.Scan(&p.ID, &p.TransactionID, &p.AmountDueCents, &method, &status, &installments, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Payment{}, err
	}
	if err := json.Unmarshal(installments, &p.Installments); err != nil {
		return domain.Payment{}, fmt.Errorf("decode installments of %s: %w", p.ID, err)
	}
	if p.Installments == nil {
		p.Installments = []domain.Installment{}
	}
	p.Method = domain.PaymentMethod(method)
	p.Status = domain.PaymentStatus(status)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func nonNilItems(items []domain.LineItem) []domain.LineItem {
	if items == nil {
		return []domain.LineItem{}
	}
	return items
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
