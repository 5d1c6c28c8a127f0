package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kasirinaja/backoffice/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func plainAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := plainAdminStore()
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)

	_, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)

	users, err := store.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.NotEqual(t, "admin123", users[0].Password)
	require.True(t, strings.HasPrefix(users[0].Password, "$2"))
	require.Positive(t, store.updates)
}

func TestLoginRejectsWrongPasswordAndIssuesParsableToken(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, plainAdminStore())

	_, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "nope"})
	require.ErrorIs(t, err, errInvalidCredentials)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: " Admin ", Password: "admin123"})
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, resp.Role)

	actor, err := manager.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, domain.Actor{Username: "admin", Role: domain.RoleAdmin}, actor)

	other := NewAuthManager(context.Background(), "another-secret", time.Hour, nil)
	_, err = other.ParseToken(resp.AccessToken)
	require.Error(t, err)
}

func TestCreateCashierStoresPasswordHash(t *testing.T) {
	store := plainAdminStore()
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)

	cashier, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: "kasirbaru", Password: "pass1234"})
	require.NoError(t, err)
	require.Equal(t, "kasirbaru", cashier.Username)

	saved := store.users["kasirbaru"]
	require.NotEqual(t, "pass1234", saved.Password)
	require.True(t, strings.HasPrefix(saved.Password, "$2"))

	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "kasirbaru", Password: "pass1234"})
	require.NoError(t, err)

	_, err = manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: "kasirbaru", Password: "pass1234"})
	require.ErrorContains(t, err, "already exists")

	cashiers := manager.ListCashiers(context.Background())
	require.Len(t, cashiers, 1)
}

func TestProvisionUserIsIdempotent(t *testing.T) {
	store := &userStoreStub{}
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)

	created, err := manager.ProvisionUser(context.Background(), "owner", "s3cret!!", domain.RoleAdmin)
	require.NoError(t, err)
	require.True(t, created)

	created, err = manager.ProvisionUser(context.Background(), "OWNER", "different", domain.RoleAdmin)
	require.NoError(t, err)
	require.False(t, created)

	_, err = manager.ProvisionUser(context.Background(), "guest", "password", "auditor")
	require.Error(t, err)
}
