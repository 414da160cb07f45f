package authpw

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"proposaldesk/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users     map[string]store.User
	upsertErr error
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[string]store.User)}
}

func (m *mockUserStore) GetUserByUserID(ctx context.Context, userID string) (store.User, error) {
	if user, ok := m.users[userID]; ok {
		return user, nil
	}
	return store.User{}, sql.ErrNoRows
}

func (m *mockUserStore) UpsertUser(ctx context.Context, user store.User) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.users[user.UserID] = user
	return nil
}

func newTestService() (*Service, *mockUserStore) {
	mockStore := newMockUserStore()
	svc := NewService(mockStore)
	svc.cost = bcrypt.MinCost
	return svc, mockStore
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	if _, err := svc.CreateUser(ctx, CreateUserRequest{UserID: "sup.one", DisplayName: "Sup One", Role: "Supervisor", Password: "password123"}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	t.Run("successful login", func(t *testing.T) {
		user, err := svc.Login(ctx, LoginRequest{UserID: " sup.one ", Password: "password123", Role: "supervisor"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.DisplayName != "Sup One" || user.Role != "supervisor" {
			t.Fatalf("unexpected user: %+v", user)
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		for _, req := range []LoginRequest{
			{Password: "password123", Role: "agent"},
			{UserID: "sup.one", Role: "agent"},
			{UserID: "sup.one", Password: "password123"},
		} {
			if _, err := svc.Login(ctx, req); !errors.Is(err, ErrMissingCredentials) {
				t.Fatalf("expected ErrMissingCredentials for %+v, got %v", req, err)
			}
		}
	})

	t.Run("invalid role", func(t *testing.T) {
		_, err := svc.Login(ctx, LoginRequest{UserID: "sup.one", Password: "password123", Role: "client"})
		if !errors.Is(err, ErrInvalidRole) {
			t.Fatalf("expected ErrInvalidRole, got %v", err)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, LoginRequest{UserID: "sup.one", Password: "wrongpassword", Role: "supervisor"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("role mismatch", func(t *testing.T) {
		_, err := svc.Login(ctx, LoginRequest{UserID: "sup.one", Password: "password123", Role: "agent"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Login(ctx, LoginRequest{UserID: "ghost", Password: "password123", Role: "agent"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("stores a bcrypt hash", func(t *testing.T) {
		svc, mockStore := newTestService()
		user, err := svc.CreateUser(ctx, CreateUserRequest{UserID: "agent.one", Role: "agent", Password: "password123"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.DisplayName != "agent.one" {
			t.Fatalf("expected display name to default to user id, got %q", user.DisplayName)
		}
		stored := mockStore.users["agent.one"]
		if stored.PasswordHash == "password123" {
			t.Fatal("password stored in clear text")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("password123")); err != nil {
			t.Fatalf("stored hash does not match: %v", err)
		}
	})

	t.Run("rejects weak password", func(t *testing.T) {
		svc, _ := newTestService()
		_, err := svc.CreateUser(ctx, CreateUserRequest{UserID: "agent.two", Role: "agent", Password: "short"})
		if !errors.Is(err, ErrWeakPassword) {
			t.Fatalf("expected ErrWeakPassword, got %v", err)
		}
	})

	t.Run("rejects unknown role", func(t *testing.T) {
		svc, _ := newTestService()
		_, err := svc.CreateUser(ctx, CreateUserRequest{UserID: "uw", Role: "underwriter", Password: "password123"})
		if !errors.Is(err, ErrInvalidRole) {
			t.Fatalf("expected ErrInvalidRole, got %v", err)
		}
	})

	t.Run("wraps store errors", func(t *testing.T) {
		svc, mockStore := newTestService()
		mockStore.upsertErr = errors.New("db down")
		_, err := svc.CreateUser(ctx, CreateUserRequest{UserID: "agent.three", Role: "agent", Password: "password123"})
		if err == nil || !errors.Is(err, mockStore.upsertErr) {
			t.Fatalf("expected wrapped store error, got %v", err)
		}
	})
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("password123")); err != nil {
		t.Fatalf("hash does not verify: %v", err)
	}
	if _, err := HashPassword("short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}
