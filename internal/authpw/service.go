// Package authpw checks staff logins against bcrypt password hashes.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"proposaldesk/api/internal/rbac"
	"proposaldesk/api/internal/store"
	"proposaldesk/api/internal/util"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidRole        = errors.New("invalid role specified")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// loginRoles are the roles that sign in with a password. Clients and
// underwriters act through an agent.
var loginRoles = map[rbac.Role]struct{}{
	rbac.RoleAgent:      {},
	rbac.RoleSupervisor: {},
	rbac.RoleAdmin:      {},
	rbac.RoleSuperAdmin: {},
}

// Service provides role logins.
type Service struct {
	store UserStore
	cost  int
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByUserID(ctx context.Context, userID string) (store.User, error)
	UpsertUser(ctx context.Context, user store.User) error
}

// NewService creates a new auth service
func NewService(store UserStore) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost}
}

// LoginRequest contains sign-in parameters
type LoginRequest struct {
	UserID   string
	Password string
	Role     string
}

// Login returns the user when the password matches and the user holds the
// requested role. Unknown users and wrong roles look like bad passwords.
func (s *Service) Login(ctx context.Context, req LoginRequest) (store.User, error) {
	userID := strings.TrimSpace(req.UserID)
	roleName := strings.ToLower(strings.TrimSpace(req.Role))
	if userID == "" || req.Password == "" || roleName == "" {
		return store.User{}, ErrMissingCredentials
	}
	role := rbac.Role(roleName)
	if _, ok := loginRoles[role]; !ok {
		return store.User{}, ErrInvalidRole
	}

	user, err := s.store.GetUserByUserID(ctx, userID)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if rbac.Role(strings.ToLower(user.Role)) != role {
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// CreateUserRequest contains the fields of a new staff login.
type CreateUserRequest struct {
	UserID      string
	DisplayName string
	Role        string
	Password    string
}

// CreateUser hashes the password and stores the user, replacing an
// existing login with the same user id.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (store.User, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" || req.Password == "" {
		return store.User{}, ErrMissingCredentials
	}
	role := rbac.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if _, ok := loginRoles[role]; !ok {
		return store.User{}, ErrInvalidRole
	}
	hash, err := s.hash(req.Password)
	if err != nil {
		return store.User{}, err
	}

	user := store.User{
		ID:           util.NewID("usr"),
		UserID:       userID,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Role:         string(role),
		PasswordHash: hash,
	}
	if user.DisplayName == "" {
		user.DisplayName = userID
	}
	if err := s.store.UpsertUser(ctx, user); err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// HashPassword returns a bcrypt hash at the default cost.
func HashPassword(password string) (string, error) {
	return NewService(nil).hash(password)
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < 8 {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
