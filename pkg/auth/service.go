package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Sentinel errors mapped to HTTP statuses by the API layer.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAdminExists        = errors.New("an admin account already exists")
	ErrSelfDelete         = errors.New("cannot delete your own account")
	ErrLastAdmin          = errors.New("cannot delete the last admin account")
)

// ValidationError marks a bad request body (maps to 400, not 401).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

const (
	minUsernameLen = 3
	minPasswordLen = 8
)

// Service implements account operations on top of the Store. It also signs
// and verifies the session tokens handed to the HTTP layer.
type Service struct {
	store     *Store
	jwtSecret []byte
}

// NewService wires the account service. jwtSecret signs session tokens.
func NewService(store *Store, jwtSecret string) *Service {
	return &Service{store: store, jwtSecret: []byte(jwtSecret)}
}

// AdminExists reports whether any admin account is registered.
func (s *Service) AdminExists(ctx context.Context) (bool, error) {
	n, err := s.store.CountAdmins(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RegisterAdmin creates the first admin account. One-shot: once any admin
// exists the endpoint is closed with ErrAdminExists.
func (s *Service) RegisterAdmin(ctx context.Context, username, password string) (*User, error) {
	exists, err := s.AdminExists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAdminExists
	}
	return s.createUser(ctx, username, password, RoleAdmin)
}

// CreateUser creates an account with the given role. Admin-only at the
// HTTP layer.
func (s *Service) CreateUser(ctx context.Context, username, password string, role Role) (*User, error) {
	if !role.Valid() {
		return nil, &ValidationError{Reason: fmt.Sprintf("invalid role %q", role)}
	}
	return s.createUser(ctx, username, password, role)
}

func (s *Service) createUser(ctx context.Context, username, password string, role Role) (*User, error) {
	username = strings.TrimSpace(username)
	if len(username) < minUsernameLen {
		return nil, &ValidationError{Reason: fmt.Sprintf("username must be at least %d characters", minUsernameLen)}
	}
	if len(password) < minPasswordLen {
		return nil, &ValidationError{Reason: fmt.Sprintf("password must be at least %d characters", minPasswordLen)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return s.store.Insert(ctx, username, string(hash), role)
}

// Login verifies credentials and returns the user plus a signed session
// token. Unknown usernames and wrong passwords are indistinguishable to the
// caller.
func (s *Service) Login(ctx context.Context, username, password string) (*User, string, error) {
	user, err := s.store.ByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrUserNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// DeleteUser removes an account on behalf of actorID. Self-deletion is
// refused, as is removing the last remaining admin.
func (s *Service) DeleteUser(ctx context.Context, actorID, targetID int64) error {
	if actorID == targetID {
		return ErrSelfDelete
	}

	target, err := s.store.ByID(ctx, targetID)
	if err != nil {
		return err
	}
	if target.Role == RoleAdmin {
		n, err := s.store.CountAdmins(ctx)
		if err != nil {
			return err
		}
		if n <= 1 {
			return ErrLastAdmin
		}
	}
	return s.store.Delete(ctx, targetID)
}

// GetUser returns the account for an id.
func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.store.ByID(ctx, id)
}
