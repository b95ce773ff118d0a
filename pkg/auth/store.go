// Package auth owns user accounts and session tokens: the users table,
// password hashing, and the JWT cookie the HTTP layer authenticates with.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Role is the authorization level of an account.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User is one account row. PasswordHash never leaves the server.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Store is the typed interface to the users table.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a Store on the shared pool.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Insert creates an account and returns the stored row.
// ErrUsernameTaken when the username already exists.
func (s *Store) Insert(ctx context.Context, username, passwordHash string, role Role) (*User, error) {
	var u User
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO users (username, password_hash, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(username) DO NOTHING
		RETURNING id, username, password_hash, role, created_at`,
		username, passwordHash, role, time.Now().UTC(),
	).StructScan(&u)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return &u, nil
}

// ByUsername looks an account up by its unique username.
func (s *Store) ByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u,
		`SELECT id, username, password_hash, role, created_at FROM users WHERE username = ?`,
		username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %q: %w", username, err)
	}
	return &u, nil
}

// ByID looks an account up by primary key.
func (s *Store) ByID(ctx context.Context, id int64) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u,
		`SELECT id, username, password_hash, role, created_at FROM users WHERE id = ?`,
		id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	return &u, nil
}

// Delete removes an account. History rows cascade. ErrUserNotFound when the
// id has no row.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CountAdmins returns the number of admin accounts.
func (s *Store) CountAdmins(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM users WHERE role = ?`, RoleAdmin); err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return n, nil
}
