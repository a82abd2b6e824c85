package user

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateUser is returned when a username or email is already taken.
	ErrDuplicateUser = errors.New("username or email already exists")
	// ErrInvalidCredentials is returned when a login attempt does not match
	// a stored user. Deliberately the same for unknown user and bad password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrNotFound is returned when a user id does not exist.
	ErrNotFound = errors.New("user not found")
)

// User is a registered account. PasswordHash is a bcrypt hash; the plaintext
// password is never stored.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store defines user persistence. Implementations live in internal/store.
type Store interface {
	// CreateUser persists a new user, returning ErrDuplicateUser when the
	// username or email is already present.
	CreateUser(ctx context.Context, u User) (User, error)
	// UserByUsername returns ErrNotFound when no such user exists.
	UserByUsername(ctx context.Context, username string) (User, error)
	// UserByID returns ErrNotFound when no such user exists.
	UserByID(ctx context.Context, id string) (User, error)
}
