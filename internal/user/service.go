package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Service handles registration and authentication on top of a Store.
type Service struct {
	store Store
}

// NewService creates a user service backed by the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Register creates a new user. The password is bcrypt-hashed before it is
// handed to the store. Registering does not log the user in.
func (s *Service) Register(ctx context.Context, username, email, password string) (User, error) {
	if username == "" || email == "" || password == "" {
		return User{}, errors.New("username, email and password required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	u := User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	return s.store.CreateUser(ctx, u)
}

// Authenticate verifies a username/password pair and returns the matching
// user. Both an unknown username and a wrong password yield
// ErrInvalidCredentials so the response does not leak which field was wrong.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := s.store.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Get returns the profile for a user id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.store.UserByID(ctx, id)
}
