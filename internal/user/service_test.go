package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	users []User
}

func (m *memStore) CreateUser(_ context.Context, u User) (User, error) {
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return User{}, ErrDuplicateUser
		}
	}
	m.users = append(m.users, u)
	return u, nil
}

func (m *memStore) UserByUsername(_ context.Context, username string) (User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *memStore) UserByID(_ context.Context, id string) (User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func TestRegisterThenAuthenticate(t *testing.T) {
	svc := NewService(&memStore{})
	ctx := context.Background()

	registered, err := svc.Register(ctx, "alice", "a@x.com", "pw123")
	require.NoError(t, err)
	assert.NotEmpty(t, registered.ID)
	assert.NotEqual(t, "pw123", registered.PasswordHash, "password must not be stored in plaintext")

	authed, err := svc.Authenticate(ctx, "alice", "pw123")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, authed.ID)
}

func TestAuthenticateRejectsAlteredFields(t *testing.T) {
	svc := NewService(&memStore{})
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice", "a@x.com", "pw123")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "bob", "pw123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterDuplicate(t *testing.T) {
	svc := NewService(&memStore{})
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice", "a@x.com", "pw123")
	require.NoError(t, err)

	// same username, different email
	_, err = svc.Register(ctx, "alice", "other@x.com", "pw456")
	assert.ErrorIs(t, err, ErrDuplicateUser)

	// same email, different username
	_, err = svc.Register(ctx, "alice2", "a@x.com", "pw456")
	assert.ErrorIs(t, err, ErrDuplicateUser)
}

func TestRegisterRequiresAllFields(t *testing.T) {
	svc := NewService(&memStore{})
	_, err := svc.Register(context.Background(), "alice", "", "pw123")
	assert.Error(t, err)
}
