package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/auth"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewManager(rdb, "faceattend-test", "test-signing-key", time.Minute, time.Hour)
}

func TestEstablishAndResume(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	pair, err := m.Establish(ctx, "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := auth.Parse(pair.AccessToken, "test-signing-key", "faceattend-test")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)

	userID, next, err := m.Resume(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.NotEmpty(t, next.RefreshToken)
}

func TestResumeRotatesRefreshToken(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	pair, err := m.Establish(ctx, "user-1")
	require.NoError(t, err)

	_, _, err = m.Resume(ctx, pair.RefreshToken)
	require.NoError(t, err)

	// replaying the consumed token fails
	_, _, err = m.Resume(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestResumeUnknownToken(t *testing.T) {
	m := newTestManager(t)
	_, _, err := m.Resume(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrExpired)
}

func TestClearEndsSession(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	pair, err := m.Establish(ctx, "user-1")
	require.NoError(t, err)

	require.NoError(t, m.Clear(ctx, pair.RefreshToken))

	_, _, err = m.Resume(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrExpired)
}
