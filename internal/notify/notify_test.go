package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(t *testing.T) *Notifier {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, time.Minute)
}

func TestPushAndRecent(t *testing.T) {
	n := newTestNotifier(t)
	ctx := context.Background()

	n.Push(ctx, "alice", LevelSuccess, "Attendance marked successfully!")
	n.Push(ctx, "alice", LevelError, "Attendance already marked for today")

	got, err := n.Recent(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, LevelError, got[0].Level, "newest first")
	assert.Equal(t, "Attendance already marked for today", got[0].Message)

	other, err := n.Recent(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, other, "notifications are per user")
}

func TestPushCapsList(t *testing.T) {
	n := newTestNotifier(t)
	ctx := context.Background()

	for i := 0; i < maxPerUser+10; i++ {
		n.Push(ctx, "alice", LevelInfo, fmt.Sprintf("msg %d", i))
	}

	got, err := n.Recent(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, got, maxPerUser)
	assert.Equal(t, fmt.Sprintf("msg %d", maxPerUser+9), got[0].Message)
}

func TestNilClientIsSilent(t *testing.T) {
	n := New(nil, time.Minute)
	n.Push(context.Background(), "alice", LevelInfo, "ignored")
	got, err := n.Recent(context.Background(), "alice")
	assert.NoError(t, err)
	assert.Empty(t, got)
}
