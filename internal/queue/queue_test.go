package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{Type: "checkin", Body: []byte("rec-1")}))
	require.NoError(t, q.Publish(ctx, Message{Type: "checkin", Body: []byte("rec-2")}))

	out, err := q.Consume(ctx)
	require.NoError(t, err)

	msg := <-out
	assert.Equal(t, "checkin", msg.Type)
	assert.Equal(t, []byte("rec-1"), msg.Body)
	msg = <-out
	assert.Equal(t, []byte("rec-2"), msg.Body)
}

func TestInMemoryPublishFullQueue(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: "checkin"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Publish(ctx, Message{Type: "checkin"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInMemoryConsumeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewInMemory(1)
	out, err := q.Consume(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, open := <-out:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("consume channel not closed after cancel")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	msg := Message{Type: "checkin", Body: []byte("rec-1|extra")}
	got := deserialize(serialize(msg))
	assert.Equal(t, msg.Type, got.Type)
	assert.Equal(t, msg.Body, got.Body)

	bare := deserialize("no-separator")
	assert.Empty(t, bare.Type)
	assert.Equal(t, []byte("no-separator"), bare.Body)
}
