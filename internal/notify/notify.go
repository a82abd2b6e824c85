package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Notification levels match the toast styles of the UI.
const (
	LevelSuccess = "success"
	LevelError   = "error"
	LevelInfo    = "info"
)

// Notification is one transient, auto-expiring user-visible message.
type Notification struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

const maxPerUser = 20

// Notifier keeps a short, capped list of recent notifications per user in
// Redis. The whole list expires on its own, mirroring auto-dismissing toasts.
type Notifier struct {
	redis *redis.Client
	ttl   time.Duration
}

// New creates a notifier. A nil client disables notifications silently;
// they are informational and never gate an operation.
func New(rdb *redis.Client, ttl time.Duration) *Notifier {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Notifier{redis: rdb, ttl: ttl}
}

// Push records a notification for the user. Failures are swallowed: a lost
// toast must never fail the action that produced it.
func (n *Notifier) Push(ctx context.Context, userID, level, message string) {
	if n.redis == nil {
		return
	}
	raw, err := json.Marshal(Notification{Level: level, Message: message, At: time.Now().UTC()})
	if err != nil {
		return
	}
	key := notifyKey(userID)
	pipe := n.redis.Pipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, maxPerUser-1)
	pipe.Expire(ctx, key, n.ttl)
	_, _ = pipe.Exec(ctx)
}

// Recent returns the user's notifications newest-first.
func (n *Notifier) Recent(ctx context.Context, userID string) ([]Notification, error) {
	if n.redis == nil {
		return nil, nil
	}
	raws, err := n.redis.LRange(ctx, notifyKey(userID), 0, maxPerUser-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Notification, 0, len(raws))
	for _, raw := range raws {
		var notif Notification
		if json.Unmarshal([]byte(raw), &notif) == nil {
			out = append(out, notif)
		}
	}
	return out, nil
}

func notifyKey(userID string) string {
	return "faceattend:notify:" + userID
}
