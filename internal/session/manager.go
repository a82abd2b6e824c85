package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"faceattend/internal/auth"
)

// ErrExpired is returned when a refresh token is unknown, revoked or expired.
var ErrExpired = errors.New("session expired")

// Manager binds a client context to one authenticated user. The refresh token
// persisted in Redis is what lets a session outlive client reloads; access
// tokens are short-lived JWTs. Exactly one session per refresh token; logout
// revokes it without touching the user record.
type Manager struct {
	redis      *redis.Client
	issuer     string
	signingKey string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewManager creates a session manager.
func NewManager(rdb *redis.Client, issuer, signingKey string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		redis:      rdb,
		issuer:     issuer,
		signingKey: signingKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Establish starts a session for the user and persists its refresh token.
func (m *Manager) Establish(ctx context.Context, userID string) (auth.TokenPair, error) {
	pair, err := auth.Issue(userID, "user", m.issuer, m.signingKey, m.accessTTL, m.refreshTTL)
	if err != nil {
		return auth.TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	if err := m.redis.Set(ctx, refreshKey(pair.RefreshToken), userID, m.refreshTTL).Err(); err != nil {
		return auth.TokenPair{}, fmt.Errorf("persist session: %w", err)
	}
	return pair, nil
}

// Resume exchanges a previously persisted refresh token for a fresh pair.
// The old token is rotated out so it cannot be replayed.
func (m *Manager) Resume(ctx context.Context, refreshToken string) (string, auth.TokenPair, error) {
	userID, err := m.redis.Get(ctx, refreshKey(refreshToken)).Result()
	if errors.Is(err, redis.Nil) {
		return "", auth.TokenPair{}, ErrExpired
	}
	if err != nil {
		return "", auth.TokenPair{}, fmt.Errorf("load session: %w", err)
	}
	if _, err := auth.Parse(refreshToken, m.signingKey, m.issuer); err != nil {
		_ = m.redis.Del(ctx, refreshKey(refreshToken)).Err()
		return "", auth.TokenPair{}, ErrExpired
	}

	_ = m.redis.Del(ctx, refreshKey(refreshToken)).Err()
	pair, err := m.Establish(ctx, userID)
	if err != nil {
		return "", auth.TokenPair{}, err
	}
	return userID, pair, nil
}

// Clear ends a session. The user record is untouched.
func (m *Manager) Clear(ctx context.Context, refreshToken string) error {
	return m.redis.Del(ctx, refreshKey(refreshToken)).Err()
}

func refreshKey(token string) string {
	return "faceattend:session:" + token
}
