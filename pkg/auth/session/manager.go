// Package session keeps one refresh token per access token id in redis.
// The access token's jti is the lookup key, so revoking the refresh session
// also invalidates the access token at the auth middleware.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/licensor-backend/pkg/config"
	redisclient "github.com/angelmondragon/licensor-backend/pkg/redis"
	"github.com/angelmondragon/licensor-backend/pkg/security"
	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
)

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	errBlankAccessID = errors.New("access id is required")
)

type store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// AccessSessionChecker is the read-only view used by the auth middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

type Manager struct {
	store store
	key   func(accessID string) string
	ttl   time.Duration
}

// NewManager requires the refresh lifetime to outlast the access token.
func NewManager(client *redisclient.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	refresh := cfg.RefreshTokenTTL()
	access := time.Duration(cfg.ExpirationMinutes) * time.Minute
	switch {
	case refresh <= 0:
		return nil, errors.New("refresh token ttl must be positive")
	case refresh <= access:
		return nil, fmt.Errorf("refresh token ttl (%s) must exceed access token ttl (%s)", refresh, access)
	}
	return &Manager{store: client, key: client.AccessSessionKey, ttl: refresh}, nil
}

func (m *Manager) TTL() time.Duration { return m.ttl }

// Generate stores a fresh refresh token under accessID.
func (m *Manager) Generate(ctx context.Context, accessID string) (string, error) {
	if blank(accessID) {
		return "", errBlankAccessID
	}
	return m.issue(ctx, accessID)
}

// Rotate trades a valid refresh token for a new access id and refresh token.
// The old session is deleted only after the new one is stored.
func (m *Manager) Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error) {
	if blank(oldAccessID) || blank(provided) {
		return "", "", ErrInvalidRefreshToken
	}

	stored, found, err := m.lookup(ctx, oldAccessID)
	switch {
	case err != nil:
		return "", "", err
	case !found, subtle.ConstantTimeCompare([]byte(stored), []byte(provided)) != 1:
		return "", "", ErrInvalidRefreshToken
	}

	accessID := NewAccessID()
	token, err := m.issue(ctx, accessID)
	if err != nil {
		return "", "", err
	}
	if err := m.store.Del(ctx, m.key(oldAccessID)); err != nil {
		return "", "", err
	}
	return accessID, token, nil
}

func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if blank(accessID) {
		return errBlankAccessID
	}
	return m.store.Del(ctx, m.key(accessID))
}

func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if blank(accessID) {
		return false, errBlankAccessID
	}
	_, found, err := m.lookup(ctx, accessID)
	return found, err
}

// NewAccessID is used both as the JWT jti and the session key suffix.
func NewAccessID() string {
	return uuid.NewString()
}

func (m *Manager) issue(ctx context.Context, accessID string) (string, error) {
	token, err := security.RandomURLToken(security.DefaultTokenBytes)
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	if err := m.store.Set(ctx, m.key(accessID), token, m.ttl); err != nil {
		return "", err
	}
	return token, nil
}

func (m *Manager) lookup(ctx context.Context, accessID string) (string, bool, error) {
	value, err := m.store.Get(ctx, m.key(accessID))
	if errors.Is(err, redislib.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
