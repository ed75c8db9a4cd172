package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"phone-auth-service/internal/client"
	"phone-auth-service/internal/util"
)

const (
	sessionNotesPrefix   = "session_notes:"
	sessionMarkersPrefix = "session_markers:"
	sessionUserPrefix    = "session_user:"
)

// SessionCache holds the per-session notes, markers and bound account that
// the login flow hands to the surrounding session layer.
type SessionCache struct {
	client *client.RedisClient
	ttl    time.Duration
}

func NewSessionCache(client *client.RedisClient, ttl time.Duration) *SessionCache {
	return &SessionCache{client: client, ttl: ttl}
}

func (c *SessionCache) SetNote(ctx context.Context, sessionID, key, value string) error {
	return c.hset(ctx, sessionNotesPrefix+sessionID, key, value)
}

func (c *SessionCache) SetMarker(ctx context.Context, sessionID, marker string) error {
	return c.hset(ctx, sessionMarkersPrefix+sessionID, marker, "1")
}

func (c *SessionCache) ClearMarker(ctx context.Context, sessionID, marker string) error {
	ctx, cancel := c.client.WithContext(ctx, opTimeout)
	defer cancel()

	if err := c.client.HDel(ctx, sessionMarkersPrefix+sessionID, marker); err != nil {
		util.Error("Failed to clear session marker",
			zap.String("session_id", sessionID),
			zap.String("marker", marker),
			zap.Error(err))
		return fmt.Errorf("failed to clear session marker: %w", err)
	}
	return nil
}

func (c *SessionCache) BindAccount(ctx context.Context, sessionID, accountID string) error {
	ctx, cancel := c.client.WithContext(ctx, opTimeout)
	defer cancel()

	if err := c.client.Set(ctx, sessionUserPrefix+sessionID, accountID, c.ttl); err != nil {
		util.Error("Failed to bind session account", zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("failed to bind session account: %w", err)
	}
	return nil
}

func (c *SessionCache) hset(ctx context.Context, key, field, value string) error {
	ctx, cancel := c.client.WithContext(ctx, opTimeout)
	defer cancel()

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, field, value)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to write session data", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to write session data: %w", err)
	}
	return nil
}
