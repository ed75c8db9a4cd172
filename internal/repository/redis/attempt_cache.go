package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"phone-auth-service/internal/client"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/util"
)

const attemptPrefix = "auth_attempt:"

// AttemptCache persists in-flight login attempts as JSON with a sliding TTL.
type AttemptCache struct {
	client *client.RedisClient
	ttl    time.Duration
}

func NewAttemptCache(client *client.RedisClient, ttl time.Duration) *AttemptCache {
	return &AttemptCache{client: client, ttl: ttl}
}

func (c *AttemptCache) Save(ctx context.Context, attempt *models.AuthAttempt) error {
	ctx, cancel := c.client.WithContext(ctx, opTimeout)
	defer cancel()

	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("failed to encode auth attempt: %w", err)
	}
	if err := c.client.Set(ctx, attemptPrefix+attempt.SessionID, data, c.ttl); err != nil {
		util.Error("Failed to save auth attempt", zap.String("session_id", attempt.SessionID), zap.Error(err))
		return fmt.Errorf("failed to save auth attempt: %w", err)
	}
	return nil
}

// Update overwrites the attempt only while its key still exists.
func (c *AttemptCache) Update(ctx context.Context, attempt *models.AuthAttempt) error {
	ctx, cancel := c.client.WithContext(ctx, opTimeout)
	defer cancel()

	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("failed to encode auth attempt: %w", err)
	}
	updated, err := c.client.SetXX(ctx, attemptPrefix+attempt.SessionID, data, c.ttl)
	if err != nil {
		util.Error("Failed to update auth attempt", zap.String("session_id", attempt.SessionID), zap.Error(err))
		return fmt.Errorf("failed to update auth attempt: %w", err)
	}
	if !updated {
		return models.ErrAttemptNotFound
	}
	return nil
}

func (c *AttemptCache) Get(ctx context.Context, sessionID string) (*models.AuthAttempt, error) {
	ctx, cancel := c.client.WithContext(ctx, opTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, attemptPrefix+sessionID)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, models.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get auth attempt: %w", err)
	}

	var attempt models.AuthAttempt
	if err := json.Unmarshal([]byte(raw), &attempt); err != nil {
		return nil, fmt.Errorf("corrupt auth attempt: %w", err)
	}
	return &attempt, nil
}

func (c *AttemptCache) Delete(ctx context.Context, sessionID string) error {
	ctx, cancel := c.client.WithContext(ctx, opTimeout)
	defer cancel()

	if err := c.client.Del(ctx, attemptPrefix+sessionID); err != nil {
		return fmt.Errorf("failed to delete auth attempt: %w", err)
	}
	return nil
}
