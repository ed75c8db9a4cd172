package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"phone-auth-service/internal/client"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/util"
)

const (
	otpPrefix = "otp:"
	opTimeout = 3 * time.Second

	// expiredRetention keeps a credential readable after expiry so verify
	// can answer Expired rather than NotFound.
	expiredRetention = 5 * time.Minute
)

// consumeScript flips consumed on the live credential only if it is still the
// one the caller verified, nobody consumed it first and it has not reached
// its mismatch limit.
var consumeScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'id') ~= ARGV[1] then
	return 0
end
if redis.call('HGET', KEYS[1], 'consumed') == '1' then
	return 0
end
local max = tonumber(redis.call('HGET', KEYS[1], 'max_attempts') or '0') or 0
local attempts = tonumber(redis.call('HGET', KEYS[1], 'attempts') or '0') or 0
if max > 0 and attempts >= max then
	return 0
end
redis.call('HSET', KEYS[1], 'consumed', '1')
return 1
`)

var incrementAttemptsScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'id') ~= ARGV[1] then
	return -1
end
if redis.call('HGET', KEYS[1], 'consumed') == '1' then
	return -1
end
return redis.call('HINCRBY', KEYS[1], 'attempts', 1)
`)

// OTPCache stores one hashed credential per owner in a Redis hash.
type OTPCache struct {
	client *client.RedisClient
}

func NewOTPCache(client *client.RedisClient) *OTPCache {
	return &OTPCache{client: client}
}

func otpKey(ownerID string) string {
	return otpPrefix + ownerID
}

// Save replaces any credential the owner already has.
func (c *OTPCache) Save(ctx context.Context, cred *models.OTPCredential) error {
	ctx, cancel := c.client.WithContext(ctx, opTimeout)
	defer cancel()

	keyTTL := time.Until(cred.ExpiresAt) + expiredRetention
	if keyTTL < expiredRetention {
		keyTTL = expiredRetention
	}

	key := otpKey(cred.OwnerID)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"id", cred.ID,
		"owner_id", cred.OwnerID,
		"code_hash", cred.CodeHash,
		"code_salt", cred.CodeSalt,
		"hash_algorithm", cred.HashAlgorithm,
		"pepper_version", cred.PepperVersion,
		"created_at", cred.CreatedAt.UnixNano(),
		"expires_at", cred.ExpiresAt.UnixNano(),
		"consumed", boolFlag(cred.Consumed),
		"attempts", cred.Attempts,
		"max_attempts", cred.MaxAttempts,
	)
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to save OTP credential", zap.String("owner_id", cred.OwnerID), zap.Error(err))
		return fmt.Errorf("failed to save OTP credential: %w", err)
	}
	return nil
}

func (c *OTPCache) Get(ctx context.Context, ownerID string) (*models.OTPCredential, error) {
	ctx, cancel := c.client.WithContext(ctx, opTimeout)
	defer cancel()

	fields, err := c.client.HGetAll(ctx, otpKey(ownerID))
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, models.ErrOTPNotFound
		}
		util.Error("Failed to get OTP credential", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, fmt.Errorf("failed to get OTP credential: %w", err)
	}
	return decodeCredential(fields)
}

func (c *OTPCache) IncrementAttempts(ctx context.Context, ownerID, credentialID string) (int, error) {
	ctx, cancel := c.client.WithContext(ctx, opTimeout)
	defer cancel()

	res, err := c.client.RunScript(ctx, incrementAttemptsScript, []string{otpKey(ownerID)}, credentialID)
	if err != nil {
		return 0, fmt.Errorf("failed to increment OTP attempts: %w", err)
	}
	n, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result %T", res)
	}
	if n < 0 {
		return 0, models.ErrOTPNotFound
	}
	return int(n), nil
}

func (c *OTPCache) Consume(ctx context.Context, ownerID, credentialID string) (bool, error) {
	ctx, cancel := c.client.WithContext(ctx, opTimeout)
	defer cancel()

	res, err := c.client.RunScript(ctx, consumeScript, []string{otpKey(ownerID)}, credentialID)
	if err != nil {
		util.Error("Failed to consume OTP credential", zap.String("owner_id", ownerID), zap.Error(err))
		return false, fmt.Errorf("failed to consume OTP credential: %w", err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func (c *OTPCache) Delete(ctx context.Context, ownerID string) error {
	ctx, cancel := c.client.WithContext(ctx, opTimeout)
	defer cancel()

	if err := c.client.Del(ctx, otpKey(ownerID)); err != nil {
		return fmt.Errorf("failed to delete OTP credential: %w", err)
	}
	return nil
}

func decodeCredential(fields map[string]string) (*models.OTPCredential, error) {
	pepperVersion, err1 := strconv.Atoi(fields["pepper_version"])
	attempts, err2 := strconv.Atoi(fields["attempts"])
	createdAt, err3 := strconv.ParseInt(fields["created_at"], 10, 64)
	expiresAt, err4 := strconv.ParseInt(fields["expires_at"], 10, 64)
	maxAttempts := 0
	var err5 error
	if v, ok := fields["max_attempts"]; ok {
		maxAttempts, err5 = strconv.Atoi(v)
	}
	if err := errors.Join(err1, err2, err3, err4, err5); err != nil {
		return nil, fmt.Errorf("corrupt OTP credential: %w", err)
	}

	return &models.OTPCredential{
		ID:            fields["id"],
		OwnerID:       fields["owner_id"],
		CodeHash:      fields["code_hash"],
		CodeSalt:      fields["code_salt"],
		HashAlgorithm: fields["hash_algorithm"],
		PepperVersion: pepperVersion,
		CreatedAt:     time.Unix(0, createdAt).UTC(),
		ExpiresAt:     time.Unix(0, expiresAt).UTC(),
		Consumed:      fields["consumed"] == "1",
		Attempts:      attempts,
		MaxAttempts:   maxAttempts,
	}, nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
