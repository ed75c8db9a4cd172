package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"phone-auth-service/internal/hashing"
	"phone-auth-service/internal/models"
)

// OTPStore holds at most one credential per owner. Consume must be atomic:
// it reports true only to the single caller that flips the credential with
// the given ID from unconsumed to consumed.
type OTPStore interface {
	Save(ctx context.Context, cred *models.OTPCredential) error
	Get(ctx context.Context, ownerID string) (*models.OTPCredential, error)
	IncrementAttempts(ctx context.Context, ownerID, credentialID string) (int, error)
	Consume(ctx context.Context, ownerID, credentialID string) (bool, error)
	Delete(ctx context.Context, ownerID string) error
}

type OTPHasher interface {
	HashOTP(otp string) (*hashing.HashResult, error)
	VerifyOTP(otp string, hashResult *hashing.HashResult) (bool, error)
}

type VerifyOutcome struct {
	Result   models.VerifyResult
	Attempts int
}

type OTPManager struct {
	store  OTPStore
	hasher OTPHasher
	logger *zap.Logger
	nowF   func() time.Time
}

func NewOTPManager(store OTPStore, hasher OTPHasher, logger *zap.Logger) *OTPManager {
	return &OTPManager{
		store:  store,
		hasher: hasher,
		logger: logger,
		nowF:   time.Now,
	}
}

// GenerateCode returns a uniformly random numeric code of the given length.
func GenerateCode(length int) (string, error) {
	if length < 1 {
		return "", errors.New("code length must be positive")
	}
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

// Issue stores a hashed credential for owner, replacing any earlier one.
// The plaintext code is never persisted. After maxAttempts mismatches the
// credential is locked; zero leaves it unlimited.
func (m *OTPManager) Issue(ctx context.Context, ownerID, code string, ttl time.Duration, maxAttempts int) (*models.OTPCredential, error) {
	if ttl <= 0 {
		return nil, errors.New("otp ttl must be positive")
	}
	if maxAttempts < 0 {
		return nil, errors.New("otp attempt limit must not be negative")
	}
	hashed, err := m.hasher.HashOTP(code)
	if err != nil {
		return nil, fmt.Errorf("hash otp: %w", err)
	}

	now := m.nowF().UTC()
	cred := &models.OTPCredential{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		CodeHash:      hashed.Hash,
		CodeSalt:      hashed.Salt,
		HashAlgorithm: hashed.Algorithm,
		PepperVersion: hashed.PepperVersion,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
		MaxAttempts:   maxAttempts,
	}
	if err := m.store.Save(ctx, cred); err != nil {
		return nil, fmt.Errorf("store otp: %w", err)
	}
	return cred, nil
}

// Verify checks submitted against the owner's live credential. A mismatch
// counts an attempt and leaves the credential usable until the limit, after
// which every submission is VerifyLocked. A match consumes the credential so
// only one caller ever sees VerifyOK; the store refuses that consume once the
// limit is reached, even for a correct code racing the last mismatch.
func (m *OTPManager) Verify(ctx context.Context, ownerID, submitted string) (*VerifyOutcome, error) {
	cred, err := m.store.Get(ctx, ownerID)
	if errors.Is(err, models.ErrOTPNotFound) {
		return &VerifyOutcome{Result: models.VerifyNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load otp: %w", err)
	}

	if cred.Consumed {
		return &VerifyOutcome{Result: models.VerifyNotFound, Attempts: cred.Attempts}, nil
	}
	if cred.Locked() {
		return &VerifyOutcome{Result: models.VerifyLocked, Attempts: cred.Attempts}, nil
	}
	if cred.Expired(m.nowF()) {
		return &VerifyOutcome{Result: models.VerifyExpired, Attempts: cred.Attempts}, nil
	}

	ok, err := m.hasher.VerifyOTP(submitted, &hashing.HashResult{
		Hash:          cred.CodeHash,
		Salt:          cred.CodeSalt,
		PepperVersion: cred.PepperVersion,
		Algorithm:     cred.HashAlgorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("verify otp: %w", err)
	}

	if !ok {
		attempts, err := m.store.IncrementAttempts(ctx, ownerID, cred.ID)
		if errors.Is(err, models.ErrOTPNotFound) {
			return &VerifyOutcome{Result: models.VerifyNotFound}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("count otp attempt: %w", err)
		}
		if cred.MaxAttempts > 0 && attempts >= cred.MaxAttempts {
			return &VerifyOutcome{Result: models.VerifyLocked, Attempts: attempts}, nil
		}
		return &VerifyOutcome{Result: models.VerifyMismatch, Attempts: attempts}, nil
	}

	consumed, err := m.store.Consume(ctx, ownerID, cred.ID)
	if err != nil {
		return nil, fmt.Errorf("consume otp: %w", err)
	}
	if !consumed {
		latest, err := m.store.Get(ctx, ownerID)
		if err == nil && latest.ID == cred.ID && latest.Locked() {
			m.logger.Info("OTP locked by concurrent mismatches", zap.String("owner_id", ownerID))
			return &VerifyOutcome{Result: models.VerifyLocked, Attempts: latest.Attempts}, nil
		}
		m.logger.Info("OTP already consumed by a concurrent verification", zap.String("owner_id", ownerID))
		return &VerifyOutcome{Result: models.VerifyNotFound, Attempts: cred.Attempts}, nil
	}
	return &VerifyOutcome{Result: models.VerifyOK, Attempts: cred.Attempts}, nil
}

// Revoke drops the owner's credential, if any.
func (m *OTPManager) Revoke(ctx context.Context, ownerID string) error {
	if err := m.store.Delete(ctx, ownerID); err != nil {
		return fmt.Errorf("revoke otp: %w", err)
	}
	return nil
}
