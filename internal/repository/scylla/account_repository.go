package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"phone-auth-service/internal/bucketing"
	"phone-auth-service/internal/encryption"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/util"
)

const (
	claimUsernameCQL = `INSERT INTO username_to_account (username, account_bucket, account_id, created_at)
		VALUES (?, ?, ?, ?) IF NOT EXISTS`
	releaseUsernameCQL = `DELETE FROM username_to_account WHERE username = ? IF account_id = ?`
	insertAccountCQL   = `INSERT INTO accounts (
		account_bucket, account_id, username, email, enabled, phone_number, phone_verified,
		attributes_value, attributes_dek, attributes_key_id, attributes_version, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	insertEmailCQL      = `INSERT INTO email_to_account (email, account_id, account_bucket) VALUES (?, ?, ?)`
	selectByUsernameCQL = `SELECT account_bucket, account_id, created_at FROM username_to_account WHERE username = ?`
	selectByEmailCQL    = `SELECT account_bucket, account_id FROM email_to_account WHERE email = ?`
	selectAccountCQL    = `SELECT account_bucket, account_id, username, email, enabled, phone_number, phone_verified,
		attributes_value, attributes_dek, attributes_key_id, attributes_version, created_at, updated_at
		FROM accounts WHERE account_bucket = ? AND account_id = ?`
	markVerifiedCQL = `UPDATE accounts SET phone_verified = true, updated_at = ?
		WHERE account_bucket = ? AND account_id = ? IF EXISTS`
)

type accountRef struct {
	bucket int
	id     string
}

// AccountRepository is the Scylla-backed account directory. Username
// uniqueness is enforced with a lightweight transaction on
// username_to_account; emails are indexed without a uniqueness guarantee,
// which is how duplicate-email conflicts can arise.
type AccountRepository struct {
	client     *ScyllaClient
	encryption *encryption.EncryptionManager
	bucketing  *bucketing.BucketingManager
	claims     claimSettler
	logger     *zap.Logger
}

func NewAccountRepository(client *ScyllaClient, em *encryption.EncryptionManager, bm *bucketing.BucketingManager, logger *zap.Logger) *AccountRepository {
	return &AccountRepository{
		client:     client,
		encryption: em,
		bucketing:  bm,
		claims:     defaultClaimSettler(),
		logger:     logger,
	}
}

func (r *AccountRepository) FindByUsernameOrEmail(ctx context.Context, identity string) (*models.Account, error) {
	key := models.NormalizeLookupKey(identity)

	var byUsername []*models.Account
	claim := usernameClaim{username: key}
	err := r.client.ScanWithRetry(ctx, r.client.Query(ctx, selectByUsernameCQL, key),
		&claim.bucket, &claim.accountID, &claim.createdAt)
	switch {
	case err == nil:
		account, err := r.claims.settle(ctx, claim,
			func(ctx context.Context) (*models.Account, error) {
				return r.load(ctx, claim.bucket, claim.accountID)
			},
			func(ctx context.Context) error {
				r.logger.Warn("Releasing stale username claim",
					zap.String("account_id", claim.accountID),
					zap.Time("claimed_at", claim.createdAt),
				)
				return r.releaseUsername(ctx, claim.username, claim.accountID)
			},
		)
		if err != nil {
			return nil, err
		}
		if account != nil {
			byUsername = append(byUsername, account)
		}
	case errors.Is(err, gocql.ErrNotFound):
	default:
		util.Error("Failed to look up username", zap.Error(err))
		return nil, fmt.Errorf("failed to look up username: %w", err)
	}

	var byEmail []*models.Account
	var bucket int
	var accountID string
	iter := r.client.Query(ctx, selectByEmailCQL, key).Iter()
	var refs []accountRef
	for iter.Scan(&bucket, &accountID) {
		refs = append(refs, accountRef{bucket: bucket, id: accountID})
	}
	if err := iter.Close(); err != nil {
		util.Error("Failed to look up email", zap.Error(err))
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}
	for _, ref := range refs {
		account, err := r.load(ctx, ref.bucket, ref.id)
		if errors.Is(err, models.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		byEmail = append(byEmail, account)
	}

	return models.ResolveMatches(byUsername, byEmail)
}

func (r *AccountRepository) GetByID(ctx context.Context, accountID string) (*models.Account, error) {
	return r.load(ctx, r.bucketing.AccountBucket(accountID), accountID)
}

// Create claims the username first; losing the claim returns
// models.ErrAccountExists and writes nothing else. Until the account row
// lands, lookups see the claim as pending; a claim whose create failed and
// could not be released is taken over by a later lookup once stale.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.AccountBucket = r.bucketing.AccountBucket(account.ID)
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	username := models.NormalizeLookupKey(account.Username)

	existing := make(map[string]interface{})
	applied, err := r.client.Query(ctx, claimUsernameCQL,
		username, account.AccountBucket, account.ID, account.CreatedAt,
	).MapScanCAS(existing)
	if err != nil {
		util.Error("Failed to claim username", zap.String("account_id", account.ID), zap.Error(err))
		return fmt.Errorf("failed to claim username: %w", err)
	}
	if !applied {
		return models.ErrAccountExists
	}

	if err := r.writeAccount(ctx, account); err != nil {
		if relErr := r.releaseUsername(ctx, username, account.ID); relErr != nil {
			util.Error("Failed to release username after failed create",
				zap.String("account_id", account.ID), zap.Error(relErr))
		}
		return err
	}

	util.Info("Account created", zap.String("account_id", account.ID), zap.Int("bucket", account.AccountBucket))
	return nil
}

func (r *AccountRepository) writeAccount(ctx context.Context, account *models.Account) error {
	sealed, err := r.encryption.EncryptAttributes(ctx, account.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encrypt attributes: %w", err)
	}
	var value, dek, keyID, version string
	if sealed != nil {
		value, dek, keyID, version = sealed.EncryptedValue, sealed.EncryptedDEK, sealed.KeyID, sealed.Version
	}

	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(insertAccountCQL,
		account.AccountBucket, account.ID, account.Username, account.Email, account.Enabled,
		account.PhoneNumber, account.PhoneVerified, value, dek, keyID, version,
		account.CreatedAt, account.CreatedAt,
	)
	if account.Email != "" {
		batch.Query(insertEmailCQL, models.NormalizeLookupKey(account.Email), account.ID, account.AccountBucket)
	}
	if err := r.client.Session.ExecuteBatch(batch); err != nil {
		util.Error("Failed to write account", zap.String("account_id", account.ID), zap.Error(err))
		return fmt.Errorf("failed to write account: %w", err)
	}
	return nil
}

func (r *AccountRepository) releaseUsername(ctx context.Context, username, accountID string) error {
	_, err := r.client.Query(ctx, releaseUsernameCQL, username, accountID).MapScanCAS(make(map[string]interface{}))
	return err
}

func (r *AccountRepository) MarkPhoneVerified(ctx context.Context, accountID string) error {
	bucket := r.bucketing.AccountBucket(accountID)
	applied, err := r.client.Query(ctx, markVerifiedCQL, time.Now().UTC(), bucket, accountID).
		MapScanCAS(make(map[string]interface{}))
	if err != nil {
		util.Error("Failed to mark phone verified", zap.String("account_id", accountID), zap.Error(err))
		return fmt.Errorf("failed to mark phone verified: %w", err)
	}
	if !applied {
		return models.ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepository) load(ctx context.Context, bucket int, accountID string) (*models.Account, error) {
	account := &models.Account{}
	var value, dek, keyID, version string
	var updatedAt time.Time

	err := r.client.ScanWithRetry(ctx, r.client.Query(ctx, selectAccountCQL, bucket, accountID),
		&account.AccountBucket, &account.ID, &account.Username, &account.Email, &account.Enabled,
		&account.PhoneNumber, &account.PhoneVerified, &value, &dek, &keyID, &version,
		&account.CreatedAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, models.ErrAccountNotFound
		}
		util.Error("Failed to load account", zap.String("account_id", accountID), zap.Error(err))
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if !updatedAt.IsZero() {
		account.UpdatedAt = &updatedAt
	}

	var sealed *encryption.EncryptedData
	if value != "" {
		sealed = &encryption.EncryptedData{EncryptedValue: value, EncryptedDEK: dek, KeyID: keyID, Version: version}
	}
	attrs, err := r.encryption.DecryptAttributes(ctx, sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt attributes for %s: %w", accountID, err)
	}
	account.Attributes = attrs
	return account, nil
}

func (r *AccountRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}
