package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"phone-auth-service/internal/models"
	"phone-auth-service/internal/util"
)

var ErrAccountCreation = errors.New("account creation failed")

// Profile attributes a caller may supply at auto-creation.
var allowedProfileAttributes = map[string]int{
	"firstName": 100,
	"lastName":  100,
	"email":     254,
	"locale":    16,
}

type AccountCreator interface {
	Create(ctx context.Context, account *models.Account) error
}

type ProvisioningService struct {
	creator              AccountCreator
	markVerifiedOnCreate bool
	logger               *zap.Logger
	nowF                 func() time.Time
}

func NewProvisioningService(creator AccountCreator, markVerifiedOnCreate bool, logger *zap.Logger) *ProvisioningService {
	return &ProvisioningService{
		creator:              creator,
		markVerifiedOnCreate: markVerifiedOnCreate,
		logger:               logger,
		nowF:                 time.Now,
	}
}

// Provision creates an enabled account whose username is the normalized
// phone number. Losing a concurrent create yields an error matching both
// ErrAccountCreation and models.ErrAccountExists; callers re-resolve.
func (s *ProvisioningService) Provision(ctx context.Context, identity *models.PhoneIdentity, attrs map[string]string) (*models.Account, error) {
	if err := validateE164(identity.Normalized); err != nil {
		return nil, fmt.Errorf("%w: username violates policy: %v", ErrAccountCreation, err)
	}

	profile, err := sanitizeProfile(attrs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccountCreation, err)
	}

	account := &models.Account{
		ID:            uuid.NewString(),
		Username:      identity.Normalized,
		Email:         profile["email"],
		Enabled:       true,
		PhoneNumber:   identity.Normalized,
		PhoneVerified: s.markVerifiedOnCreate,
		Attributes:    profile,
		CreatedAt:     s.nowF().UTC(),
	}
	delete(account.Attributes, "email")

	if err := s.creator.Create(ctx, account); err != nil {
		if errors.Is(err, models.ErrAccountExists) {
			return nil, fmt.Errorf("%w: %w", ErrAccountCreation, models.ErrAccountExists)
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.logger.Info("Account provisioned",
		zap.String("account_id", account.ID),
		util.MaskPhone(identity.Normalized),
		zap.Bool("phone_verified", account.PhoneVerified),
	)
	return account, nil
}

func sanitizeProfile(attrs map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(attrs))
	for key, raw := range attrs {
		maxLen, ok := allowedProfileAttributes[key]
		if !ok {
			return nil, fmt.Errorf("attribute %q is not accepted", key)
		}
		if util.ContainsSuspicious(raw) {
			return nil, fmt.Errorf("attribute %q contains disallowed content", key)
		}
		value := util.SanitizeInput(raw)
		if value == "" {
			continue
		}
		if len(value) > maxLen {
			return nil, fmt.Errorf("attribute %q exceeds %d characters", key, maxLen)
		}
		if key == "email" {
			addr, err := mail.ParseAddress(value)
			if err != nil || addr.Address != value {
				return nil, fmt.Errorf("attribute email is not a valid address")
			}
		}
		out[key] = value
	}
	return out, nil
}
