package service

import (
	"fmt"

	"go.uber.org/zap"

	"phone-auth-service/internal/client"
)

// AccountDirectory is the full account store surface the phone login needs.
type AccountDirectory interface {
	AccountFinder
	AccountCreator
	AccountLoader
}

// ServiceFactory assembles the phone login components from their stores.
type ServiceFactory struct {
	accounts AccountDirectory
	otpStore OTPStore
	hasher   OTPHasher
	attempts AttemptStore
	sessions SessionStore
	gateway  client.SMSGateway
	events   *EventPublisher
	logger   *zap.Logger

	authFlow *AuthFlowController
}

func NewServiceFactory(
	accounts AccountDirectory,
	otpStore OTPStore,
	hasher OTPHasher,
	attempts AttemptStore,
	sessions SessionStore,
	gateway client.SMSGateway,
	events *EventPublisher,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		accounts: accounts,
		otpStore: otpStore,
		hasher:   hasher,
		attempts: attempts,
		sessions: sessions,
		gateway:  gateway,
		events:   events,
		logger:   logger,
	}
}

// AuthFlow returns the controller, building it on first use.
func (f *ServiceFactory) AuthFlow(cfg FlowConfig) (*AuthFlowController, error) {
	if f.authFlow != nil {
		return f.authFlow, nil
	}

	flow, err := NewAuthFlowController(cfg, AuthFlowDeps{
		Normalizer:  NewPhoneNormalizer(),
		Resolver:    NewUserResolver(f.accounts, f.logger),
		Provisioner: NewProvisioningService(f.accounts, cfg.Strategy.MarkVerifiedOnCreate, f.logger),
		Credentials: NewOTPManager(f.otpStore, f.hasher, f.logger),
		Accounts:    f.accounts,
		Attempts:    f.attempts,
		Sessions:    f.sessions,
		Gateway:     f.gateway,
		Events:      f.events,
		Logger:      f.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build auth flow: %w", err)
	}
	f.authFlow = flow
	return flow, nil
}

// CountryCode resolves the configured default region to its calling code.
func CountryCode(region string) (string, error) {
	code, err := NewPhoneNormalizer().CallingCodeForRegion(region)
	if err != nil {
		return "", fmt.Errorf("default region: %w", err)
	}
	return code, nil
}
