package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"phone-auth-service/internal/client"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/util"
)

const (
	// MarkerOTPAnswered is set on a session once it has passed the OTP
	// challenge and cleared whenever a new identity challenge starts.
	MarkerOTPAnswered = "SMS_OTP_ANSWERED"
	NoteRememberMe    = "remember_me"

	maxResolveRounds = 3
)

// Strategy selects between the product variants of the phone login.
type Strategy struct {
	AllowAutoCreate      bool
	MarkVerifiedOnCreate bool
}

type FlowConfig struct {
	DefaultCountryCode string
	OTPTTL             time.Duration
	OTPLength          int
	MaxMismatches      int
	DispatchTimeout    time.Duration
	MessageTemplate    string
	Strategy           Strategy
}

func (c FlowConfig) validate() error {
	var errs []error
	if c.DefaultCountryCode == "" {
		errs = append(errs, errors.New("default country code is required"))
	}
	if c.OTPTTL <= 0 {
		errs = append(errs, errors.New("otp ttl must be positive"))
	}
	if c.OTPLength < 1 {
		errs = append(errs, errors.New("otp length must be positive"))
	}
	if c.MaxMismatches < 1 {
		errs = append(errs, errors.New("max mismatches must be at least 1"))
	}
	if c.DispatchTimeout <= 0 || c.DispatchTimeout >= c.OTPTTL {
		errs = append(errs, errors.New("dispatch timeout must be positive and shorter than the otp ttl"))
	}
	if strings.Count(c.MessageTemplate, "%s") != 1 {
		errs = append(errs, errors.New("message template must contain exactly one %s"))
	}
	return errors.Join(errs...)
}

type IdentityNormalizer interface {
	Normalize(raw, defaultCountryCode string) (*models.PhoneIdentity, error)
}

type IdentityResolver interface {
	Resolve(ctx context.Context, identity *models.PhoneIdentity) (*ResolveResult, error)
}

type AccountProvisioner interface {
	Provision(ctx context.Context, identity *models.PhoneIdentity, attrs map[string]string) (*models.Account, error)
}

type CredentialManager interface {
	Issue(ctx context.Context, ownerID, code string, ttl time.Duration, maxAttempts int) (*models.OTPCredential, error)
	Verify(ctx context.Context, ownerID, submitted string) (*VerifyOutcome, error)
	Revoke(ctx context.Context, ownerID string) error
}

type AccountLoader interface {
	GetByID(ctx context.Context, accountID string) (*models.Account, error)
	MarkPhoneVerified(ctx context.Context, accountID string) error
}

// AttemptStore persists attempts between requests. Update only overwrites an
// attempt that still exists and returns models.ErrAttemptNotFound otherwise.
type AttemptStore interface {
	Save(ctx context.Context, attempt *models.AuthAttempt) error
	Update(ctx context.Context, attempt *models.AuthAttempt) error
	Get(ctx context.Context, sessionID string) (*models.AuthAttempt, error)
	Delete(ctx context.Context, sessionID string) error
}

// SessionStore is the session boundary the flow writes its results to.
type SessionStore interface {
	SetNote(ctx context.Context, sessionID, key, value string) error
	SetMarker(ctx context.Context, sessionID, marker string) error
	ClearMarker(ctx context.Context, sessionID, marker string) error
	BindAccount(ctx context.Context, sessionID, accountID string) error
}

type AuthFlowDeps struct {
	Normalizer  IdentityNormalizer
	Resolver    IdentityResolver
	Provisioner AccountProvisioner
	Credentials CredentialManager
	Accounts    AccountLoader
	Attempts    AttemptStore
	Sessions    SessionStore
	Gateway     client.SMSGateway
	Events      *EventPublisher
	Logger      *zap.Logger
}

type BeginRequest struct {
	SessionID  string
	Username   string
	RememberMe bool
	Attributes map[string]string
}

// FlowOutcome is what the session boundary receives after each step.
type FlowOutcome struct {
	SessionID         string           `json:"session_id"`
	Stage             models.AuthStage `json:"stage"`
	ErrorCode         ErrorCode        `json:"error_code,omitempty"`
	Message           string           `json:"message,omitempty"`
	Field             string           `json:"field,omitempty"`
	AccountID         string           `json:"account_id,omitempty"`
	AccountCreated    bool             `json:"account_created,omitempty"`
	AttemptsRemaining int              `json:"attempts_remaining,omitempty"`
	Resendable        bool             `json:"resendable,omitempty"`
}

// AuthFlowController runs the phone + OTP login state machine. It keeps no
// state between calls; everything lives in the injected stores.
type AuthFlowController struct {
	cfg         FlowConfig
	normalizer  IdentityNormalizer
	resolver    IdentityResolver
	provisioner AccountProvisioner
	credentials CredentialManager
	accounts    AccountLoader
	attempts    AttemptStore
	sessions    SessionStore
	gateway     client.SMSGateway
	events      *EventPublisher
	logger      *zap.Logger
	nowF        func() time.Time
}

func NewAuthFlowController(cfg FlowConfig, deps AuthFlowDeps) (*AuthFlowController, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid flow config: %w", err)
	}
	if deps.Normalizer == nil || deps.Resolver == nil || deps.Provisioner == nil ||
		deps.Credentials == nil || deps.Accounts == nil || deps.Attempts == nil ||
		deps.Sessions == nil || deps.Gateway == nil {
		return nil, errors.New("auth flow: missing dependency")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthFlowController{
		cfg:         cfg,
		normalizer:  deps.Normalizer,
		resolver:    deps.Resolver,
		provisioner: deps.Provisioner,
		credentials: deps.Credentials,
		accounts:    deps.Accounts,
		attempts:    deps.Attempts,
		sessions:    deps.Sessions,
		gateway:     deps.Gateway,
		events:      deps.Events,
		logger:      logger,
		nowF:        time.Now,
	}, nil
}

// Begin starts a new attempt for the session and runs it up to OTP_WAIT or
// a rejection. A returned error means infrastructure failed; classified
// rejections come back as an outcome.
func (c *AuthFlowController) Begin(ctx context.Context, req BeginRequest) (*FlowOutcome, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	now := c.nowF().UTC()
	attempt := &models.AuthAttempt{
		SessionID:  sessionID,
		Stage:      models.StageInit,
		RememberMe: req.RememberMe,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	c.advance(attempt, models.StageCollectIdentity)
	if err := c.sessions.ClearMarker(ctx, sessionID, MarkerOTPAnswered); err != nil {
		return nil, fmt.Errorf("clear session marker: %w", err)
	}

	identity, err := c.normalizer.Normalize(req.Username, c.cfg.DefaultCountryCode)
	if err != nil {
		if errors.Is(err, ErrInvalidPhoneNumber) {
			return c.reject(ctx, attempt, &FlowError{Code: CodeInvalidPhoneNumber, Field: "username", Cause: err})
		}
		return nil, err
	}
	attempt.AttemptedIdentity = identity.Normalized

	account, err := c.establishAccount(ctx, attempt, identity, req.Attributes)
	if err != nil {
		var ferr *FlowError
		if errors.As(err, &ferr) {
			return c.reject(ctx, attempt, ferr)
		}
		return nil, err
	}

	return c.issue(ctx, attempt, account)
}

// establishAccount resolves the identity, provisioning it when allowed.
// Losing a provisioning race, or finding the winner still writing, sends the
// attempt back to RESOLVE so it picks up the winner's account.
func (c *AuthFlowController) establishAccount(ctx context.Context, attempt *models.AuthAttempt, identity *models.PhoneIdentity, attrs map[string]string) (*models.Account, error) {
	for round := 0; round < maxResolveRounds; round++ {
		c.advance(attempt, models.StageResolve)
		res, err := c.resolver.Resolve(ctx, identity)
		if errors.Is(err, models.ErrAccountPending) {
			c.logger.Info("Account creation still pending, resolving again",
				zap.String("session_id", attempt.SessionID),
				util.MaskPhone(identity.Normalized),
			)
			continue
		}
		if err != nil {
			return nil, err
		}

		switch res.Kind {
		case ResolveConflict:
			code := CodeUsernameInUse
			if res.ConflictField == models.DuplicateEmail {
				code = CodeEmailInUse
			}
			return nil, &FlowError{
				Code:   code,
				Field:  "username",
				Detail: "duplicate_field=" + string(res.ConflictField),
			}

		case ResolveFound:
			c.advance(attempt, models.StageChallengeExisting)
			if !res.Account.Enabled {
				return nil, &FlowError{Code: CodeAccountDisabled, Detail: "account_id=" + res.Account.ID}
			}
			return res.Account, nil
		}

		if !c.cfg.Strategy.AllowAutoCreate {
			return nil, &FlowError{Code: CodeUserNotFound, Field: "username"}
		}

		c.advance(attempt, models.StageAutoCreate)
		account, err := c.provisioner.Provision(ctx, identity, attrs)
		if err == nil {
			attempt.AccountCreated = true
			accountsProvisioned.Inc()
			c.publish(ctx, models.EventRegister, attempt, account.ID, "", "")
			return account, nil
		}
		if errors.Is(err, models.ErrAccountExists) {
			c.logger.Info("Lost provisioning race, resolving again",
				zap.String("session_id", attempt.SessionID),
				util.MaskPhone(identity.Normalized),
			)
			continue
		}
		if errors.Is(err, ErrAccountCreation) {
			return nil, &FlowError{Code: CodeAccountCreationFailed, Cause: err}
		}
		return nil, err
	}

	return nil, &FlowError{
		Code:  CodeAccountCreationFailed,
		Cause: fmt.Errorf("identity still unresolved after %d provisioning rounds", maxResolveRounds),
	}
}

// issue replaces any live code for the account and dispatches the new one.
// A failed dispatch revokes the code so nothing undeliverable stays live.
func (c *AuthFlowController) issue(ctx context.Context, attempt *models.AuthAttempt, account *models.Account) (*FlowOutcome, error) {
	c.advance(attempt, models.StageOTPIssue)
	attempt.AccountID = account.ID
	attempt.Mismatches = 0
	attempt.LastError = ""

	code, err := GenerateCode(c.cfg.OTPLength)
	if err != nil {
		return nil, err
	}
	if _, err := c.credentials.Issue(ctx, account.ID, code, c.cfg.OTPTTL, c.cfg.MaxMismatches); err != nil {
		return nil, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.cfg.DispatchTimeout)
	_, err = c.gateway.Send(sendCtx, attempt.AttemptedIdentity, fmt.Sprintf(c.cfg.MessageTemplate, code))
	cancel()
	if err != nil {
		if rerr := c.credentials.Revoke(ctx, account.ID); rerr != nil {
			c.logger.Error("Failed to revoke undelivered OTP", zap.String("account_id", account.ID), zap.Error(rerr))
		}

		ferr := &FlowError{Code: CodeSMSTransportFailure, Cause: err}
		var sendErr *client.MessageSendError
		if errors.As(err, &sendErr) && sendErr.Kind == client.ProviderRejected {
			ferr.Code = CodeSMSProviderRejected
			ferr.Detail = fmt.Sprintf("status=%d", sendErr.StatusCode)
		}
		smsDispatches.WithLabelValues(string(ferr.Code)).Inc()
		return c.reject(ctx, attempt, ferr)
	}
	smsDispatches.WithLabelValues(string(models.DispatchSent)).Inc()

	c.advance(attempt, models.StageOTPWait)
	if ok, err := c.writeBack(ctx, attempt); err != nil {
		return nil, err
	} else if !ok {
		return c.missingAttempt(attempt.SessionID), nil
	}
	c.publish(ctx, models.EventOTPSent, attempt, account.ID, "", "")
	flowOutcomes.WithLabelValues(string(models.StageOTPWait), "").Inc()

	out := c.outcome(attempt)
	out.AttemptsRemaining = c.cfg.MaxMismatches
	return out, nil
}

// Resend restarts an attempt at OTP_ISSUE. It is allowed while waiting for a
// code and after a rejection whose cause a fresh code can fix.
func (c *AuthFlowController) Resend(ctx context.Context, sessionID string) (*FlowOutcome, error) {
	attempt, err := c.attempts.Get(ctx, sessionID)
	if errors.Is(err, models.ErrAttemptNotFound) {
		return c.missingAttempt(sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}

	resendable := attempt.Stage == models.StageOTPWait ||
		(attempt.Stage == models.StageRejected && ErrorCode(attempt.LastError).Resendable())
	if !resendable || attempt.AccountID == "" {
		return c.wrongStage(attempt), nil
	}

	account, err := c.accounts.GetByID(ctx, attempt.AccountID)
	if errors.Is(err, models.ErrAccountNotFound) {
		return c.reject(ctx, attempt, &FlowError{Code: CodeUserNotFound, Cause: err})
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !account.Enabled {
		return c.reject(ctx, attempt, &FlowError{Code: CodeAccountDisabled, Detail: "account_id=" + account.ID})
	}

	return c.issue(ctx, attempt, account)
}

// Submit verifies a code for the session's attempt.
func (c *AuthFlowController) Submit(ctx context.Context, sessionID, code string) (*FlowOutcome, error) {
	attempt, err := c.attempts.Get(ctx, sessionID)
	if errors.Is(err, models.ErrAttemptNotFound) {
		return c.missingAttempt(sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	if attempt.Stage != models.StageOTPWait {
		return c.wrongStage(attempt), nil
	}

	res, err := c.credentials.Verify(ctx, attempt.AccountID, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	otpVerifications.WithLabelValues(res.Result.String()).Inc()

	switch res.Result {
	case models.VerifyOK:
		return c.authenticate(ctx, attempt)
	case models.VerifyExpired:
		return c.reject(ctx, attempt, &FlowError{Code: CodeOTPExpired, Field: "code"})
	case models.VerifyMismatch:
		return c.mismatch(ctx, attempt, res.Attempts)
	case models.VerifyLocked:
		return c.lockOut(ctx, attempt, res.Attempts)
	default:
		return c.reject(ctx, attempt, &FlowError{Code: CodeOTPNotFound, Field: "code"})
	}
}

// lockOut ends an attempt whose credential reached the mismatch limit. The
// store already refuses the credential; revoking only frees the key.
func (c *AuthFlowController) lockOut(ctx context.Context, attempt *models.AuthAttempt, mismatches int) (*FlowOutcome, error) {
	attempt.Mismatches = mismatches
	if err := c.credentials.Revoke(ctx, attempt.AccountID); err != nil {
		return nil, err
	}
	return c.reject(ctx, attempt, &FlowError{
		Code:   CodeOTPAttemptsExceeded,
		Field:  "code",
		Detail: fmt.Sprintf("mismatches=%d", mismatches),
	})
}

// mismatch keeps the attempt in OTP_WAIT below the credential's mismatch
// limit.
func (c *AuthFlowController) mismatch(ctx context.Context, attempt *models.AuthAttempt, mismatches int) (*FlowOutcome, error) {
	attempt.Mismatches = mismatches

	attempt.LastError = string(CodeOTPMismatch)
	attempt.UpdatedAt = c.nowF().UTC()
	if ok, err := c.writeBack(ctx, attempt); err != nil {
		return nil, err
	} else if !ok {
		return c.missingAttempt(attempt.SessionID), nil
	}
	flowOutcomes.WithLabelValues(string(models.StageOTPWait), string(CodeOTPMismatch)).Inc()
	c.publish(ctx, models.EventLoginError, attempt, attempt.AccountID, CodeOTPMismatch, "")

	out := c.outcome(attempt)
	out.ErrorCode = CodeOTPMismatch
	out.Message = CodeOTPMismatch.Message()
	out.Field = "code"
	out.AttemptsRemaining = c.cfg.MaxMismatches - mismatches
	return out, nil
}

func (c *AuthFlowController) authenticate(ctx context.Context, attempt *models.AuthAttempt) (*FlowOutcome, error) {
	account, err := c.accounts.GetByID(ctx, attempt.AccountID)
	if errors.Is(err, models.ErrAccountNotFound) {
		return c.reject(ctx, attempt, &FlowError{Code: CodeUserNotFound, Cause: err})
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !account.Enabled {
		return c.reject(ctx, attempt, &FlowError{Code: CodeAccountDisabled, Detail: "account_id=" + account.ID})
	}

	if !account.PhoneVerified {
		if err := c.accounts.MarkPhoneVerified(ctx, account.ID); err != nil {
			return nil, fmt.Errorf("mark phone verified: %w", err)
		}
	}
	if err := c.sessions.BindAccount(ctx, attempt.SessionID, account.ID); err != nil {
		return nil, fmt.Errorf("bind account: %w", err)
	}
	if attempt.RememberMe {
		if err := c.sessions.SetNote(ctx, attempt.SessionID, NoteRememberMe, "true"); err != nil {
			return nil, fmt.Errorf("set remember me: %w", err)
		}
	}
	if err := c.sessions.SetMarker(ctx, attempt.SessionID, MarkerOTPAnswered); err != nil {
		return nil, fmt.Errorf("set session marker: %w", err)
	}

	c.advance(attempt, models.StageAuthenticated)
	if err := c.attempts.Delete(ctx, attempt.SessionID); err != nil {
		return nil, fmt.Errorf("delete attempt: %w", err)
	}
	flowOutcomes.WithLabelValues(string(models.StageAuthenticated), "").Inc()
	c.publish(ctx, models.EventLogin, attempt, account.ID, "", "")

	c.logger.Info("Phone login succeeded",
		zap.String("session_id", attempt.SessionID),
		zap.String("account_id", account.ID),
		zap.Bool("account_created", attempt.AccountCreated),
	)

	out := c.outcome(attempt)
	out.AccountID = account.ID
	out.AccountCreated = attempt.AccountCreated
	return out, nil
}

// Cancel discards the session's attempt and its live code.
func (c *AuthFlowController) Cancel(ctx context.Context, sessionID string) error {
	attempt, err := c.attempts.Get(ctx, sessionID)
	if errors.Is(err, models.ErrAttemptNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load attempt: %w", err)
	}
	if attempt.AccountID != "" {
		if err := c.credentials.Revoke(ctx, attempt.AccountID); err != nil {
			return err
		}
	}
	return c.attempts.Delete(ctx, sessionID)
}

// reject moves the attempt to REJECTED. Resendable rejections keep the
// attempt so the user can ask for a new code; the rest discard it.
func (c *AuthFlowController) reject(ctx context.Context, attempt *models.AuthAttempt, ferr *FlowError) (*FlowOutcome, error) {
	c.advance(attempt, models.StageRejected)
	attempt.LastError = string(ferr.Code)

	fields := []zap.Field{
		zap.String("session_id", attempt.SessionID),
		zap.String("error_code", string(ferr.Code)),
		util.MaskPhone(attempt.AttemptedIdentity),
	}
	if ferr.Detail != "" {
		fields = append(fields, zap.String("detail", ferr.Detail))
	}
	if ferr.Cause != nil {
		fields = append(fields, zap.Error(ferr.Cause))
	}
	c.logger.Warn("Phone login rejected", fields...)

	resendable := ferr.Code.Resendable() && attempt.AccountID != ""
	if resendable {
		ok, err := c.writeBack(ctx, attempt)
		if err != nil {
			return nil, err
		}
		resendable = ok
	} else if err := c.attempts.Delete(ctx, attempt.SessionID); err != nil {
		return nil, fmt.Errorf("delete attempt: %w", err)
	}

	flowOutcomes.WithLabelValues(string(models.StageRejected), string(ferr.Code)).Inc()
	c.publish(ctx, models.EventLoginError, attempt, attempt.AccountID, ferr.Code, ferr.Detail)

	out := c.outcome(attempt)
	out.ErrorCode = ferr.Code
	out.Message = ferr.Code.Message()
	out.Field = ferr.Field
	out.Resendable = resendable
	return out, nil
}

// writeBack stores an attempt that Begin already persisted. It reports false
// when a concurrent step on the same session finished the attempt first, so
// a finished attempt is never brought back.
func (c *AuthFlowController) writeBack(ctx context.Context, attempt *models.AuthAttempt) (bool, error) {
	err := c.attempts.Update(ctx, attempt)
	if errors.Is(err, models.ErrAttemptNotFound) {
		c.logger.Info("Auth attempt finished concurrently, not saving",
			zap.String("session_id", attempt.SessionID),
			zap.String("stage", string(attempt.Stage)),
		)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("save attempt: %w", err)
	}
	return true, nil
}

func (c *AuthFlowController) missingAttempt(sessionID string) *FlowOutcome {
	flowOutcomes.WithLabelValues(string(models.StageRejected), string(CodeAttemptNotFound)).Inc()
	return &FlowOutcome{
		SessionID: sessionID,
		Stage:     models.StageRejected,
		ErrorCode: CodeAttemptNotFound,
		Message:   CodeAttemptNotFound.Message(),
	}
}

// wrongStage reports a step that is not valid for the attempt's current
// stage. The attempt itself is left untouched.
func (c *AuthFlowController) wrongStage(attempt *models.AuthAttempt) *FlowOutcome {
	out := c.outcome(attempt)
	out.ErrorCode = CodeInvalidStage
	out.Message = CodeInvalidStage.Message()
	return out
}

func (c *AuthFlowController) advance(attempt *models.AuthAttempt, next models.AuthStage) {
	c.logger.Debug("Auth attempt transition",
		zap.String("session_id", attempt.SessionID),
		zap.String("from", string(attempt.Stage)),
		zap.String("to", string(next)),
	)
	attempt.Stage = next
	attempt.UpdatedAt = c.nowF().UTC()
}

func (c *AuthFlowController) outcome(attempt *models.AuthAttempt) *FlowOutcome {
	return &FlowOutcome{
		SessionID: attempt.SessionID,
		Stage:     attempt.Stage,
	}
}

func (c *AuthFlowController) publish(ctx context.Context, typ models.AuthEventType, attempt *models.AuthAttempt, accountID string, code ErrorCode, detail string) {
	c.events.Publish(ctx, &models.AuthEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		SessionID: attempt.SessionID,
		Identity:  attempt.AttemptedIdentity,
		AccountID: accountID,
		Error:     string(code),
		Detail:    detail,
		CreatedAt: c.nowF().UTC(),
	})
}
