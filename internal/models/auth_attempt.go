package models

import (
	"errors"
	"time"
)

var ErrAttemptNotFound = errors.New("auth attempt not found")

type AuthStage string

const (
	StageInit              AuthStage = "INIT"
	StageCollectIdentity   AuthStage = "COLLECT_IDENTITY"
	StageResolve           AuthStage = "RESOLVE"
	StageChallengeExisting AuthStage = "CHALLENGE_EXISTING"
	StageAutoCreate        AuthStage = "AUTO_CREATE"
	StageOTPIssue          AuthStage = "OTP_ISSUE"
	StageOTPWait           AuthStage = "OTP_WAIT"
	StageAuthenticated     AuthStage = "AUTHENTICATED"
	StageRejected          AuthStage = "REJECTED"
)

func (s AuthStage) Terminal() bool {
	return s == StageAuthenticated || s == StageRejected
}

// AuthAttempt is the per-session state of one login flow. It is persisted
// only while the flow waits on the user (OTP_WAIT or a resendable rejection).
type AuthAttempt struct {
	SessionID         string    `json:"session_id"`
	Stage             AuthStage `json:"stage"`
	AttemptedIdentity string    `json:"attempted_identity"`
	AccountID         string    `json:"account_id,omitempty"`
	AccountCreated    bool      `json:"account_created,omitempty"`
	RememberMe        bool      `json:"remember_me"`
	Mismatches        int       `json:"mismatches"`
	LastError         string    `json:"last_error,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
