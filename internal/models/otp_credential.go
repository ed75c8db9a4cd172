package models

import (
	"errors"
	"time"
)

var ErrOTPNotFound = errors.New("otp credential not found")

// OTPCredential is the hashed form of an issued code. At most one live
// credential exists per owner.
type OTPCredential struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	CodeHash      string    `json:"code_hash"`
	CodeSalt      string    `json:"code_salt"`
	HashAlgorithm string    `json:"hash_algorithm"`
	PepperVersion int       `json:"pepper_version"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Consumed      bool      `json:"consumed"`
	Attempts      int       `json:"attempts"`
	// MaxAttempts is the mismatch limit; zero means unlimited. Stores refuse
	// to consume a credential that has reached it.
	MaxAttempts int `json:"max_attempts"`
}

func (c *OTPCredential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

func (c *OTPCredential) Locked() bool {
	return c.MaxAttempts > 0 && c.Attempts >= c.MaxAttempts
}

type VerifyResult int

const (
	VerifyNotFound VerifyResult = iota
	VerifyOK
	VerifyExpired
	VerifyMismatch
	VerifyLocked
)

func (r VerifyResult) String() string {
	switch r {
	case VerifyOK:
		return "ok"
	case VerifyExpired:
		return "expired"
	case VerifyMismatch:
		return "mismatch"
	case VerifyLocked:
		return "locked"
	default:
		return "not_found"
	}
}
