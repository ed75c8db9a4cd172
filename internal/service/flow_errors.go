package service

import "fmt"

// ErrorCode is the caller-facing classification of a rejected transition.
type ErrorCode string

const (
	CodeInvalidPhoneNumber    ErrorCode = "invalid_phone_number"
	CodeUserNotFound          ErrorCode = "user_not_found"
	CodeEmailInUse            ErrorCode = "email_in_use"
	CodeUsernameInUse         ErrorCode = "username_in_use"
	CodeAccountDisabled       ErrorCode = "account_disabled"
	CodeAccountCreationFailed ErrorCode = "account_creation_failed"
	CodeSMSTransportFailure   ErrorCode = "sms_transport_failure"
	CodeSMSProviderRejected   ErrorCode = "sms_provider_rejected"
	CodeOTPExpired            ErrorCode = "otp_expired"
	CodeOTPNotFound           ErrorCode = "otp_not_found"
	CodeOTPMismatch           ErrorCode = "otp_mismatch"
	CodeOTPAttemptsExceeded   ErrorCode = "otp_attempts_exceeded"
	CodeAttemptNotFound       ErrorCode = "attempt_not_found"
	CodeInvalidStage          ErrorCode = "invalid_stage"
)

// Messages shown to end users. Conflicts share one message so the response
// does not reveal which field collided.
var userMessages = map[ErrorCode]string{
	CodeInvalidPhoneNumber:    "Invalid phone number.",
	CodeUserNotFound:          "No account is registered for this phone number.",
	CodeEmailInUse:            "This phone number is already in use.",
	CodeUsernameInUse:         "This phone number is already in use.",
	CodeAccountDisabled:       "This account is disabled.",
	CodeAccountCreationFailed: "The account could not be created.",
	CodeSMSTransportFailure:   "The verification code could not be sent. Please try again.",
	CodeSMSProviderRejected:   "The verification code could not be sent. Please try again.",
	CodeOTPExpired:            "The verification code has expired. Request a new one.",
	CodeOTPNotFound:           "No active verification code. Request a new one.",
	CodeOTPMismatch:           "The verification code is incorrect.",
	CodeOTPAttemptsExceeded:   "Too many incorrect codes. Start again.",
	CodeAttemptNotFound:       "The login attempt has expired. Start again.",
	CodeInvalidStage:          "This step is not available right now.",
}

func (c ErrorCode) Message() string {
	if m, ok := userMessages[c]; ok {
		return m
	}
	return "Authentication failed."
}

// Resendable reports whether a user-initiated resend may restart the flow
// at OTP_ISSUE after this rejection.
func (c ErrorCode) Resendable() bool {
	switch c {
	case CodeSMSTransportFailure, CodeSMSProviderRejected, CodeOTPExpired, CodeOTPNotFound:
		return true
	}
	return false
}

// FlowError is a classified rejection. Detail and Cause go to logs and
// audit events only, never to the caller.
type FlowError struct {
	Code   ErrorCode
	Field  string
	Detail string
	Cause  error
}

func (e *FlowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Cause)
	}
	return string(e.Code)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}
