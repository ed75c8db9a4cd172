package models

import "time"

type AuthEventType string

const (
	EventLogin      AuthEventType = "LOGIN"
	EventLoginError AuthEventType = "LOGIN_ERROR"
	EventRegister   AuthEventType = "REGISTER"
	EventOTPSent    AuthEventType = "OTP_SENT"
)

// AuthEvent is the audit record emitted at flow milestones. Identity holds
// the normalized phone number, never the raw input.
type AuthEvent struct {
	ID        string        `json:"id" ch:"event_id"`
	Type      AuthEventType `json:"type" ch:"event_type"`
	SessionID string        `json:"session_id" ch:"session_id"`
	Identity  string        `json:"identity,omitempty" ch:"identity"`
	AccountID string        `json:"account_id,omitempty" ch:"account_id"`
	Error     string        `json:"error,omitempty" ch:"error"`
	Detail    string        `json:"detail,omitempty" ch:"detail"`
	CreatedAt time.Time     `json:"created_at" ch:"created_at"`
}
