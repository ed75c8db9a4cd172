package client

import (
	"context"
	"fmt"

	"phone-auth-service/internal/models"
)

// SMSGateway delivers one text message. Implementations report every
// failure as a *MessageSendError and must honor ctx cancellation.
type SMSGateway interface {
	Send(ctx context.Context, destination, body string) (*models.SMSDispatch, error)
}

type SendFailureKind string

const (
	// TransportFailure means the provider could not be reached or its
	// response could not be read.
	TransportFailure SendFailureKind = "transport_failure"
	// ProviderRejected means the provider answered with a non-2xx status.
	ProviderRejected SendFailureKind = "provider_rejected"
)

type MessageSendError struct {
	Kind       SendFailureKind
	StatusCode int
	Detail     string
	Cause      error
}

func (e *MessageSendError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("sms %s: status %d: %s", e.Kind, e.StatusCode, e.Detail)
	case e.Cause != nil:
		return fmt.Sprintf("sms %s: %v", e.Kind, e.Cause)
	default:
		return fmt.Sprintf("sms %s: %s", e.Kind, e.Detail)
	}
}

func (e *MessageSendError) Unwrap() error {
	return e.Cause
}

// IsSuccessStatus accepts only 200 through 299 inclusive.
func IsSuccessStatus(status int) bool {
	return status >= 200 && status <= 299
}
