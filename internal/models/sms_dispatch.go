package models

import "time"

type DispatchOutcome string

const (
	DispatchSent             DispatchOutcome = "sent"
	DispatchTransportFailure DispatchOutcome = "transport_failure"
	DispatchProviderRejected DispatchOutcome = "provider_rejected"
)

// SMSDispatch records one gateway call.
type SMSDispatch struct {
	Destination string          `json:"destination"`
	Provider    string          `json:"provider"`
	Outcome     DispatchOutcome `json:"outcome"`
	StatusCode  int             `json:"status_code,omitempty"`
	Duration    time.Duration   `json:"duration"`
	SentAt      time.Time       `json:"sent_at"`
}
