package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	flowOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_flow_outcomes_total",
		Help: "Auth attempts reaching a stage, labelled by error code when rejected.",
	}, []string{"stage", "code"})

	smsDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sms_dispatch_total",
		Help: "OTP dispatches by outcome.",
	}, []string{"outcome"})

	otpVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otp_verifications_total",
		Help: "OTP verifications by result.",
	}, []string{"result"})

	accountsProvisioned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "accounts_provisioned_total",
		Help: "Accounts created inline during phone login.",
	})
)
