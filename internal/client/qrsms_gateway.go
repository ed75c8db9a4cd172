package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"phone-auth-service/internal/models"
	"phone-auth-service/internal/util"
)

const (
	qrSmsProvider    = "qrsms"
	qrSmsSendPath    = "/api/send-sms"
	maxResponseBytes = 4096
)

// QrSmsGateway talks to the QrSms HTTP API:
// GET {base}/api/send-sms?token=..&to=..&text=..
type QrSmsGateway struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	logger     *zap.Logger
}

func NewQrSmsGateway(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *QrSmsGateway {
	return &QrSmsGateway{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (g *QrSmsGateway) sendURL(destination, body string) string {
	return fmt.Sprintf("%s%s?token=%s&to=%s&text=%s",
		g.BaseURL,
		qrSmsSendPath,
		url.QueryEscape(g.APIKey),
		url.QueryEscape(destination),
		url.QueryEscape(body),
	)
}

func (g *QrSmsGateway) Send(ctx context.Context, destination, body string) (*models.SMSDispatch, error) {
	started := time.Now()
	dispatch := &models.SMSDispatch{
		Destination: destination,
		Provider:    qrSmsProvider,
		SentAt:      started.UTC(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.sendURL(destination, body), nil)
	if err != nil {
		dispatch.Outcome = models.DispatchTransportFailure
		return dispatch, &MessageSendError{Kind: TransportFailure, Detail: "invalid request", Cause: err}
	}

	resp, err := g.HTTPClient.Do(req)
	dispatch.Duration = time.Since(started)
	if err != nil {
		dispatch.Outcome = models.DispatchTransportFailure
		g.logger.Warn("SMS provider unreachable", util.MaskPhone(destination), zap.Error(err))
		return dispatch, &MessageSendError{Kind: TransportFailure, Cause: err}
	}
	defer resp.Body.Close()

	dispatch.StatusCode = resp.StatusCode
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		dispatch.Outcome = models.DispatchTransportFailure
		return dispatch, &MessageSendError{Kind: TransportFailure, StatusCode: resp.StatusCode, Detail: "unreadable response", Cause: err}
	}

	if !IsSuccessStatus(resp.StatusCode) {
		dispatch.Outcome = models.DispatchProviderRejected
		g.logger.Warn("SMS provider rejected message",
			util.MaskPhone(destination),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return dispatch, &MessageSendError{
			Kind:       ProviderRejected,
			StatusCode: resp.StatusCode,
			Detail:     strings.TrimSpace(string(respBody)),
		}
	}

	dispatch.Outcome = models.DispatchSent
	g.logger.Debug("SMS sent",
		util.MaskPhone(destination),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", dispatch.Duration),
	)
	return dispatch, nil
}
