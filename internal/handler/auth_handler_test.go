package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"phone-auth-service/internal/config"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/service"
)

type fakeFlow struct {
	outcome *service.FlowOutcome
	err     error

	begin     service.BeginRequest
	submitted string
	cancelled string
}

func (f *fakeFlow) Begin(ctx context.Context, req service.BeginRequest) (*service.FlowOutcome, error) {
	f.begin = req
	return f.outcome, f.err
}

func (f *fakeFlow) Resend(ctx context.Context, sessionID string) (*service.FlowOutcome, error) {
	return f.outcome, f.err
}

func (f *fakeFlow) Submit(ctx context.Context, sessionID, code string) (*service.FlowOutcome, error) {
	f.submitted = code
	return f.outcome, f.err
}

func (f *fakeFlow) Cancel(ctx context.Context, sessionID string) error {
	f.cancelled = sessionID
	return f.err
}

type staticHealth map[string]error

func (h staticHealth) HealthCheck(ctx context.Context) map[string]error { return h }

func newTestRouter(flow FlowService, health HealthChecker) http.Handler {
	logger := zap.NewNop()
	return NewRouter(NewAuthHandler(flow, logger), health, &config.ServerConfig{CORSOrigins: []string{"*"}}, logger)
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func TestLogin_PassesRequestToFlow(t *testing.T) {
	flow := &fakeFlow{outcome: &service.FlowOutcome{SessionID: "s1", Stage: models.StageOTPWait, AttemptsRemaining: 3}}
	router := newTestRouter(flow, staticHealth{})

	rec, resp := do(t, router, http.MethodPost, "/api/v1/auth/phone/login",
		`{"session_id":"s1","username":"5551234","remember_me":true,"attributes":{"firstName":"Ada"}}`)

	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("status = %d success = %v, want 200 true", rec.Code, resp.Success)
	}
	if flow.begin.Username != "5551234" || !flow.begin.RememberMe || flow.begin.Attributes["firstName"] != "Ada" {
		t.Errorf("Begin request = %+v", flow.begin)
	}
}

func TestOutcomeStatusCodes(t *testing.T) {
	tests := []struct {
		code service.ErrorCode
		want int
	}{
		{service.CodeInvalidPhoneNumber, http.StatusBadRequest},
		{service.CodeEmailInUse, http.StatusConflict},
		{service.CodeUsernameInUse, http.StatusConflict},
		{service.CodeAccountDisabled, http.StatusForbidden},
		{service.CodeAccountCreationFailed, http.StatusUnprocessableEntity},
		{service.CodeSMSProviderRejected, http.StatusBadGateway},
		{service.CodeSMSTransportFailure, http.StatusBadGateway},
		{service.CodeOTPMismatch, http.StatusUnauthorized},
		{service.CodeOTPAttemptsExceeded, http.StatusUnauthorized},
		{service.CodeOTPExpired, http.StatusGone},
		{service.CodeAttemptNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		flow := &fakeFlow{outcome: &service.FlowOutcome{
			SessionID: "s1",
			Stage:     models.StageRejected,
			ErrorCode: tt.code,
			Message:   tt.code.Message(),
		}}
		rec, resp := do(t, newTestRouter(flow, staticHealth{}), http.MethodPost, "/api/v1/auth/phone/verify",
			`{"session_id":"s1","code":"123456"}`)

		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.code, rec.Code, tt.want)
		}
		if resp.Success || resp.Error != string(tt.code) {
			t.Errorf("%s: response = %+v", tt.code, resp)
		}
	}
}

func TestInfrastructureErrorIsNotLeaked(t *testing.T) {
	flow := &fakeFlow{err: errors.New("gocql: no hosts available in the pool")}
	rec, resp := do(t, newTestRouter(flow, staticHealth{}), http.MethodPost, "/api/v1/auth/phone/login",
		`{"username":"5551234"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "gocql") {
		t.Errorf("body leaks internal error: %s", rec.Body.String())
	}
	if resp.Error != errInternal.Error() {
		t.Errorf("Error = %q, want %q", resp.Error, errInternal.Error())
	}
}

func TestVerify_RequiresFields(t *testing.T) {
	flow := &fakeFlow{}
	for _, body := range []string{`{"session_id":"s1"}`, `{"code":"1"}`, `not json`, `{"session_id":"s1","code":"1","extra":true}`} {
		rec, _ := do(t, newTestRouter(flow, staticHealth{}), http.MethodPost, "/api/v1/auth/phone/verify", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
	if flow.submitted != "" {
		t.Error("flow called for an invalid request")
	}
}

func TestCancelAttempt(t *testing.T) {
	flow := &fakeFlow{}
	rec, _ := do(t, newTestRouter(flow, staticHealth{}), http.MethodDelete, "/api/v1/auth/phone/attempts/s42", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if flow.cancelled != "s42" {
		t.Errorf("cancelled = %q, want s42", flow.cancelled)
	}
}

func TestHealth(t *testing.T) {
	rec, _ := do(t, newTestRouter(&fakeFlow{}, staticHealth{"redis": nil}), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("healthy status = %d, want 200", rec.Code)
	}

	rec, _ = do(t, newTestRouter(&fakeFlow{}, staticHealth{"redis": nil, "scylla": errors.New("down")}), http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"scylla":"unhealthy"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestRequireHTTPSWhenTLSEnabled(t *testing.T) {
	logger := zap.NewNop()
	router := NewRouter(NewAuthHandler(&fakeFlow{}, logger), staticHealth{}, &config.ServerConfig{EnableTLS: true}, logger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", rec.Code)
	}
}

type brokenWriter struct {
	header http.Header
	code   int
}

func (w *brokenWriter) Header() http.Header {
	if w.header == nil {
		w.header = http.Header{}
	}
	return w.header
}

func (w *brokenWriter) WriteHeader(code int) { w.code = code }

func (w *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestHealth_FailedWriteIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	w := &brokenWriter{}

	healthHandler(staticHealth{"redis": nil}, zap.New(core))(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.code)
	}
	if n := logs.FilterMessage("Failed to write response").Len(); n != 1 {
		t.Errorf("write failures logged = %d, want 1", n)
	}
}
