package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"phone-auth-service/internal/models"
	"phone-auth-service/internal/service"
	"phone-auth-service/internal/util"
)

const maxBodyBytes = 16 << 10

var errInternal = errors.New("internal error")

// FlowService is the part of the auth flow controller the HTTP layer uses.
type FlowService interface {
	Begin(ctx context.Context, req service.BeginRequest) (*service.FlowOutcome, error)
	Resend(ctx context.Context, sessionID string) (*service.FlowOutcome, error)
	Submit(ctx context.Context, sessionID, code string) (*service.FlowOutcome, error)
	Cancel(ctx context.Context, sessionID string) error
}

// AuthHandler exposes the phone login over JSON.
type AuthHandler struct {
	flow   FlowService
	logger *zap.Logger
}

func NewAuthHandler(flow FlowService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		flow:   flow,
		logger: logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

type LoginRequest struct {
	SessionID  string            `json:"session_id"`
	Username   string            `json:"username"`
	RememberMe bool              `json:"remember_me"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type ResendRequest struct {
	SessionID string `json:"session_id"`
}

type VerifyRequest struct {
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
}

// RegisterRoutes registers the phone login routes
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth/phone", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/resend", h.Resend)
		r.Post("/verify", h.Verify)
		r.Delete("/attempts/{sessionID}", h.CancelAttempt)
	})
}

// Login starts a phone login attempt
// @Summary Start phone login
// @Description Normalize the phone number, resolve or create the account and send an OTP
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Failure 502 {object} Response
// @Router /auth/phone/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	startTime := time.Now()
	out, err := h.flow.Begin(r.Context(), service.BeginRequest{
		SessionID:  req.SessionID,
		Username:   req.Username,
		RememberMe: req.RememberMe,
		Attributes: req.Attributes,
	})
	h.respondWithOutcome(w, out, err, "Login")
	h.logger.Debug("Phone login step handled",
		util.String("method", "Login"),
		util.Duration("duration", time.Since(startTime)),
	)
}

// Resend issues and sends a fresh OTP for an attempt
// @Summary Resend OTP
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ResendRequest true "Resend request"
// @Success 200 {object} Response
// @Router /auth/phone/resend [post]
func (h *AuthHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req ResendRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("session_id is required"), "Invalid request body")
		return
	}

	out, err := h.flow.Resend(r.Context(), req.SessionID)
	h.respondWithOutcome(w, out, err, "Resend")
}

// Verify submits an OTP
// @Summary Verify OTP
// @Tags auth
// @Accept json
// @Produce json
// @Param request body VerifyRequest true "Verify request"
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Failure 410 {object} Response
// @Router /auth/phone/verify [post]
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" || req.Code == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("session_id and code are required"), "Invalid request body")
		return
	}

	out, err := h.flow.Submit(r.Context(), req.SessionID, req.Code)
	h.respondWithOutcome(w, out, err, "Verify")
}

// CancelAttempt drops an attempt
// @Summary Cancel phone login
// @Tags auth
// @Param sessionID path string true "Session ID"
// @Success 200 {object} Response
// @Router /auth/phone/attempts/{sessionID} [delete]
func (h *AuthHandler) CancelAttempt(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.flow.Cancel(r.Context(), sessionID); err != nil {
		h.logger.Error("Failed to cancel auth attempt", util.String("session_id", sessionID), util.ErrorField(err))
		h.respondWithError(w, http.StatusInternalServerError, errInternal, "Failed to cancel attempt")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Attempt cancelled"))
}

func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.respondWithError(w, http.StatusBadRequest, errors.New("malformed JSON body"), "Invalid request body")
		return false
	}
	return true
}

// respondWithOutcome writes a flow outcome. Infrastructure errors are
// logged and answered with a generic 500.
func (h *AuthHandler) respondWithOutcome(w http.ResponseWriter, out *service.FlowOutcome, err error, method string) {
	if err != nil {
		h.logger.Error("Auth flow failed", util.String("method", method), util.ErrorField(err))
		h.respondWithError(w, http.StatusInternalServerError, errInternal, "Authentication is temporarily unavailable")
		return
	}

	status := statusForOutcome(out)
	if out.ErrorCode == "" {
		h.respondWithJSON(w, status, successResponse(out, stageMessage(out.Stage)))
		return
	}
	h.respondWithJSON(w, status, Response{
		Success: false,
		Data:    out,
		Error:   string(out.ErrorCode),
		Message: out.Message,
	})
}

func stageMessage(stage models.AuthStage) string {
	switch stage {
	case models.StageOTPWait:
		return "Verification code sent"
	case models.StageAuthenticated:
		return "Authenticated"
	default:
		return ""
	}
}

func statusForOutcome(out *service.FlowOutcome) int {
	switch out.ErrorCode {
	case "":
		return http.StatusOK
	case service.CodeInvalidPhoneNumber:
		return http.StatusBadRequest
	case service.CodeOTPMismatch, service.CodeOTPAttemptsExceeded:
		return http.StatusUnauthorized
	case service.CodeEmailInUse, service.CodeUsernameInUse, service.CodeInvalidStage:
		return http.StatusConflict
	case service.CodeAccountDisabled:
		return http.StatusForbidden
	case service.CodeAccountCreationFailed:
		return http.StatusUnprocessableEntity
	case service.CodeSMSTransportFailure, service.CodeSMSProviderRejected:
		return http.StatusBadGateway
	case service.CodeOTPExpired, service.CodeOTPNotFound:
		return http.StatusGone
	case service.CodeAttemptNotFound, service.CodeUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *AuthHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *AuthHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}
