package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/voyageur/internal/auth"
	"github.com/BradenHooton/voyageur/internal/models"
	"github.com/BradenHooton/voyageur/internal/services"
	pkghttp "github.com/BradenHooton/voyageur/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	SignUp(ctx context.Context, email, password, fullName string) (*services.AuthResult, error)
	SignIn(ctx context.Context, email, password string) (*services.AuthResult, error)
	GoogleExchange(ctx context.Context, token string, intent models.GoogleIntent) (*services.GoogleResult, error)
	RequestPasswordReset(ctx context.Context, email string) (*services.OTPResult, error)
	VerifyPasswordResetOTP(ctx context.Context, email, otp string) (*services.OTPResult, error)
	ResetPassword(ctx context.Context, email, resetToken, newPassword string) (*services.OTPResult, error)
	VerifyOTP(ctx context.Context, email, otp string, kind models.OTPKind) (*services.AuthResult, error)
	ResendConfirmation(ctx context.Context, email string) (*services.OTPResult, error)
	RequestLoginOTP(ctx context.Context, email string) (*services.OTPResult, error)
	RefreshSession(ctx context.Context, refreshToken string) (*services.AuthResult, error)
	SignOut(ctx context.Context, acc *models.Account, accessToken string) error
	DeleteAccount(ctx context.Context, acc *models.Account) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service AuthServiceInterface
	logger  *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: service, logger: logger}
}

// decode reads and validates a JSON body. It writes the 400 itself and
// reports false on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		pkghttp.WriteBadRequest(w, string(models.CodeValidation), "Invalid request body")
		return false
	}
	if err := ValidateRequest(dst); err != nil {
		pkghttp.WriteBadRequest(w, string(models.CodeValidation), err.Error())
		return false
	}
	return true
}

// writeError maps a service error to its status. Upstream and unknown
// failures are logged and reported generically.
func (h *AuthHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := models.CodeOf(err)
	switch code {
	case models.CodeValidation, models.CodeInvalidOTP, models.CodePasswordCompromised, models.CodeAccountExists:
		pkghttp.WriteBadRequest(w, string(code), publicMessage(code, err))
	case models.CodeInvalidCredentials, models.CodeEmailNotConfirmed, models.CodeInvalidToken, models.CodeUnauthorized:
		pkghttp.WriteUnauthorized(w, string(code), publicMessage(code, err))
	case models.CodeTokenEmailMismatch:
		pkghttp.WriteForbidden(w, string(code), publicMessage(code, err))
	case models.CodeRateLimited:
		pkghttp.WriteTooManyRequests(w, string(code), publicMessage(code, err))
	default:
		h.logger.ErrorContext(r.Context(), "auth request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		pkghttp.WriteInternalError(w, string(code), publicMessage(code, err))
	}
}

func publicMessage(code models.ErrorCode, err error) string {
	switch code {
	case models.CodeValidation:
		return strings.TrimPrefix(err.Error(), models.ErrValidation.Error()+": ")
	case models.CodeAccountExists:
		return "An account with this email already exists. Please Sign In."
	case models.CodeInvalidCredentials:
		return "Invalid email or password."
	case models.CodeEmailNotConfirmed:
		return "Please confirm your email before signing in."
	case models.CodeInvalidOTP:
		return "Invalid OTP or expired."
	case models.CodeInvalidToken:
		return "Invalid or expired token."
	case models.CodeUnauthorized:
		return "Missing reset token."
	case models.CodeTokenEmailMismatch:
		return "Token mismatch."
	case models.CodeRateLimited:
		return "Too many attempts. Please try again later."
	case models.CodePasswordCompromised:
		return "This password has appeared in a data breach. Please choose another."
	case models.CodeUpstream:
		return "Authentication service unavailable. Please try again."
	default:
		return "Internal server error"
	}
}

// SignUp handles password signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.SignUp(r.Context(), req.Email, req.Password, strings.TrimSpace(req.FullName))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, res)
}

// SignIn handles password sign-in
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, res)
}

// Google exchanges a Google ID token according to its intent
func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	var req GoogleRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.GoogleExchange(r.Context(), req.Token, models.GoogleIntent(req.Intent))
	if err != nil {
		if errors.Is(err, models.ErrAccountExists) {
			pkghttp.WriteConflict(w, string(models.CodeAccountExists), publicMessage(models.CodeAccountExists, err))
			return
		}
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, res)
}

// ForgotOTPRequest starts the forgot-password flow
func (h *AuthHandler) ForgotOTPRequest(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, res)
}

// ForgotOTPVerify exchanges a recovery code for a reset token
func (h *AuthHandler) ForgotOTPVerify(w http.ResponseWriter, r *http.Request) {
	var req ResetOTPRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.VerifyPasswordResetOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, res)
}

// ResetPassword completes the forgot-password flow
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.ResetPassword(r.Context(), req.Email, req.ResetToken, req.NewPassword)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, res)
}

// VerifyOTP confirms a signup or passwordless sign-in code
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.VerifyOTP(r.Context(), req.Email, req.OTP, models.OTPKind(req.Type))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, res)
}

// ResendConfirmation re-sends the signup code
func (h *AuthHandler) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.ResendConfirmation(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, res)
}

// LoginOTP sends a passwordless sign-in code
func (h *AuthHandler) LoginOTP(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.RequestLoginOTP(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, res)
}

// Refresh rotates a session
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.RefreshSession(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, res)
}

// SignOut revokes the bearer token. Requires auth.RequireBearer.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	acc := auth.AccountFromContext(r.Context())
	if acc == nil {
		pkghttp.WriteUnauthorized(w, string(models.CodeUnauthorized), "unauthorized")
		return
	}

	if err := h.service.SignOut(r.Context(), acc, auth.AccessTokenFromContext(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated account
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	acc := auth.AccountFromContext(r.Context())
	if acc == nil {
		pkghttp.WriteUnauthorized(w, string(models.CodeUnauthorized), "unauthorized")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, UserResponse{User: acc})
}

// DeleteAccount removes the authenticated account
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	acc := auth.AccountFromContext(r.Context())
	if acc == nil {
		pkghttp.WriteUnauthorized(w, string(models.CodeUnauthorized), "unauthorized")
		return
	}

	if err := h.service.DeleteAccount(r.Context(), acc); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
