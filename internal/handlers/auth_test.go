package handlers_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/voyageur/internal/auth"
	"github.com/BradenHooton/voyageur/internal/handlers"
	"github.com/BradenHooton/voyageur/internal/models"
	"github.com/BradenHooton/voyageur/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHandler(svc *handlers.MockAuthService) *handlers.AuthHandler {
	return handlers.NewAuthHandler(svc, quietLogger())
}

type staticResolver struct {
	acc *models.Account
}

func (s staticResolver) GetUser(_ context.Context, token string) (*models.Account, error) {
	if token != "good-token" {
		return nil, models.ErrInvalidToken
	}
	return s.acc, nil
}

func withBearer(h http.HandlerFunc, acc *models.Account) http.Handler {
	return auth.RequireBearer(staticResolver{acc: acc}, quietLogger())(h)
}

func TestSignUp_Success(t *testing.T) {
	var gotName string
	svc := &handlers.MockAuthService{
		SignUpFunc: func(_ context.Context, email, password, fullName string) (*services.AuthResult, error) {
			gotName = fullName
			return &services.AuthResult{User: &models.Account{ID: "u1", Email: email}}, nil
		},
	}

	req := handlers.NewTestRequest(t, http.MethodPost, "/api/auth/signup", handlers.SignUpRequest{
		Email:    "ada@example.com",
		Password: "Abcdefghij1!",
		FullName: "  Ada Lovelace ",
	})
	w := httptest.NewRecorder()
	newHandler(svc).SignUp(w, req)

	var resp services.AuthResult
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "u1", resp.User.ID)
	assert.Nil(t, resp.Session)
	assert.Equal(t, "Ada Lovelace", gotName)
}

func TestSignUp_AccountExistsIsBadRequest(t *testing.T) {
	svc := &handlers.MockAuthService{
		SignUpFunc: func(context.Context, string, string, string) (*services.AuthResult, error) {
			return nil, models.ErrAccountExists
		},
	}

	req := handlers.NewTestRequest(t, http.MethodPost, "/api/auth/signup", handlers.SignUpRequest{
		Email:    "ada@example.com",
		Password: "Abcdefghij1!",
	})
	w := httptest.NewRecorder()
	newHandler(svc).SignUp(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, models.CodeAccountExists)
}

func TestSignUp_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"missing email", handlers.SignUpRequest{Password: "Abcdefghij1!"}},
		{"bad email", handlers.SignUpRequest{Email: "not-an-email", Password: "Abcdefghij1!"}},
		{"short password", handlers.SignUpRequest{Email: "ada@example.com", Password: "abc"}},
		{"not json", "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &handlers.MockAuthService{
				SignUpFunc: func(context.Context, string, string, string) (*services.AuthResult, error) {
					called = true
					return nil, nil
				},
			}

			var req *http.Request
			if s, ok := tt.body.(string); ok {
				req = httptest.NewRequest(http.MethodPost, "/api/auth/signup", stringsReader(s))
			} else {
				req = handlers.NewTestRequest(t, http.MethodPost, "/api/auth/signup", tt.body)
			}
			w := httptest.NewRecorder()
			newHandler(svc).SignUp(w, req)

			handlers.AssertErrorResponse(t, w, http.StatusBadRequest, models.CodeValidation)
			assert.False(t, called)
		})
	}
}

func TestSignIn_FailuresAreUnauthorized(t *testing.T) {
	tests := []struct {
		err  error
		code models.ErrorCode
	}{
		{models.ErrInvalidCredentials, models.CodeInvalidCredentials},
		{fmt.Errorf("signin: %w", models.ErrEmailNotConfirmed), models.CodeEmailNotConfirmed},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			svc := &handlers.MockAuthService{
				SignInFunc: func(context.Context, string, string) (*services.AuthResult, error) {
					return nil, tt.err
				},
			}

			req := handlers.NewTestRequest(t, http.MethodPost, "/api/auth/signin", handlers.SignInRequest{
				Email:    "ada@example.com",
				Password: "wrong",
			})
			w := httptest.NewRecorder()
			newHandler(svc).SignIn(w, req)

			handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, tt.code)
		})
	}
}

func TestSignIn_UpstreamIsGeneric(t *testing.T) {
	svc := &handlers.MockAuthService{
		SignInFunc: func(context.Context, string, string) (*services.AuthResult, error) {
			return nil, fmt.Errorf("signin: %w: gotrue 502 at 10.0.0.4", models.ErrUpstream)
		},
	}

	req := handlers.NewTestRequest(t, http.MethodPost, "/api/auth/signin", handlers.SignInRequest{
		Email:    "ada@example.com",
		Password: "Abcdefghij1!",
	})
	w := httptest.NewRecorder()
	newHandler(svc).SignIn(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusInternalServerError, models.CodeUpstream)
	assert.NotContains(t, w.Body.String(), "10.0.0.4")
}

func TestGoogle_AccountExistsIsConflict(t *testing.T) {
	svc := &handlers.MockAuthService{
		GoogleExchangeFunc: func(_ context.Context, _ string, intent models.GoogleIntent) (*services.GoogleResult, error) {
			assert.Equal(t, models.IntentSignup, intent)
			return nil, models.ErrAccountExists
		},
	}

	req := handlers.NewTestRequest(t, http.MethodPost, "/api/auth/google", handlers.GoogleRequest{Token: "tok", Intent: "signup"})
	w := httptest.NewRecorder()
	newHandler(svc).Google(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusConflict, models.CodeAccountExists)
}

func TestGoogle_UnknownIntent(t *testing.T) {
	req := handlers.NewTestRequest(t, http.MethodPost, "/api/auth/google", handlers.GoogleRequest{Token: "tok", Intent: "register"})
	w := httptest.NewRecorder()
	newHandler(&handlers.MockAuthService{}).Google(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, models.CodeValidation)
}

func TestGoogle_CheckShape(t *testing.T) {
	exists := true
	svc := &handlers.MockAuthService{
		GoogleExchangeFunc: func(context.Context, string, models.GoogleIntent) (*services.GoogleResult, error) {
			return &services.GoogleResult{Exists: &exists, Email: "ada@example.com"}, nil
		},
	}

	req := handlers.NewTestRequest(t, http.MethodPost, "/api/auth/google", handlers.GoogleRequest{Token: "tok", Intent: "check"})
	w := httptest.NewRecorder()
	newHandler(svc).Google(w, req)

	var body map[string]any
	handlers.AssertJSONResponse(t, w, http.StatusOK, &body)
	assert.Equal(t, map[string]any{"exists": true, "email": "ada@example.com"}, body)
}

func TestForgotOTPRequest_SoftFailureIs200(t *testing.T) {
	svc := &handlers.MockAuthService{
		RequestPasswordResetFunc: func(context.Context, string) (*services.OTPResult, error) {
			return &services.OTPResult{Message: services.MsgUseGoogle, Code: models.CodeOAuthAccount}, nil
		},
	}

	req := handlers.NewTestRequest(t, http.MethodPost, "/api/auth/forgot-otp-request", handlers.EmailRequest{Email: "ada@example.com"})
	w := httptest.NewRecorder()
	newHandler(svc).ForgotOTPRequest(w, req)

	var body map[string]any
	handlers.AssertJSONResponse(t, w, http.StatusOK, &body)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "oauth_account", body["code"])
	assert.Equal(t, services.MsgUseGoogle, body["message"])
}

func TestForgotOTPRequest_RateLimited(t *testing.T) {
	svc := &handlers.MockAuthService{
		RequestPasswordResetFunc: func(context.Context, string) (*services.OTPResult, error) {
			return nil, models.ErrRateLimited
		},
	}

	req := handlers.NewTestRequest(t, http.MethodPost, "/api/auth/forgot-otp-request", handlers.EmailRequest{Email: "ada@example.com"})
	w := httptest.NewRecorder()
	newHandler(svc).ForgotOTPRequest(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusTooManyRequests, models.CodeRateLimited)
}

func TestForgotOTPVerify_InvalidOTP(t *testing.T) {
	req := handlers.NewTestRequest(t, http.MethodPost, "/api/auth/forgot-otp-verify", handlers.ResetOTPRequest{Email: "ada@example.com", OTP: "123456"})
	w := httptest.NewRecorder()
	newHandler(&handlers.MockAuthService{}).ForgotOTPVerify(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, models.CodeInvalidOTP)
}

func TestResetPassword_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   models.ErrorCode
	}{
		{"missing token", models.ErrUnauthorized, http.StatusUnauthorized, models.CodeUnauthorized},
		{"expired token", models.ErrInvalidToken, http.StatusUnauthorized, models.CodeInvalidToken},
		{"other account", models.ErrTokenEmailMismatch, http.StatusForbidden, models.CodeTokenEmailMismatch},
		{"breached", models.ErrPasswordCompromised, http.StatusBadRequest, models.CodePasswordCompromised},
		{"outage", fmt.Errorf("update password: %w", models.ErrUpstream), http.StatusInternalServerError, models.CodeUpstream},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, models.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &handlers.MockAuthService{
				ResetPasswordFunc: func(context.Context, string, string, string) (*services.OTPResult, error) {
					return nil, tt.err
				},
			}

			req := handlers.NewTestRequest(t, http.MethodPost, "/api/auth/reset-password-with-otp", handlers.ResetPasswordRequest{
				Email:       "ada@example.com",
				ResetToken:  "reset",
				NewPassword: "Abcdefghij1!",
			})
			w := httptest.NewRecorder()
			newHandler(svc).ResetPassword(w, req)

			handlers.AssertErrorResponse(t, w, tt.status, tt.code)
		})
	}
}

func TestResetPassword_MismatchMessage(t *testing.T) {
	svc := &handlers.MockAuthService{
		ResetPasswordFunc: func(context.Context, string, string, string) (*services.OTPResult, error) {
			return nil, models.ErrTokenEmailMismatch
		},
	}

	req := handlers.NewTestRequest(t, http.MethodPost, "/api/auth/reset-password-with-otp", handlers.ResetPasswordRequest{
		Email:       "ada@example.com",
		ResetToken:  "reset",
		NewPassword: "Abcdefghij1!",
	})
	w := httptest.NewRecorder()
	newHandler(svc).ResetPassword(w, req)

	assert.Contains(t, w.Body.String(), "Token mismatch.")
}

func TestVerifyOTP_TypeIsValidated(t *testing.T) {
	var gotKind models.OTPKind
	svc := &handlers.MockAuthService{
		VerifyOTPFunc: func(_ context.Context, _, _ string, kind models.OTPKind) (*services.AuthResult, error) {
			gotKind = kind
			return &services.AuthResult{User: &models.Account{ID: "u1"}, Session: &models.Session{AccessToken: "at"}}, nil
		},
	}
	h := newHandler(svc)

	req := handlers.NewTestRequest(t, http.MethodPost, "/api/auth/verify-otp", handlers.VerifyOTPRequest{Email: "ada@example.com", OTP: "123456", Type: "magiclink"})
	w := httptest.NewRecorder()
	h.VerifyOTP(w, req)
	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, models.CodeValidation)

	req = handlers.NewTestRequest(t, http.MethodPost, "/api/auth/verify-otp", handlers.VerifyOTPRequest{Email: "ada@example.com", OTP: "123456", Type: "signup"})
	w = httptest.NewRecorder()
	h.VerifyOTP(w, req)
	handlers.AssertJSONResponse(t, w, http.StatusOK, nil)
	assert.Equal(t, models.OTPKindSignup, gotKind)
}

func TestRefresh_InvalidToken(t *testing.T) {
	req := handlers.NewTestRequest(t, http.MethodPost, "/api/auth/refresh", handlers.RefreshRequest{RefreshToken: "rt"})
	w := httptest.NewRecorder()
	newHandler(&handlers.MockAuthService{}).Refresh(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, models.CodeInvalidToken)
}

func TestMe(t *testing.T) {
	acc := &models.Account{ID: "u1", Email: "ada@example.com"}
	h := withBearer(newHandler(&handlers.MockAuthService{}).Me, acc)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp handlers.UserResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "u1", resp.User.ID)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, models.CodeInvalidToken)
}

func TestSignOutAndDelete(t *testing.T) {
	acc := &models.Account{ID: "u1", Email: "ada@example.com"}
	var signedOut string
	var deleted string
	svc := &handlers.MockAuthService{
		SignOutFunc: func(_ context.Context, a *models.Account, token string) error {
			signedOut = a.ID + ":" + token
			return nil
		},
		DeleteAccountFunc: func(_ context.Context, a *models.Account) error {
			deleted = a.ID
			return nil
		},
	}
	h := newHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signout", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	withBearer(h.SignOut, acc).ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "u1:good-token", signedOut)

	req = httptest.NewRequest(http.MethodDelete, "/api/auth/account", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w = httptest.NewRecorder()
	withBearer(h.DeleteAccount, acc).ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "u1", deleted)
}

func TestSignOut_WithoutBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signout", nil)
	w := httptest.NewRecorder()
	newHandler(&handlers.MockAuthService{}).SignOut(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, models.CodeUnauthorized)
}
