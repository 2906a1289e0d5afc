package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/voyageur/internal/models"
	"github.com/BradenHooton/voyageur/internal/services"
	pkghttp "github.com/BradenHooton/voyageur/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError models.ErrorCode) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, string(expectedError), resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	SignUpFunc                 func(ctx context.Context, email, password, fullName string) (*services.AuthResult, error)
	SignInFunc                 func(ctx context.Context, email, password string) (*services.AuthResult, error)
	GoogleExchangeFunc         func(ctx context.Context, token string, intent models.GoogleIntent) (*services.GoogleResult, error)
	RequestPasswordResetFunc   func(ctx context.Context, email string) (*services.OTPResult, error)
	VerifyPasswordResetOTPFunc func(ctx context.Context, email, otp string) (*services.OTPResult, error)
	ResetPasswordFunc          func(ctx context.Context, email, resetToken, newPassword string) (*services.OTPResult, error)
	VerifyOTPFunc              func(ctx context.Context, email, otp string, kind models.OTPKind) (*services.AuthResult, error)
	ResendConfirmationFunc     func(ctx context.Context, email string) (*services.OTPResult, error)
	RequestLoginOTPFunc        func(ctx context.Context, email string) (*services.OTPResult, error)
	RefreshSessionFunc         func(ctx context.Context, refreshToken string) (*services.AuthResult, error)
	SignOutFunc                func(ctx context.Context, acc *models.Account, accessToken string) error
	DeleteAccountFunc          func(ctx context.Context, acc *models.Account) error
}

func (m *MockAuthService) SignUp(ctx context.Context, email, password, fullName string) (*services.AuthResult, error) {
	if m.SignUpFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.SignUpFunc(ctx, email, password, fullName)
}

func (m *MockAuthService) SignIn(ctx context.Context, email, password string) (*services.AuthResult, error) {
	if m.SignInFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.SignInFunc(ctx, email, password)
}

func (m *MockAuthService) GoogleExchange(ctx context.Context, token string, intent models.GoogleIntent) (*services.GoogleResult, error) {
	if m.GoogleExchangeFunc == nil {
		return nil, models.ErrInvalidToken
	}
	return m.GoogleExchangeFunc(ctx, token, intent)
}

func (m *MockAuthService) RequestPasswordReset(ctx context.Context, email string) (*services.OTPResult, error) {
	if m.RequestPasswordResetFunc == nil {
		return &services.OTPResult{Message: services.MsgOTPSent, Success: true}, nil
	}
	return m.RequestPasswordResetFunc(ctx, email)
}

func (m *MockAuthService) VerifyPasswordResetOTP(ctx context.Context, email, otp string) (*services.OTPResult, error) {
	if m.VerifyPasswordResetOTPFunc == nil {
		return nil, models.ErrInvalidOTP
	}
	return m.VerifyPasswordResetOTPFunc(ctx, email, otp)
}

func (m *MockAuthService) ResetPassword(ctx context.Context, email, resetToken, newPassword string) (*services.OTPResult, error) {
	if m.ResetPasswordFunc == nil {
		return nil, models.ErrInvalidToken
	}
	return m.ResetPasswordFunc(ctx, email, resetToken, newPassword)
}

func (m *MockAuthService) VerifyOTP(ctx context.Context, email, otp string, kind models.OTPKind) (*services.AuthResult, error) {
	if m.VerifyOTPFunc == nil {
		return nil, models.ErrInvalidOTP
	}
	return m.VerifyOTPFunc(ctx, email, otp, kind)
}

func (m *MockAuthService) ResendConfirmation(ctx context.Context, email string) (*services.OTPResult, error) {
	if m.ResendConfirmationFunc == nil {
		return &services.OTPResult{Message: services.MsgConfirmationSent, Success: true}, nil
	}
	return m.ResendConfirmationFunc(ctx, email)
}

func (m *MockAuthService) RequestLoginOTP(ctx context.Context, email string) (*services.OTPResult, error) {
	if m.RequestLoginOTPFunc == nil {
		return &services.OTPResult{Message: services.MsgOTPSent, Success: true}, nil
	}
	return m.RequestLoginOTPFunc(ctx, email)
}

func (m *MockAuthService) RefreshSession(ctx context.Context, refreshToken string) (*services.AuthResult, error) {
	if m.RefreshSessionFunc == nil {
		return nil, models.ErrInvalidToken
	}
	return m.RefreshSessionFunc(ctx, refreshToken)
}

func (m *MockAuthService) SignOut(ctx context.Context, acc *models.Account, accessToken string) error {
	if m.SignOutFunc == nil {
		return nil
	}
	return m.SignOutFunc(ctx, acc, accessToken)
}

func (m *MockAuthService) DeleteAccount(ctx context.Context, acc *models.Account) error {
	if m.DeleteAccountFunc == nil {
		return nil
	}
	return m.DeleteAccountFunc(ctx, acc)
}
