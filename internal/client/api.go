// Package client is the application-side half of sign-in: a typed client
// for the auth API, the injected session manager, the auth form state
// machine and the session observer that keeps the app shell in sync.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/voyageur/internal/models"
	pkghttp "github.com/BradenHooton/voyageur/pkg/http"
	"github.com/hashicorp/go-retryablehttp"
)

const maxResponseBytes = 1 << 20

// APIError is a failed API call. It unwraps to the models sentinel for its
// code so callers can use errors.Is.
type APIError struct {
	Status  int
	Code    models.ErrorCode
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return models.ErrorForCode(e.Code)
}

// AuthResponse is {user, session}
type AuthResponse struct {
	User    *models.Account `json:"user"`
	Session *models.Session `json:"session"`
}

// GoogleResponse is one of the three shapes of POST /google
type GoogleResponse struct {
	Exists          *bool           `json:"exists,omitempty"`
	NeedsOnboarding *bool           `json:"needsOnboarding,omitempty"`
	Email           string          `json:"email,omitempty"`
	Session         *models.Session `json:"session,omitempty"`
	User            *models.Account `json:"user,omitempty"`
}

// OTPResponse is {message, success, code?, resetToken?}
type OTPResponse struct {
	Message    string           `json:"message"`
	Success    bool             `json:"success"`
	Code       models.ErrorCode `json:"code,omitempty"`
	ResetToken string           `json:"resetToken,omitempty"`
}

// APIClient calls the auth API. Calls are never retried: the user
// resubmits.
type APIClient struct {
	baseURL string
	http    *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.HTTPClient.Timeout = timeout
	retryClient.Logger = nil
	retryClient.CheckRetry = func(context.Context, *http.Response, error) (bool, error) {
		return false, nil
	}
	// hand every response back, including 4xx and 5xx
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/auth",
		http:    retryClient.StandardClient(),
	}
}

func (c *APIClient) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", models.ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", models.ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp.StatusCode, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func parseError(status int, body []byte) error {
	var er pkghttp.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || !models.ErrorCode(er.Error).Valid() {
		code := models.CodeInternal
		if status == http.StatusTooManyRequests {
			code = models.CodeRateLimited
		}
		return &APIError{Status: status, Code: code, Message: "An unexpected error occurred."}
	}
	return &APIError{Status: status, Code: models.ErrorCode(er.Error), Message: er.Message}
}

func (c *APIClient) SignUp(ctx context.Context, fullName, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, http.MethodPost, "/signup", "", map[string]string{
		"fullName": fullName,
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) SignIn(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/signin", "", map[string]string{"email": email, "password": password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) Google(ctx context.Context, idToken string, intent models.GoogleIntent) (*GoogleResponse, error) {
	var out GoogleResponse
	if err := c.do(ctx, http.MethodPost, "/google", "", map[string]string{"token": idToken, "intent": string(intent)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) RequestForgotOTP(ctx context.Context, email string) (*OTPResponse, error) {
	return c.otpCall(ctx, "/forgot-otp-request", map[string]string{"email": email})
}

func (c *APIClient) VerifyForgotOTP(ctx context.Context, email, otp string) (*OTPResponse, error) {
	return c.otpCall(ctx, "/forgot-otp-verify", map[string]string{"email": email, "otp": otp})
}

func (c *APIClient) ResetPasswordWithOTP(ctx context.Context, email, resetToken, newPassword string) (*OTPResponse, error) {
	return c.otpCall(ctx, "/reset-password-with-otp", map[string]string{
		"email":       email,
		"resetToken":  resetToken,
		"newPassword": newPassword,
	})
}

func (c *APIClient) ResendConfirmation(ctx context.Context, email string) (*OTPResponse, error) {
	return c.otpCall(ctx, "/resend-confirmation", map[string]string{"email": email})
}

func (c *APIClient) RequestLoginOTP(ctx context.Context, email string) (*OTPResponse, error) {
	return c.otpCall(ctx, "/otp", map[string]string{"email": email})
}

func (c *APIClient) otpCall(ctx context.Context, path string, in map[string]string) (*OTPResponse, error) {
	var out OTPResponse
	if err := c.do(ctx, http.MethodPost, path, "", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) VerifyOTP(ctx context.Context, email, otp string, kind models.OTPKind) (*AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, http.MethodPost, "/verify-otp", "", map[string]string{
		"email": email,
		"otp":   otp,
		"type":  string(kind),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/refresh", "", map[string]string{"refreshToken": refreshToken}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/signout", accessToken, nil, nil)
}

func (c *APIClient) Me(ctx context.Context, accessToken string) (*models.Account, error) {
	var out struct {
		User *models.Account `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/me", accessToken, nil, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, errors.New("me: reply had no user")
	}
	return out.User, nil
}
