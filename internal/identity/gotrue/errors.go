package gotrue

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/BradenHooton/voyageur/internal/models"
)

// APIError is a non-2xx reply from the auth server. Kind is the models
// sentinel it classifies as.
type APIError struct {
	Status  int
	Code    string
	Message string
	Kind    error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gotrue: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

type errorBody struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

var codeKinds = map[string]error{
	"email_not_confirmed":        models.ErrEmailNotConfirmed,
	"invalid_credentials":        models.ErrInvalidCredentials,
	"invalid_grant":              models.ErrInvalidCredentials,
	"otp_expired":                models.ErrInvalidOTP,
	"otp_disabled":               models.ErrAccountNotFound,
	"bad_jwt":                    models.ErrInvalidToken,
	"no_authorization":           models.ErrInvalidToken,
	"session_not_found":          models.ErrInvalidToken,
	"session_expired":            models.ErrInvalidToken,
	"refresh_token_not_found":    models.ErrInvalidToken,
	"refresh_token_already_used": models.ErrInvalidToken,
	"user_already_exists":        models.ErrAccountExists,
	"email_exists":               models.ErrAccountExists,
	"user_not_found":             models.ErrAccountNotFound,
	"weak_password":              models.ErrValidation,
	"validation_failed":          models.ErrValidation,
	"email_address_invalid":      models.ErrValidation,
	"over_email_send_rate_limit": models.ErrRateLimited,
	"over_request_rate_limit":    models.ErrRateLimited,
}

// ParseError classifies an error reply. Servers that predate error_code
// send an OAuth-style error/error_description pair instead.
func ParseError(status int, body []byte) *APIError {
	var b errorBody
	_ = json.Unmarshal(body, &b)

	apiErr := &APIError{Status: status, Code: b.ErrorCode}
	apiErr.Message = firstNonEmpty(b.Msg, b.Message, b.ErrorDescription, b.Error, http.StatusText(status))

	if apiErr.Code == "" {
		apiErr.Code = legacyCode(b)
	}

	if kind, ok := codeKinds[apiErr.Code]; ok {
		apiErr.Kind = kind
		return apiErr
	}

	switch {
	case status >= http.StatusInternalServerError:
		apiErr.Kind = models.ErrUpstream
	case status == http.StatusTooManyRequests:
		apiErr.Kind = models.ErrRateLimited
	case status == http.StatusUnauthorized:
		apiErr.Kind = models.ErrInvalidToken
	case status == http.StatusNotFound:
		apiErr.Kind = models.ErrAccountNotFound
	default:
		apiErr.Kind = models.ErrValidation
	}
	return apiErr
}

// legacyCode maps the pre-error_code reply shape onto current codes
func legacyCode(b errorBody) string {
	desc := strings.ToLower(b.ErrorDescription)
	switch {
	case b.Error == "invalid_grant" && strings.Contains(desc, "email not confirmed"):
		return "email_not_confirmed"
	case b.Error == "invalid_grant" && strings.Contains(desc, "refresh token"):
		return "refresh_token_not_found"
	case b.Error == "invalid_grant":
		return "invalid_grant"
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
