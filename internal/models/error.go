package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Auth flow errors
	ErrValidation          = errors.New("validation failed")
	ErrAccountExists       = errors.New("account already exists")
	ErrAccountNotFound     = errors.New("account not found")
	ErrEmailNotConfirmed   = errors.New("email not confirmed")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidOTP          = errors.New("invalid or expired otp")
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrRateLimited         = errors.New("too many attempts")
	ErrTokenEmailMismatch  = errors.New("token does not belong to email")
	ErrOAuthAccount        = errors.New("account uses google sign-in")
	ErrPasswordCompromised = errors.New("password found in breach corpus")
	ErrUpstream            = errors.New("identity provider unavailable")
)

// ErrorCode is the machine-readable failure category carried in every
// error response body. Clients branch on it instead of the message.
type ErrorCode string

const (
	CodeValidation          ErrorCode = "validation_error"
	CodeAccountExists       ErrorCode = "account_exists"
	CodeAccountNotFound     ErrorCode = "account_not_found"
	CodeEmailNotConfirmed   ErrorCode = "email_not_confirmed"
	CodeInvalidCredentials  ErrorCode = "invalid_credentials"
	CodeInvalidOTP          ErrorCode = "invalid_otp"
	CodeInvalidToken        ErrorCode = "invalid_token"
	CodeRateLimited         ErrorCode = "rate_limited"
	CodeTokenEmailMismatch  ErrorCode = "token_email_mismatch"
	CodeOAuthAccount        ErrorCode = "oauth_account"
	CodePasswordCompromised ErrorCode = "password_compromised"
	CodeUpstream            ErrorCode = "upstream_error"
	CodeUnauthorized        ErrorCode = "unauthorized"
	CodeInternal            ErrorCode = "internal_error"
)

var codeErrors = []struct {
	code ErrorCode
	err  error
}{
	{CodeValidation, ErrValidation},
	{CodeAccountExists, ErrAccountExists},
	{CodeAccountNotFound, ErrAccountNotFound},
	{CodeEmailNotConfirmed, ErrEmailNotConfirmed},
	{CodeInvalidCredentials, ErrInvalidCredentials},
	{CodeInvalidOTP, ErrInvalidOTP},
	{CodeInvalidToken, ErrInvalidToken},
	{CodeRateLimited, ErrRateLimited},
	{CodeTokenEmailMismatch, ErrTokenEmailMismatch},
	{CodeOAuthAccount, ErrOAuthAccount},
	{CodePasswordCompromised, ErrPasswordCompromised},
	{CodeUpstream, ErrUpstream},
	{CodeUnauthorized, ErrUnauthorized},
}

// CodeOf classifies err into the closed ErrorCode set. Anything unknown
// is reported as internal_error.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	for _, ce := range codeErrors {
		if errors.Is(err, ce.err) {
			return ce.code
		}
	}
	if errors.Is(err, ErrBadRequest) {
		return CodeValidation
	}
	return CodeInternal
}

// ErrorForCode returns the sentinel error for code, or ErrInternalServer.
func ErrorForCode(code ErrorCode) error {
	for _, ce := range codeErrors {
		if ce.code == code {
			return ce.err
		}
	}
	return ErrInternalServer
}

// Valid reports whether code belongs to the closed set.
func (c ErrorCode) Valid() bool {
	if c == CodeInternal {
		return true
	}
	for _, ce := range codeErrors {
		if ce.code == c {
			return true
		}
	}
	return false
}
