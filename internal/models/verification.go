package models

import "time"

// OTPKind identifies which flow a one-time passcode belongs to.
type OTPKind string

const (
	OTPKindSignup OTPKind = "signup"
	OTPKindEmail  OTPKind = "email"
)

// Valid reports whether k is a known kind.
func (k OTPKind) Valid() bool {
	return k == OTPKindSignup || k == OTPKindEmail
}

// PendingVerification is an outstanding OTP for (Email, Kind). A newer
// request for the same pair replaces it.
type PendingVerification struct {
	Email     string
	Kind      OTPKind
	Secret    string `json:"-"`
	Attempts  int
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired checks if the code lifetime has elapsed
func (p *PendingVerification) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// GoogleIntent says why a Google ID token is being exchanged.
type GoogleIntent string

const (
	IntentCheck  GoogleIntent = "check"
	IntentLogin  GoogleIntent = "login"
	IntentSignup GoogleIntent = "signup"
)

// Valid reports whether i is a known intent.
func (i GoogleIntent) Valid() bool {
	return i == IntentCheck || i == IntentLogin || i == IntentSignup
}
