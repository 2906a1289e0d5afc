package models

import (
	"slices"
	"strings"
	"time"
)

// Authentication methods an account can be linked to.
const (
	MethodPassword = "email"
	MethodGoogle   = "google"
)

// Account is the identity-provider record for one person.
type Account struct {
	ID               string          `json:"id"`
	Email            string          `json:"email"`
	EmailConfirmedAt *time.Time      `json:"email_confirmed_at,omitempty"`
	Methods          []string        `json:"providers"`
	Metadata         AccountMetadata `json:"user_metadata"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// AccountMetadata holds profile fields shown in the app.
type AccountMetadata struct {
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// IsVerified reports whether the account email has been confirmed.
func (a *Account) IsVerified() bool {
	return a.EmailConfirmedAt != nil
}

// HasMethod reports whether the account is linked to method.
func (a *Account) HasMethod(method string) bool {
	return slices.Contains(a.Methods, method)
}

// IsOAuthOnly reports whether the account can only sign in with Google.
func (a *Account) IsOAuthOnly() bool {
	return a.HasMethod(MethodGoogle) && !a.HasMethod(MethodPassword)
}

// MergeMetadata fills empty fields of m from incoming and reports whether
// anything changed. Existing values win.
func (m *AccountMetadata) MergeMetadata(incoming AccountMetadata) bool {
	changed := false
	if m.FullName == "" && incoming.FullName != "" {
		m.FullName = incoming.FullName
		changed = true
	}
	if m.AvatarURL == "" && incoming.AvatarURL != "" {
		m.AvatarURL = incoming.AvatarURL
		changed = true
	}
	return changed
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// StoredAccount is an Account together with the credentials only a
// first-party store keeps.
type StoredAccount struct {
	Account
	PasswordHash  string `json:"-"`
	GoogleSubject string `json:"-"`
}

// AddMethod links method to the account if not already linked.
func (a *Account) AddMethod(method string) bool {
	if a.HasMethod(method) {
		return false
	}
	a.Methods = append(a.Methods, method)
	return true
}
