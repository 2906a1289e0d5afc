// Package identity defines the contract with the system of record for
// accounts, credentials and sessions.
package identity

import (
	"context"

	"github.com/BradenHooton/voyageur/internal/models"
)

// SignupRequest carries a password signup
type SignupRequest struct {
	Email    string
	Password string
	Metadata models.AccountMetadata
}

// Public is the anonymous-key surface of the provider.
type Public interface {
	// SignUp creates (or re-issues for an unverified account) a password
	// account and triggers the confirmation OTP. The session is nil while
	// confirmation is pending.
	SignUp(ctx context.Context, req SignupRequest) (*models.Account, *models.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error)
	// SignInWithIDToken exchanges a verified third-party ID token for a
	// session, linking or creating the account.
	SignInWithIDToken(ctx context.Context, provider, idToken string) (*models.Session, error)
	SendOTP(ctx context.Context, email string, shouldCreateUser bool) error
	VerifyOTP(ctx context.Context, email, code string, kind models.OTPKind) (*models.Session, error)
	ResendSignup(ctx context.Context, email string) error
	RefreshSession(ctx context.Context, refreshToken string) (*models.Session, error)
	// GetUser resolves an access token to its account.
	GetUser(ctx context.Context, accessToken string) (*models.Account, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Admin is the service-role surface of the provider.
type Admin interface {
	// FindUserByEmail returns models.ErrAccountNotFound when absent.
	FindUserByEmail(ctx context.Context, email string) (*models.Account, error)
	GetUserByID(ctx context.Context, id string) (*models.Account, error)
	UpdatePassword(ctx context.Context, id, password string) error
	UpdateMetadata(ctx context.Context, id string, metadata models.AccountMetadata) (*models.Account, error)
	DeleteUser(ctx context.Context, id string) error
}

// Provider is the full identity provider contract
type Provider interface {
	Public
	Admin
}
