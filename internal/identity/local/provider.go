// Package local is a first-party identity provider: accounts live in
// Postgres, passwords are bcrypt hashes, sessions are HS256 JWTs and
// passcodes are emailed through the configured mailer.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/voyageur/internal/auth"
	"github.com/BradenHooton/voyageur/internal/identity"
	"github.com/BradenHooton/voyageur/internal/models"
	"github.com/BradenHooton/voyageur/internal/oauth"
	pkgauth "github.com/BradenHooton/voyageur/pkg/auth"
	"github.com/BradenHooton/voyageur/pkg/logger"
)

const providerGoogle = "google"

// AccountStore persists accounts
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*models.StoredAccount, error)
	GetByEmail(ctx context.Context, email string) (*models.StoredAccount, error)
	Create(ctx context.Context, acc *models.StoredAccount) (*models.StoredAccount, error)
	ReplaceUnverified(ctx context.Context, id, passwordHash string, metadata models.AccountMetadata) (*models.StoredAccount, error)
	ConfirmEmail(ctx context.Context, id string, at time.Time) (*models.StoredAccount, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	LinkGoogle(ctx context.Context, id, subject string, at time.Time) (*models.StoredAccount, error)
	UpdateMetadata(ctx context.Context, id string, metadata models.AccountMetadata) (*models.StoredAccount, error)
	Delete(ctx context.Context, id string) error
}

// VerificationStore persists outstanding passcodes
type VerificationStore interface {
	Upsert(ctx context.Context, p *models.PendingVerification) error
	Get(ctx context.Context, email string, kind models.OTPKind) (*models.PendingVerification, error)
	IncrementAttempts(ctx context.Context, email string, kind models.OTPKind) (int, error)
	Delete(ctx context.Context, email string, kind models.OTPKind) error
}

// RevocationStore records signed-out tokens
type RevocationStore interface {
	RevokeToken(ctx context.Context, jti, accountID, tokenType string, expiresAt time.Time, reason string) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// Mailer delivers passcodes
type Mailer interface {
	SendCode(ctx context.Context, email, code string, kind models.OTPKind, expiresAt time.Time) error
}

// IDTokenVerifier validates third-party ID tokens
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*oauth.Identity, error)
}

// Deps wires a Provider
type Deps struct {
	Accounts       AccountStore
	Verifications  VerificationStore
	Revocations    RevocationStore
	Tokens         *auth.TokenManager
	OTPs           *auth.OTPManager
	Mailer         Mailer
	Google         IDTokenVerifier
	Timing         *auth.TimingDelay
	MaxOTPAttempts int
	Logger         *slog.Logger
}

type Provider struct {
	accounts      AccountStore
	verifications VerificationStore
	revocations   RevocationStore
	tokens        *auth.TokenManager
	otps          *auth.OTPManager
	mailer        Mailer
	google        IDTokenVerifier
	timing        *auth.TimingDelay
	maxAttempts   int
	logger        *slog.Logger
	now           func() time.Time
}

var _ identity.Provider = (*Provider)(nil)

func New(deps Deps) *Provider {
	maxAttempts := deps.MaxOTPAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Provider{
		accounts:      deps.Accounts,
		verifications: deps.Verifications,
		revocations:   deps.Revocations,
		tokens:        deps.Tokens,
		otps:          deps.OTPs,
		mailer:        deps.Mailer,
		google:        deps.Google,
		timing:        deps.Timing,
		maxAttempts:   maxAttempts,
		logger:        deps.Logger,
		now:           time.Now,
	}
}

func (p *Provider) hash(password string) (string, error) {
	if err := pkgauth.ValidatePassword(password); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrValidation, err)
	}
	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

func (p *Provider) SignUp(ctx context.Context, req identity.SignupRequest) (*models.Account, *models.Session, error) {
	email := models.NormalizeEmail(req.Email)
	hash, err := p.hash(req.Password)
	if err != nil {
		return nil, nil, err
	}

	var stored *models.StoredAccount
	existing, err := p.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil && existing.IsVerified():
		return nil, nil, models.ErrAccountExists
	case err == nil:
		stored, err = p.accounts.ReplaceUnverified(ctx, existing.ID, hash, req.Metadata)
		if errors.Is(err, models.ErrNotFound) {
			// confirmed between the lookup and the update
			return nil, nil, models.ErrAccountExists
		}
	case errors.Is(err, models.ErrNotFound):
		stored, err = p.accounts.Create(ctx, &models.StoredAccount{
			Account: models.Account{
				Email:    email,
				Methods:  []string{models.MethodPassword},
				Metadata: req.Metadata,
			},
			PasswordHash: hash,
		})
		if errors.Is(err, models.ErrConflict) {
			return nil, nil, models.ErrAccountExists
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("signup: %w", err)
	}

	if err := p.issueCode(ctx, email, models.OTPKindSignup); err != nil {
		return nil, nil, err
	}
	return &stored.Account, nil, nil
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	start := time.Now()

	acc, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			p.timing.WaitFrom(ctx, start, false)
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("signin: %w", err)
	}

	if acc.PasswordHash == "" || pkgauth.ComparePassword(acc.PasswordHash, password) != nil {
		p.timing.WaitFrom(ctx, start, false)
		return nil, models.ErrInvalidCredentials
	}
	if !acc.IsVerified() {
		return nil, models.ErrEmailNotConfirmed
	}

	return p.tokens.IssueSession(&acc.Account)
}

func (p *Provider) SignInWithIDToken(ctx context.Context, provider, idToken string) (*models.Session, error) {
	if provider != providerGoogle {
		return nil, fmt.Errorf("%w: unsupported id token provider %q", models.ErrValidation, provider)
	}
	id, err := p.google.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}

	now := p.now()
	acc, err := p.accounts.GetByEmail(ctx, id.Email)
	switch {
	case errors.Is(err, models.ErrNotFound):
		acc, err = p.accounts.Create(ctx, &models.StoredAccount{
			Account: models.Account{
				Email:            id.Email,
				EmailConfirmedAt: &now,
				Methods:          []string{models.MethodGoogle},
				Metadata:         id.Metadata(),
			},
			GoogleSubject: id.Subject,
		})
	case err != nil:
	case acc.GoogleSubject != "" && acc.GoogleSubject != id.Subject:
		return nil, fmt.Errorf("%w: google subject does not match linked account", models.ErrInvalidToken)
	default:
		wasPending := !acc.IsVerified()
		acc, err = p.accounts.LinkGoogle(ctx, acc.ID, id.Subject, now)
		if err == nil && wasPending {
			if derr := p.verifications.Delete(ctx, acc.Email, models.OTPKindSignup); derr != nil {
				p.logger.WarnContext(ctx, "failed to drop pending signup code", slog.Any("error", derr))
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("google sign-in: %w", err)
	}

	return p.tokens.IssueSession(&acc.Account)
}

func (p *Provider) SendOTP(ctx context.Context, email string, shouldCreateUser bool) error {
	email = models.NormalizeEmail(email)
	_, err := p.accounts.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, models.ErrNotFound) && !shouldCreateUser:
		return models.ErrAccountNotFound
	case errors.Is(err, models.ErrNotFound):
		_, err = p.accounts.Create(ctx, &models.StoredAccount{Account: models.Account{Email: email}})
		if err != nil && !errors.Is(err, models.ErrConflict) {
			return fmt.Errorf("send otp: %w", err)
		}
	case err != nil:
		return fmt.Errorf("send otp: %w", err)
	}
	return p.issueCode(ctx, email, models.OTPKindEmail)
}

func (p *Provider) ResendSignup(ctx context.Context, email string) error {
	email = models.NormalizeEmail(email)
	acc, err := p.accounts.GetByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	if acc.IsVerified() {
		return nil
	}
	return p.issueCode(ctx, email, models.OTPKindSignup)
}

func (p *Provider) issueCode(ctx context.Context, email string, kind models.OTPKind) error {
	now := p.now()
	secret, code, err := p.otps.Issue(email, now)
	if err != nil {
		return err
	}

	pending := &models.PendingVerification{
		Email:     email,
		Kind:      kind,
		Secret:    secret,
		ExpiresAt: now.Add(p.otps.TTL()),
		CreatedAt: now,
	}
	if err := p.verifications.Upsert(ctx, pending); err != nil {
		return fmt.Errorf("store verification: %w", err)
	}

	if err := p.mailer.SendCode(ctx, email, code, kind, pending.ExpiresAt); err != nil {
		return fmt.Errorf("%w: deliver code: %w", models.ErrUpstream, err)
	}
	return nil
}

func (p *Provider) VerifyOTP(ctx context.Context, email, code string, kind models.OTPKind) (*models.Session, error) {
	email = models.NormalizeEmail(email)
	pending, err := p.verifications.Get(ctx, email, kind)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrInvalidOTP
	}
	if err != nil {
		return nil, fmt.Errorf("verify otp: %w", err)
	}

	if pending.IsExpired(p.now()) || pending.Attempts >= p.maxAttempts {
		_ = p.verifications.Delete(ctx, email, kind)
		return nil, models.ErrInvalidOTP
	}

	if !p.otps.Validate(code, pending.Secret, pending.CreatedAt) {
		attempts, err := p.verifications.IncrementAttempts(ctx, email, kind)
		if err != nil {
			p.logger.WarnContext(ctx, "failed to record otp attempt", slog.Any("error", err))
		}
		if attempts >= p.maxAttempts {
			p.logger.WarnContext(ctx, "otp attempts exhausted",
				slog.String("email", logger.SanitizedEmail(email)),
				slog.String("kind", string(kind)))
		}
		return nil, models.ErrInvalidOTP
	}

	if err := p.verifications.Delete(ctx, email, kind); err != nil {
		return nil, fmt.Errorf("consume otp: %w", err)
	}

	acc, err := p.accounts.GetByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrInvalidOTP
	}
	if err != nil {
		return nil, fmt.Errorf("verify otp: %w", err)
	}
	if !acc.IsVerified() {
		if acc, err = p.accounts.ConfirmEmail(ctx, acc.ID, p.now()); err != nil {
			return nil, fmt.Errorf("confirm email: %w", err)
		}
	}

	return p.tokens.IssueSession(&acc.Account)
}

// claims validates tok and rejects revoked tokens
func (p *Provider) claims(ctx context.Context, tok, tokenType string) (*models.TokenClaims, error) {
	claims, err := p.tokens.ValidateToken(tok, tokenType)
	if err != nil {
		return nil, err
	}
	revoked, err := p.revocations.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("revocation check: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: token revoked", models.ErrInvalidToken)
	}
	return claims, nil
}

func (p *Provider) RefreshSession(ctx context.Context, refreshToken string) (*models.Session, error) {
	claims, err := p.claims(ctx, refreshToken, models.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	acc, err := p.accounts.GetByID(ctx, claims.UserID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: account removed", models.ErrInvalidToken)
	}
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	// refresh tokens rotate
	if err := p.revocations.RevokeToken(ctx, claims.ID, claims.UserID, models.TokenTypeRefresh, claims.ExpiresAt.Time, "rotated"); err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	return p.tokens.IssueSession(&acc.Account)
}

func (p *Provider) GetUser(ctx context.Context, accessToken string) (*models.Account, error) {
	claims, err := p.claims(ctx, accessToken, models.TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	acc, err := p.accounts.GetByID(ctx, claims.UserID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: account removed", models.ErrInvalidToken)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &acc.Account, nil
}

func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	claims, err := p.tokens.ValidateToken(accessToken, models.TokenTypeAccess)
	if err != nil {
		return err
	}
	if err := p.revocations.RevokeToken(ctx, claims.ID, claims.UserID, models.TokenTypeAccess, claims.ExpiresAt.Time, "signout"); err != nil {
		return fmt.Errorf("signout: %w", err)
	}
	return nil
}

func (p *Provider) FindUserByEmail(ctx context.Context, email string) (*models.Account, error) {
	acc, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, notFoundAsAccount(err)
	}
	return &acc.Account, nil
}

func (p *Provider) GetUserByID(ctx context.Context, id string) (*models.Account, error) {
	acc, err := p.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundAsAccount(err)
	}
	return &acc.Account, nil
}

func (p *Provider) UpdatePassword(ctx context.Context, id, password string) error {
	hash, err := p.hash(password)
	if err != nil {
		return err
	}
	return notFoundAsAccount(p.accounts.UpdatePassword(ctx, id, hash))
}

func (p *Provider) UpdateMetadata(ctx context.Context, id string, metadata models.AccountMetadata) (*models.Account, error) {
	acc, err := p.accounts.UpdateMetadata(ctx, id, metadata)
	if err != nil {
		return nil, notFoundAsAccount(err)
	}
	return &acc.Account, nil
}

func (p *Provider) DeleteUser(ctx context.Context, id string) error {
	return notFoundAsAccount(p.accounts.Delete(ctx, id))
}

func notFoundAsAccount(err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrAccountNotFound
	}
	return err
}
