package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/voyageur/internal/breach"
	"github.com/BradenHooton/voyageur/internal/events"
	"github.com/BradenHooton/voyageur/internal/identity"
	"github.com/BradenHooton/voyageur/internal/models"
	"github.com/BradenHooton/voyageur/internal/oauth"
	pkglogger "github.com/BradenHooton/voyageur/pkg/logger"
)

const googleProvider = "google"

// User-facing messages of the OTP and reset endpoints
const (
	MsgOTPSent          = "OTP sent to your email."
	MsgOTPVerified      = "OTP Verified."
	MsgPasswordUpdated  = "Password updated successfully!"
	MsgConfirmationSent = "Confirmation email sent."
	MsgNoAccount        = "We could not find an account with that email. Please Sign Up."
	MsgUseGoogle        = "This email uses Google Sign-In. Please use the 'Sign In with Google' button."
)

// IDTokenVerifier validates third-party ID tokens
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*oauth.Identity, error)
}

// OTPLimiter throttles passcode requests per email
type OTPLimiter interface {
	Allow(ctx context.Context, email string) (bool, error)
}

// AuthResult carries an account and, once granted, its session
type AuthResult struct {
	User    *models.Account `json:"user"`
	Session *models.Session `json:"session"`
}

// GoogleResult is one of three shapes depending on intent and existence:
// {exists, email}, {needsOnboarding: true, email} or
// {needsOnboarding: false, session, user}.
type GoogleResult struct {
	Exists          *bool           `json:"exists,omitempty"`
	NeedsOnboarding *bool           `json:"needsOnboarding,omitempty"`
	Email           string          `json:"email,omitempty"`
	Session         *models.Session `json:"session,omitempty"`
	User            *models.Account `json:"user,omitempty"`
}

// OTPResult is the body of the OTP and reset endpoints. A soft failure has
// Success false and a Code.
type OTPResult struct {
	Message    string           `json:"message"`
	Success    bool             `json:"success"`
	Code       models.ErrorCode `json:"code,omitempty"`
	ResetToken string           `json:"resetToken,omitempty"`
}

// AuthServiceDeps wires an AuthService
type AuthServiceDeps struct {
	Provider  identity.Provider
	Verifier  IDTokenVerifier
	Limiter   OTPLimiter
	Breach    breach.Checker
	Publisher events.Publisher
	Logger    *slog.Logger
	Audit     *pkglogger.AuditLogger
}

// AuthService enforces the account-existence rules the identity provider
// does not enforce itself
type AuthService struct {
	provider  identity.Provider
	verifier  IDTokenVerifier
	limiter   OTPLimiter
	breach    breach.Checker
	publisher events.Publisher
	logger    *slog.Logger
	audit     *pkglogger.AuditLogger
}

func NewAuthService(deps AuthServiceDeps) *AuthService {
	s := &AuthService{
		provider:  deps.Provider,
		verifier:  deps.Verifier,
		limiter:   deps.Limiter,
		breach:    deps.Breach,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		audit:     deps.Audit,
	}
	if s.breach == nil {
		s.breach = breach.Disabled{}
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.audit == nil {
		s.audit = pkglogger.NewAuditLogger(deps.Logger)
	}
	return s
}

func boolPtr(b bool) *bool { return &b }

// checkPassword rejects breached passwords. Checker failures are logged and
// ignored.
func (s *AuthService) checkPassword(ctx context.Context, password string) error {
	compromised, err := s.breach.Compromised(ctx, password)
	if err != nil {
		s.logger.WarnContext(ctx, "password breach check unavailable", slog.Any("error", err))
		return nil
	}
	if compromised {
		return models.ErrPasswordCompromised
	}
	return nil
}

// lookup reports whether an account exists for email
func (s *AuthService) lookup(ctx context.Context, email string) (*models.Account, bool, error) {
	acc, err := s.provider.FindUserByEmail(ctx, email)
	if errors.Is(err, models.ErrAccountNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup account: %w", err)
	}
	return acc, true, nil
}

func (s *AuthService) publish(ctx context.Context, t events.Type, acc *models.Account) {
	if acc == nil {
		return
	}
	s.publisher.Publish(ctx, events.AccountEvent{Type: t, AccountID: acc.ID, Email: acc.Email})
}

// withUser makes sure session.User is populated
func (s *AuthService) withUser(ctx context.Context, session *models.Session) (*AuthResult, error) {
	if session.User == nil {
		user, err := s.provider.GetUser(ctx, session.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("load session user: %w", err)
		}
		session.User = user
	}
	return &AuthResult{User: session.User, Session: session}, nil
}

// SignUp creates an account, or re-issues the confirmation code for an
// account that never confirmed. Verified accounts are rejected.
func (s *AuthService) SignUp(ctx context.Context, email, password, fullName string) (*AuthResult, error) {
	email = models.NormalizeEmail(email)

	if err := s.checkPassword(ctx, password); err != nil {
		s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{EventType: pkglogger.EventSignup, Email: email, FailureReason: "password_compromised"})
		return nil, err
	}

	existing, found, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	if found && existing.IsVerified() {
		s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{EventType: pkglogger.EventSignup, Email: email, FailureReason: "account_exists"})
		return nil, models.ErrAccountExists
	}

	acc, session, err := s.provider.SignUp(ctx, identity.SignupRequest{
		Email:    email,
		Password: password,
		Metadata: models.AccountMetadata{FullName: fullName},
	})
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventSignup,
		UserID:    acc.ID,
		Email:     email,
		Success:   true,
		Metadata:  map[string]string{"reissued": fmt.Sprint(found)},
	})
	s.publish(ctx, events.TypeSignupRequested, acc)
	return &AuthResult{User: acc, Session: session}, nil
}

// SignIn is a direct password sign-in with no existence pre-check
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	email = models.NormalizeEmail(email)

	session, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventSignin,
			Email:         email,
			FailureReason: string(models.CodeOf(err)),
		})
		return nil, fmt.Errorf("signin: %w", err)
	}

	result, err := s.withUser(ctx, session)
	if err != nil {
		return nil, err
	}
	s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{EventType: pkglogger.EventSignin, UserID: result.User.ID, Email: email, Success: true})
	return result, nil
}

// GoogleExchange verifies a Google ID token and acts on intent. The email
// is taken only from the verified token.
func (s *AuthService) GoogleExchange(ctx context.Context, token string, intent models.GoogleIntent) (*GoogleResult, error) {
	if !intent.Valid() {
		return nil, fmt.Errorf("%w: unknown intent %q", models.ErrValidation, intent)
	}

	id, err := s.verifier.Verify(ctx, token)
	if err != nil {
		s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventGoogleExchange,
			FailureReason: string(models.CodeOf(err)),
			Metadata:      map[string]string{"intent": string(intent)},
		})
		return nil, err
	}

	_, exists, err := s.lookup(ctx, id.Email)
	if err != nil {
		return nil, err
	}

	switch {
	case intent == models.IntentCheck:
		return &GoogleResult{Exists: boolPtr(exists), Email: id.Email}, nil
	case intent == models.IntentSignup && exists:
		s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventGoogleExchange,
			Email:         id.Email,
			FailureReason: "account_exists",
			Metadata:      map[string]string{"intent": string(intent)},
		})
		return nil, models.ErrAccountExists
	case intent == models.IntentLogin && !exists:
		return &GoogleResult{NeedsOnboarding: boolPtr(true), Email: id.Email}, nil
	}

	session, err := s.provider.SignInWithIDToken(ctx, googleProvider, token)
	if err != nil {
		return nil, fmt.Errorf("google exchange: %w", err)
	}
	result, err := s.withUser(ctx, session)
	if err != nil {
		return nil, err
	}

	user := s.syncGoogleProfile(ctx, result.User, id)
	session.User = user

	s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventGoogleExchange,
		UserID:    user.ID,
		Email:     user.Email,
		Success:   true,
		Metadata:  map[string]string{"intent": string(intent)},
	})
	s.publish(ctx, events.TypeGoogleSignIn, user)
	return &GoogleResult{NeedsOnboarding: boolPtr(false), Session: session, User: user}, nil
}

// syncGoogleProfile copies name and picture from the token onto the
// account, keeping values already set, then re-reads the account. The write
// happens even when nothing merged so the returned account is the stored
// one. Failures are logged and the account is returned as it was.
func (s *AuthService) syncGoogleProfile(ctx context.Context, user *models.Account, id *oauth.Identity) *models.Account {
	metadata := user.Metadata
	metadata.MergeMetadata(id.Metadata())

	if _, err := s.provider.UpdateMetadata(ctx, user.ID, metadata); err != nil {
		s.logger.WarnContext(ctx, "failed to write google profile", slog.String("user_id", user.ID), slog.Any("error", err))
		return user
	}

	fresh, err := s.provider.GetUserByID(ctx, user.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to re-read account after profile write", slog.String("user_id", user.ID), slog.Any("error", err))
		user.Metadata = metadata
		return user
	}
	return fresh
}

func (s *AuthService) checkRate(ctx context.Context, email string) error {
	allowed, err := s.limiter.Allow(ctx, email)
	if err != nil {
		return err
	}
	if !allowed {
		s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{EventType: pkglogger.EventRateLimitDenied, Email: email})
		return models.ErrRateLimited
	}
	return nil
}

// RequestPasswordReset emails a recovery code to an existing password
// account. Unknown and Google-only accounts get a soft failure.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (*OTPResult, error) {
	email = models.NormalizeEmail(email)
	if err := s.checkRate(ctx, email); err != nil {
		return nil, err
	}

	acc, found, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	if !found {
		return &OTPResult{Message: MsgNoAccount, Code: models.CodeAccountNotFound}, nil
	}
	if acc.IsOAuthOnly() {
		return &OTPResult{Message: MsgUseGoogle, Code: models.CodeOAuthAccount}, nil
	}

	if err := s.provider.SendOTP(ctx, email, false); err != nil {
		return nil, fmt.Errorf("send reset code: %w", err)
	}

	s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{EventType: pkglogger.EventResetRequested, UserID: acc.ID, Email: email, Success: true})
	return &OTPResult{Message: MsgOTPSent, Success: true}, nil
}

// VerifyPasswordResetOTP exchanges the recovery code for a reset token
func (s *AuthService) VerifyPasswordResetOTP(ctx context.Context, email, otp string) (*OTPResult, error) {
	email = models.NormalizeEmail(email)

	session, err := s.provider.VerifyOTP(ctx, email, otp, models.OTPKindEmail)
	if err != nil {
		s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{EventType: pkglogger.EventOTPVerify, Email: email, FailureReason: string(models.CodeOf(err))})
		return nil, otpFailure(err)
	}

	s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{EventType: pkglogger.EventOTPVerify, Email: email, Success: true, Metadata: map[string]string{"kind": string(models.OTPKindEmail)}})
	return &OTPResult{Message: MsgOTPVerified, Success: true, ResetToken: session.AccessToken}, nil
}

// otpFailure keeps outages and throttling distinct and folds everything
// else into ErrInvalidOTP
func otpFailure(err error) error {
	if errors.Is(err, models.ErrUpstream) || errors.Is(err, models.ErrRateLimited) {
		return fmt.Errorf("verify otp: %w", err)
	}
	return models.ErrInvalidOTP
}

// ResetPassword sets a new password for the account the reset token
// belongs to. The token must match email and is revoked afterwards.
func (s *AuthService) ResetPassword(ctx context.Context, email, resetToken, newPassword string) (*OTPResult, error) {
	email = models.NormalizeEmail(email)
	if resetToken == "" {
		return nil, models.ErrUnauthorized
	}

	acc, err := s.provider.GetUser(ctx, resetToken)
	if err != nil {
		if errors.Is(err, models.ErrUpstream) {
			return nil, fmt.Errorf("resolve reset token: %w", err)
		}
		return nil, models.ErrInvalidToken
	}

	if models.NormalizeEmail(acc.Email) != email {
		s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventPasswordReset,
			UserID:        acc.ID,
			Email:         email,
			FailureReason: "token_email_mismatch",
		})
		return nil, models.ErrTokenEmailMismatch
	}

	if err := s.checkPassword(ctx, newPassword); err != nil {
		return nil, err
	}

	if err := s.provider.UpdatePassword(ctx, acc.ID, newPassword); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}

	if err := s.provider.SignOut(ctx, resetToken); err != nil {
		s.logger.WarnContext(ctx, "failed to revoke reset token", slog.String("user_id", acc.ID), slog.Any("error", err))
	}

	s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{EventType: pkglogger.EventPasswordReset, UserID: acc.ID, Email: email, Success: true})
	s.publish(ctx, events.TypePasswordReset, acc)
	return &OTPResult{Message: MsgPasswordUpdated, Success: true}, nil
}

// VerifyOTP confirms a signup or passwordless code and returns the session
func (s *AuthService) VerifyOTP(ctx context.Context, email, otp string, kind models.OTPKind) (*AuthResult, error) {
	email = models.NormalizeEmail(email)
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown otp type %q", models.ErrValidation, kind)
	}

	session, err := s.provider.VerifyOTP(ctx, email, otp, kind)
	if err != nil {
		s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{EventType: pkglogger.EventOTPVerify, Email: email, FailureReason: string(models.CodeOf(err))})
		return nil, otpFailure(err)
	}

	result, err := s.withUser(ctx, session)
	if err != nil {
		return nil, err
	}

	s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{EventType: pkglogger.EventOTPVerify, UserID: result.User.ID, Email: email, Success: true, Metadata: map[string]string{"kind": string(kind)}})
	if kind == models.OTPKindSignup {
		s.publish(ctx, events.TypeAccountVerified, result.User)
	}
	return result, nil
}

// ResendConfirmation re-sends the signup code, sharing the OTP rate limit
func (s *AuthService) ResendConfirmation(ctx context.Context, email string) (*OTPResult, error) {
	email = models.NormalizeEmail(email)
	if err := s.checkRate(ctx, email); err != nil {
		return nil, err
	}
	if err := s.provider.ResendSignup(ctx, email); err != nil {
		return nil, fmt.Errorf("resend confirmation: %w", err)
	}
	return &OTPResult{Message: MsgConfirmationSent, Success: true}, nil
}

// RequestLoginOTP sends a passwordless sign-in code to an existing account
func (s *AuthService) RequestLoginOTP(ctx context.Context, email string) (*OTPResult, error) {
	email = models.NormalizeEmail(email)
	if err := s.checkRate(ctx, email); err != nil {
		return nil, err
	}

	err := s.provider.SendOTP(ctx, email, false)
	if errors.Is(err, models.ErrAccountNotFound) {
		return &OTPResult{Message: MsgNoAccount, Code: models.CodeAccountNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("send login code: %w", err)
	}
	return &OTPResult{Message: MsgOTPSent, Success: true}, nil
}

func (s *AuthService) RefreshSession(ctx context.Context, refreshToken string) (*AuthResult, error) {
	session, err := s.provider.RefreshSession(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, models.ErrUpstream) {
			return nil, fmt.Errorf("refresh: %w", err)
		}
		return nil, models.ErrInvalidToken
	}
	return s.withUser(ctx, session)
}

// GetUser resolves an access token to the current account
func (s *AuthService) GetUser(ctx context.Context, accessToken string) (*models.Account, error) {
	return s.provider.GetUser(ctx, accessToken)
}

func (s *AuthService) SignOut(ctx context.Context, acc *models.Account, accessToken string) error {
	if err := s.provider.SignOut(ctx, accessToken); err != nil {
		return fmt.Errorf("signout: %w", err)
	}
	s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{EventType: pkglogger.EventSignout, UserID: acc.ID, Success: true})
	return nil
}

// DeleteAccount removes the caller's account through the admin surface
func (s *AuthService) DeleteAccount(ctx context.Context, acc *models.Account) error {
	if err := s.provider.DeleteUser(ctx, acc.ID); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	s.audit.LogAccountAction(ctx, pkglogger.EventAccountDeleted, acc.ID, nil)
	s.publish(ctx, events.TypeAccountDeleted, acc)
	return nil
}
