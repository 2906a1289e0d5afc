package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/voyageur/internal/models"
	"github.com/BradenHooton/voyageur/pkg/auth"
	"github.com/golang-jwt/jwt/v5"
)

// Mode is the form the auth screen is showing
type Mode string

const (
	ModeSignIn             Mode = "sign_in"
	ModeSignUp             Mode = "sign_up"
	ModeVerifyingSignupOTP Mode = "verifying_signup_otp"
	ModeForgotEmail        Mode = "forgot_email"
	ModeForgotOTP          Mode = "forgot_otp"
	ModeForgotReset        Mode = "forgot_reset"
)

func (m Mode) forgot() bool {
	return m == ModeForgotEmail || m == ModeForgotOTP || m == ModeForgotReset
}

// Affordance is the follow-up action offered next to an error
type Affordance string

const (
	AffordanceNone               Affordance = ""
	AffordanceSignInNow          Affordance = "sign_in_now"
	AffordanceResendConfirmation Affordance = "resend_confirmation"
	AffordanceUseGoogle          Affordance = "use_google"
)

// IntentKey is the breadcrumb recording which tab started a Google sign-in
const IntentKey = "auth_intent"

const (
	MsgLoginSuccess      = "Login successful. Redirecting..."
	MsgSignupCreated     = "Account created. Please enter the code sent to your email."
	MsgAccountVerified   = "Account verified! Redirecting..."
	MsgResetDone         = "Password reset successfully! Please Sign In."
	MsgGoogleSuccess     = "Google Login Successful!"
	MsgNewOTPSent        = "New OTP sent!"
	MsgNewCodeSent       = "New confirmation code sent!"
	MsgPasswordsMismatch = "Passwords do not match."
	MsgPasswordTooWeak   = "Password is too weak."
	MsgSignUpFirst       = "Account does not exist. Please Sign Up first."
	MsgSignInInstead     = "Account already exists. Please Sign In."
	MsgGoogleDecode      = "Verification failed. Please try again."
	MsgUnexpected        = "An unexpected error occurred."
)

type ErrorState struct {
	Code    models.ErrorCode
	Message string
}

type Form struct {
	FullName        string
	Email           string
	Password        string
	ConfirmPassword string
	OTP             string
}

// GoogleConfirmation is the profile shown before a Google signup runs
type GoogleConfirmation struct {
	Name    string
	Email   string
	Picture string
}

// State is a snapshot of the controller
type State struct {
	Mode          Mode
	Loading       bool
	Resending     bool
	Error         *ErrorState
	Success       string
	Form          Form
	PendingGoogle *GoogleConfirmation
}

// AuthAPI is the part of the auth API the controller drives
type AuthAPI interface {
	SignUp(ctx context.Context, fullName, email, password string) (*AuthResponse, error)
	SignIn(ctx context.Context, email, password string) (*AuthResponse, error)
	Google(ctx context.Context, idToken string, intent models.GoogleIntent) (*GoogleResponse, error)
	RequestForgotOTP(ctx context.Context, email string) (*OTPResponse, error)
	VerifyForgotOTP(ctx context.Context, email, otp string) (*OTPResponse, error)
	ResetPasswordWithOTP(ctx context.Context, email, resetToken, newPassword string) (*OTPResponse, error)
	ResendConfirmation(ctx context.Context, email string) (*OTPResponse, error)
	VerifyOTP(ctx context.Context, email, otp string, kind models.OTPKind) (*AuthResponse, error)
}

// SessionStore is satisfied by *SessionManager
type SessionStore interface {
	SetSession(s *models.Session, kind EventKind)
	SignOut(ctx context.Context) error
}

type Navigator interface {
	Navigate(v View)
}

// Scheduler runs f once after d. The returned func cancels it.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type timeScheduler struct{}

func (timeScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type ControllerConfig struct {
	API         AuthAPI
	Sessions    SessionStore
	Navigator   Navigator
	Breadcrumbs Storage
	Scheduler   Scheduler
	Logger      *slog.Logger

	// RedirectDelay is the pause between a successful sign-in and the
	// dashboard. ResetDelay is the pause before returning to sign-in
	// after a password reset.
	RedirectDelay time.Duration
	ResetDelay    time.Duration
}

// AuthController is the auth screen state machine
type AuthController struct {
	cfg ControllerConfig

	mu          sync.Mutex
	state       State
	resetToken  string
	googleToken string
	closed      bool
	timers      []func() bool
}

func NewAuthController(cfg ControllerConfig) *AuthController {
	if cfg.Scheduler == nil {
		cfg.Scheduler = timeScheduler{}
	}
	if cfg.Breadcrumbs == nil {
		cfg.Breadcrumbs = NewMemoryStorage()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RedirectDelay == 0 {
		cfg.RedirectDelay = time.Second
	}
	if cfg.ResetDelay == 0 {
		cfg.ResetDelay = 2 * time.Second
	}
	return &AuthController{
		cfg:   cfg,
		state: State{Mode: ModeSignIn},
	}
}

// State returns a copy of the current state
func (c *AuthController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	if s.Error != nil {
		e := *s.Error
		s.Error = &e
	}
	if s.PendingGoogle != nil {
		g := *s.PendingGoogle
		s.PendingGoogle = &g
	}
	return s
}

// update applies fn under the lock unless the controller is closed
func (c *AuthController) update(fn func(s *State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	fn(&c.state)
}

func (c *AuthController) after(d time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	stop := c.cfg.Scheduler.AfterFunc(d, func() {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if !closed {
			fn()
		}
	})
	c.timers = append(c.timers, stop)
}

// Close stops pending timers. Later results are dropped.
func (c *AuthController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, stop := range c.timers {
		stop()
	}
	c.timers = nil
}

// SelectTab switches between sign-in and sign-up. Ignored during signup
// verification and the forgot-password flow.
func (c *AuthController) SelectTab(signIn bool) {
	c.update(func(s *State) {
		if s.Mode != ModeSignIn && s.Mode != ModeSignUp {
			return
		}
		s.Mode = ModeSignUp
		if signIn {
			s.Mode = ModeSignIn
		}
		s.Error = nil
		s.Success = ""
	})
}

func (c *AuthController) setField(fn func(f *Form)) {
	c.update(func(s *State) {
		fn(&s.Form)
		s.Error = nil
	})
}

func (c *AuthController) SetFullName(v string) { c.setField(func(f *Form) { f.FullName = v }) }
func (c *AuthController) SetEmail(v string)    { c.setField(func(f *Form) { f.Email = v }) }
func (c *AuthController) SetPassword(v string) { c.setField(func(f *Form) { f.Password = v }) }
func (c *AuthController) SetOTP(v string)      { c.setField(func(f *Form) { f.OTP = v }) }

func (c *AuthController) SetConfirmPassword(v string) {
	c.setField(func(f *Form) { f.ConfirmPassword = v })
}

// StartForgot opens the recovery flow. It is only offered from sign-in.
func (c *AuthController) StartForgot() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state.Mode != ModeSignIn || c.state.Loading {
		return
	}
	c.resetToken = ""
	c.state.Mode = ModeForgotEmail
	c.state.Error = nil
	c.state.Success = ""
}

func (c *AuthController) CancelForgot() {
	c.mu.Lock()
	c.resetToken = ""
	c.mu.Unlock()
	c.update(func(s *State) {
		if !s.Mode.forgot() {
			return
		}
		s.Mode = ModeSignIn
		s.Error = nil
	})
}

// PasswordStrength scores the password currently in the form
func (c *AuthController) PasswordStrength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return auth.Strength(c.state.Form.Password)
}

// Affordance is the action offered alongside the current error
func (c *AuthController) Affordance() Affordance {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Error == nil {
		return AffordanceNone
	}
	return affordanceFor(c.state.Error.Code)
}

func affordanceFor(code models.ErrorCode) Affordance {
	switch code {
	case models.CodeAccountExists:
		return AffordanceSignInNow
	case models.CodeEmailNotConfirmed:
		return AffordanceResendConfirmation
	case models.CodeOAuthAccount:
		return AffordanceUseGoogle
	default:
		return AffordanceNone
	}
}

// ApplyRedirectError shows an error carried back by an external redirect
func (c *AuthController) ApplyRedirectError(code models.ErrorCode, message string) {
	if !code.Valid() {
		code = models.CodeInternal
	}
	c.update(func(s *State) {
		s.Error = &ErrorState{Code: code, Message: message}
		if code == models.CodeAccountNotFound && !s.Mode.forgot() {
			s.Mode = ModeSignUp
		}
	})
}

func errorStateOf(err error) *ErrorState {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = MsgUnexpected
		}
		return &ErrorState{Code: apiErr.Code, Message: msg}
	}
	return &ErrorState{Code: models.CodeOf(err), Message: MsgUnexpected}
}

func validationError(msg string) *ErrorState {
	return &ErrorState{Code: models.CodeValidation, Message: msg}
}

// begin marks the controller loading. It reports false when a request is
// already in flight or the controller is closed.
func (c *AuthController) begin() (State, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state.Loading {
		return State{}, "", false
	}
	c.state.Loading = true
	c.state.Error = nil
	c.state.Success = ""
	return c.state, c.resetToken, true
}

func (c *AuthController) fail(e *ErrorState) {
	c.update(func(s *State) {
		s.Loading = false
		s.Error = e
	})
}

// Submit runs the action for the current form
func (c *AuthController) Submit(ctx context.Context) {
	snap, resetToken, ok := c.begin()
	if !ok {
		return
	}

	switch snap.Mode {
	case ModeSignIn:
		c.submitSignIn(ctx, snap.Form)
	case ModeSignUp:
		c.submitSignUp(ctx, snap.Form)
	case ModeVerifyingSignupOTP:
		c.submitSignupOTP(ctx, snap.Form)
	case ModeForgotEmail:
		c.submitForgotEmail(ctx, snap.Form)
	case ModeForgotOTP:
		c.submitForgotOTP(ctx, snap.Form)
	case ModeForgotReset:
		c.submitForgotReset(ctx, snap.Form, resetToken)
	default:
		c.fail(validationError(MsgUnexpected))
	}
}

func (c *AuthController) signedIn(resp *AuthResponse, msg string) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	if resp.Session != nil {
		if resp.Session.User == nil {
			resp.Session.User = resp.User
		}
		c.cfg.Sessions.SetSession(resp.Session, EventSignedIn)
	}
	c.update(func(s *State) {
		s.Loading = false
		s.Success = msg
	})
	c.after(c.cfg.RedirectDelay, func() {
		if c.cfg.Navigator != nil {
			c.cfg.Navigator.Navigate(ViewDashboard)
		}
	})
}

func (c *AuthController) submitSignIn(ctx context.Context, f Form) {
	resp, err := c.cfg.API.SignIn(ctx, f.Email, f.Password)
	if err != nil {
		c.fail(errorStateOf(err))
		return
	}
	c.signedIn(resp, MsgLoginSuccess)
}

func checkNewPassword(f Form) *ErrorState {
	if f.Password != f.ConfirmPassword {
		return validationError(MsgPasswordsMismatch)
	}
	if auth.Strength(f.Password) < auth.MinStrength {
		return validationError(MsgPasswordTooWeak)
	}
	return nil
}

func (c *AuthController) submitSignUp(ctx context.Context, f Form) {
	if e := checkNewPassword(f); e != nil {
		c.fail(e)
		return
	}

	if _, err := c.cfg.API.SignUp(ctx, f.FullName, f.Email, f.Password); err != nil {
		c.fail(errorStateOf(err))
		return
	}

	// the account is unverified until the OTP is entered
	if err := c.cfg.Sessions.SignOut(ctx); err != nil {
		c.cfg.Logger.WarnContext(ctx, "sign-out after signup failed", slog.Any("error", err))
	}

	c.update(func(s *State) {
		s.Loading = false
		s.Mode = ModeVerifyingSignupOTP
		s.Form.OTP = ""
		s.Success = MsgSignupCreated
	})
}

func (c *AuthController) submitSignupOTP(ctx context.Context, f Form) {
	resp, err := c.cfg.API.VerifyOTP(ctx, f.Email, f.OTP, models.OTPKindSignup)
	if err != nil {
		c.fail(errorStateOf(err))
		return
	}
	c.signedIn(resp, MsgAccountVerified)
}

func otpReplyError(resp *OTPResponse) *ErrorState {
	code := resp.Code
	if code == "" || !code.Valid() {
		code = models.CodeInternal
	}
	msg := resp.Message
	if msg == "" {
		msg = MsgUnexpected
	}
	return &ErrorState{Code: code, Message: msg}
}

func (c *AuthController) submitForgotEmail(ctx context.Context, f Form) {
	resp, err := c.cfg.API.RequestForgotOTP(ctx, f.Email)
	if err != nil {
		c.fail(errorStateOf(err))
		return
	}
	if !resp.Success {
		c.fail(otpReplyError(resp))
		return
	}
	c.update(func(s *State) {
		s.Loading = false
		s.Mode = ModeForgotOTP
		s.Form.OTP = ""
		s.Success = resp.Message
	})
}

func (c *AuthController) submitForgotOTP(ctx context.Context, f Form) {
	resp, err := c.cfg.API.VerifyForgotOTP(ctx, f.Email, f.OTP)
	if err != nil {
		c.fail(errorStateOf(err))
		return
	}
	if !resp.Success || resp.ResetToken == "" {
		c.fail(otpReplyError(resp))
		return
	}

	c.mu.Lock()
	if !c.closed {
		c.resetToken = resp.ResetToken
	}
	c.mu.Unlock()
	c.update(func(s *State) {
		s.Loading = false
		s.Mode = ModeForgotReset
		s.Success = resp.Message
	})
}

func (c *AuthController) submitForgotReset(ctx context.Context, f Form, resetToken string) {
	if e := checkNewPassword(f); e != nil {
		c.fail(e)
		return
	}

	resp, err := c.cfg.API.ResetPasswordWithOTP(ctx, f.Email, resetToken, f.Password)
	if err != nil {
		c.fail(errorStateOf(err))
		return
	}
	if !resp.Success {
		c.fail(otpReplyError(resp))
		return
	}

	c.update(func(s *State) {
		s.Loading = false
		s.Success = MsgResetDone
	})
	c.after(c.cfg.ResetDelay, func() {
		c.mu.Lock()
		c.resetToken = ""
		c.mu.Unlock()
		c.update(func(s *State) {
			s.Mode = ModeSignIn
			s.Form.Password = ""
			s.Form.ConfirmPassword = ""
			s.Success = ""
		})
	})
}

// Resend re-sends the reset OTP in the forgot flow and the signup
// confirmation code otherwise
func (c *AuthController) Resend(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.state.Resending {
		c.mu.Unlock()
		return
	}
	c.state.Resending = true
	mode := c.state.Mode
	email := c.state.Form.Email
	c.mu.Unlock()

	var (
		resp *OTPResponse
		err  error
		msg  = MsgNewCodeSent
	)
	if mode.forgot() {
		resp, err = c.cfg.API.RequestForgotOTP(ctx, email)
		msg = MsgNewOTPSent
	} else {
		resp, err = c.cfg.API.ResendConfirmation(ctx, email)
	}
	if err == nil && !resp.Success {
		err = &APIError{Code: otpReplyError(resp).Code, Message: resp.Message}
	}

	c.update(func(s *State) {
		s.Resending = false
		if err != nil {
			e := errorStateOf(err)
			e.Message = "Failed to resend: " + e.Message
			s.Error = e
			return
		}
		s.Error = nil
		s.Success = msg
	})
}

// BeginGoogle handles an ID token returned by Google sign-in. From the
// sign-in tab it exchanges immediately. From the sign-up tab it only
// checks the email and waits for ConfirmGoogle.
func (c *AuthController) BeginGoogle(ctx context.Context, idToken string) {
	snap, _, ok := c.begin()
	if !ok {
		return
	}

	if snap.Mode == ModeSignIn {
		c.cfg.Breadcrumbs.Set(IntentKey, string(models.IntentLogin))
		c.googleExchange(ctx, idToken, models.IntentLogin)
		return
	}
	if snap.Mode != ModeSignUp {
		c.update(func(s *State) { s.Loading = false })
		return
	}

	c.cfg.Breadcrumbs.Set(IntentKey, string(models.IntentSignup))
	resp, err := c.cfg.API.Google(ctx, idToken, models.IntentCheck)
	if err != nil {
		c.fail(errorStateOf(err))
		return
	}
	if resp.Exists != nil && *resp.Exists {
		c.update(func(s *State) {
			s.Loading = false
			s.Error = &ErrorState{Code: models.CodeAccountExists, Message: MsgSignInInstead}
			s.Mode = ModeSignIn
		})
		return
	}

	pending, err := DecodeIdentityClaims(idToken)
	if err != nil {
		c.fail(&ErrorState{Code: models.CodeInvalidToken, Message: MsgGoogleDecode})
		return
	}

	c.mu.Lock()
	if !c.closed {
		c.googleToken = idToken
	}
	c.mu.Unlock()
	c.update(func(s *State) {
		s.Loading = false
		s.PendingGoogle = pending
	})
}

// ConfirmGoogle runs the signup exchange for the pending Google profile
func (c *AuthController) ConfirmGoogle(ctx context.Context) {
	c.mu.Lock()
	token := c.googleToken
	pending := c.state.PendingGoogle != nil
	c.mu.Unlock()
	if token == "" || !pending {
		return
	}

	if _, _, ok := c.begin(); !ok {
		return
	}
	c.googleExchange(ctx, token, models.IntentSignup)
}

// CancelGoogle discards the pending Google profile
func (c *AuthController) CancelGoogle() {
	c.mu.Lock()
	c.googleToken = ""
	c.mu.Unlock()
	c.update(func(s *State) {
		s.PendingGoogle = nil
	})
}

func (c *AuthController) googleExchange(ctx context.Context, idToken string, intent models.GoogleIntent) {
	resp, err := c.cfg.API.Google(ctx, idToken, intent)

	c.mu.Lock()
	c.googleToken = ""
	c.mu.Unlock()
	c.update(func(s *State) { s.PendingGoogle = nil })

	if err != nil {
		e := errorStateOf(err)
		c.update(func(s *State) {
			s.Loading = false
			s.Error = e
			if e.Code == models.CodeAccountExists {
				s.Mode = ModeSignIn
			}
		})
		return
	}
	if resp.NeedsOnboarding != nil && *resp.NeedsOnboarding {
		c.update(func(s *State) {
			s.Loading = false
			s.Error = &ErrorState{Code: models.CodeAccountNotFound, Message: MsgSignUpFirst}
			s.Mode = ModeSignUp
		})
		return
	}
	if resp.Session == nil {
		c.fail(&ErrorState{Code: models.CodeInternal, Message: MsgUnexpected})
		return
	}
	c.signedIn(&AuthResponse{User: resp.User, Session: resp.Session}, MsgGoogleSuccess)
}

// DecodeIdentityClaims reads the display profile from a Google ID token
// without verifying it. Only use the result for display; the server
// verifies the token on exchange.
func DecodeIdentityClaims(idToken string) (*GoogleConfirmation, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, err
	}

	str := func(k string) string {
		v, _ := claims[k].(string)
		return v
	}
	email := str("email")
	if email == "" {
		return nil, errors.New("id token has no email")
	}
	return &GoogleConfirmation{
		Name:    str("name"),
		Email:   email,
		Picture: str("picture"),
	}, nil
}
