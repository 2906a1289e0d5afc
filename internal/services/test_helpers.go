package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/voyageur/internal/events"
	"github.com/BradenHooton/voyageur/internal/identity"
	"github.com/BradenHooton/voyageur/internal/models"
	"github.com/BradenHooton/voyageur/internal/oauth"
)

// MockProvider implements identity.Provider for testing
type MockProvider struct {
	SignUpFunc             func(ctx context.Context, req identity.SignupRequest) (*models.Account, *models.Session, error)
	SignInWithPasswordFunc func(ctx context.Context, email, password string) (*models.Session, error)
	SignInWithIDTokenFunc  func(ctx context.Context, provider, idToken string) (*models.Session, error)
	SendOTPFunc            func(ctx context.Context, email string, shouldCreateUser bool) error
	VerifyOTPFunc          func(ctx context.Context, email, code string, kind models.OTPKind) (*models.Session, error)
	ResendSignupFunc       func(ctx context.Context, email string) error
	RefreshSessionFunc     func(ctx context.Context, refreshToken string) (*models.Session, error)
	GetUserFunc            func(ctx context.Context, accessToken string) (*models.Account, error)
	SignOutFunc            func(ctx context.Context, accessToken string) error
	FindUserByEmailFunc    func(ctx context.Context, email string) (*models.Account, error)
	GetUserByIDFunc        func(ctx context.Context, id string) (*models.Account, error)
	UpdatePasswordFunc     func(ctx context.Context, id, password string) error
	UpdateMetadataFunc     func(ctx context.Context, id string, metadata models.AccountMetadata) (*models.Account, error)
	DeleteUserFunc         func(ctx context.Context, id string) error

	mu    sync.Mutex
	calls []string
}

var _ identity.Provider = (*MockProvider)(nil)

func (m *MockProvider) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

// Calls returns the provider methods invoked so far, in order
func (m *MockProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockProvider) SignUp(ctx context.Context, req identity.SignupRequest) (*models.Account, *models.Session, error) {
	m.record("SignUp")
	if m.SignUpFunc != nil {
		return m.SignUpFunc(ctx, req)
	}
	return NewTestAccount("user-1", req.Email, nil), nil, nil
}

func (m *MockProvider) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	m.record("SignInWithPassword")
	if m.SignInWithPasswordFunc != nil {
		return m.SignInWithPasswordFunc(ctx, email, password)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockProvider) SignInWithIDToken(ctx context.Context, provider, idToken string) (*models.Session, error) {
	m.record("SignInWithIDToken")
	if m.SignInWithIDTokenFunc != nil {
		return m.SignInWithIDTokenFunc(ctx, provider, idToken)
	}
	return nil, models.ErrInvalidToken
}

func (m *MockProvider) SendOTP(ctx context.Context, email string, shouldCreateUser bool) error {
	m.record("SendOTP")
	if m.SendOTPFunc != nil {
		return m.SendOTPFunc(ctx, email, shouldCreateUser)
	}
	return nil
}

func (m *MockProvider) VerifyOTP(ctx context.Context, email, code string, kind models.OTPKind) (*models.Session, error) {
	m.record("VerifyOTP")
	if m.VerifyOTPFunc != nil {
		return m.VerifyOTPFunc(ctx, email, code, kind)
	}
	return nil, models.ErrInvalidOTP
}

func (m *MockProvider) ResendSignup(ctx context.Context, email string) error {
	m.record("ResendSignup")
	if m.ResendSignupFunc != nil {
		return m.ResendSignupFunc(ctx, email)
	}
	return nil
}

func (m *MockProvider) RefreshSession(ctx context.Context, refreshToken string) (*models.Session, error) {
	m.record("RefreshSession")
	if m.RefreshSessionFunc != nil {
		return m.RefreshSessionFunc(ctx, refreshToken)
	}
	return nil, models.ErrInvalidToken
}

func (m *MockProvider) GetUser(ctx context.Context, accessToken string) (*models.Account, error) {
	m.record("GetUser")
	if m.GetUserFunc != nil {
		return m.GetUserFunc(ctx, accessToken)
	}
	return nil, models.ErrInvalidToken
}

func (m *MockProvider) SignOut(ctx context.Context, accessToken string) error {
	m.record("SignOut")
	if m.SignOutFunc != nil {
		return m.SignOutFunc(ctx, accessToken)
	}
	return nil
}

func (m *MockProvider) FindUserByEmail(ctx context.Context, email string) (*models.Account, error) {
	m.record("FindUserByEmail")
	if m.FindUserByEmailFunc != nil {
		return m.FindUserByEmailFunc(ctx, email)
	}
	return nil, models.ErrAccountNotFound
}

func (m *MockProvider) GetUserByID(ctx context.Context, id string) (*models.Account, error) {
	m.record("GetUserByID")
	if m.GetUserByIDFunc != nil {
		return m.GetUserByIDFunc(ctx, id)
	}
	return nil, models.ErrAccountNotFound
}

func (m *MockProvider) UpdatePassword(ctx context.Context, id, password string) error {
	m.record("UpdatePassword")
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, password)
	}
	return nil
}

func (m *MockProvider) UpdateMetadata(ctx context.Context, id string, metadata models.AccountMetadata) (*models.Account, error) {
	m.record("UpdateMetadata")
	if m.UpdateMetadataFunc != nil {
		return m.UpdateMetadataFunc(ctx, id, metadata)
	}
	return nil, models.ErrInternalServer
}

func (m *MockProvider) DeleteUser(ctx context.Context, id string) error {
	m.record("DeleteUser")
	if m.DeleteUserFunc != nil {
		return m.DeleteUserFunc(ctx, id)
	}
	return nil
}

// MockVerifier implements IDTokenVerifier for testing
type MockVerifier struct {
	VerifyFunc func(ctx context.Context, rawToken string) (*oauth.Identity, error)
}

func (m *MockVerifier) Verify(ctx context.Context, rawToken string) (*oauth.Identity, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, rawToken)
	}
	return nil, models.ErrInvalidToken
}

// MockLimiter implements OTPLimiter for testing. A zero value allows
// everything.
type MockLimiter struct {
	Deny bool
	Err  error
}

func (m *MockLimiter) Allow(context.Context, string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	return !m.Deny, nil
}

// MockBreach implements breach.Checker for testing
type MockBreach struct {
	Compromise bool
	Err        error
}

func (m *MockBreach) Compromised(context.Context, string) (bool, error) {
	return m.Compromise, m.Err
}

// RecordingPublisher keeps every published event
type RecordingPublisher struct {
	mu     sync.Mutex
	events []events.AccountEvent
}

func (p *RecordingPublisher) Publish(_ context.Context, event events.AccountEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *RecordingPublisher) Close() {}

// Types returns the types of the published events, in order
func (p *RecordingPublisher) Types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// NewTestAccount builds an account linked to methods. A nil methods slice
// means a verified password account.
func NewTestAccount(id, email string, methods []string) *models.Account {
	if methods == nil {
		methods = []string{models.MethodPassword}
	}
	confirmed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &models.Account{
		ID:               id,
		Email:            email,
		EmailConfirmedAt: &confirmed,
		Methods:          methods,
		CreatedAt:        confirmed,
		UpdatedAt:        confirmed,
	}
}

// NewTestSession builds a session for acc
func NewTestSession(acc *models.Account, accessToken string) *models.Session {
	return &models.Session{
		AccessToken:  accessToken,
		RefreshToken: "refresh-" + accessToken,
		TokenType:    "bearer",
		ExpiresIn:    900,
		User:         acc,
	}
}
