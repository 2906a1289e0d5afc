package local

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/voyageur/internal/auth"
	"github.com/BradenHooton/voyageur/internal/models"
	"github.com/BradenHooton/voyageur/internal/oauth"
)

type memAccounts struct {
	mu   sync.Mutex
	byID map[string]*models.StoredAccount
	seq  int
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byID: map[string]*models.StoredAccount{}}
}

func clone(a *models.StoredAccount) *models.StoredAccount {
	c := *a
	c.Methods = append([]string(nil), a.Methods...)
	return &c
}

func (m *memAccounts) GetByID(_ context.Context, id string) (*models.StoredAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.byID[id]; ok {
		return clone(a), nil
	}
	return nil, models.ErrNotFound
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (*models.StoredAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.Email == strings.ToLower(email) {
			return clone(a), nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memAccounts) Create(_ context.Context, acc *models.StoredAccount) (*models.StoredAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.Email == acc.Email {
			return nil, models.ErrConflict
		}
	}
	m.seq++
	acc.ID = fmt.Sprintf("acc-%d", m.seq)
	m.byID[acc.ID] = clone(acc)
	return clone(acc), nil
}

func (m *memAccounts) update(id string, fn func(a *models.StoredAccount) error) (*models.StoredAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if err := fn(a); err != nil {
		return nil, err
	}
	return clone(a), nil
}

func (m *memAccounts) ReplaceUnverified(_ context.Context, id, hash string, meta models.AccountMetadata) (*models.StoredAccount, error) {
	return m.update(id, func(a *models.StoredAccount) error {
		if a.IsVerified() {
			return models.ErrNotFound
		}
		a.PasswordHash = hash
		a.AddMethod(models.MethodPassword)
		if meta.FullName != "" {
			a.Metadata.FullName = meta.FullName
		}
		return nil
	})
}

func (m *memAccounts) ConfirmEmail(_ context.Context, id string, at time.Time) (*models.StoredAccount, error) {
	return m.update(id, func(a *models.StoredAccount) error {
		if a.EmailConfirmedAt == nil {
			a.EmailConfirmedAt = &at
		}
		return nil
	})
}

func (m *memAccounts) UpdatePassword(_ context.Context, id, hash string) error {
	_, err := m.update(id, func(a *models.StoredAccount) error {
		a.PasswordHash = hash
		a.AddMethod(models.MethodPassword)
		return nil
	})
	return err
}

func (m *memAccounts) LinkGoogle(_ context.Context, id, subject string, at time.Time) (*models.StoredAccount, error) {
	return m.update(id, func(a *models.StoredAccount) error {
		if a.EmailConfirmedAt == nil {
			a.PasswordHash = ""
			a.Methods = nil
			a.Metadata = models.AccountMetadata{}
			a.EmailConfirmedAt = &at
		}
		a.GoogleSubject = subject
		a.AddMethod(models.MethodGoogle)
		return nil
	})
}

func (m *memAccounts) UpdateMetadata(_ context.Context, id string, meta models.AccountMetadata) (*models.StoredAccount, error) {
	return m.update(id, func(a *models.StoredAccount) error {
		a.Metadata = meta
		return nil
	})
}

func (m *memAccounts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type pendingKey struct {
	email string
	kind  models.OTPKind
}

type memVerifications struct {
	mu      sync.Mutex
	pending map[pendingKey]*models.PendingVerification
}

func newMemVerifications() *memVerifications {
	return &memVerifications{pending: map[pendingKey]*models.PendingVerification{}}
}

func (m *memVerifications) Upsert(_ context.Context, p *models.PendingVerification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *p
	c.Attempts = 0
	m.pending[pendingKey{p.Email, p.Kind}] = &c
	return nil
}

func (m *memVerifications) Get(_ context.Context, email string, kind models.OTPKind) (*models.PendingVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pending[pendingKey{email, kind}]; ok {
		c := *p
		return &c, nil
	}
	return nil, models.ErrNotFound
}

func (m *memVerifications) IncrementAttempts(_ context.Context, email string, kind models.OTPKind) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[pendingKey{email, kind}]
	if !ok {
		return 0, models.ErrNotFound
	}
	p.Attempts++
	return p.Attempts, nil
}

func (m *memVerifications) Delete(_ context.Context, email string, kind models.OTPKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, pendingKey{email, kind})
	return nil
}

type memRevocations struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (m *memRevocations) RevokeToken(_ context.Context, jti, _, _ string, _ time.Time, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = true
	return nil
}

func (m *memRevocations) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[jti], nil
}

type sentCode struct {
	email string
	code  string
	kind  models.OTPKind
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (c *captureMailer) SendCode(_ context.Context, email, code string, kind models.OTPKind, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, sentCode{email: email, code: code, kind: kind})
	return nil
}

func (c *captureMailer) last() sentCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return sentCode{}
	}
	return c.sent[len(c.sent)-1]
}

type stubGoogle map[string]*oauth.Identity

func (s stubGoogle) Verify(_ context.Context, raw string) (*oauth.Identity, error) {
	if id, ok := s[raw]; ok {
		return id, nil
	}
	return nil, models.ErrInvalidToken
}

type fixture struct {
	provider *Provider
	accounts *memAccounts
	pending  *memVerifications
	mailer   *captureMailer
}

func newFixture(google stubGoogle) *fixture {
	f := &fixture{
		accounts: newMemAccounts(),
		pending:  newMemVerifications(),
		mailer:   &captureMailer{},
	}
	f.provider = New(Deps{
		Accounts:       f.accounts,
		Verifications:  f.pending,
		Revocations:    &memRevocations{revoked: map[string]bool{}},
		Tokens:         auth.NewTokenManager("local-provider-test-secret-0123456789", time.Hour, 24*time.Hour),
		OTPs:           auth.NewOTPManager(10 * time.Minute),
		Mailer:         f.mailer,
		Google:         google,
		MaxOTPAttempts: 3,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}
