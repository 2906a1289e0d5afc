package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/voyageur/internal/models"
)

// EventKind names a session change
type EventKind string

const (
	EventInitialSession EventKind = "INITIAL_SESSION"
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// AuthEvent is delivered to subscribers on every session change. Session
// is nil after sign-out.
type AuthEvent struct {
	Kind    EventKind
	Session *models.Session
}

// Storage is the key/value store sessions and breadcrumbs persist in
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// MemoryStorage is a Storage that lives as long as the process
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemoryStorage) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *MemoryStorage) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// SessionKey is the storage key of the persisted session
const SessionKey = "voyageur.session"

// SessionAPI is the part of the auth API the session manager needs
type SessionAPI interface {
	Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error)
	SignOut(ctx context.Context, accessToken string) error
}

// SessionManager owns the current session. Build one per process and hand
// it to everything that needs it.
type SessionManager struct {
	api     SessionAPI
	storage Storage
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	loaded  bool
	loadErr error
	session *models.Session
	subs    map[int]func(AuthEvent)
	nextID  int
}

func NewSessionManager(api SessionAPI, storage Storage, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		api:     api,
		storage: storage,
		logger:  logger,
		now:     time.Now,
		subs:    make(map[int]func(AuthEvent)),
	}
}

// load reads the persisted session once. Caller holds mu.
func (m *SessionManager) load() {
	if m.loaded {
		return
	}
	m.loaded = true

	raw, ok := m.storage.Get(SessionKey)
	if !ok {
		return
	}
	var s models.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		m.loadErr = fmt.Errorf("decode stored session: %w", err)
		return
	}
	m.session = &s
}

// Subscribe registers fn for every future change and immediately delivers
// INITIAL_SESSION with the current session. Call the returned func to
// unsubscribe.
func (m *SessionManager) Subscribe(fn func(AuthEvent)) func() {
	m.mu.Lock()
	m.load()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	current := m.session
	m.mu.Unlock()

	fn(AuthEvent{Kind: EventInitialSession, Session: current})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

func (m *SessionManager) emit(ev AuthEvent) {
	m.mu.Lock()
	fns := make([]func(AuthEvent), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// GetSession returns the current session, refreshing it first when the
// access token has expired. A nil session with a nil error means signed
// out.
func (m *SessionManager) GetSession(ctx context.Context) (*models.Session, error) {
	m.mu.Lock()
	m.load()
	if m.loadErr != nil {
		err := m.loadErr
		m.mu.Unlock()
		return nil, err
	}
	current := m.session
	m.mu.Unlock()

	if current == nil || !current.Expired(m.now()) {
		return current, nil
	}
	if err := m.Refresh(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, nil
}

// SetSession stores s and notifies subscribers with kind
func (m *SessionManager) SetSession(s *models.Session, kind EventKind) {
	if s != nil && s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = m.now().Unix() + s.ExpiresIn
	}

	m.mu.Lock()
	m.loaded = true
	m.loadErr = nil
	m.session = s
	if s == nil {
		m.storage.Delete(SessionKey)
	} else if b, err := json.Marshal(s); err == nil {
		m.storage.Set(SessionKey, string(b))
	}
	m.mu.Unlock()

	m.emit(AuthEvent{Kind: kind, Session: s})
}

// Refresh exchanges the refresh token for a new session
func (m *SessionManager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	m.load()
	current := m.session
	m.mu.Unlock()

	if current == nil || current.RefreshToken == "" {
		return fmt.Errorf("refresh: %w", models.ErrUnauthorized)
	}

	resp, err := m.api.Refresh(ctx, current.RefreshToken)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if resp.Session == nil {
		return fmt.Errorf("refresh: %w", models.ErrInvalidToken)
	}
	if resp.Session.User == nil {
		resp.Session.User = resp.User
	}
	m.SetSession(resp.Session, EventTokenRefreshed)
	return nil
}

// SignOut revokes the session server-side when possible and always clears
// it locally
func (m *SessionManager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	m.load()
	current := m.session
	m.mu.Unlock()

	var err error
	if current != nil && current.AccessToken != "" {
		if err = m.api.SignOut(ctx, current.AccessToken); err != nil {
			m.logger.WarnContext(ctx, "server sign-out failed", slog.Any("error", err))
		}
	}
	m.SetSession(nil, EventSignedOut)
	return err
}
