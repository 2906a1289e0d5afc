package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/voyageur/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSessionAPI struct {
	mu          sync.Mutex
	refreshFunc func(refreshToken string) (*AuthResponse, error)
	signOutErr  error
	signedOut   []string
	refreshes   int
}

func (f *fakeSessionAPI) Refresh(_ context.Context, refreshToken string) (*AuthResponse, error) {
	f.mu.Lock()
	f.refreshes++
	fn := f.refreshFunc
	f.mu.Unlock()
	if fn == nil {
		return nil, models.ErrInvalidToken
	}
	return fn(refreshToken)
}

func (f *fakeSessionAPI) SignOut(_ context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedOut = append(f.signedOut, accessToken)
	return f.signOutErr
}

func (f *fakeSessionAPI) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

type eventLog struct {
	mu     sync.Mutex
	events []AuthEvent
}

func (l *eventLog) record(ev AuthEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

func testSession(id, name, access string, expiresAt int64) *models.Session {
	return &models.Session{
		AccessToken:  access,
		RefreshToken: "refresh-" + access,
		TokenType:    "bearer",
		ExpiresIn:    3600,
		ExpiresAt:    expiresAt,
		User: &models.Account{
			ID:       id,
			Email:    id + "@example.com",
			Metadata: models.AccountMetadata{FullName: name},
		},
	}
}

func TestSessionManager_SubscribeDeliversInitial(t *testing.T) {
	m := NewSessionManager(&fakeSessionAPI{}, NewMemoryStorage(), testLogger())

	var log eventLog
	unsubscribe := m.Subscribe(log.record)
	require.Equal(t, []EventKind{EventInitialSession}, log.kinds())
	assert.Nil(t, log.events[0].Session)

	m.SetSession(testSession("u1", "Ana", "a1", 0), EventSignedIn)
	unsubscribe()
	unsubscribe()
	m.SetSession(nil, EventSignedOut)

	assert.Equal(t, []EventKind{EventInitialSession, EventSignedIn}, log.kinds())
}

func TestSessionManager_PersistsAcrossInstances(t *testing.T) {
	storage := NewMemoryStorage()
	first := NewSessionManager(&fakeSessionAPI{}, storage, testLogger())
	first.SetSession(testSession("u1", "Ana", "a1", 0), EventSignedIn)

	second := NewSessionManager(&fakeSessionAPI{}, storage, testLogger())
	s, err := second.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "a1", s.AccessToken)
	assert.Equal(t, "u1", s.User.ID)
}

func TestSessionManager_SetSessionFillsExpiry(t *testing.T) {
	m := NewSessionManager(&fakeSessionAPI{}, NewMemoryStorage(), testLogger())
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }

	s := testSession("u1", "Ana", "a1", 0)
	m.SetSession(s, EventSignedIn)
	assert.Equal(t, now.Unix()+3600, s.ExpiresAt)
}

func TestSessionManager_GetSessionRefreshesExpired(t *testing.T) {
	api := &fakeSessionAPI{
		refreshFunc: func(refreshToken string) (*AuthResponse, error) {
			assert.Equal(t, "refresh-old", refreshToken)
			fresh := testSession("u1", "Ana", "new", 0)
			user := fresh.User
			fresh.User = nil
			return &AuthResponse{User: user, Session: fresh}, nil
		},
	}
	m := NewSessionManager(api, NewMemoryStorage(), testLogger())
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }
	m.SetSession(testSession("u1", "Ana", "old", now.Unix()-1), EventSignedIn)

	var log eventLog
	m.Subscribe(log.record)

	s, err := m.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", s.AccessToken)
	require.NotNil(t, s.User)
	assert.Equal(t, "u1", s.User.ID)
	assert.Equal(t, []EventKind{EventInitialSession, EventTokenRefreshed}, log.kinds())
}

func TestSessionManager_GetSessionRefreshFailure(t *testing.T) {
	m := NewSessionManager(&fakeSessionAPI{}, NewMemoryStorage(), testLogger())
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }
	m.SetSession(testSession("u1", "Ana", "old", now.Unix()-1), EventSignedIn)

	_, err := m.GetSession(context.Background())
	assert.True(t, errors.Is(err, models.ErrInvalidToken))
}

func TestSessionManager_CorruptStorage(t *testing.T) {
	storage := NewMemoryStorage()
	storage.Set(SessionKey, "{not json")
	m := NewSessionManager(&fakeSessionAPI{}, storage, testLogger())

	_, err := m.GetSession(context.Background())
	require.Error(t, err)

	// signing out clears the bad entry
	_ = m.SignOut(context.Background())
	s, err := m.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)
	_, ok := storage.Get(SessionKey)
	assert.False(t, ok)
}

func TestSessionManager_SignOutIsBestEffort(t *testing.T) {
	storage := NewMemoryStorage()
	api := &fakeSessionAPI{signOutErr: models.ErrUpstream}
	m := NewSessionManager(api, storage, testLogger())
	m.SetSession(testSession("u1", "Ana", "a1", 0), EventSignedIn)

	var log eventLog
	m.Subscribe(log.record)

	err := m.SignOut(context.Background())
	assert.True(t, errors.Is(err, models.ErrUpstream))
	assert.Equal(t, []string{"a1"}, api.signedOut)
	assert.Equal(t, []EventKind{EventInitialSession, EventSignedOut}, log.kinds())

	s, err := m.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)
	_, ok := storage.Get(SessionKey)
	assert.False(t, ok)
}

func TestSessionManager_StoredJSON(t *testing.T) {
	storage := NewMemoryStorage()
	m := NewSessionManager(&fakeSessionAPI{}, storage, testLogger())
	m.SetSession(testSession("u1", "Ana", "a1", 42), EventSignedIn)

	raw, ok := storage.Get(SessionKey)
	require.True(t, ok)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Equal(t, "a1", decoded["access_token"])
	assert.EqualValues(t, 42, decoded["expires_at"])
}
