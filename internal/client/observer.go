package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/voyageur/internal/models"
)

// View is a screen of the app shell
type View string

const (
	ViewLanding        View = "LANDING"
	ViewAuth           View = "AUTH"
	ViewDashboard      View = "DASHBOARD"
	ViewPlanner        View = "PLANNER"
	ViewDining         View = "DINING"
	ViewRewards        View = "REWARDS"
	ViewWallet         View = "WALLET"
	ViewTravelDNA      View = "TRAVEL_DNA"
	ViewAchievements   View = "ACHIEVEMENTS"
	ViewSustainability View = "SUSTAINABILITY"
)

// Protected reports whether v requires a signed-in user
func (v View) Protected() bool {
	switch v {
	case ViewDashboard, ViewPlanner, ViewDining, ViewRewards, ViewWallet,
		ViewTravelDNA, ViewAchievements, ViewSustainability:
		return true
	}
	return false
}

// DefaultName is shown when an account has no full name
const DefaultName = "Traveler"

// UserProfile is the signed-in user as the app shell shows it
type UserProfile struct {
	ID        string
	FullName  string
	Email     string
	CreatedAt time.Time
}

// ObservedSessions is satisfied by *SessionManager
type ObservedSessions interface {
	Subscribe(fn func(AuthEvent)) func()
	GetSession(ctx context.Context) (*models.Session, error)
	Refresh(ctx context.Context) error
	SignOut(ctx context.Context) error
}

// SessionObserver keeps the app shell's user and view in step with the
// session. It also serves as the shell's Navigator.
type SessionObserver struct {
	sessions    ObservedSessions
	breadcrumbs Storage
	logger      *slog.Logger

	mu          sync.Mutex
	view        View
	user        *UserProfile
	loading     bool
	mounted     bool
	refreshed   bool
	seq         int
	unsubscribe func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewSessionObserver(sessions ObservedSessions, breadcrumbs Storage, logger *slog.Logger) *SessionObserver {
	if breadcrumbs == nil {
		breadcrumbs = NewMemoryStorage()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionObserver{
		sessions:    sessions,
		breadcrumbs: breadcrumbs,
		logger:      logger,
		view:        ViewLanding,
		loading:     true,
	}
}

// Start subscribes to session changes and checks the stored session once
// in the background
func (o *SessionObserver) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	o.mu.Lock()
	if o.mounted {
		o.mu.Unlock()
		cancel()
		return
	}
	o.mounted = true
	o.cancel = cancel
	o.mu.Unlock()

	unsubscribe := o.sessions.Subscribe(func(ev AuthEvent) {
		o.handle(ctx, ev)
	})

	o.mu.Lock()
	o.unsubscribe = unsubscribe
	seq := o.seq
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.checkSession(ctx, seq)
	}()
}

// Stop unsubscribes and waits for background work. No state changes after
// Stop returns.
func (o *SessionObserver) Stop() {
	o.mu.Lock()
	if !o.mounted {
		o.mu.Unlock()
		return
	}
	o.mounted = false
	unsubscribe := o.unsubscribe
	cancel := o.cancel
	o.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	cancel()
	o.wg.Wait()
}

func (o *SessionObserver) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.view
}

// User returns a copy of the signed-in user, or nil
func (o *SessionObserver) User() *UserProfile {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.user == nil {
		return nil
	}
	u := *o.user
	return &u
}

// Loading is true until the first session event or check completes
func (o *SessionObserver) Loading() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loading
}

// Navigate moves the shell to v. Protected views need a user.
func (o *SessionObserver) Navigate(v View) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if v.Protected() && o.user == nil {
		return
	}
	o.view = v
}

func (o *SessionObserver) handle(ctx context.Context, ev AuthEvent) {
	var acc *models.Account
	if ev.Session != nil {
		acc = ev.Session.User
	}

	if acc == nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		if !o.mounted {
			return
		}
		o.seq++
		o.clearUser()
		return
	}

	o.mu.Lock()
	if !o.mounted {
		o.mu.Unlock()
		return
	}
	o.seq++
	o.breadcrumbs.Delete(IntentKey)

	name := acc.Metadata.FullName
	missing := name == ""
	if missing {
		name = DefaultName
		if o.user != nil && o.user.FullName != "" {
			name = o.user.FullName
		}
	}
	o.user = &UserProfile{
		ID:        acc.ID,
		FullName:  name,
		Email:     acc.Email,
		CreatedAt: acc.CreatedAt,
	}
	o.loading = false

	if ev.Kind == EventInitialSession || ev.Kind == EventSignedIn {
		if o.view == ViewLanding || o.view == ViewAuth {
			o.view = ViewDashboard
		}
	}

	// the profile write may land after the token was minted
	refresh := missing && name == DefaultName && !o.refreshed
	if refresh {
		o.refreshed = true
		o.wg.Add(1)
	}
	o.mu.Unlock()

	if refresh {
		go func() {
			defer o.wg.Done()
			if err := o.sessions.Refresh(ctx); err != nil && ctx.Err() == nil {
				o.logger.WarnContext(ctx, "profile refresh failed", slog.Any("error", err))
			}
		}()
	}
}

// clearUser drops the user and leaves protected views. Caller holds mu.
func (o *SessionObserver) clearUser() {
	o.user = nil
	o.loading = false
	if o.view.Protected() {
		o.view = ViewLanding
	}
}

// checkSession validates the stored session. Its result is discarded when
// a session event arrived after seq.
func (o *SessionObserver) checkSession(ctx context.Context, seq int) {
	session, err := o.sessions.GetSession(ctx)
	if ctx.Err() != nil {
		return
	}

	if err != nil {
		o.logger.WarnContext(ctx, "stored session unusable, signing out", slog.Any("error", err))
		if err := o.sessions.SignOut(ctx); err != nil {
			o.logger.WarnContext(ctx, "sign-out failed", slog.Any("error", err))
		}
		o.mu.Lock()
		if o.mounted {
			o.clearUser()
		}
		o.mu.Unlock()
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.mounted || o.seq != seq {
		return
	}
	if session == nil || session.User == nil {
		o.clearUser()
		return
	}
	o.loading = false
}
