package gotrue

import (
	"time"

	"github.com/BradenHooton/voyageur/internal/models"
)

type appMetadata struct {
	Provider  string   `json:"provider"`
	Providers []string `json:"providers"`
}

type userMetadata struct {
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type user struct {
	ID               string       `json:"id"`
	Email            string       `json:"email"`
	EmailConfirmedAt *time.Time   `json:"email_confirmed_at"`
	AppMetadata      appMetadata  `json:"app_metadata"`
	UserMetadata     userMetadata `json:"user_metadata"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func (u *user) toAccount() *models.Account {
	methods := u.AppMetadata.Providers
	if len(methods) == 0 && u.AppMetadata.Provider != "" {
		methods = []string{u.AppMetadata.Provider}
	}
	return &models.Account{
		ID:               u.ID,
		Email:            models.NormalizeEmail(u.Email),
		EmailConfirmedAt: u.EmailConfirmedAt,
		Methods:          methods,
		Metadata: models.AccountMetadata{
			FullName:  u.UserMetadata.FullName,
			AvatarURL: u.UserMetadata.AvatarURL,
		},
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         *user  `json:"user"`
}

func (s *session) toSession() *models.Session {
	out := &models.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresIn:    s.ExpiresIn,
		ExpiresAt:    s.ExpiresAt,
	}
	if s.User != nil {
		out.User = s.User.toAccount()
	}
	return out
}

// signupReply is either a session (auto-confirm) or a bare user
// (confirmation pending). Both shapes share the user fields at the top
// level or under "user".
type signupReply struct {
	session
	user
}

type listUsersReply struct {
	Users []user `json:"users"`
}
