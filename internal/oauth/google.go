// Package oauth verifies third-party identity tokens.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/BradenHooton/voyageur/internal/models"
)

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// Identity is what a verified token tells us about the person
type Identity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// Metadata returns the profile fields carried by the token
func (i *Identity) Metadata() models.AccountMetadata {
	return models.AccountMetadata{FullName: i.Name, AvatarURL: i.Picture}
}

// GoogleClaims is the payload of a Google ID token
type GoogleClaims struct {
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name"`
	Picture       string   `json:"picture"`
	jwt.RegisteredClaims
}

// flexBool accepts both true and "true"
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	*b = flexBool(strings.EqualFold(s, "true"))
	return nil
}

// GoogleVerifier validates Google ID tokens: RS256 signature against the
// published keys, audience, issuer, expiry and a verified email.
type GoogleVerifier struct {
	clientID string
	keys     keyfunc.Keyfunc
	now      func() time.Time
}

func NewGoogleVerifier(clientID string, keys keyfunc.Keyfunc) *GoogleVerifier {
	return &GoogleVerifier{
		clientID: clientID,
		keys:     keys,
		now:      time.Now,
	}
}

// Verify returns the identity in rawToken. Any verification failure is
// reported as models.ErrInvalidToken; an unreachable key endpoint as
// models.ErrUpstream.
func (v *GoogleVerifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	if rawToken == "" {
		return nil, fmt.Errorf("%w: empty token", models.ErrInvalidToken)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(30*time.Second),
		jwt.WithTimeFunc(v.now),
	)

	var claims GoogleClaims
	_, err := parser.ParseWithClaims(rawToken, &claims, v.keys.KeyfuncCtx(ctx))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenUnverifiable) && !v.haveKeys(ctx) {
			return nil, fmt.Errorf("%w: signing keys unavailable: %v", models.ErrUpstream, err)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidToken, err)
	}

	if !validIssuer(claims.Issuer) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", models.ErrInvalidToken, claims.Issuer)
	}
	if claims.Email == "" || !bool(claims.EmailVerified) {
		return nil, fmt.Errorf("%w: email missing or unverified", models.ErrInvalidToken)
	}

	return &Identity{
		Subject: claims.Subject,
		Email:   models.NormalizeEmail(claims.Email),
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}

// haveKeys is false until the key endpoint has answered at least once
func (v *GoogleVerifier) haveKeys(ctx context.Context) bool {
	keys, err := v.keys.Storage().KeyReadAll(ctx)
	return err == nil && len(keys) > 0
}

func validIssuer(iss string) bool {
	for _, valid := range googleIssuers {
		if iss == valid {
			return true
		}
	}
	return false
}
