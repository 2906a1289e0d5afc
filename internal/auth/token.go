package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/voyageur/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "voyageur"

// TokenManager issues and validates locally signed session tokens
type TokenManager struct {
	secret             []byte
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	now                func() time.Time
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, accessExpiry, refreshExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:             []byte(secret),
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
		now:                time.Now,
	}
}

// WithClock overrides the time source (tests)
func (tm *TokenManager) WithClock(now func() time.Time) *TokenManager {
	tm.now = now
	return tm
}

func (tm *TokenManager) sign(tokenType string, acc *models.Account, ttl time.Duration) (string, time.Time, error) {
	now := tm.now()
	expiresAt := now.Add(ttl)

	claims := &models.TokenClaims{
		Type:   tokenType,
		UserID: acc.ID,
		Email:  acc.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    tokenIssuer,
			Subject:   acc.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, expiresAt, nil
}

// IssueSession creates an access/refresh pair for acc
func (tm *TokenManager) IssueSession(acc *models.Account) (*models.Session, error) {
	access, expiresAt, err := tm.sign(models.TokenTypeAccess, acc, tm.accessTokenExpiry)
	if err != nil {
		return nil, err
	}
	refresh, _, err := tm.sign(models.TokenTypeRefresh, acc, tm.refreshTokenExpiry)
	if err != nil {
		return nil, err
	}

	return &models.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(tm.accessTokenExpiry / time.Second),
		ExpiresAt:    expiresAt.Unix(),
		User:         acc,
	}, nil
}

// ValidateToken verifies signature, expiry and type. Every failure wraps
// models.ErrInvalidToken.
func (tm *TokenManager) ValidateToken(tokenString, tokenType string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidToken, err)
	}

	if claims.Type != tokenType {
		return nil, fmt.Errorf("%w: expected %s token, got %q", models.ErrInvalidToken, tokenType, claims.Type)
	}
	if claims.UserID == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or id", models.ErrInvalidToken)
	}
	return claims, nil
}

// IsExpired reports whether err came from an expired token
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}
