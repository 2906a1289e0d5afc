package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/voyageur/internal/models"
	pkghttp "github.com/BradenHooton/voyageur/pkg/http"
)

type contextKey string

const (
	accountContextKey contextKey = "account"
	tokenContextKey   contextKey = "access_token"
)

// AccountResolver resolves an access token to its account
type AccountResolver interface {
	GetUser(ctx context.Context, accessToken string) (*models.Account, error)
}

// RequireBearer authenticates the Authorization header against the identity
// provider and stores the account and raw token in the request context.
func RequireBearer(resolver AccountResolver, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := pkghttp.BearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, string(models.CodeUnauthorized), "Missing bearer token")
				return
			}

			account, err := resolver.GetUser(r.Context(), token)
			if err != nil {
				if errors.Is(err, models.ErrUpstream) {
					logger.ErrorContext(r.Context(), "failed to resolve bearer token", slog.Any("error", err))
					pkghttp.WriteInternalError(w, string(models.CodeUpstream), "Authentication service unavailable")
					return
				}
				pkghttp.WriteUnauthorized(w, string(models.CodeInvalidToken), "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), accountContextKey, account)
			ctx = context.WithValue(ctx, tokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountFromContext returns the authenticated account, or nil
func AccountFromContext(ctx context.Context) *models.Account {
	account, _ := ctx.Value(accountContextKey).(*models.Account)
	return account
}

// AccessTokenFromContext returns the bearer token that authenticated the request
func AccessTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}
