package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// unknown kids trigger at most one refetch per interval
const unknownKeyRefetchInterval = time.Minute

type KeySetConfig struct {
	URL           string
	TTL           time.Duration
	Timeout       time.Duration
	RetryAttempts int
}

// NewKeySet loads the provider's published signing keys and refreshes them
// every TTL until ctx is done. An unreachable endpoint at startup is logged,
// not returned, so the API can boot while the provider is down.
func NewKeySet(ctx context.Context, cfg KeySetConfig, logger *slog.Logger) (keyfunc.Keyfunc, error) {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryAttempts
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.Logger = nil

	remote, err := jwkset.NewStorageFromHTTP(cfg.URL, jwkset.HTTPClientStorageOptions{
		Client:                    retryClient.StandardClient(),
		Ctx:                       ctx,
		HTTPTimeout:               cfg.Timeout,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.TTL,
		RefreshErrorHandler: func(ctx context.Context, err error) {
			logger.WarnContext(ctx, "jwks refresh failed", slog.String("url", cfg.URL), slog.Any("error", err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create jwks storage: %w", err)
	}

	client, err := jwkset.NewHTTPClient(jwkset.HTTPClientOptions{
		HTTPURLs:          map[string]jwkset.Storage{cfg.URL: remote},
		RefreshUnknownKID: rate.NewLimiter(rate.Every(unknownKeyRefetchInterval), 1),
	})
	if err != nil {
		return nil, fmt.Errorf("create jwks client: %w", err)
	}

	keys, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: client})
	if err != nil {
		return nil, fmt.Errorf("create keyfunc: %w", err)
	}
	return keys, nil
}
