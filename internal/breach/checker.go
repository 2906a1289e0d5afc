// Package breach checks passwords against the Have I Been Pwned range API
// without sending the password or its full hash.
package breach

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const prefixLen = 5

// Checker reports whether a password appears in a known breach corpus
type Checker interface {
	Compromised(ctx context.Context, password string) (bool, error)
}

type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
}

// HIBPChecker queries /range/{prefix} with the first five hex digits of
// the SHA-1 and matches the suffix locally.
type HIBPChecker struct {
	client  *http.Client
	baseURL string
	logger  *slog.Logger
}

func NewHIBPChecker(cfg Config, logger *slog.Logger) *HIBPChecker {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryAttempts
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = time.Second
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.Logger = nil

	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err != nil {
			return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		}
		return false, nil
	}

	return &HIBPChecker{
		client:  retryClient.StandardClient(),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

func (c *HIBPChecker) Compromised(ctx context.Context, password string) (bool, error) {
	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:prefixLen], digest[prefixLen:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/range/"+prefix, nil)
	if err != nil {
		return false, fmt.Errorf("build range request: %w", err)
	}
	// padded responses hide the real bucket size from observers
	req.Header.Set("Add-Padding", "true")
	req.Header.Set("User-Agent", "voyageur-auth")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("range request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("range request: unexpected status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		hashSuffix, count, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if !ok || !strings.EqualFold(hashSuffix, suffix) {
			continue
		}
		n, err := strconv.Atoi(count)
		if err != nil {
			continue
		}
		// padding entries carry a zero count
		return n > 0, nil
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("read range response: %w", err)
	}
	return false, nil
}

// Disabled never reports a breach
type Disabled struct{}

func (Disabled) Compromised(context.Context, string) (bool, error) { return false, nil }
