// Package gotrue is an identity.Provider backed by a hosted GoTrue
// (Supabase Auth) server.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/BradenHooton/voyageur/internal/identity"
	"github.com/BradenHooton/voyageur/internal/models"
)

const (
	apiPrefix        = "/auth/v1"
	adminPageSize    = 1000
	maxAdminPages    = 50
	maxResponseBytes = 4 << 20
)

type Config struct {
	URL           string
	AnonKey       string
	ServiceKey    string
	Timeout       time.Duration
	RetryAttempts int
}

type Client struct {
	// reads retry transport failures, writes never retry so a code or
	// email is never sent twice
	reads      *http.Client
	writes     *http.Client
	baseURL    string
	anonKey    string
	serviceKey string
}

var _ identity.Provider = (*Client)(nil)

func NewClient(cfg Config) *Client {
	return &Client{
		reads:      newHTTPClient(cfg.Timeout, cfg.RetryAttempts),
		writes:     newHTTPClient(cfg.Timeout, 0),
		baseURL:    strings.TrimRight(cfg.URL, "/") + apiPrefix,
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceKey,
	}
}

func newHTTPClient(timeout time.Duration, retries int) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retries
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.HTTPClient.Timeout = timeout
	retryClient.Logger = nil

	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err != nil {
			return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		}
		return false, nil
	}
	return retryClient.StandardClient()
}

// credential selects which key authorizes a call
type credential struct {
	apiKey string
	bearer string
}

func (c *Client) anon() credential { return credential{apiKey: c.anonKey} }

func (c *Client) admin() credential {
	return credential{apiKey: c.serviceKey, bearer: c.serviceKey}
}

func (c *Client) user(accessToken string) credential {
	return credential{apiKey: c.anonKey, bearer: accessToken}
}

func (c *Client) do(ctx context.Context, method, path string, cred credential, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("apikey", cred.apiKey)
	if cred.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+cred.bearer)
	}

	client := c.writes
	if method == http.MethodGet {
		client = c.reads
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", models.ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", models.ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ParseError(resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", models.ErrUpstream, path, err)
	}
	return nil
}

func (c *Client) SignUp(ctx context.Context, req identity.SignupRequest) (*models.Account, *models.Session, error) {
	payload := map[string]any{
		"email":    req.Email,
		"password": req.Password,
		"data": userMetadata{
			FullName:  req.Metadata.FullName,
			AvatarURL: req.Metadata.AvatarURL,
		},
	}

	var reply signupReply
	if err := c.do(ctx, http.MethodPost, "/signup", c.anon(), payload, &reply); err != nil {
		return nil, nil, err
	}

	if reply.AccessToken != "" && reply.session.User != nil {
		sess := reply.session.toSession()
		return sess.User, sess, nil
	}
	if reply.user.ID == "" {
		return nil, nil, fmt.Errorf("%w: signup reply had no user", models.ErrUpstream)
	}
	return reply.user.toAccount(), nil, nil
}

func (c *Client) token(ctx context.Context, grantType string, payload any) (*models.Session, error) {
	var reply session
	path := "/token?grant_type=" + url.QueryEscape(grantType)
	if err := c.do(ctx, http.MethodPost, path, c.anon(), payload, &reply); err != nil {
		return nil, err
	}
	return reply.toSession(), nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	sess, err := c.token(ctx, "password", map[string]string{"email": email, "password": password})
	if err != nil {
		var apiErr *APIError
		// a failed password grant is always a credential problem unless
		// it is more specific
		if errors.As(err, &apiErr) && errors.Is(apiErr.Kind, models.ErrValidation) {
			apiErr.Kind = models.ErrInvalidCredentials
		}
		return nil, err
	}
	return sess, nil
}

func (c *Client) SignInWithIDToken(ctx context.Context, provider, idToken string) (*models.Session, error) {
	return c.token(ctx, "id_token", map[string]string{"provider": provider, "id_token": idToken})
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*models.Session, error) {
	return c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

func (c *Client) SendOTP(ctx context.Context, email string, shouldCreateUser bool) error {
	payload := map[string]any{"email": email, "create_user": shouldCreateUser}
	return c.do(ctx, http.MethodPost, "/otp", c.anon(), payload, nil)
}

func (c *Client) VerifyOTP(ctx context.Context, email, code string, kind models.OTPKind) (*models.Session, error) {
	payload := map[string]string{"email": email, "token": code, "type": string(kind)}

	var reply session
	if err := c.do(ctx, http.MethodPost, "/verify", c.anon(), payload, &reply); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError && apiErr.Kind != models.ErrRateLimited {
			apiErr.Kind = models.ErrInvalidOTP
		}
		return nil, err
	}
	if reply.AccessToken == "" {
		return nil, fmt.Errorf("%w: verify reply had no session", models.ErrUpstream)
	}
	return reply.toSession(), nil
}

func (c *Client) ResendSignup(ctx context.Context, email string) error {
	payload := map[string]string{"type": string(models.OTPKindSignup), "email": email}
	return c.do(ctx, http.MethodPost, "/resend", c.anon(), payload, nil)
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (*models.Account, error) {
	var u user
	if err := c.do(ctx, http.MethodGet, "/user", c.user(accessToken), nil, &u); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			apiErr.Kind = models.ErrInvalidToken
		}
		return nil, err
	}
	return u.toAccount(), nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", c.user(accessToken), nil, nil)
}

// FindUserByEmail pages through the admin user list. The admin API has
// no lookup by email.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*models.Account, error) {
	email = models.NormalizeEmail(email)

	for page := 1; page <= maxAdminPages; page++ {
		var reply listUsersReply
		path := fmt.Sprintf("/admin/users?page=%d&per_page=%d", page, adminPageSize)
		if err := c.do(ctx, http.MethodGet, path, c.admin(), nil, &reply); err != nil {
			return nil, err
		}

		for i := range reply.Users {
			if models.NormalizeEmail(reply.Users[i].Email) == email {
				return reply.Users[i].toAccount(), nil
			}
		}
		if len(reply.Users) < adminPageSize {
			break
		}
	}
	return nil, models.ErrAccountNotFound
}

func (c *Client) GetUserByID(ctx context.Context, id string) (*models.Account, error) {
	var u user
	if err := c.do(ctx, http.MethodGet, "/admin/users/"+url.PathEscape(id), c.admin(), nil, &u); err != nil {
		return nil, err
	}
	return u.toAccount(), nil
}

func (c *Client) UpdatePassword(ctx context.Context, id, password string) error {
	payload := map[string]string{"password": password}
	return c.do(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(id), c.admin(), payload, nil)
}

func (c *Client) UpdateMetadata(ctx context.Context, id string, metadata models.AccountMetadata) (*models.Account, error) {
	payload := map[string]any{"user_metadata": userMetadata{
		FullName:  metadata.FullName,
		AvatarURL: metadata.AvatarURL,
	}}

	var u user
	if err := c.do(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(id), c.admin(), payload, &u); err != nil {
		return nil, err
	}
	return u.toAccount(), nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(id), c.admin(), nil, nil)
}
