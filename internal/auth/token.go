// Package auth obtains the bearer token the commerce API calls carry.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/data-power-io/commerce-export/internal/httpclient"
)

// ErrNoCredentials is returned when neither a token nor credentials are set.
var ErrNoCredentials = errors.New("no commerce credentials configured")

// TokenSource yields a bearer token for the commerce API.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Static is a token supplied by the invoking runtime.
type Static string

func (s Static) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrNoCredentials
	}
	return string(s), nil
}

// AdminToken exchanges a username/password for an admin token with one POST
// to {base}/integration/admin/token. The token is reused for the lifetime of
// the source.
type AdminToken struct {
	Client   *httpclient.Client
	Username string
	Password string

	mu    sync.Mutex
	token string
}

func (a *AdminToken) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" {
		return a.token, nil
	}
	if a.Username == "" || a.Password == "" {
		return "", ErrNoCredentials
	}

	resp, err := a.Client.Post(ctx, "/integration/admin/token", map[string]string{
		"username": a.Username,
		"password": a.Password,
	}, "")
	if err != nil {
		return "", fmt.Errorf("admin token exchange: %w", err)
	}

	var token string
	if err := resp.JSON(&token); err != nil {
		return "", fmt.Errorf("admin token exchange: %w", err)
	}
	if token == "" {
		return "", errors.New("admin token exchange: empty token")
	}
	a.token = token
	return token, nil
}

// ClientCredentials runs an OAuth2 client-credentials grant against TokenPath
// on Client and caches the token until shortly before it expires.
type ClientCredentials struct {
	Client       *httpclient.Client
	TokenPath    string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// Now is replaced in tests.
	Now func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// expirySkew refreshes tokens a little before the server would reject them.
const expirySkew = 30 * time.Second

func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if c.token != "" && now().Before(c.expires) {
		return c.token, nil
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return "", ErrNoCredentials
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.ClientID},
		"client_secret": {c.ClientSecret},
	}
	if len(c.Scopes) > 0 {
		form.Set("scope", strings.Join(c.Scopes, ","))
	}

	resp, err := c.Client.PostForm(ctx, c.TokenPath, form)
	if err != nil {
		return "", fmt.Errorf("client credentials exchange: %w", err)
	}

	var tr tokenResponse
	if err := resp.JSON(&tr); err != nil {
		return "", fmt.Errorf("client credentials exchange: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("client credentials exchange: empty access_token")
	}

	c.token = tr.AccessToken
	lifetime := time.Duration(tr.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	c.expires = now().Add(lifetime - expirySkew)
	return c.token, nil
}
