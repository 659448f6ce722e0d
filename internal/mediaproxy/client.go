// Package mediaproxy wraps the upstream media platform's search,
// resolve and OAuth endpoints. It is a stateless collaborator: failures
// surface as ErrUpstream and never affect room state.
package mediaproxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var ErrUpstream = errors.New("upstream media api request failed")

type Config struct {
	// BaseURL of the media platform REST API.
	BaseURL string
	// TokenURL of the OAuth token endpoint.
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

type Client struct {
	httpClient *http.Client
	cfg        Config
}

func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		cfg:        *cfg,
	}
}

// Search returns the upstream search response verbatim; the relay does
// not interpret it.
func (c *Client) Search(ctx context.Context, query string, limit int, accessToken string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))

	return c.get(ctx, "/tracks?"+params.Encode(), accessToken)
}

// Resolve maps a media URL to a single media descriptor.
func (c *Client) Resolve(ctx context.Context, mediaURL string, accessToken string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("url", mediaURL)

	return c.get(ctx, "/resolve?"+params.Encode(), accessToken)
}

// Charts returns popular tracks, optionally filtered by genre.
func (c *Client) Charts(ctx context.Context, genre string, limit int, accessToken string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if genre != "" {
		params.Set("genre", genre)
	}

	return c.get(ctx, "/charts?"+params.Encode(), accessToken)
}

func (c *Client) get(ctx context.Context, path string, accessToken string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	} else if c.cfg.ClientID != "" {
		req.Header.Set("Authorization", "OAuth "+c.cfg.ClientID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUpstream, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	return body, nil
}

type ExchangeCodeParams struct {
	Code         string
	CodeVerifier string
	RedirectURI  string
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// ExchangeCode swaps an authorization code plus PKCE verifier for
// tokens. Credentials never reach room state; the client attaches the
// returned token to its own search requests.
func (c *Client) ExchangeCode(ctx context.Context, params *ExchangeCodeParams) (TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("code", params.Code)
	form.Set("code_verifier", params.CodeVerifier)
	form.Set("redirect_uri", params.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResponse{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("%w: %s", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return TokenResponse{}, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return TokenResponse{}, fmt.Errorf("%w: %s", ErrUpstream, err)
	}

	return token, nil
}
