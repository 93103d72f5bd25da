// Package backend provides a client for the signage backend REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Errors
var (
	ErrNetwork     = errors.New("backend unreachable")
	ErrNotFound    = errors.New("not found")
	ErrInvalidCode = errors.New("invalid access code")
)

// Client is a backend API client.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// Config represents backend client configuration.
type Config struct {
	BaseURL   string
	Token     string // device bearer token, optional
	Timeout   time.Duration
	UserAgent string
}

// New creates a new backend client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errors.Wrap(err, "invalid backend base URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "kioskbox"
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.Token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
		httpClient = oauth2.NewClient(ctx, src)
		httpClient.Timeout = cfg.Timeout
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: httpClient,
	}, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// playerPath builds /players/{id}/{parts...}.
func playerPath(playerID string, parts ...string) string {
	p := "/players/" + url.PathEscape(playerID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// do sends a JSON request and decodes a JSON response into out.
// Transport failures, 429 and 5xx are marked ErrNetwork; 404 wraps ErrNotFound.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to send request: %s %s", method, path), ErrNetwork)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to read response body"), ErrNetwork)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrapf(ErrNotFound, "%s %s", method, path)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errors.Mark(errors.Newf("backend error: %s %s: status=%d", method, path, resp.StatusCode), ErrNetwork)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return errors.Newf("unexpected status code: %s %s: status=%d, body=%s", method, path, resp.StatusCode, truncate(respBody, 200))
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// ResolveAccessCode maps a short access code to a player id.
// Unknown codes return ErrInvalidCode (which is also ErrNotFound).
func (c *Client) ResolveAccessCode(ctx context.Context, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", errors.Wrap(ErrInvalidCode, "empty access code")
	}

	var resp resolveCodeResponse
	if err := c.do(ctx, http.MethodGet, "/players/resolve-code/"+url.PathEscape(code), nil, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", errors.Mark(err, ErrInvalidCode)
		}
		return "", err
	}
	id := string(resp.PlayerID)
	if id == "" {
		return "", errors.Wrapf(ErrInvalidCode, "no player for code %q", code)
	}

	zlog.Info().Msgf("Access code resolved: code=%s, player_id=%s", code, id)
	return id, nil
}

// PlayerInfo retrieves display metadata.
func (c *Client) PlayerInfo(ctx context.Context, playerID string) (*PlayerInfo, error) {
	var resp playerInfoResponse
	if err := c.do(ctx, http.MethodGet, playerPath(playerID, "info"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.toPlayerInfo(), nil
}

// Connect registers presence for the player.
func (c *Client) Connect(ctx context.Context, playerID string, p Presence) error {
	return c.do(ctx, http.MethodPost, playerPath(playerID, "connect"), p, nil)
}

// PostEvent posts a telemetry payload to /players/{id}/{kind}.
func (c *Client) PostEvent(ctx context.Context, playerID, kind string, payload any) error {
	if kind == "" {
		return errors.New("event kind is required")
	}
	return c.do(ctx, http.MethodPost, playerPath(playerID, kind), payload, nil)
}
