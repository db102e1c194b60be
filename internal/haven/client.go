package haven

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Default API bases. Auth and device traffic are split so a staging auth
// area can be pointed at independently, even though both currently
// resolve to the same host.
const (
	DefaultAuthBase = "https://api.havenlighting.com/api"
	DefaultProdBase = "https://api.havenlighting.com/api"
)

// Client talks to the Haven Lighting cloud API. It owns the session
// credentials and the discovered location set.
//
// All methods are safe for concurrent use, but the API itself has no
// transactional semantics: callers that interleave commands and
// refreshes get last-writer-wins state.
type Client struct {
	authBase   string
	prodBase   string
	httpClient *http.Client
	creds      *Credentials

	mu        sync.RWMutex
	locations map[int64]*Location
}

// NewClient creates a new Haven client. Empty bases fall back to the
// public API; a zero timeout falls back to 30 seconds.
func NewClient(authBase, prodBase string, timeout time.Duration) *Client {
	if authBase == "" {
		authBase = DefaultAuthBase
	}
	if prodBase == "" {
		prodBase = DefaultProdBase
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		authBase:   authBase,
		prodBase:   prodBase,
		httpClient: &http.Client{Timeout: timeout},
		creds:      &Credentials{},
		locations:  make(map[int64]*Location),
	}
}

// Credentials exposes the session store, mainly so the daemon can
// persist and restore the token triple across restarts.
func (c *Client) Credentials() *Credentials {
	return c.creds
}

// IsAuthenticated reports whether the client holds a usable session.
func (c *Client) IsAuthenticated() bool {
	return c.creds.IsAuthenticated()
}

// Authenticate logs in with the given username and password. It returns
// false without an error when the server rejects the credentials (no
// token in the response); transport and HTTP failures are returned as
// errors wrapping ErrAPI.
func (c *Client) Authenticate(ctx context.Context, username, password string) (bool, error) {
	payload := map[string]string{
		"userName": username,
		"password": password,
	}

	raw, err := c.do(ctx, http.MethodPost, "/Auth/Authenticate", requestOptions{body: payload})
	if err != nil {
		return false, err
	}

	var resp authResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false, fmt.Errorf("%w: decoding auth response: %w", ErrAPI, err)
	}
	if resp.Token == "" {
		log.Warn().Str("user", username).Msg("Authentication rejected: no token in response")
		return false, nil
	}

	c.creds.update(resp)
	log.Info().Str("user", username).Msg("Authenticated with Haven cloud")
	return true, nil
}

// Refresh exchanges the stored refresh token for a new token triple.
// It returns false if no refresh token is stored, if the request fails,
// or if the response carries no token. A failed refresh never mutates
// the previously stored triple.
func (c *Client) Refresh(ctx context.Context) bool {
	refreshToken, userID := c.creds.refreshState()
	if refreshToken == "" || userID == 0 {
		log.Debug().Msg("Cannot refresh token: missing refresh token or user id")
		return false
	}

	payload := map[string]any{
		"refreshToken": refreshToken,
		"userId":       userID,
	}

	raw, err := c.do(ctx, http.MethodPost, "/Auth/Refresh", requestOptions{body: payload})
	if err != nil {
		log.Error().Err(err).Msg("Token refresh failed")
		return false
	}

	var resp authResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		log.Error().Err(err).Msg("Token refresh failed: malformed response")
		return false
	}
	if resp.Token == "" {
		log.Warn().Msg("Token refresh rejected: no token in response")
		return false
	}

	c.creds.update(resp)
	log.Debug().Msg("Token refresh successful")
	return true
}

// requestOptions control a single API request.
type requestOptions struct {
	authRequired bool
	prodAPI      bool
	body         any
	timeout      time.Duration // overrides the client default when set
}

// request performs an API call with transparent refresh-and-retry: on
// an authentication failure it attempts exactly one token refresh and,
// if that succeeds, replays the request exactly once. API/transport
// errors are never retried.
func (c *Client) request(ctx context.Context, method, path string, opts requestOptions) (json.RawMessage, error) {
	raw, err := c.do(ctx, method, path, opts)
	if err == nil || !errors.Is(err, ErrAuthentication) {
		return raw, err
	}

	log.Info().Str("path", path).Msg("Authentication error, attempting token refresh")
	if !c.Refresh(ctx) {
		log.Error().Str("path", path).Msg("Token refresh failed, unable to retry request")
		return nil, fmt.Errorf("%w: token refresh failed", ErrAuthentication)
	}

	return c.do(ctx, method, path, opts)
}

// do performs a single API request with no retry.
func (c *Client) do(ctx context.Context, method, path string, opts requestOptions) (json.RawMessage, error) {
	if opts.authRequired && !c.creds.IsAuthenticated() {
		return nil, fmt.Errorf("%w: authentication required", ErrAuthentication)
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	base := c.authBase
	if opts.prodAPI {
		base = c.prodBase
	}

	var body io.Reader
	if opts.body != nil {
		encoded, err := json.Marshal(opts.body)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding request body: %w", ErrAPI, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAPI, err)
	}
	if opts.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// The bearer header rides along whenever a token is present, even on
	// auth-optional calls, matching upstream expectations for /Auth/Refresh.
	if token := c.creds.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %w", ErrAPI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: received 401 unauthorized", ErrAuthentication)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %w", ErrAPI, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))})
	}
	if resp.StatusCode == http.StatusNoContent {
		return json.RawMessage("{}"), nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrAPI, err)
	}
	return json.RawMessage(data), nil
}
