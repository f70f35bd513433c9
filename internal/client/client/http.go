package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/quillnotes/quill/internal/common"
)

// StatusSyncTokenInvalid is returned by the server when it no longer
// recognizes the supplied sync token and the client must resync from
// scratch.
const StatusSyncTokenInvalid = 498

// errorResponse is the server's error body.
type errorResponse struct {
	Errors []string `json:"errors"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// HTTPClient is the Client implementation speaking JSON over HTTPS.
// Transient failures (connection errors, 5xx) are retried by the
// underlying retryable client before surfacing as ErrTransport.
type HTTPClient struct {
	baseURL string
	http    *retryablehttp.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// NewHTTPClient returns a client for the service at baseURL. Every
// request carries the given timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
	}
}

func (c *HTTPClient) AuthParams(ctx context.Context, identifier string) (*AuthParams, error) {
	q := url.Values{"identifier": {identifier}}
	var out AuthParams
	if err := c.doJSON(ctx, http.MethodGet, "/auth/params?"+q.Encode(), nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Register(ctx context.Context, identifier string, params AuthParams, verifier []byte) error {
	body := struct {
		Identifier string     `json:"identifier"`
		Params     AuthParams `json:"params"`
		Verifier   []byte     `json:"verifier"`
	}{identifier, params, verifier}

	return c.doJSON(ctx, http.MethodPost, "/auth/register", body, nil, false)
}

func (c *HTTPClient) SignIn(ctx context.Context, identifier string, verifier []byte) error {
	body := struct {
		Identifier string `json:"identifier"`
		Verifier   []byte `json:"verifier"`
	}{identifier, verifier}

	var out tokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/sign_in", body, &out, false); err != nil {
		return err
	}

	c.mu.Lock()
	c.accessToken = out.AccessToken
	c.refreshToken = out.RefreshToken
	c.mu.Unlock()
	return nil
}

func (c *HTTPClient) SignOut() {
	c.mu.Lock()
	c.accessToken = ""
	c.refreshToken = ""
	c.mu.Unlock()
}

func (c *HTTPClient) Sync(ctx context.Context, req SyncRequest) (*SyncResponse, error) {
	var out SyncResponse
	if err := c.doJSON(ctx, http.MethodPost, "/items/sync", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/ping", nil, nil, false)
}

func (c *HTTPClient) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

func (c *HTTPClient) Close() error {
	c.http.HTTPClient.CloseIdleConnections()
	return nil
}

// doJSON performs one request. Authenticated requests that fail with
// 401 trigger a single token refresh followed by one retry, mirroring
// what a per-request auth interceptor would do.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, in, out any, authed bool) error {
	status, detail, err := c.roundTrip(ctx, method, path, in, out, authed)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && authed && c.refresh(ctx) == nil {
		status, detail, err = c.roundTrip(ctx, method, path, in, out, authed)
		if err != nil {
			return err
		}
	}

	return mapStatus(status, detail)
}

// roundTrip returns the response status plus, for failure statuses, the
// server's error message so callers can include it in diagnostics.
func (c *HTTPClient) roundTrip(ctx context.Context, method, path string, in, out any, authed bool) (int, string, error) {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return 0, "", fmt.Errorf("marshal request: %w", err)
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %w: %w", common.ErrTransport, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return 0, "", fmt.Errorf("%w: decode response: %w", common.ErrTransport, err)
			}
			return resp.StatusCode, "", nil
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, "", nil
	}

	var apiErr errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&apiErr)
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, strings.Join(apiErr.Errors, "; "), nil
}

// refresh exchanges the refresh token for a new token pair.
func (c *HTTPClient) refresh(ctx context.Context) error {
	c.mu.Lock()
	rt := c.refreshToken
	c.mu.Unlock()
	if rt == "" {
		return common.ErrSessionExpired
	}

	body := struct {
		RefreshToken string `json:"refresh_token"`
	}{rt}

	var out tokenResponse
	status, detail, err := c.roundTrip(ctx, http.MethodPost, "/auth/refresh", body, &out, false)
	if err != nil {
		return err
	}
	if err := mapStatus(status, detail); err != nil {
		return err
	}

	c.mu.Lock()
	c.accessToken = out.AccessToken
	c.refreshToken = out.RefreshToken
	c.mu.Unlock()
	return nil
}

func mapStatus(status int, detail string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return common.ErrSessionExpired
	case status == StatusSyncTokenInvalid:
		return common.ErrTokenInvalid
	case status == http.StatusConflict:
		return common.ErrTokenInvalid
	default:
		if detail != "" {
			return fmt.Errorf("%w: unexpected status %d: %s", common.ErrTransport, status, detail)
		}
		return fmt.Errorf("%w: unexpected status %d", common.ErrTransport, status)
	}
}
