package client

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
	"sync"
	"time"

	"sendme/internal/auth"
	"sendme/internal/config"
	"sendme/internal/logging"
	"sendme/internal/store"
	"sendme/internal/types"
)

type Client struct {
	baseURL  string
	mu       sync.RWMutex
	token    string
	http     *http.Client
	transfer *http.Client
	now      func() time.Time
	logger   logging.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient == nil {
			return
		}
		c.http = httpClient
		c.transfer = &http.Client{Transport: httpClient.Transport}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a client for the configured server. The saved session's token
// is used only when it was issued by the same server.
func New(ctx context.Context, cfg config.Config, sessions store.SessionStore, opts ...Option) (*Client, error) {
	token := ""
	if sessions != nil {
		session, err := sessions.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		if !session.Empty() && sameServer(session.BaseURL, cfg.BaseURL()) {
			token = session.Token
		}
	}
	opts = append([]Option{WithHTTPClient(&http.Client{Timeout: cfg.Timeout()})}, opts...)
	return NewWithBaseURL(cfg.BaseURL(), token, opts...), nil
}

func NewWithBaseURL(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    strings.TrimSpace(token),
		http:     &http.Client{Timeout: 30 * time.Second},
		transfer: &http.Client{},
		now:      time.Now,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func sameServer(a, b string) bool {
	a = strings.TrimRight(strings.TrimSpace(a), "/")
	b = strings.TrimRight(strings.TrimSpace(b), "/")
	return a == "" || a == b
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = strings.TrimSpace(token)
}

// FetchAll returns every record the backend holds, oldest first.
func (c *Client) FetchAll(ctx context.Context) ([]*types.ServerRecord, error) {
	var records []*types.ServerRecord
	if err := c.doJSON(ctx, http.MethodGet, "/", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) SendText(ctx context.Context, content string, device types.Device) (*types.ServerRecord, error) {
	req := TextMessageRequest{Content: content, Type: string(types.KindText), Device: string(device)}
	var rec types.ServerRecord
	if err := c.doJSON(ctx, http.MethodPost, "/text", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateText replaces the content of an existing text record.
func (c *Client) UpdateText(ctx context.Context, id, content string, device types.Device) (*types.ServerRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("record id is required")
	}
	req := TextMessageRequest{Content: content, Type: string(types.KindText), Device: string(device)}
	var rec types.ServerRecord
	if err := c.doJSON(ctx, http.MethodPut, "/"+url.PathEscape(id), req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("record id is required")
	}
	return c.doJSON(ctx, http.MethodDelete, "/"+url.PathEscape(id), nil, nil)
}

// Login exchanges credentials for a bearer token and starts using it.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", username)
	form.Set("password", password)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var resp TokenResponse
	if err := c.send(c.http, req, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		return nil, errors.New("login response did not include a token")
	}
	c.SetToken(resp.AccessToken)
	return &resp, nil
}

func (c *Client) Register(ctx context.Context, username, password string) (*UserResponse, error) {
	req := CredentialsRequest{Username: username, Password: password}
	var resp UserResponse
	if err := c.doJSONAuth(ctx, http.MethodPost, "/auth/register", req, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	return c.doJSONAuth(ctx, method, path, body, true, out)
}

func (c *Client) doJSONAuth(ctx context.Context, method, path string, body any, useAuth bool, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := c.newRequest(ctx, method, path, reader, useAuth)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(c.http, req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, useAuth bool) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if useAuth {
		if err := c.authorize(req); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// authorize attaches the bearer token when there is one. The backend decides
// whether a route needs it; an expired token is rejected here instead of
// being sent.
func (c *Client) authorize(req *http.Request) error {
	token := c.Token()
	if token == "" {
		return nil
	}
	if err := auth.Check(token, c.now()); err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (c *Client) send(httpClient *http.Client, req *http.Request, out any) error {
	started := c.now()
	resp, err := httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", logging.F("method", req.Method), logging.F("path", req.URL.Path), logging.Err(err))
		return err
	}
	defer resp.Body.Close()
	c.logger.Debug("request",
		logging.F("method", req.Method),
		logging.F("path", req.URL.Path),
		logging.F("status", resp.StatusCode),
		logging.F("duration", c.now().Sub(started)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
