package api

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

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jask/finsense/internal/logging"
)

const defaultTimeout = 30 * time.Second

// ErrSessionExpired is returned by AuthFetch when the session is missing,
// expired or rejected. The session has already been cleared; callers abort
// the operation and leave their state alone.
var ErrSessionExpired = errors.New("session expired")

// Credentials is the session the transport reads the bearer token from.
type Credentials interface {
	Token() (string, error)
	Clear() error
}

// APIError is a non-2xx response. Detail carries the server's "detail" field
// when it is a string.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Detail)
}

// Request describes one call against the API, relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Bytes returns the raw body.
func (r *Response) Bytes() []byte {
	return r.body
}

// Err converts a non-2xx response into an *APIError.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	return &APIError{StatusCode: r.StatusCode, Detail: detailOf(r.body)}
}

// Client talks to the FinSense REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
	limiter    *rate.Limiter
	logger     *log.Logger
	now        func() time.Time
	onExpired  func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit throttles outbound requests. A zero limit disables throttling.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithClock overrides the clock used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// OnSessionExpired registers a hook run after the session has been cleared.
func OnSessionExpired(fn func()) Option {
	return func(c *Client) { c.onExpired = fn }
}

// New creates a client for the API at baseURL.
func New(baseURL string, creds Credentials, logger *log.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		creds:      creds,
		logger:     logging.Component(logger, "api"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetBaseURL overrides the base URL (useful for testing).
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Fetch performs an unauthenticated request.
func (c *Client) Fetch(ctx context.Context, req Request) (*Response, error) {
	return c.do(ctx, req, "")
}

// AuthFetch performs a request carrying the session's bearer token. When the
// session is missing, the token's exp claim has passed, or the server answers
// 401, the session is cleared and ErrSessionExpired is returned.
func (c *Client) AuthFetch(ctx context.Context, req Request) (*Response, error) {
	token, err := c.creds.Token()
	if err != nil {
		c.logger.Warn("read session", "err", err)
		return nil, c.expire("unreadable session")
	}
	if token == "" {
		return nil, c.expire("no session")
	}
	if tokenExpired(token, c.now()) {
		return nil, c.expire("token expired")
	}

	resp, err := c.do(ctx, req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, c.expire("rejected by server")
	}
	return resp, nil
}

func (c *Client) expire(reason string) error {
	c.logger.Info("session expired", "reason", reason)
	if err := c.creds.Clear(); err != nil {
		c.logger.Error("clear session", "err", err)
	}
	if c.onExpired != nil {
		c.onExpired()
	}
	return ErrSessionExpired
}

func (c *Client) do(ctx context.Context, req Request, token string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	reqURL := c.baseURL + req.Path
	if len(req.Query) > 0 {
		reqURL += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	c.logger.Debug("request", "method", method, "path", req.Path, "request_id", requestID)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("request failed", "method", method, "path", req.Path, "request_id", requestID, "err", err)
		return nil, fmt.Errorf("%s %s: %w", method, req.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	c.logger.Debug("response", "method", method, "path", req.Path, "status", resp.StatusCode,
		"request_id", requestID, "duration_ms", time.Since(start).Milliseconds())
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, body: data}, nil
}

// tokenExpired reads the exp claim without verifying the signature; only the
// server can verify. Tokens that are not JWTs, or carry no exp, are left for
// the server to judge.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

func detailOf(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err != nil {
		return ""
	}
	return s
}
