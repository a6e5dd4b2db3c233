// Package apiclient talks to the remote forms API: bearer credentials with
// transparent refresh, retry of idempotent reads, a circuit breaker and
// error normalization into model.ErrorEnvelope.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xaviermatuz/formdesk/internal/config"
	"github.com/xaviermatuz/formdesk/internal/observability"
	"github.com/xaviermatuz/formdesk/model"
)

const maxResponseBytes = 10 << 20

// Client is shared by every session. Credentials are supplied per call
// through a CredentialStore.
type Client struct {
	base    *url.URL
	cfg     config.APIConfig
	http    *http.Client
	breaker *Breaker
	refresh singleflight.Group
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records request, retry, refresh and breaker metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for cfg.BaseURL.
func New(cfg config.APIConfig, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("apiclient: invalid base url %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		base: base,
		cfg:  cfg,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = NewBreaker(cfg.CircuitBreaker, func(s BreakerState) {
		c.metrics.SetAPICircuitBreakerState(float64(s))
		c.logger.Warn("apiclient: circuit breaker state changed", zap.Stringer("state", s))
	})
	return c, nil
}

// Breaker exposes the circuit breaker for diagnostics.
func (c *Client) Breaker() *Breaker { return c.breaker }

// HealthCheck fails while the circuit breaker is open.
func (c *Client) HealthCheck(context.Context) error {
	if c.breaker.State() == BreakerOpen {
		return ErrCircuitOpen
	}
	return nil
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Login exchanges a username or email and password for credentials.
func (c *Client) Login(ctx context.Context, identifier, password string) (Credentials, Identity, error) {
	field := "username"
	if emailPattern.MatchString(identifier) {
		field = "email"
	}
	body := map[string]string{field: identifier, "password": password}

	var out struct {
		Credentials
		Detail string `json:"detail"`
	}
	status, err := c.post(ctx, c.cfg.TokenPath, body, &out)
	if err != nil {
		return Credentials{}, Identity{}, err
	}
	if status == http.StatusUnauthorized || out.Access == "" {
		msg := out.Detail
		if msg == "" {
			msg = "Login failed"
		}
		return Credentials{}, Identity{}, model.NewUnauthorizedError(msg)
	}
	creds := out.Credentials

	id, err := DecodeClaims(creds.Access)
	if err != nil {
		return Credentials{}, Identity{}, model.NewUnauthorizedError("Login failed")
	}
	c.logger.Info("apiclient: login", zap.String("user_id", id.UserID), zap.Strings("roles", id.Roles))
	return creds, id, nil
}

// GetJSON fetches path with the query and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, store CredentialStore, path string, query url.Values, out any) error {
	return c.do(ctx, store, http.MethodGet, path, query, nil, out)
}

// Patch sends body as JSON and decodes the response into out when non-nil.
func (c *Client) Patch(ctx context.Context, store CredentialStore, path string, body, out any) error {
	return c.do(ctx, store, http.MethodPatch, path, nil, body, out)
}

// Post creates under path and decodes the response into out when non-nil.
// It is never retried.
func (c *Client) Post(ctx context.Context, store CredentialStore, path string, body, out any) error {
	return c.do(ctx, store, http.MethodPost, path, nil, body, out)
}

// Delete removes the resource at path.
func (c *Client) Delete(ctx context.Context, store CredentialStore, path string) error {
	return c.do(ctx, store, http.MethodDelete, path, nil, nil, nil)
}

// Refresh exchanges the stored refresh token for a new access token and
// saves it. Concurrent refreshes of the same token share one exchange.
func (c *Client) Refresh(ctx context.Context, store CredentialStore) (string, error) {
	creds, err := store.Credentials(ctx)
	if err != nil {
		return "", fmt.Errorf("apiclient: loading credentials: %w", err)
	}
	if creds.Refresh == "" {
		return "", model.NewUnauthorizedError("No refresh token available")
	}

	v, err, shared := c.refresh.Do(creds.Refresh, func() (any, error) {
		ctx, span := observability.StartSpan(ctx, "apiclient.refresh")
		var out struct {
			Access string `json:"access"`
			Detail string `json:"detail"`
		}
		status, err := c.post(ctx, c.cfg.RefreshPath, map[string]string{"refresh": creds.Refresh}, &out)
		if err == nil && (status >= 300 || out.Access == "") {
			msg := out.Detail
			if msg == "" {
				msg = "Session expired"
			}
			err = model.NewUnauthorizedError(msg)
		}
		observability.EndSpan(span, err)
		if err != nil {
			c.metrics.RecordTokenRefresh("failure")
			return "", err
		}
		c.metrics.RecordTokenRefresh("success")
		return out.Access, nil
	})
	if err != nil {
		c.logger.Warn("apiclient: token refresh failed", zap.Error(err))
		return "", err
	}

	access := v.(string)
	if err := store.SaveAccess(ctx, access); err != nil {
		return "", fmt.Errorf("apiclient: saving access token: %w", err)
	}
	if shared {
		c.logger.Debug("apiclient: shared token refresh")
	}
	return access, nil
}

// do runs an authorized call: refresh an expiring token first, retry
// idempotent calls on 5xx, and refresh then retry once on 401.
func (c *Client) do(ctx context.Context, store CredentialStore, method, path string, query url.Values, body, out any) error {
	creds, err := store.Credentials(ctx)
	if err != nil {
		return fmt.Errorf("apiclient: loading credentials: %w", err)
	}

	token := creds.Access
	refreshed := false
	if token == "" || Expired(token, c.now(), c.cfg.RefreshLeeway) {
		if token, err = c.Refresh(ctx, store); err != nil {
			return err
		}
		refreshed = true
	}

	var payload []byte
	if body != nil {
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("apiclient: encoding body: %w", err)
		}
	}
	reqURL := c.resolve(path, query)

	resp, err := c.executeWithRetry(ctx, method, reqURL, token, payload)
	if err != nil {
		return err
	}
	if resp.status == http.StatusUnauthorized && !refreshed && creds.Refresh != "" {
		c.logger.Debug("apiclient: access token rejected, refreshing", zap.String("path", path))
		if token, err = c.Refresh(ctx, store); err != nil {
			return err
		}
		if resp, err = c.executeWithRetry(ctx, method, reqURL, token, payload); err != nil {
			return err
		}
	}

	if resp.status < 200 || resp.status >= 300 {
		return NormalizeError(resp.status, resp.body)
	}
	if out != nil && len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, out); err != nil {
			return fmt.Errorf("apiclient: decoding %s %s: %w", method, path, err)
		}
	}
	return nil
}

// post sends an unauthenticated JSON request and decodes any JSON answer
// into out. Non-2xx answers other than 401 are normalized errors.
func (c *Client) post(ctx context.Context, path string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("apiclient: encoding body: %w", err)
	}
	resp, err := c.executeOnce(ctx, http.MethodPost, c.resolve(path, nil), "", payload)
	if err != nil {
		return 0, err
	}
	if len(resp.body) > 0 {
		_ = json.Unmarshal(resp.body, out)
	}
	if resp.status >= 300 && resp.status != http.StatusUnauthorized {
		return resp.status, NormalizeError(resp.status, resp.body)
	}
	return resp.status, nil
}

type response struct {
	status int
	body   []byte
}

func (c *Client) executeWithRetry(ctx context.Context, method, reqURL, token string, payload []byte) (response, error) {
	attempts := 1
	if isIdempotent(method) && c.cfg.Retry.MaxAttempts > 1 {
		attempts = c.cfg.Retry.MaxAttempts
	}

	var (
		resp response
		err  error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			c.metrics.RecordAPIRetry()
			select {
			case <-ctx.Done():
				return response{}, model.NewBackendTimeoutError()
			case <-time.After(calculateBackoff(c.cfg.Retry, attempt-1)):
			}
		}

		resp, err = c.executeOnce(ctx, method, reqURL, token, payload)
		switch {
		case err != nil && !retryable(err):
			return response{}, err
		case err != nil:
			c.logger.Debug("apiclient: retrying after error", zap.Int("attempt", attempt), zap.Error(err))
		case isRetryableStatus(resp.status) && attempt < attempts:
			c.logger.Debug("apiclient: retrying after status", zap.Int("attempt", attempt), zap.Int("status", resp.status))
		default:
			return resp, nil
		}
	}
	if err != nil {
		return response{}, err
	}
	return resp, nil
}

func (c *Client) executeOnce(ctx context.Context, method, reqURL, token string, payload []byte) (response, error) {
	if err := c.breaker.Allow(); err != nil {
		return response{}, model.NewBackendUnavailableError()
	}

	resource := resourceLabel(reqURL, c.base.Path)
	ctx, span := observability.StartSpan(ctx, "apiclient.request",
		observability.AttrResource.String(resource),
	)
	start := time.Now()

	resp, err := c.send(ctx, method, reqURL, token, payload)
	status := resp.status
	c.metrics.RecordAPIRequest(method, resource, status, time.Since(start))
	observability.EndSpan(span, err)

	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		// The caller went away; the API did not fail.
	case err != nil:
		c.breaker.Failure()
	case status >= 500:
		c.breaker.Failure()
	default:
		c.breaker.Success()
	}
	return resp, err
}

func (c *Client) send(ctx context.Context, method, reqURL, token string, payload []byte) (response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return response{}, fmt.Errorf("apiclient: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if rctx := model.RequestContextFrom(ctx); rctx != nil && rctx.CorrelationID != "" {
		req.Header.Set("X-Correlation-Id", rctx.CorrelationID)
	}
	observability.InjectTraceHeaders(ctx, req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return response{}, model.NewBackendTimeoutError()
		}
		c.logger.Error("apiclient: request failed", zap.String("method", method), zap.String("url", reqURL), zap.Error(err))
		return response{}, model.NewNetworkError()
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return response{status: resp.StatusCode}, model.NewNetworkError()
	}
	if resp.StatusCode >= 400 {
		c.logger.Warn("apiclient: error response", zap.String("method", method), zap.String("url", reqURL), zap.Int("status", resp.StatusCode))
	}
	return response{status: resp.StatusCode, body: data}, nil
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.base
	// path arrives escaped: ids and scopes are PathEscaped by the caller.
	p := c.base.Path + "/" + strings.TrimLeft(path, "/")
	if unescaped, err := url.PathUnescape(p); err == nil {
		u.Path, u.RawPath = unescaped, p
	} else {
		u.Path = p
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// resourceLabel keeps metric cardinality bounded: the first path segment
// after the base path.
func resourceLabel(reqURL, basePath string) string {
	u, err := url.Parse(reqURL)
	if err != nil {
		return "unknown"
	}
	p := strings.Trim(strings.TrimPrefix(u.Path, basePath), "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "root"
	}
	return p
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryable reports whether a transport error may succeed on another
// attempt. An open breaker and an expired context never do.
func retryable(err error) bool {
	return model.CodeOf(err) == model.ErrNetworkError
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func calculateBackoff(cfg config.RetryConfig, retry int) time.Duration {
	delay := cfg.BackoffInitial
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	mult := cfg.BackoffMultiplier
	if mult <= 0 {
		mult = 2
	}
	ceiling := cfg.BackoffMax
	if ceiling <= 0 {
		ceiling = 2 * time.Second
	}
	for i := 1; i < retry; i++ {
		delay = time.Duration(float64(delay) * mult)
		if delay >= ceiling {
			return ceiling
		}
	}
	return delay
}
