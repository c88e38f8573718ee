// Package clients provides the HTTP client used by webhook connectors and
// the webhook notifier.
package clients

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	jsonpool "github.com/ajitpratap0/nebulaflow/pkg/json"
)

// maxErrorBody bounds how much of a failed response body is kept in errors.
const maxErrorBody = 512

// HTTPClient is an HTTP client with rate limiting, an optional circuit
// breaker and optional OAuth2 client-credentials authentication.
type HTTPClient struct {
	config         *HTTPConfig
	logger         *zap.Logger
	httpClient     *http.Client
	transport      *http.Transport
	limiter        *rate.Limiter
	circuitBreaker *CircuitBreaker

	totalRequests  int64
	failedRequests int64
}

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	// Connection settings
	MaxIdleConns        int           `json:"max_idle_conns"`
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout"`
	EnableHTTP2         bool          `json:"enable_http2"`

	// Timeouts
	DialTimeout           time.Duration `json:"dial_timeout"`
	TLSHandshakeTimeout   time.Duration `json:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `json:"response_header_timeout"`
	RequestTimeout        time.Duration `json:"request_timeout"`

	// Rate limiting, in requests per second. Zero disables it.
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`

	// Circuit breaker
	CircuitBreakerEnabled bool          `json:"circuit_breaker_enabled"`
	FailureThreshold      int           `json:"failure_threshold"`
	SuccessThreshold      int           `json:"success_threshold"`
	Timeout               time.Duration `json:"timeout"`

	// OAuth2 client credentials. Enabled when TokenURL is set.
	OAuth2 *OAuth2Config `json:"oauth2,omitempty"`

	UserAgent string `json:"user_agent"`
}

// OAuth2Config configures the client-credentials grant.
type OAuth2Config struct {
	TokenURL     string   `json:"token_url"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes,omitempty"`
}

// DefaultHTTPConfig returns default configuration
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		EnableHTTP2:           true,
		DialTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		RequestTimeout:        60 * time.Second,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      2,
		Timeout:               30 * time.Second,
		UserAgent:             "nebulaflow/1.0",
	}
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(config *HTTPConfig, logger *zap.Logger) *HTTPClient {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &HTTPClient{
		config: config,
		logger: logger.With(zap.String("component", "http_client")),
	}

	client.transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(client.transport); err != nil {
			client.logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	var rt http.RoundTripper = client.transport
	base := &http.Client{Transport: rt, Timeout: config.RequestTimeout}

	if config.OAuth2 != nil && config.OAuth2.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     config.OAuth2.ClientID,
			ClientSecret: config.OAuth2.ClientSecret,
			TokenURL:     config.OAuth2.TokenURL,
			Scopes:       config.OAuth2.Scopes,
		}
		// The token source fetches tokens with the same transport.
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		rt = &oauth2.Transport{Source: cc.TokenSource(tokenCtx), Base: client.transport}
	}

	client.httpClient = &http.Client{
		Transport: rt,
		Timeout:   config.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	if config.CircuitBreakerEnabled {
		client.circuitBreaker = NewCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: config.FailureThreshold,
			SuccessThreshold: config.SuccessThreshold,
			Timeout:          config.Timeout,
		}, client.logger)
	}

	return client
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Do performs an HTTP request after rate limiting and circuit breaker checks.
// Server errors count as circuit breaker failures.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			atomic.AddInt64(&c.failedRequests, 1)
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		atomic.AddInt64(&c.failedRequests, 1)
		return nil, ErrCircuitOpen
	}

	atomic.AddInt64(&c.totalRequests, 1)
	if req.Header.Get("User-Agent") == "" && c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil || resp.StatusCode >= 500 {
		atomic.AddInt64(&c.failedRequests, 1)
		if c.circuitBreaker != nil {
			c.circuitBreaker.RecordFailure()
		}
		return resp, err
	}

	if c.circuitBreaker != nil {
		c.circuitBreaker.RecordSuccess()
	}
	return resp, nil
}

// GetJSON performs a GET and returns the response body of a 2xx response.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, url, nil, headers)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// SendJSON encodes payload and sends it with method, draining the response.
func (c *HTTPClient) SendJSON(ctx context.Context, method, url string, payload interface{}, headers map[string]string) error {
	data, err := jsonpool.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return c.SendRaw(ctx, method, url, data, headers)
}

// SendRaw sends an already encoded JSON body.
func (c *HTTPClient) SendRaw(ctx context.Context, method, url string, body []byte, headers map[string]string) error {
	req, err := c.newRequest(ctx, method, url, bytes.NewReader(body), headers)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return err
	}
	if err := checkStatus(resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// Ping issues a HEAD request, falling back to GET when HEAD is not allowed.
// Any response below 500 counts as reachable.
func (c *HTTPClient) Ping(ctx context.Context, url string, headers map[string]string) error {
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		req, err := c.newRequest(ctx, method, url, nil, headers)
		if err != nil {
			return err
		}
		resp, err := c.Do(req)
		if resp != nil {
			resp.Body.Close()
		}
		if err != nil && resp == nil {
			return err
		}
		if resp.StatusCode == http.StatusMethodNotAllowed {
			continue
		}
		if resp.StatusCode >= 500 {
			return &StatusError{StatusCode: resp.StatusCode}
		}
		return nil
	}
	return &StatusError{StatusCode: http.StatusMethodNotAllowed}
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
}

func (c *HTTPClient) newRequest(ctx context.Context, method, url string, body io.Reader, headers map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// GetStats returns request counters
func (c *HTTPClient) GetStats() HTTPStats {
	total := atomic.LoadInt64(&c.totalRequests)
	failed := atomic.LoadInt64(&c.failedRequests)
	stats := HTTPStats{TotalRequests: total, FailedRequests: failed}
	if total > 0 {
		stats.SuccessRate = float64(total-failed) / float64(total) * 100
	}
	if c.circuitBreaker != nil {
		stats.CircuitState = c.circuitBreaker.State().String()
	}
	return stats
}

// Close releases idle connections
func (c *HTTPClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

// HTTPStats represents HTTP client statistics
type HTTPStats struct {
	TotalRequests  int64   `json:"total_requests"`
	FailedRequests int64   `json:"failed_requests"`
	SuccessRate    float64 `json:"success_rate"`
	CircuitState   string  `json:"circuit_state,omitempty"`
}
