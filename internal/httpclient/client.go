// Package httpclient issues authenticated JSON requests against the commerce
// backend with rate limiting, a fixed per-call timeout and uniform errors.
package httpclient

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
	"strconv"
	"strings"
	"time"

	"github.com/data-power-io/commerce-export/libs/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrMissingBaseURL is returned when the client is built without a base URL.
var ErrMissingBaseURL = errors.New("commerce base URL is required")

// Config configures the HTTP client behavior.
type Config struct {
	// BaseURL is prefixed to every request path.
	BaseURL string

	// Timeout for individual requests (default: 30s).
	Timeout time.Duration

	// RateLimit requests per second (default: 10). Negative disables limiting.
	RateLimit float64

	// RateBurst maximum burst size (default: 5).
	RateBurst int

	// Headers to add to all requests.
	Headers map[string]string

	// UserAgent string (default: "commerce-export/1.0").
	UserAgent string

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper

	Logger  *zap.Logger
	Metrics *metrics.ExportMetrics
}

// Client is a rate-limited JSON HTTP client. It does not retry; callers wrap
// calls in batch.Retry with IsRetryable.
type Client struct {
	baseURL     string
	headers     map[string]string
	userAgent   string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *zap.Logger
	metrics     *metrics.ExportMetrics
}

// New creates a client. It fails fast on configuration errors.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, ErrMissingBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid commerce base URL: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10.0
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 5
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "commerce-export/1.0"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	return &Client{
		baseURL:     strings.TrimSuffix(base, "/"),
		headers:     cfg.Headers,
		userAgent:   cfg.UserAgent,
		httpClient:  &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		rateLimiter: limiter,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}, nil
}

// Request represents an HTTP request to be made.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Token   string
	Headers map[string]string
	Body    []byte
}

// Response wraps an HTTP response with convenience methods.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals the response body into the given target.
func (r *Response) JSON(target any) error {
	if err := json.Unmarshal(r.Body, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// URL builds the absolute URL for a path and query.
func (c *Client) URL(path string, query url.Values) string {
	full := c.baseURL
	if path != "" {
		full += "/" + strings.TrimPrefix(path, "/")
	}
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	return full
}

// Do executes a single request attempt.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	fullURL := c.URL(req.Path, req.Query)
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	endpoint := endpointLabel(req.Path)
	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.RecordAPICall(endpoint, "error", time.Since(start))
		return nil, &TransportError{URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.metrics.RecordAPICall(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))
	if err != nil {
		return nil, &TransportError{URL: fullURL, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Debug("Commerce API call",
		zap.String("method", req.Method),
		zap.String("url", fullURL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	response := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}

	if resp.StatusCode >= 400 {
		return response, &HTTPError{
			StatusCode: resp.StatusCode,
			URL:        fullURL,
			Message:    truncate(string(data), 512),
		}
	}

	return response, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values, token string) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  query,
		Token:  token,
	})
}

// GetJSON performs a GET request and decodes the body into target.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, token string, target any) error {
	resp, err := c.Get(ctx, path, query, token)
	if err != nil {
		return err
	}
	return resp.JSON(target)
}

// Post performs a POST request with JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, token string) (*Response, error) {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
	}

	return c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   path,
		Token:  token,
		Body:   data,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	})
}

// PostForm performs a POST request with a form-encoded body.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   []byte(form.Encode()),
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		},
	})
}

// endpointLabel keeps metric cardinality bounded: "categories/42" -> "categories".
func endpointLabel(path string) string {
	p := strings.Trim(path, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		rest := p[i+1:]
		head := p[:i]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			rest = rest[:j]
		}
		if _, err := strconv.Atoi(rest); err == nil {
			return head
		}
		return head + "/" + rest
	}
	return p
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// isTimeout reports network timeouts, which count as retryable failures.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
