// Package client provides the core authenticated, rate-limited request
// pipeline. It composes the token manager and the scheduler: every
// request is decorated with a bearer token and user-agent, enqueued for
// strictly serial execution, and the upstream's rate-limit headers feed
// back into the scheduler after every completed call.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cedricgc/firehose/pkg/auth"
	"github.com/cedricgc/firehose/pkg/queue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Upstream rate-limit headers. Remaining may carry a fractional value.
const (
	HeaderRatelimitRemaining = "X-Ratelimit-Remaining"
	HeaderRatelimitReset     = "X-Ratelimit-Reset"
)

// Prometheus metrics for pipeline operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firehose_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "firehose_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firehose_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// RequestSpec describes one upstream request. Path is relative to the
// configured base URL.
type RequestSpec struct {
	Method string
	Path   string
	Query  url.Values
}

// Handler receives the outcome of a scheduled request. Exactly one of
// err or resp/body is meaningful: on transport failure resp is nil and
// body empty. The response body has already been read and closed.
type Handler func(err error, resp *http.Response, body []byte)

// ListingHandler receives sorted listing children, or nil when the
// request failed, returned a non-success status, or the body did not
// parse as a listing. Absence of results is not an error.
type ListingHandler func(children []Thing)

// Config holds the pipeline configuration.
type Config struct {
	// BaseURL of the authenticated API (e.g. "https://oauth.reddit.com").
	BaseURL string

	// UserAgent header (REQUIRED by the upstream).
	UserAgent string

	// Timeout per HTTP call.
	Timeout time.Duration
}

// Client is the request pipeline. The token manager and scheduler are
// injected so their state stays owned by explicit instances rather than
// process-wide singletons.
type Client struct {
	httpClient *http.Client
	tokens     *auth.Manager
	scheduler  *queue.Scheduler
	config     Config
	logger     zerolog.Logger
}

// New creates a request pipeline. A missing user-agent is a
// configuration error and fails construction immediately.
func New(tokens *auth.Manager, scheduler *queue.Scheduler, cfg Config) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token manager is required")
	}

	if scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		tokens:    tokens,
		scheduler: scheduler,
		config:    cfg,
		logger:    log.With().Str("component", "pipeline").Logger(),
	}, nil
}

// Request enqueues one authenticated request. The token is obtained
// before enqueueing; if none is available the handler fires immediately
// with the error and no network call is scheduled. The queued task
// always feeds rate-limit headers back into the scheduler and always
// reaches its completion handle, even when the transport call fails or
// the handler panics.
func (c *Client) Request(ctx context.Context, spec RequestSpec, handler Handler) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("endpoint", spec.Path).
			Msg("No token available - request not enqueued")
		c.invoke(handler, fmt.Errorf("no access token: %w", err), nil, nil)
		return
	}

	req, err := c.buildRequest(ctx, spec, token)
	if err != nil {
		c.invoke(handler, err, nil, nil)
		return
	}

	c.scheduler.Push(func(done func()) {
		defer done()
		c.perform(req, spec.Path, handler)
	})
}

// buildRequest assembles the decorated HTTP request.
func (c *Client) buildRequest(ctx context.Context, spec RequestSpec, token string) (*http.Request, error) {
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	fullURL := strings.TrimRight(c.config.BaseURL, "/") + spec.Path
	if len(spec.Query) > 0 {
		fullURL += "?" + spec.Query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	return req, nil
}

// perform executes the HTTP call inside a scheduling slot.
func (c *Client) perform(req *http.Request, endpoint string, handler Handler) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.invoke(handler, &APIError{
			ErrorClass: ErrorClassNetwork,
			Message:    "transport failure",
			Err:        err,
		}, nil, nil)
		return
	}
	defer resp.Body.Close()

	// Rate-limit feedback happens on every completed request so
	// throttling tracks the server's live allowance.
	c.updateRate(resp.Header)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Read response body failed")
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		c.invoke(handler, err, resp, nil)
		return
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Upstream request error")
	}

	c.invoke(handler, nil, resp, body)
}

// invoke calls the caller-supplied handler with panic isolation. A
// misbehaving handler is logged and swallowed so it can never break the
// scheduler's liveness.
func (c *Client) invoke(handler Handler, err error, resp *http.Response, body []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Interface("panic", r).
				Msg("Handler panicked")
		}
	}()
	handler(err, resp, body)
}

// updateRate parses the rate-limit headers and feeds the scheduler. A
// missing or malformed remaining header skips the update silently; a
// missing reset window falls back to the one-per-second default.
func (c *Client) updateRate(headers http.Header) {
	remainStr := headers.Get(HeaderRatelimitRemaining)
	if remainStr == "" {
		return
	}

	remaining, err := strconv.ParseFloat(remainStr, 64)
	if err != nil {
		c.logger.Debug().
			Str("remaining", remainStr).
			Msg("Unparsable rate-limit remaining header - keeping previous rate")
		return
	}

	resetSeconds := 0
	if resetStr := headers.Get(HeaderRatelimitReset); resetStr != "" {
		if v, err := strconv.Atoi(resetStr); err == nil {
			resetSeconds = v
		}
	}

	c.scheduler.SetRate(remaining, resetSeconds)
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
