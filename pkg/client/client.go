// Package client provides the resilient HTTP transport used for every
// network fetch of an export: one logical fetch, retried with exponential
// backoff and jitter on rate limiting and transient server failures.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/archive-exporter/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exporter_requests_total",
		Help: "Total HTTP requests sent by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "exporter_request_duration_seconds",
		Help:    "Duration of a single HTTP attempt in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exporter_errors_total",
		Help: "Total failed HTTP attempts by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exporter_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "exporter_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exporter_retry_exhausted_total",
		Help: "Total number of times the retry budget was exhausted by error class",
	}, []string{"error_class"})
)

// ErrorClass represents a classification of a failed attempt.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Config holds the client configuration.
type Config struct {
	// UserAgent is sent with every request.
	UserAgent string

	// MaxRetries is the retry budget per logical fetch. Total attempts are
	// at most MaxRetries+1.
	MaxRetries int

	// BackoffBase is the wait before the first retry; it doubles per attempt.
	BackoffBase time.Duration

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// RequestInterval spaces consecutive requests across all callers.
	// Zero disables pacing.
	RequestInterval time.Duration

	// Transport overrides the HTTP transport (tests, proxies).
	Transport http.RoundTripper

	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent:   userAgent,
		MaxRetries:  5,
		BackoffBase: 500 * time.Millisecond,
		Timeout:     30 * time.Second,
	}
}

// Client performs fetches with the retry policy.
type Client struct {
	httpClient *http.Client
	pacer      *ratelimit.Pacer
	config     Config
	logger     zerolog.Logger

	jitter func(time.Duration) time.Duration
	sleep  func(context.Context, time.Duration) error
	now    func() time.Time
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.BackoffBase <= 0 {
		return nil, fmt.Errorf("backoff_base must be > 0 (got %s)", cfg.BackoffBase)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "transport").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		pacer:  ratelimit.NewPacer("requests", cfg.RequestInterval, 1, logger),
		config: cfg,
		logger: logger,
		jitter: Jitter,
		sleep:  sleepContext,
		now:    time.Now,
	}, nil
}

// Do performs one logical fetch. A 2xx response is returned to the caller,
// who must close its body. Retryable failures (429, 500, 502, 503, 504 and
// network errors) are retried up to MaxRetries times; everything else fails
// with a *TransportError at once.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	target := req.URL.String()

	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "*/*")
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	for attempt := 0; ; attempt++ {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, &TransportError{URL: target, Attempts: attempt, Class: ErrorClassNetwork, Err: ErrContextCancelled, Cause: err}
		}

		resp, errClass, err := c.attempt(ctx, req, attempt)
		if err == nil && errClass == "" {
			if attempt > 0 {
				c.logger.Info().
					Str("url", target).
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return resp, nil
		}

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}

		if err != nil && ctx.Err() != nil {
			return nil, &TransportError{URL: target, Attempts: attempt + 1, Class: errClass, Err: ErrContextCancelled, Cause: err}
		}

		if !shouldRetry(errClass) {
			closeBody(resp)
			return nil, &TransportError{URL: target, StatusCode: status, Attempts: attempt + 1, Class: errClass, Err: ErrTerminalStatus}
		}

		if attempt >= c.config.MaxRetries {
			closeBody(resp)
			retryExhaustedTotal.WithLabelValues(string(errClass)).Inc()
			c.logger.Warn().
				Str("url", target).
				Int("status", status).
				Str("error_class", string(errClass)).
				Int("max_retries", c.config.MaxRetries).
				Msg("Retry attempts exhausted")
			return nil, &TransportError{URL: target, StatusCode: status, Attempts: attempt + 1, Class: errClass, Err: ErrRetryExhausted, Cause: err}
		}

		wait, retryAfter := c.backoffFor(resp, attempt)
		closeBody(resp)

		retriesTotal.WithLabelValues(string(errClass)).Inc()
		retryBackoffSeconds.WithLabelValues(string(errClass)).Observe(wait.Seconds())

		event := c.logger.Warn().
			Str("url", target).
			Int("status", status).
			Str("error_class", string(errClass)).
			Int("attempt", attempt+1).
			Int("max_retries", c.config.MaxRetries).
			Dur("backoff", wait)
		if retryAfter > 0 {
			event = event.Dur("retry_after", retryAfter)
		}
		event.Msg("Retrying request after backoff")

		if err := c.sleep(ctx, wait); err != nil {
			return nil, &TransportError{URL: target, StatusCode: status, Attempts: attempt + 1, Class: errClass, Err: ErrContextCancelled, Cause: err}
		}
	}
}

// attempt sends the request once. errClass is empty on a 2xx response.
func (c *Client) attempt(ctx context.Context, req *http.Request, attempt int) (*http.Response, ErrorClass, error) {
	attemptReq := req.Clone(ctx)
	if attempt > 0 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, ErrorClassClient, fmt.Errorf("rewind request body: %w", err)
		}
		attemptReq.Body = body
	}

	start := time.Now()
	resp, err := c.httpClient.Do(attemptReq)
	requestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		errClass := c.classifyError(nil, err)
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Debug().Err(err).Str("url", req.URL.String()).Msg("HTTP request failed")
		return nil, errClass, err
	}

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	errClass := c.classifyError(resp, nil)
	if errClass != "" {
		errorsTotal.WithLabelValues(string(errClass)).Inc()
	}
	return resp, errClass, nil
}

// classifyError categorizes a failed attempt for retry decisions and metrics.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return ""
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case IsRetryableStatus(resp.StatusCode):
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// Fetch performs a GET and returns the full response body.
func (c *Client) Fetch(ctx context.Context, url string, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", url, err)
	}
	return body, nil
}

// MaxRetries returns the configured retry budget.
func (c *Client) MaxRetries() int {
	return c.config.MaxRetries
}

func closeBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
