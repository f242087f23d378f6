// Package upstream implements the resilient HTTP client for the
// text-analysis service. Every call is wrapped in a bounded retry loop:
// rate limits wait out the server's hint, server errors and network
// failures back off exponentially, and everything else fails fast.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker/v2"

	"github.com/compresr-ai/semantic-gateway/internal/config"
	"github.com/compresr-ai/semantic-gateway/internal/metrics"
)

const (
	// maxAttempts bounds the retry loop, counting the initial attempt.
	maxAttempts = 3

	// rateLimitFallback is the wait applied to a 429 that carries no
	// retry-delay hint.
	rateLimitFallback = 5 * time.Second

	backoffInitial = 1 * time.Second
	backoffCap     = 10 * time.Second
)

// Response holds a successful (2xx) upstream response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	breaker    *gobreaker.CircuitBreaker[*Response]
}

type callOptions struct {
	apiKey  string
	timeout time.Duration
}

// CallOption adjusts a single Post call.
type CallOption func(*callOptions)

// WithAPIKey overrides the process-wide credential for one call.
func WithAPIKey(key string) CallOption {
	return func(o *callOptions) {
		if key != "" {
			o.apiKey = key
		}
	}
}

// WithTimeout overrides the per-attempt timeout for one call, still
// subject to the configured cap.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 && d <= config.MaxUpstreamTimeout {
			o.timeout = d
		}
	}
}

func New(cfg config.UpstreamConfig, logger *slog.Logger) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		logger:     logger,
	}

	if cfg.CircuitBreaker {
		c.breaker = gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
			Name:    "analysis-service",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.Requests >= 3 &&
					float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					"name", name, "from", from.String(), "to", to.String())
			},
			IsSuccessful: func(err error) bool {
				if err == nil {
					return true
				}
				// Rate limits and caller cancellation are transient;
				// they must not open the circuit.
				if IsRateLimited(err) {
					return true
				}
				return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
			},
		})
	}

	return c
}

// Post sends body as JSON to path and returns the response on any 2xx.
// Transient failures (429, 500/502/503/504, network errors) are retried
// up to maxAttempts total; anything else is returned to the caller as a
// *StatusError carrying status, body, and headers.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...CallOption) (*Response, error) {
	options := &callOptions{apiKey: c.apiKey, timeout: c.timeout}
	for _, opt := range opts {
		opt(options)
	}

	// Marshal once; every attempt builds a fresh request from these
	// bytes so a retry can never observe a half-consumed body.
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	url := c.baseURL + path

	if c.breaker != nil {
		return c.breaker.Execute(func() (*Response, error) {
			return c.postWithRetry(ctx, url, payload, options)
		})
	}
	return c.postWithRetry(ctx, url, payload, options)
}

func (c *Client) postWithRetry(ctx context.Context, url string, payload []byte, options *callOptions) (*Response, error) {
	var (
		response  *Response
		attempt   int
		nextDelay time.Duration
	)

	// The backoff just replays whatever delay the attempt below chose:
	// the hint from a 429, or the doubling schedule for 5xx and network
	// failures.
	backoff := retry.WithMaxRetries(maxAttempts-1, retry.BackoffFunc(func() (time.Duration, bool) {
		return nextDelay, false
	}))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		resp, err := c.attempt(ctx, url, payload, options)
		if err != nil {
			metrics.UpstreamAttempts.WithLabelValues("network_error").Inc()
			if ctx.Err() != nil {
				// Caller is gone; retrying with the same context
				// would fail immediately.
				return ctx.Err()
			}
			nextDelay = backoffDelay(attempt)
			c.logger.Warn("upstream request failed, retrying",
				"error", err, "attempt", attempt, "delay", nextDelay)
			metrics.UpstreamRetries.WithLabelValues("network").Inc()
			return retry.RetryableError(err)
		}

		if resp.Status >= 200 && resp.Status < 300 {
			metrics.UpstreamAttempts.WithLabelValues("success").Inc()
			if attempt > 1 {
				c.logger.Info("upstream request succeeded after retry",
					"attempts", attempt)
			}
			response = resp
			return nil
		}

		metrics.UpstreamAttempts.WithLabelValues("http_error").Inc()
		serr := &StatusError{Status: resp.Status, Body: resp.Body, Header: resp.Header}

		switch {
		case resp.Status == http.StatusTooManyRequests:
			nextDelay = serr.RetryAfter()
			if nextDelay <= 0 {
				nextDelay = rateLimitFallback
			}
			c.logger.Warn("upstream rate limited, retrying",
				"status", resp.Status, "attempt", attempt, "delay", nextDelay)
			metrics.UpstreamRetries.WithLabelValues("rate_limited").Inc()
			return retry.RetryableError(serr)

		case retryableStatus(resp.Status):
			nextDelay = backoffDelay(attempt)
			c.logger.Warn("upstream server error, retrying",
				"status", resp.Status, "attempt", attempt, "delay", nextDelay)
			metrics.UpstreamRetries.WithLabelValues("server_error").Inc()
			return retry.RetryableError(serr)

		default:
			c.logger.Error("upstream returned non-retryable status",
				"status", resp.Status, "attempt", attempt)
			return serr
		}
	})
	if err != nil {
		c.logger.Error("upstream request failed",
			"url", url, "attempts", attempt, "error", err)
		return nil, err
	}

	return response, nil
}

func (c *Client) attempt(ctx context.Context, url string, payload []byte, options *callOptions) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, options.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", options.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   data,
	}, nil
}

// backoffDelay implements the doubling schedule: 1s after the first
// failed attempt, 2s after the second, capped at 10s.
func backoffDelay(attempt int) time.Duration {
	d := backoffInitial << (attempt - 1)
	if d > backoffCap {
		d = backoffCap
	}
	return d
}
