// Package httpclient provides the REST client vigil uses to reach the sensor
// gateway. It wraps resty with rate limiting, transport-level retries for 5xx
// and network failures, trace context propagation, request logging and a mapping
// of HTTP failures onto vigil error categories.
//
// Example usage:
//
//	client, err := httpclient.New(cfg.Poller.Gateway, httpclient.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	var sensors []sensor.Sensor
//	_, err = client.Get(ctx, "/sensors").WithQuery("include", "configuration").IntoJSON(&sensors).Do()
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Combine-Capital/vigil/pkg/config"
	"github.com/Combine-Capital/vigil/pkg/errors"
	"github.com/Combine-Capital/vigil/pkg/logging"
	"github.com/Combine-Capital/vigil/pkg/tracing"
	"golang.org/x/time/rate"
	"resty.dev/v3"
)

// Client is a REST client bound to one base URL.
type Client struct {
	resty   *resty.Client
	config  config.HTTPClientConfig
	limiter *rate.Limiter
	logger  *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger logs each completed request at debug level, failures at warn.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		c.logger = l.WithComponent("httpclient")
	}
}

// New creates a client from cfg.
func New(cfg config.HTTPClientConfig, opts ...Option) (*Client, error) {
	cfg = applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	c := &Client{
		resty:  resty.New(),
		config: cfg,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.BaseURL != "" {
		c.resty.SetBaseURL(cfg.BaseURL)
	}
	c.resty.SetTimeout(cfg.Timeout)
	c.resty.SetHeader("Accept", "application/json")

	if cfg.RetryCount > 0 {
		c.resty.
			SetRetryCount(cfg.RetryCount).
			SetRetryWaitTime(cfg.RetryWaitTime).
			SetRetryMaxWaitTime(cfg.RetryMaxWaitTime).
			AddRetryConditions(func(res *resty.Response, err error) bool {
				if err != nil {
					return !errors.IsCancelled(err)
				}
				code := res.StatusCode()
				return code >= 500 && code != http.StatusNotImplemented
			})
	}

	if cfg.RateLimitPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst)
	}

	c.resty.AddRequestMiddleware(func(_ *resty.Client, req *resty.Request) error {
		tracing.InjectHTTP(req.Context(), req.Header)
		return nil
	})
	c.resty.AddResponseMiddleware(func(_ *resty.Client, resp *resty.Response) error {
		event := c.logger.Debug()
		if resp.StatusCode() >= 400 {
			event = c.logger.Warn()
		}
		event.
			Str("method", resp.Request.Method).
			Str("url", resp.Request.URL).
			Int("status_code", resp.StatusCode()).
			Int64(logging.Duration, resp.Duration().Milliseconds()).
			Msg("gateway request completed")
		return nil
	})

	return c, nil
}

// Get creates a GET request for url, relative to the base URL unless absolute.
func (c *Client) Get(ctx context.Context, url string) *Request {
	return c.newRequest(ctx, http.MethodGet, url)
}

// Post creates a POST request for url.
func (c *Client) Post(ctx context.Context, url string) *Request {
	return c.newRequest(ctx, http.MethodPost, url)
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.resty.Close()
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, url string) *Request {
	return &Request{client: c, resty: c.resty.R(), ctx: ctx, method: method, url: url}
}

func (c *Client) waitRateLimit(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return errors.NewCancelled("rate limit wait", ctx.Err())
		}
		return errors.Wrap(err, "rate limit wait")
	}
	return nil
}

func applyDefaults(cfg config.HTTPClientConfig) config.HTTPClientConfig {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryWaitTime == 0 {
		cfg.RetryWaitTime = time.Second
	}
	if cfg.RetryMaxWaitTime == 0 {
		cfg.RetryMaxWaitTime = 10 * time.Second
	}
	if cfg.RateLimitBurst == 0 && cfg.RateLimitPerSecond > 0 {
		cfg.RateLimitBurst = 1
	}
	return cfg
}

func validateConfig(cfg config.HTTPClientConfig) error {
	if cfg.Timeout < 0 {
		return errors.NewInvalidInput("timeout", fmt.Sprintf("must be positive, got %v", cfg.Timeout))
	}
	if cfg.RetryCount < 0 {
		return errors.NewInvalidInput("retry_count", fmt.Sprintf("must be non-negative, got %d", cfg.RetryCount))
	}
	if cfg.RateLimitPerSecond < 0 {
		return errors.NewInvalidInput("rate_limit_per_second", fmt.Sprintf("must be non-negative, got %f", cfg.RateLimitPerSecond))
	}
	if cfg.RateLimitBurst < 0 {
		return errors.NewInvalidInput("rate_limit_burst", fmt.Sprintf("must be non-negative, got %d", cfg.RateLimitBurst))
	}
	return nil
}
