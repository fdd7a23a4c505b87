package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/vitawell/companion/internal/infrastructure/resilience"
	"github.com/vitawell/companion/internal/shared/errs"
)

// Config tunes the backend client.
type Config struct {
	// BaseURL is the wellness AI backend root, e.g. http://ai:8000/api.
	BaseURL string
	// AuthToken is attached as a bearer credential when set.
	AuthToken string
	// Timeout bounds single-shot calls.
	Timeout time.Duration
	// StreamTimeout bounds a whole streamed exchange.
	StreamTimeout time.Duration
	// MaxRetries applies to single-shot calls only; streams are never
	// retried, a duplicated exchange is worse than a failed one.
	// Negative disables retries, zero means the default of 3.
	MaxRetries int
	// RequestsPerSecond rate-limits outbound calls; 0 means unlimited.
	RequestsPerSecond float64
}

func (c *Config) withDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.StreamTimeout == 0 {
		c.StreamTimeout = 2 * time.Minute
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Client is the one gateway to the wellness AI backend. It owns auth,
// retries, rate limiting, the circuit breaker, and the translation of
// raw failures into the closed error taxonomy.
type Client struct {
	api     *resty.Client
	streams *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// New creates a backend client.
func New(cfg Config) *Client {
	cfg.withDefaults()

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil

	api := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "companion/1.0").
		SetTransport(retryClient.HTTPClient.Transport)
	if cfg.MaxRetries > 0 {
		api.SetRetryCount(cfg.MaxRetries).
			SetRetryWaitTime(retryClient.RetryWaitMin).
			SetRetryMaxWaitTime(retryClient.RetryWaitMax)
	}

	// Separate client for streams: no retry transport, longer budget.
	streams := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.StreamTimeout).
		SetHeader("User-Agent", "companion/1.0")

	if cfg.AuthToken != "" {
		api.SetAuthToken(cfg.AuthToken)
		streams.SetAuthToken(cfg.AuthToken)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}

	breaker := resilience.New("ai-backend", resilience.Settings{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		Probes:           2,
	})

	return &Client{
		api:     api,
		streams: streams,
		limiter: limiter,
		breaker: breaker,
	}
}

// BreakerState exposes the circuit position for health reporting.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// Send posts payload as JSON and returns the raw response body.
func (c *Client) Send(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	if err := c.admit(ctx); err != nil {
		return nil, err
	}
	report, err := c.breaker.Allow()
	if err != nil {
		return nil, errs.Wrap(errs.KindNetwork, err, "backend unavailable")
	}

	resp, err := c.api.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(endpoint)
	if err != nil {
		report(false)
		return nil, classify(err, fmt.Sprintf("POST %s", endpoint))
	}
	if resp.IsError() {
		// Only backend-side failures count against the circuit.
		report(resp.StatusCode() < 500)
		return nil, errs.Server(resp.StatusCode(), snippet(resp.Body()))
	}

	report(true)
	return resp.Body(), nil
}

// SendInto posts payload and decodes the JSON response into out.
func (c *Client) SendInto(ctx context.Context, endpoint string, payload, out any) error {
	body, err := c.Send(ctx, endpoint, payload)
	if err != nil {
		return err
	}
	if err := sonic.Unmarshal(body, out); err != nil {
		return errs.Wrap(errs.KindProtocol, err, fmt.Sprintf("undecodable response from %s", endpoint))
	}
	return nil
}

// admit applies the outbound rate limit.
func (c *Client) admit(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return classify(err, "rate limit wait")
	}
	return nil
}

// classify maps raw transport failures into the taxonomy.
func classify(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return errs.Wrap(errs.KindCancelled, err, msg)
	case errors.Is(err, context.DeadlineExceeded):
		return errs.Wrap(errs.KindNetwork, err, msg+" timed out")
	default:
		return errs.Wrap(errs.KindNetwork, err, msg)
	}
}

// snippet truncates an error body for messages.
func snippet(body []byte) string {
	const max = 256
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
