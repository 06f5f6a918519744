package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/moonwatch/signalrun/internal/ratelimit"
)

const defaultTimeout = 10 * time.Second

// HTTPDoer lets tests substitute the transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the shared per-provider HTTP client: token bucket in front,
// circuit breaker around the call, hard timeout on every request.
type Client struct {
	name    string
	doer    HTTPDoer
	breaker *gobreaker.CircuitBreaker
	limits  *ratelimit.Manager
	timeout time.Duration
	headers map[string]string
}

// ClientOption mutates a Client during construction.
type ClientOption func(*Client)

// WithTimeout overrides the default 10s per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithHeaders sets headers added to every request (API keys).
func WithHeaders(h map[string]string) ClientOption {
	return func(c *Client) { c.headers = h }
}

// WithDoer substitutes the HTTP transport, used by tests.
func WithDoer(d HTTPDoer) ClientOption {
	return func(c *Client) { c.doer = d }
}

// NewClient builds a provider-scoped client. The breaker trips after five
// consecutive failures and probes again after 30 seconds.
func NewClient(name string, limits *ratelimit.Manager, opts ...ClientOption) *Client {
	c := &Client{
		name:    name,
		doer:    &http.Client{Timeout: defaultTimeout},
		limits:  limits,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("provider", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("provider circuit breaker state change")
		},
	})
	return c
}

// BreakerState exposes the breaker state for /status.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// GetJSON performs a rate-limited, breaker-guarded GET and decodes the JSON
// body into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	if !c.limits.Allow(c.name) {
		return fmt.Errorf("%s: %w", c.name, ErrRateLimited)
	}
	return c.roundTrip(ctx, http.MethodGet, url, nil, out)
}

// PostJSON performs a rate-limited, breaker-guarded POST with a JSON body.
// Used by the on-chain JSON-RPC adapter.
func (c *Client) PostJSON(ctx context.Context, url string, body any, out any) error {
	if !c.limits.Allow(c.name) {
		return fmt.Errorf("%s: %w", c.name, ErrRateLimited)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", c.name, err)
	}
	return c.roundTrip(ctx, http.MethodPost, url, payload, out)
}

func (c *Client) roundTrip(ctx context.Context, method, url string, body []byte, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(reqCtx, method, url, reader)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.doer.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, fmt.Errorf("%s: upstream 429: %w", c.name, ErrRateLimited)
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%s: %w", c.name, ErrNotFound)
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("%s: unexpected status %d", c.name, resp.StatusCode)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return nil, fmt.Errorf("%s: read body: %w", c.name, err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			log.Warn().Str("provider", c.name).Err(err).Msg("response shape mismatch")
			return nil, fmt.Errorf("%s: decode: %w", c.name, err)
		}
		return nil, nil
	})
	return err
}

