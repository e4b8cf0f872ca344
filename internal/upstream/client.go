package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// maxBody bounds how much of an upstream response we buffer.
const maxBody = 1 << 20

// Kind classifies an upstream failure.
type Kind int

const (
	KindTimeout Kind = iota + 1
	KindStatus
	KindUnreachable
	KindPayload
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindStatus:
		return "status"
	case KindUnreachable:
		return "unreachable"
	case KindPayload:
		return "payload"
	}
	return "unknown"
}

// Error is returned by Fetch for every failed call.
type Error struct {
	Kind   Kind
	Status int // HTTP status, when the upstream answered
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s (HTTP %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("upstream %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client calls the number information API. Each Fetch is a single attempt
// bounded by the configured timeout.
type Client struct {
	endpoint   *url.URL
	credential string
	timeout    time.Duration
	http       *http.Client
	limiter    *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit throttles outbound calls with a token bucket. rps <= 0
// disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func New(endpoint, credential string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream url %q: unsupported scheme", endpoint)
	}

	c := &Client{
		endpoint:   u,
		credential: credential,
		timeout:    timeout,
		http:       &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Timeout() time.Duration { return c.timeout }

// Fetch asks the upstream about number and returns its JSON body verbatim.
func (c *Client) Fetch(ctx context.Context, number string) (json.RawMessage, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: KindTimeout, Err: fmt.Errorf("outbound throttle: %w", err)}
		}
	}

	u := *c.endpoint
	q := u.Query()
	q.Set("number", number)
	if c.credential != "" {
		q.Set("key", c.credential)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{Kind: KindUnreachable, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &Error{
			Kind:   KindStatus,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, classify(err)
	}
	if !json.Valid(body) {
		log.Printf("[upstream] non-JSON body (%d bytes) from %s", len(body), c.endpoint.Host)
		return nil, &Error{Kind: KindPayload, Status: resp.StatusCode, Err: errors.New("response is not valid JSON")}
	}
	return json.RawMessage(body), nil
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindUnreachable, Err: err}
}
