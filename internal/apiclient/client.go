// Package apiclient is a thin REST and GraphQL transport for the RangeOS
// DevOps API. Failures are returned as *apierror.ResponseError so callers
// can normalize them.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/rangeos/engine/internal/apierror"
)

// Config holds client configuration.
type Config struct {
	// BaseURL includes the API version segment, e.g. http://host:8080/v1.
	BaseURL    string
	GraphQLURL string
	HTTPClient *http.Client
	// AuthToken is sent when a call does not carry its own token.
	AuthToken string
	UserAgent string

	// Circuit breaker tuning. Zero values use defaults.
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// Client talks to the DevOps API.
type Client struct {
	baseURL    string
	graphqlURL string
	token      string
	userAgent  string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openTimeout := cfg.BreakerOpenTimeout
	if openTimeout == 0 {
		openTimeout = 30 * time.Second
	}

	base := strings.TrimSuffix(cfg.BaseURL, "/")
	gql := cfg.GraphQLURL
	if gql == "" {
		gql = base + "/graphql"
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "rangeos-engine"
	}

	return &Client{
		baseURL:    base,
		graphqlURL: gql,
		token:      cfg.AuthToken,
		userAgent:  ua,
		httpClient: httpClient,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "devops-api",
			MaxRequests: 1,
			Timeout:     openTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= maxFailures
			},
			// Client errors are the caller's fault, not the API's.
			IsSuccessful: func(err error) bool {
				if err == nil {
					return true
				}
				var re *apierror.ResponseError
				return errors.As(err, &re) && re.Response != nil && re.Response.Status < http.StatusInternalServerError
			},
		}),
	}, nil
}

// BaseURL returns the versioned API root.
func (c *Client) BaseURL() string { return c.baseURL }

// BreakerState exposes the circuit breaker state for health reporting.
func (c *Client) BreakerState() string { return c.breaker.State().String() }

// CallOption adjusts a single request.
type CallOption func(*callOptions)

type callOptions struct {
	token string
}

// WithAuthToken sends token as a bearer credential for this call.
func WithAuthToken(token string) CallOption {
	return func(o *callOptions) { o.token = token }
}

// List performs GET path with the list params rendered as a query string.
func (c *Client) List(ctx context.Context, path string, p ListParams) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, path, p.Values(), nil, WithAuthToken(p.AuthToken))
}

// Get performs GET path.
func (c *Client) Get(ctx context.Context, path string, opts ...CallOption) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, path, nil, nil, opts...)
}

// Post performs POST path with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...CallOption) ([]byte, error) {
	return c.Do(ctx, http.MethodPost, path, nil, body, opts...)
}

// Put performs PUT path with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any, opts ...CallOption) ([]byte, error) {
	return c.Do(ctx, http.MethodPut, path, nil, body, opts...)
}

// Delete performs DELETE path.
func (c *Client) Delete(ctx context.Context, path string, opts ...CallOption) ([]byte, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, opts...)
}

// Do executes one request through the circuit breaker and returns the body
// of a 2xx answer.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any, opts ...CallOption) ([]byte, error) {
	target := c.resolve(path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return c.send(ctx, method, target, body, opts...)
}

func (c *Client) send(ctx context.Context, method, target string, body any, opts ...CallOption) ([]byte, error) {
	o := callOptions{token: c.token}
	for _, opt := range opts {
		opt(&o)
	}
	if o.token == "" {
		o.token = c.token
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, method, target, body, o)
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (c *Client) roundTrip(ctx context.Context, method, target string, body any, o callOptions) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if o.token != "" {
		req.Header.Set("Authorization", "Bearer "+o.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apierror.ResponseError{
			Method: method,
			URL:    target,
			Response: &apierror.Response{
				Status:     resp.StatusCode,
				StatusText: resp.Status,
				Header:     resp.Header.Clone(),
				Body:       data,
				URL:        target,
			},
		}
	}
	return data, nil
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}
