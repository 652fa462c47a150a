package supabase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// maxErrorBody caps how much of a failed response is kept for the error message.
const maxErrorBody = 512

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Client talks to a Supabase project. Every request carries the project API
// key both as the apikey header and as the bearer credential.
type Client struct {
	base *url.URL
	http *http.Client
}

// Option customises a Client.
type Option func(*options)

type options struct {
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
	timeout     time.Duration
}

// WithHTTPClient sets the transport used underneath the auth layer.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTokenSource replaces the static API key bearer, e.g. with a user JWT source.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(o *options) { o.tokenSource = ts }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// NewClient creates a client for the project at baseURL.
func NewClient(ctx context.Context, baseURL, apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("NewClient: base URL is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("NewClient: API key is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("NewClient: parse base URL: %w", err)
	}

	o := options{timeout: 60 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tokenSource == nil {
		o.tokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey, TokenType: "Bearer"})
	}
	if o.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
	}

	hc := oauth2.NewClient(ctx, o.tokenSource)
	hc.Transport = &apiKeyTransport{key: apiKey, next: hc.Transport}
	hc.Timeout = o.timeout

	return &Client{base: u, http: hc}, nil
}

// URL resolves a project-relative path.
func (c *Client) URL(path string, query url.Values) string {
	u := c.base.JoinPath(strings.Split(strings.TrimLeft(path, "/"), "/")...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// Get performs a GET and returns the body of a 2xx response.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	target := c.URL(path, query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Method:     http.MethodGet,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: read body: %w", target, err)
	}
	return body, nil
}

type apiKeyTransport struct {
	key  string
	next http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("apikey", t.key)
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(r)
}
