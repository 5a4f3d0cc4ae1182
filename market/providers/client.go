package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the HTTP timeout of online sources.
	DefaultTimeout = 15 * time.Second

	// DefaultRateLimit is requests per second per source.
	DefaultRateLimit = 2

	userAgent = "Mozilla/5.0 (X11; Linux x86_64) factorlab"
)

// httpSource is the transport shared by the online sources.
type httpSource struct {
	name    string
	baseURL string
	client  *http.Client
	timeout time.Duration
	limiter *rate.Limiter
}

// Option configures an online source.
type Option func(*httpSource)

// WithBaseURL overrides the service root, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(s *httpSource) {
		s.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client. The source works on a copy, so
// the caller's client is never modified.
func WithHTTPClient(client *http.Client) Option {
	return func(s *httpSource) {
		if client != nil {
			s.client = client
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(s *httpSource) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithRateLimit caps requests per second.
func WithRateLimit(requestsPerSecond int) Option {
	return func(s *httpSource) {
		if requestsPerSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

func newHTTPSource(name, baseURL string, opts []Option) httpSource {
	s := httpSource{
		name:    name,
		baseURL: baseURL,
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}
	for _, opt := range opts {
		opt(&s)
	}
	// the timeout applies to an owned copy whatever the option order
	owned := *s.client
	owned.Timeout = s.timeout
	s.client = &owned
	return s
}

// get performs one rate-limited GET and returns the body of a 200 response.
func (s *httpSource) get(ctx context.Context, url string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limiter: %w", s.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", s.name, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request: %w", s.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", s.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newError(ErrBadResponse, s.name, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}
	return body, nil
}
