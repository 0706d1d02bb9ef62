package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"

	apperrors "github.com/utafrali/EcommerceGo/webclient/pkg/errors"
)

// CorrelationIDHeader carries the per-call correlation ID to the backend.
const CorrelationIDHeader = "X-Correlation-ID"

// Doer executes a single HTTP exchange.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config holds HTTP client configuration
type Config struct {
	Timeout         time.Duration
	MaxConnsPerHost int
	// Jar is shared between clients so the refresh cookie travels with every
	// call. A fresh jar is created when nil.
	Jar http.CookieJar
}

// DefaultConfig returns sensible defaults for HTTP client
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		MaxConnsPerHost: 100,
	}
}

// NewCookieJar returns a cookie jar using the public suffix list.
func NewCookieJar() http.CookieJar {
	// cookiejar.New never returns a non-nil error.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return jar
}

// Client wraps http.Client with connection pooling and a cookie jar.
// It performs exactly one attempt per call: retry policy belongs to callers.
type Client struct {
	httpClient *http.Client
	config     Config
}

// New creates a new HTTP client with connection pooling
func New(cfg Config) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	jar := cfg.Jar
	if jar == nil {
		jar = NewCookieJar()
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			Jar:       jar,
		},
		config: cfg,
	}
}

// Jar returns the cookie jar used by the client.
func (c *Client) Jar() http.CookieJar {
	return c.httpClient.Jar
}

// Do executes the request once. Transport failures, including cancellation,
// are wrapped so that errors.Is(err, apperrors.ErrNetwork) holds; any HTTP
// status is returned as a response.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, apperrors.Network(err)
	}
	return resp, nil
}
