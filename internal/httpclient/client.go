// Package httpclient provides the pooled HTTP client used for outbound
// requests to waveform services, with per-request timeouts, a fixed
// User-Agent and a response hook for logging.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tphakala/seisnet-go/internal/errors"
)

const (
	componentName = "httpclient"

	// DefaultTimeout applies when neither the config nor the request
	// context sets one.
	DefaultTimeout = 30 * time.Second

	defaultUserAgent           = "seisnet-go"
	defaultMaxIdleConnsPerHost = 8
	defaultIdleConnTimeout     = 90 * time.Second
	dialTimeout                = 10 * time.Second
	dialKeepAlive              = 30 * time.Second
	tlsHandshakeTimeout        = 10 * time.Second
)

// Config controls the client.
type Config struct {
	Timeout             time.Duration // applied when the request context has no deadline
	UserAgent           string
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// ResponseHook observes every completed request. resp is nil when err is
// set.
type ResponseHook func(req *http.Request, resp *http.Response, elapsed time.Duration, err error)

// Client wraps http.Client. It is safe for concurrent use.
type Client struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string

	hookMu sync.RWMutex
	hook   ResponseHook
}

// New returns a client; zero fields of cfg take defaults.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = defaultMaxIdleConnsPerHost
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = defaultIdleConnTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: dialKeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
	}

	return &Client{
		client:    &http.Client{Transport: transport},
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
	}
}

// SetTransport replaces the round tripper, e.g. with a mock in tests.
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.client.Transport = rt
}

// SetResponseHook installs fn, replacing any previous hook.
func (c *Client) SetResponseHook(fn ResponseHook) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.hook = fn
}

// Do sends req under ctx. The configured timeout applies when ctx has no
// deadline; it covers reading the body, so the caller must finish with the
// response before returning. The body must be closed when err is nil.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.NewStd("nil request")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		resp, err := c.do(ctx, req)
		if err != nil {
			cancel()
			return nil, err
		}
		resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}
	return c.do(ctx, req)
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	started := time.Now()
	resp, err := c.client.Do(req)

	c.hookMu.RLock()
	hook := c.hook
	c.hookMu.RUnlock()
	if hook != nil {
		hook(req, resp, time.Since(started), err)
	}
	return resp, err
}

// Get sends a GET request with the given Accept header.
func (c *Client) Get(ctx context.Context, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryValidation).
			Build()
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return c.Do(ctx, req)
}

// Close releases idle connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}
