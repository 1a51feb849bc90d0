package jsonrpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

// TransportConfig holds the transport-level tuning knobs every Transport
// implementation shares. A MaxRequestsPerSec of 0 means unlimited.
type TransportConfig struct {
	HTTPRequestTimeout time.Duration
	MaxRedirects       int
	MaxRequestsPerSec  float64
}

// DefaultTransportConfig returns sane defaults: a generous timeout, a small
// redirect cap, and no rate limiting.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		HTTPRequestTimeout: 30 * time.Second,
		MaxRedirects:       5,
	}
}

func (c TransportConfig) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= c.MaxRedirects {
		return fmt.Errorf("jsonrpc: stopped after %d redirects", c.MaxRedirects)
	}
	return nil
}

// StdTransport is the plain net/http-backed Transport: one http.Client, the
// library default RoundTripper, a per-request timeout and redirect cap.
type StdTransport struct {
	client  *http.Client
	limiter *hostRateLimiter
}

// NewStdTransport builds a StdTransport from cfg.
func NewStdTransport(cfg TransportConfig) *StdTransport {
	return &StdTransport{
		client: &http.Client{
			Timeout:       cfg.HTTPRequestTimeout,
			CheckRedirect: cfg.checkRedirect,
		},
		limiter: newHostRateLimiter(cfg.MaxRequestsPerSec),
	}
}

func (t *StdTransport) Query(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	return queryVia(ctx, t.do, method, url, body)
}

func (t *StdTransport) Post(ctx context.Context, url string, body []byte) ([]byte, error) {
	return t.Query(ctx, http.MethodPost, url, body)
}

func (t *StdTransport) Get(ctx context.Context, url string) ([]byte, error) {
	return t.Query(ctx, http.MethodGet, url, nil)
}

func (t *StdTransport) do(ctx context.Context, method, rawURL string, body []byte) ([]byte, error) {
	if !t.limiter.allow(rawURL) {
		return nil, NewHTTPStatusError(http.StatusTooManyRequests)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, NewUnknownHTTPError(err.Error())
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, classifyDoError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewTransportError("failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewHTTPStatusError(resp.StatusCode)
	}
	return respBody, nil
}

// PooledTransport is a tuned, connection-pooling, gzip-aware Transport:
// a keep-alive dialer, HTTP/2 preference, and transparent response
// decompression via gzhttp — reached for when sustained request volume to
// one endpoint is expected, as opposed to StdTransport's ad-hoc default
// client.
type PooledTransport struct {
	client  *http.Client
	limiter *hostRateLimiter
}

const (
	pooledMaxConnsPerHost = 16
	pooledKeepAlive       = 60 * time.Second
)

// NewPooledTransport builds a PooledTransport from cfg.
func NewPooledTransport(cfg TransportConfig) *PooledTransport {
	base := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxConnsPerHost:     pooledMaxConnsPerHost,
		MaxIdleConnsPerHost: pooledMaxConnsPerHost,
		IdleConnTimeout:     cfg.HTTPRequestTimeout,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   cfg.HTTPRequestTimeout,
			KeepAlive: pooledKeepAlive,
		}).DialContext,
	}
	return &PooledTransport{
		client: &http.Client{
			Timeout:       cfg.HTTPRequestTimeout,
			Transport:     gzhttp.Transport(base),
			CheckRedirect: cfg.checkRedirect,
		},
		limiter: newHostRateLimiter(cfg.MaxRequestsPerSec),
	}
}

func (t *PooledTransport) Query(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	return queryVia(ctx, t.do, method, url, body)
}

func (t *PooledTransport) Post(ctx context.Context, url string, body []byte) ([]byte, error) {
	return t.Query(ctx, http.MethodPost, url, body)
}

func (t *PooledTransport) Get(ctx context.Context, url string) ([]byte, error) {
	return t.Query(ctx, http.MethodGet, url, nil)
}

func (t *PooledTransport) do(ctx context.Context, method, rawURL string, body []byte) ([]byte, error) {
	if !t.limiter.allow(rawURL) {
		return nil, NewHTTPStatusError(http.StatusTooManyRequests)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, NewUnknownHTTPError(err.Error())
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, classifyDoError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewTransportError("failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewHTTPStatusError(resp.StatusCode)
	}
	return respBody, nil
}

func classifyDoError(err error) *HTTPRequestError {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return NewHTTPTimeoutError()
		}
		var netErr net.Error
		if errors.As(urlErr.Err, &netErr) && netErr.Timeout() {
			return NewHTTPTimeoutError()
		}
		return NewTransportError(urlErr.Err.Error(), urlErr.Err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewHTTPTimeoutError()
		}
		return NewTransportError(netErr.Error(), netErr)
	}
	return NewTransportError(err.Error(), err)
}
