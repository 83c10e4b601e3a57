// Package httpclient builds the *http.Client handed to upstream LLM SDKs.
package httpclient

import (
	"net"
	"net/http"
	"time"

	"agentgate/internal/core"
)

// RequestIDHeader is forwarded upstream so provider logs can be correlated.
const RequestIDHeader = "X-Request-ID"

// ClientConfig holds transport tuning for upstream calls
type ClientConfig struct {
	// Timeout bounds a whole request including reading a streamed body.
	// Zero disables it, which streaming deployments usually want.
	Timeout               time.Duration
	ResponseHeaderTimeout time.Duration
	DialTimeout           time.Duration
	IdleConnTimeout       time.Duration
	MaxIdleConnsPerHost   int
}

// DefaultConfig returns defaults that match the OpenAI/Anthropic SDKs (10 minutes).
func DefaultConfig() ClientConfig {
	return ClientConfig{
		Timeout:               600 * time.Second,
		ResponseHeaderTimeout: 600 * time.Second,
		DialTimeout:           30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   100,
	}
}

// NewHTTPClient creates a client from cfg. Zero fields fall back to DefaultConfig.
func NewHTTPClient(cfg ClientConfig) *http.Client {
	def := DefaultConfig()
	if cfg.ResponseHeaderTimeout <= 0 {
		cfg.ResponseHeaderTimeout = def.ResponseHeaderTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = def.MaxIdleConnsPerHost
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConnsPerHost,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: &requestIDTransport{base: transport},
		Timeout:   cfg.Timeout,
	}
}

// requestIDTransport copies the request ID from the context onto outgoing requests.
type requestIDTransport struct {
	base http.RoundTripper
}

func (t *requestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if id := core.GetRequestID(req.Context()); id != "" && req.Header.Get(RequestIDHeader) == "" {
		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, id)
	}
	return t.base.RoundTrip(req)
}
