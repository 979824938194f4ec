package llm

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// NewPooledHTTPClient creates an http.Client with connection pooling and tuned transport.
func NewPooledHTTPClient(poolSize int, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: pooledTransport(poolSize),
	}
}

// NewRelayHTTPClient is NewPooledHTTPClient with every request redirected to relay.
// An empty relay returns the plain pooled client.
func NewRelayHTTPClient(poolSize int, timeout time.Duration, relay string) (*http.Client, error) {
	c := NewPooledHTTPClient(poolSize, timeout)
	if relay == "" {
		return c, nil
	}
	target, err := url.Parse(relay)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("relay url %q needs scheme and host", relay)
	}
	c.Transport = &RewriteTransport{Target: target, Base: c.Transport}
	return c, nil
}

func pooledTransport(poolSize int) *http.Transport {
	return &http.Transport{
		MaxIdleConns:          poolSize,
		MaxIdleConnsPerHost:   poolSize,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// RewriteTransport sends each request to Target's origin, prefixing Target's
// path to the original one. The original host is kept in X-Forwarded-Host so
// a relay can route by upstream.
type RewriteTransport struct {
	Target *url.URL
	Base   http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *RewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.Target.Scheme
	out.URL.Host = t.Target.Host
	out.URL.Path = strings.TrimRight(t.Target.Path, "/") + req.URL.Path
	out.URL.RawPath = ""
	out.Host = t.Target.Host
	out.Header.Set("X-Forwarded-Host", req.URL.Host)

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(out)
}
