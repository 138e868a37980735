// Package httpclient builds the pooled HTTP client used by the load generator.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// NewOutbound returns a client sized for many concurrent requests against a
// single host. A zero timeout means 10s.
func NewOutbound(timeout time.Duration, workers int) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if workers < 1 {
		workers = 1
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          2 * workers,
		MaxIdleConnsPerHost:   workers,
		MaxConnsPerHost:       workers,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
