package transport

import (
	"net"
	"net/http"
	"time"
)

const defaultTimeout = 120 * time.Second

// newHTTPClient returns a pooled client for the chat service.
//
// The client has no overall Timeout: a streamed reply may legitimately run
// for minutes. The timeout bounds connection setup and the wait for
// response headers instead; control-plane calls add their own deadline.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport}
}
