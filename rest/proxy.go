package rest

import (
	"fmt"
	"net/http"
	"net/url"
)

// NewProxyClient returns a copy of client that sends every request to proxy
// instead of the API host. Rate limit headers returned by the proxy are
// still honoured by the queue.
func NewProxyClient(client *http.Client, proxy *url.URL) *http.Client {
	proxied := &http.Client{}
	if client != nil {
		*proxied = *client
	}

	transport := proxied.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	proxied.Transport = &proxyTransport{
		proxy:     proxy,
		transport: transport,
	}

	return proxied
}

type proxyTransport struct {
	transport http.RoundTripper
	proxy     *url.URL
}

func (t *proxyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	proxyReq := req.Clone(req.Context())

	proxyReq.URL.Scheme = t.proxy.Scheme
	proxyReq.URL.Host = t.proxy.Host
	proxyReq.Host = t.proxy.Host

	resp, err := t.transport.RoundTrip(proxyReq)
	if err != nil {
		return nil, fmt.Errorf("failed to round trip through proxy: %w", err)
	}

	return resp, nil
}
