// Package httpclient builds the outbound HTTP clients shared by the LLM
// adapter, the webhook notifier, and the URL fetcher.
package httpclient

import (
	"net/http"
	"time"

	"github.com/Mikeyy1405/Writgoai.nl/internal/logging"
)

// New returns an http.Client configured for outbound requests. It respects
// HTTP(S)_PROXY/ALL_PROXY/NO_PROXY from the environment.
func New(timeout time.Duration, logger logging.Logger) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: Transport(logger),
	}
}

// Transport returns an http.Transport clone with the proxy policy for
// outbound calls.
func Transport(logger logging.Logger) *http.Transport {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Transport{Proxy: http.ProxyFromEnvironment}
	}

	transport := base.Clone()
	transport.Proxy = http.ProxyFromEnvironment
	return transport
}
