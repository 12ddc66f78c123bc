// Package transport builds the HTTP client shared by every outbound caller.
package transport

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/lkarthik76/ddnd/internal/utils"
)

// NewHTTPClient returns a client that negotiates HTTP/2 over TLS and falls
// back to HTTP/1.1 for plain endpoints. caCertPath, when set, replaces the
// system roots.
func NewHTTPClient(caCertPath string, timeout time.Duration) (*http.Client, error) {
	tlsConfig, err := utils.TLSConfig(caCertPath)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:     tlsConfig,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("failed to enable HTTP/2: %w", err)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}
