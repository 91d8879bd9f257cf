// Package proxy builds HTTP clients whose traffic egresses through a local
// SOCKS5 proxy, for deployments where the OpenAI API or the whisper service
// is only reachable through one.
package proxy

import (
	"context"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// NewSocksClient returns an *http.Client dialing through the SOCKS5 proxy
// at socksAddr. A non-positive timeout falls back to 120 seconds, generous
// enough for slow LLM completions.
func NewSocksClient(socksAddr string, timeout time.Duration) (*http.Client, error) {
	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}
