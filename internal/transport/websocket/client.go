package websocket

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// DialOptions tunes Dial.
type DialOptions struct {
	Options

	TLS              *tls.Config
	HandshakeTimeout time.Duration
}

// Dial connects to a relay websocket endpoint (ws:// or wss://).
func Dial(ctx context.Context, url string, opts DialOptions) (*Conn, error) {
	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		TLSClientConfig:  opts.TLS,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	if d.HandshakeTimeout <= 0 {
		d.HandshakeTimeout = 15 * time.Second
	}
	ws, resp, err := d.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (%s)", url, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return newConn(ws, opts.Options), nil
}
