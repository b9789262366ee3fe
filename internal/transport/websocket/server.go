package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// Acceptor upgrades HTTP requests to websocket Conns.
type Acceptor struct {
	upgrader websocket.Upgrader
	opts     Options
}

// NewAcceptor creates an Acceptor. With allowAnyOrigin false, browsers are
// held to gorilla's same-origin check; non-browser clients send no Origin
// and are always accepted.
func NewAcceptor(opts Options, allowAnyOrigin bool) *Acceptor {
	a := &Acceptor{opts: opts}
	if allowAnyOrigin {
		a.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	return a
}

// Accept completes the websocket handshake. On failure gorilla has already
// written an HTTP error response.
func (a *Acceptor) Accept(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newConn(ws, a.opts), nil
}
