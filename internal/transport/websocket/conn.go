package websocket

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cipherchat/internal/domain"
)

const (
	// DefaultMaxMessageBytes bounds one inbound frame.
	DefaultMaxMessageBytes = 1 << 20

	// DefaultWriteTimeout bounds one outbound frame.
	DefaultWriteTimeout = 10 * time.Second
)

// Options tunes a Conn.
type Options struct {
	MaxMessageBytes int64
	WriteTimeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	return o
}

// Conn is a websocket connection carrying one record per frame.
type Conn struct {
	ws   *websocket.Conn
	opts Options

	readMu  sync.Mutex
	writeMu sync.Mutex
}

var _ domain.Conn = (*Conn)(nil)

func newConn(ws *websocket.Conn, opts Options) *Conn {
	opts = opts.withDefaults()
	ws.SetReadLimit(opts.MaxMessageBytes)
	return &Conn{ws: ws, opts: opts}
}

// ReadMessage returns the payload of the next data frame. An orderly close
// by the peer is reported as io.EOF.
func (c *Conn) ReadMessage(ctx context.Context) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if IsClosure(err) {
				return nil, io.EOF
			}
			return nil, err
		}
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// WriteMessage sends msg as one text frame. Safe for concurrent use.
func (c *Conn) WriteMessage(ctx context.Context, msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Close sends a close frame (best effort) and closes the socket.
func (c *Conn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := c.ws.Close()
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() string { return c.ws.RemoteAddr().String() }

// IsClosure reports whether err is an ordinary end of connection rather
// than a failure worth logging.
func IsClosure(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
		errors.Is(err, websocket.ErrCloseSent)
}
