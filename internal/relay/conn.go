package relay

import (
	"context"
	"sync"

	"cipherchat/internal/domain"
)

// State is the lifecycle state of one relay connection.
type State int

const (
	// StateConnecting: transport accepted, no identity yet.
	StateConnecting State = iota
	// StateIdentified: identity assigned and registered.
	StateIdentified
	// StateKeyPublished: the client has published a public key and can be
	// addressed by peers that hold it.
	StateKeyPublished
	// StateClosed: unregistered; nothing more is sent or received.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateIdentified:
		return "identified"
	case StateKeyPublished:
		return "key-published"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// conn is the relay side of one participant. It implements domain.Handle.
type conn struct {
	engine *Engine
	tr     domain.Conn
	sendCh chan []byte

	closeOnce sync.Once
	closed    chan struct{}

	mu    sync.Mutex
	id    domain.ConnectionID
	state State
}

var _ domain.Handle = (*conn)(nil)

func newConn(e *Engine, tr domain.Conn, queue int) *conn {
	return &conn{
		engine: e,
		tr:     tr,
		sendCh: make(chan []byte, queue),
		closed: make(chan struct{}),
	}
}

func (c *conn) ID() domain.ConnectionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *conn) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosed {
		c.state = s
	}
}

func (c *conn) IsOpen() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

// Enqueue hands frame to the writer goroutine without blocking. A full
// queue means the client is not keeping up; it is disconnected.
func (c *conn) Enqueue(frame []byte) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	select {
	case c.sendCh <- frame:
		// The writer exits on close without draining the queue.
		if !c.IsOpen() {
			return ErrConnClosed
		}
		return nil
	default:
		// close takes the engine lock, which our caller may hold.
		go c.close()
		return ErrQueueFull
	}
}

// writeLoop drains the outbound queue until the connection closes.
func (c *conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-c.closed:
			return
		case frame := <-c.sendCh:
			if err := c.tr.WriteMessage(ctx, frame); err != nil {
				c.engine.log.Debugf("%s: write failed: %v", c.ID(), err)
				c.close()
				return
			}
		}
	}
}

// close tears the connection down. Whichever of the reader, the writer or
// the engine gets here first does the work; later calls are no-ops.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if err := c.tr.Close(); err != nil {
			c.engine.log.Debugf("%s: closing transport: %v", c.ID(), err)
		}
		c.engine.leave(c)
	})
}
