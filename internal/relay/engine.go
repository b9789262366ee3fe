package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/op/go-logging.v1"

	"cipherchat/internal/domain"
	"cipherchat/internal/instrument"
	"cipherchat/internal/protocol/wire"
)

// DefaultSendQueue is the per-connection outbound queue length.
const DefaultSendQueue = 256

// EngineConfig tunes an Engine.
type EngineConfig struct {
	// SendQueue is the number of frames buffered per connection before the
	// connection is considered too slow and dropped.
	SendQueue int

	// NewID generates connection identities. Defaults to random UUIDs.
	NewID func() (domain.ConnectionID, error)
}

// Engine runs the relay protocol for every connection.
//
// Directory mutations and the broadcasts they trigger happen under mu, so
// every client sees peer lists and key announcements in the order the
// directory changed. Broadcasts only enqueue; they never wait on a socket.
type Engine struct {
	dir     *Directory
	log     *logging.Logger
	metrics *instrument.Metrics
	cfg     EngineConfig

	mu     sync.Mutex
	conns  map[*conn]struct{}
	halted bool
	wg     sync.WaitGroup
}

// NewEngine creates an engine around dir. metrics may be nil.
func NewEngine(dir *Directory, log *logging.Logger, metrics *instrument.Metrics, cfg EngineConfig) *Engine {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = DefaultSendQueue
	}
	if cfg.NewID == nil {
		cfg.NewID = newUUID
	}
	if log == nil {
		log = logging.MustGetLogger("engine")
	}
	return &Engine{
		dir:     dir,
		log:     log,
		metrics: metrics,
		cfg:     cfg,
		conns:   make(map[*conn]struct{}),
	}
}

func newUUID() (domain.ConnectionID, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return domain.ConnectionID(u.String()), nil
}

// Directory returns the directory the engine maintains.
func (e *Engine) Directory() *Directory { return e.dir }

// Serve runs the protocol on tr until the transport fails, ctx is cancelled
// or the engine shuts down. It always closes tr.
func (e *Engine) Serve(ctx context.Context, tr domain.Conn) error {
	c := newConn(e, tr, e.cfg.SendQueue)

	e.mu.Lock()
	if e.halted {
		e.mu.Unlock()
		_ = tr.Close()
		return ErrShuttingDown
	}
	e.conns[c] = struct{}{}
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.close()

	if err := e.join(c); err != nil {
		e.log.Errorf("rejecting connection from %s: %v", tr.RemoteAddr(), err)
		return err
	}
	e.log.Noticef("%s connected from %s", c.ID(), tr.RemoteAddr())

	go c.writeLoop(ctx)

	for {
		data, err := tr.ReadMessage(ctx)
		if err != nil {
			if c.IsOpen() && ctx.Err() == nil {
				e.log.Debugf("%s: read ended: %v", c.ID(), err)
			}
			return nil
		}
		e.dispatch(c, data)
	}
}

// join assigns an identity, registers it and announces it.
func (e *Engine) join(c *conn) error {
	id, err := e.cfg.NewID()
	if err != nil {
		return fmt.Errorf("generating identity: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Shutdown or a dead transport may have closed c while NewID ran. leave
	// has then already been and gone, so registering now would leak the entry.
	if e.halted {
		return ErrShuttingDown
	}
	if !c.IsOpen() {
		return ErrConnClosed
	}
	if err := e.dir.Register(id, c); err != nil {
		e.metrics.DirectoryInconsistency()
		return fmt.Errorf("registering %s: %w", id, err)
	}
	c.mu.Lock()
	c.id = id
	c.state = StateIdentified
	c.mu.Unlock()
	e.metrics.ClientConnected()

	e.send(c, wire.IdentityAssigned{ID: id})
	e.broadcastPeerListLocked()
	return nil
}

// leave unregisters c and tells everyone left. Runs once per connection.
func (e *Engine) leave(c *conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conns, c)

	c.mu.Lock()
	id, prev := c.id, c.state
	c.state = StateClosed
	c.mu.Unlock()
	if prev == StateConnecting {
		return
	}

	if err := e.dir.Unregister(id); err != nil {
		// Only leave unregisters, and it runs once. Getting here is a bug.
		e.log.Errorf("BUG: %s: unregister on close: %v", id, err)
		e.metrics.DirectoryInconsistency()
		return
	}
	e.metrics.ClientDisconnected()
	e.log.Noticef("%s disconnected (%s)", id, prev)
	e.broadcastPeerListLocked()
}

func (e *Engine) dispatch(c *conn, data []byte) {
	rec, err := wire.Decode(data)
	switch {
	case errors.Is(err, wire.ErrUnknownType):
		var ute *wire.UnknownTypeError
		errors.As(err, &ute)
		e.metrics.RecordReceived("unknown")
		e.notify(c, wire.CodeUnknownType, fmt.Sprintf("Unknown message type: %s", ute.Type))
		return
	case err != nil:
		e.metrics.RecordReceived("malformed")
		e.notify(c, wire.CodeMalformedRecord, err.Error())
		return
	}
	e.metrics.RecordReceived(rec.Type())

	switch r := rec.(type) {
	case wire.PublicKeyAnnounce:
		e.publishKey(c, domain.PublicKey(r.PublicKey))
	case wire.EncryptedMessage:
		e.forward(c, r)
	case wire.IdentityAssigned, wire.PeerList, wire.ErrorNotice:
		e.notify(c, wire.CodeInvalidRecord, fmt.Sprintf("%s records are only sent by the relay", r.Type()))
	default:
		e.notify(c, wire.CodeUnknownType, fmt.Sprintf("Unknown message type: %s", rec.Type()))
	}
}

// publishKey stores key, fans it out to every other client and back-fills
// the publisher with every key already known.
func (e *Engine) publishKey(c *conn, key domain.PublicKey) {
	id := c.ID()
	if !key.WellFormed() {
		e.notify(c, wire.CodeInvalidPublicKey,
			fmt.Sprintf("Invalid public key: length=%d", len(key)))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.dir.PublishKey(id, key); err != nil {
		// The connection is already on its way out.
		e.log.Debugf("%s: publish after close: %v", id, err)
		return
	}
	c.setState(StateKeyPublished)
	e.metrics.KeyPublished()
	e.log.Infof("%s published key %x...", id, key[:8])

	announce := wire.MustEncode(wire.PublicKeyAnnounce{From: id, PublicKey: wire.Bytes(key)})
	for _, h := range e.dir.Handles() {
		if h.ID() == id {
			continue
		}
		e.enqueue(h, announce)
	}
	for _, rec := range e.dir.SnapshotOtherKeys(id) {
		e.send(c, wire.PublicKeyAnnounce{From: rec.Owner, PublicKey: wire.Bytes(rec.Key)})
	}
}

// forward relays an envelope to its recipient with the verified sender.
func (e *Engine) forward(c *conn, m wire.EncryptedMessage) {
	from := c.ID()
	h, ok := e.dir.LookupHandle(m.To)
	if !ok || !h.IsOpen() {
		e.notify(c, wire.CodeRecipientUnavailable,
			fmt.Sprintf("Recipient %s not found or not connected", m.To))
		return
	}
	m.From = from
	if err := h.Enqueue(wire.MustEncode(m)); err != nil {
		e.metrics.FrameDropped()
		e.notify(c, wire.CodeRecipientUnavailable,
			fmt.Sprintf("Recipient %s is not connected", m.To))
		return
	}
	e.metrics.EnvelopeForwarded()
	e.log.Debugf("relayed envelope %s -> %s (%d bytes)", from, m.To, len(m.Ciphertext))
}

func (e *Engine) notify(c *conn, code, msg string) {
	e.metrics.ErrorNotice(code)
	e.log.Warningf("%s: %s: %s", c.ID(), code, msg)
	e.send(c, wire.ErrorNotice{Code: code, Message: msg})
}

// broadcastPeerListLocked sends every client the list of the others.
func (e *Engine) broadcastPeerListLocked() {
	for _, h := range e.dir.Handles() {
		e.send(h, wire.PeerList{Clients: e.dir.AllIdentitiesExcept(h.ID())})
	}
}

func (e *Engine) send(h domain.Handle, r wire.Record) {
	e.enqueue(h, wire.MustEncode(r))
}

func (e *Engine) enqueue(h domain.Handle, frame []byte) {
	if err := h.Enqueue(frame); err != nil {
		e.metrics.FrameDropped()
		e.log.Debugf("%s: dropping frame: %v", h.ID(), err)
	}
}

// Shutdown closes every connection and waits for their Serve calls to
// return. Later Serve calls fail with ErrShuttingDown.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	e.halted = true
	conns := make([]*conn, 0, len(e.conns))
	for c := range e.conns {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	e.wg.Wait()
}
