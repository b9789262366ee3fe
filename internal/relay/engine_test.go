package relay_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherchat/internal/domain"
	"cipherchat/internal/instrument"
	"cipherchat/internal/log"
	"cipherchat/internal/protocol/wire"
	"cipherchat/internal/relay"
)

var errPipeClosed = errors.New("pipe closed")

// pipe is an in-memory domain.Conn. The test plays the client end.
type pipe struct {
	toRelay   chan []byte
	fromRelay chan []byte
	closed    chan struct{}
	once      sync.Once
}

func newPipe(buffer int) *pipe {
	return &pipe{
		toRelay:   make(chan []byte, 16),
		fromRelay: make(chan []byte, buffer),
		closed:    make(chan struct{}),
	}
}

func (p *pipe) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case m := <-p.toRelay:
		return m, nil
	case <-p.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipe) WriteMessage(ctx context.Context, msg []byte) error {
	select {
	case p.fromRelay <- msg:
		return nil
	case <-p.closed:
		return errPipeClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipe) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *pipe) RemoteAddr() string { return "pipe" }

type harness struct {
	t       *testing.T
	engine  *relay.Engine
	metrics *instrument.Metrics
	next    atomic.Int32
	wg      sync.WaitGroup
}

func newHarness(t *testing.T, queue int) *harness {
	t.Helper()
	backend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)
	h := &harness{t: t, metrics: instrument.New()}
	h.engine = relay.NewEngine(relay.NewDirectory(), backend.GetLogger("engine"), h.metrics, relay.EngineConfig{
		SendQueue: queue,
		NewID: func() (domain.ConnectionID, error) {
			n := h.next.Add(1)
			return domain.ConnectionID(string(rune('A' + n - 1))), nil
		},
	})
	t.Cleanup(func() {
		h.engine.Shutdown()
		h.wg.Wait()
	})
	return h
}

type client struct {
	t    *testing.T
	id   domain.ConnectionID
	pipe *pipe
}

func (h *harness) connectWith(p *pipe) *client {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		_ = h.engine.Serve(context.Background(), p)
	}()
	return &client{t: h.t, pipe: p}
}

// connect attaches a client and consumes its clientId and first peer list.
func (h *harness) connect() (*client, []domain.ConnectionID) {
	c := h.connectWith(newPipe(64))
	id, ok := c.recv().(wire.IdentityAssigned)
	require.True(c.t, ok, "first record must be clientId")
	c.id = id.ID
	list, ok := c.recv().(wire.PeerList)
	require.True(c.t, ok, "second record must be clientList")
	return c, list.Clients
}

func (c *client) send(r wire.Record) {
	c.t.Helper()
	c.sendRaw(wire.MustEncode(r))
}

func (c *client) sendRaw(b []byte) {
	c.t.Helper()
	select {
	case c.pipe.toRelay <- b:
	case <-time.After(2 * time.Second):
		c.t.Fatal("relay not reading")
	}
}

func (c *client) recv() wire.Record {
	c.t.Helper()
	select {
	case b := <-c.pipe.fromRelay:
		rec, err := wire.Decode(b)
		require.NoError(c.t, err)
		return rec
	case <-time.After(2 * time.Second):
		c.t.Fatalf("%s: timed out waiting for a record", c.id)
		return nil
	}
}

func (c *client) expectSilence() {
	c.t.Helper()
	select {
	case b := <-c.pipe.fromRelay:
		c.t.Fatalf("%s: unexpected record %s", c.id, b)
	case <-time.After(50 * time.Millisecond):
	}
}

func (c *client) expectNotice(code string) wire.ErrorNotice {
	c.t.Helper()
	n, ok := c.recv().(wire.ErrorNotice)
	require.True(c.t, ok, "expected error notice")
	require.Equal(c.t, code, n.Code)
	return n
}

func (c *client) disconnect() { _ = c.pipe.Close() }

func testKey(b byte) wire.Bytes {
	k := make(wire.Bytes, domain.PublicKeySize)
	k[0] = 0x04
	for i := 1; i < len(k); i++ {
		k[i] = b
	}
	return k
}

func TestEngine_JoinAndKeyExchange(t *testing.T) {
	h := newHarness(t, 0)

	a, peers := h.connect()
	assert.Equal(t, domain.ConnectionID("A"), a.id)
	assert.Empty(t, peers)

	b, peers := h.connect()
	assert.Equal(t, []domain.ConnectionID{"A"}, peers)
	assert.Equal(t, wire.PeerList{Clients: []domain.ConnectionID{"B"}}, a.recv())

	ka, kb := testKey(1), testKey(2)
	a.send(wire.PublicKeyAnnounce{PublicKey: ka})
	assert.Equal(t, wire.PublicKeyAnnounce{From: "A", PublicKey: ka}, b.recv())
	a.expectSilence()

	b.send(wire.PublicKeyAnnounce{PublicKey: kb})
	assert.Equal(t, wire.PublicKeyAnnounce{From: "B", PublicKey: kb}, a.recv())
	assert.Equal(t, wire.PublicKeyAnnounce{From: "A", PublicKey: ka}, b.recv(), "back-fill of earlier keys")

	// A late joiner gets every existing key once it publishes.
	c, peers := h.connect()
	assert.Equal(t, []domain.ConnectionID{"A", "B"}, peers)
	a.recv()
	b.recv()
	kc := testKey(3)
	c.send(wire.PublicKeyAnnounce{From: "spoofed", PublicKey: kc})
	assert.Equal(t, wire.PublicKeyAnnounce{From: "C", PublicKey: kc}, a.recv())
	assert.Equal(t, wire.PublicKeyAnnounce{From: "C", PublicKey: kc}, b.recv())
	assert.Equal(t, wire.PublicKeyAnnounce{From: "A", PublicKey: ka}, c.recv())
	assert.Equal(t, wire.PublicKeyAnnounce{From: "B", PublicKey: kb}, c.recv())

	got, ok := h.engine.Directory().LookupKey("C")
	require.True(t, ok)
	assert.Equal(t, domain.PublicKey(kc), got)
}

func TestEngine_ForwardsWithVerifiedSender(t *testing.T) {
	h := newHarness(t, 0)
	a, _ := h.connect()
	b, _ := h.connect()
	a.recv()

	env := wire.EncryptedMessage{
		From:       "B",
		To:         "B",
		IV:         make(wire.Bytes, 16),
		Ciphertext: wire.Bytes{1, 2, 3, 4},
		HMAC:       make(wire.Bytes, 32),
	}
	a.send(env)

	got, ok := b.recv().(wire.EncryptedMessage)
	require.True(t, ok)
	assert.Equal(t, domain.ConnectionID("A"), got.From, "sender is the relay-verified identity")
	assert.Equal(t, domain.ConnectionID("B"), got.To)
	assert.Equal(t, env.IV, got.IV)
	assert.Equal(t, env.Ciphertext, got.Ciphertext)
	assert.Equal(t, env.HMAC, got.HMAC)
	a.expectSilence()
}

func TestEngine_UnknownRecipient(t *testing.T) {
	h := newHarness(t, 0)
	a, _ := h.connect()
	b, _ := h.connect()
	a.recv()

	a.send(wire.EncryptedMessage{To: "Z", IV: wire.Bytes{1}, Ciphertext: wire.Bytes{1}, HMAC: wire.Bytes{1}})
	n := a.expectNotice(wire.CodeRecipientUnavailable)
	assert.Contains(t, n.Message, "Z")
	b.expectSilence()

	// The connection survives.
	a.send(wire.PublicKeyAnnounce{PublicKey: testKey(9)})
	_, ok := b.recv().(wire.PublicKeyAnnounce)
	assert.True(t, ok)
}

func TestEngine_DisconnectPurgesIdentity(t *testing.T) {
	h := newHarness(t, 0)
	a, _ := h.connect()
	b, _ := h.connect()
	a.recv()

	a.send(wire.PublicKeyAnnounce{PublicKey: testKey(1)})
	b.recv()
	b.send(wire.PublicKeyAnnounce{PublicKey: testKey(2)})
	a.recv()
	b.recv()

	a.disconnect()
	assert.Equal(t, wire.PeerList{Clients: []domain.ConnectionID{}}, b.recv())
	b.expectSilence()

	dir := h.engine.Directory()
	_, ok := dir.LookupKey("A")
	assert.False(t, ok)
	_, ok = dir.LookupHandle("A")
	assert.False(t, ok)
	assert.Equal(t, 1, dir.Len())

	b.send(wire.EncryptedMessage{To: "A", IV: wire.Bytes{1}, Ciphertext: wire.Bytes{1}, HMAC: wire.Bytes{1}})
	b.expectNotice(wire.CodeRecipientUnavailable)

	// A later joiner is not back-filled with the departed key.
	c, peers := h.connect()
	assert.Equal(t, []domain.ConnectionID{"B"}, peers)
	b.recv()
	c.send(wire.PublicKeyAnnounce{PublicKey: testKey(3)})
	b.recv()
	assert.Equal(t, wire.PublicKeyAnnounce{From: "B", PublicKey: testKey(2)}, c.recv())
	c.expectSilence()
}

func TestEngine_BadRecordsKeepConnectionOpen(t *testing.T) {
	h := newHarness(t, 0)
	a, _ := h.connect()

	a.sendRaw([]byte(`{"type":"success","message":"hi"}`))
	n := a.expectNotice(wire.CodeUnknownType)
	assert.Contains(t, n.Message, "success")

	a.sendRaw([]byte(`this is not json`))
	a.expectNotice(wire.CodeMalformedRecord)

	a.sendRaw([]byte(`{"id":"x"}`))
	a.expectNotice(wire.CodeMalformedRecord)

	a.send(wire.PublicKeyAnnounce{PublicKey: wire.Bytes{4, 1, 2}})
	a.expectNotice(wire.CodeInvalidPublicKey)
	_, ok := h.engine.Directory().LookupKey(a.id)
	assert.False(t, ok, "invalid key is not stored")

	bad := testKey(1)
	bad[0] = 0x02
	a.send(wire.PublicKeyAnnounce{PublicKey: bad})
	a.expectNotice(wire.CodeInvalidPublicKey)

	a.send(wire.IdentityAssigned{ID: "me"})
	a.expectNotice(wire.CodeInvalidRecord)

	// Still connected and addressable.
	b, peers := h.connect()
	assert.Equal(t, []domain.ConnectionID{a.id}, peers)
	assert.Equal(t, wire.PeerList{Clients: []domain.ConnectionID{b.id}}, a.recv())
}

func TestEngine_RepublishSupersedes(t *testing.T) {
	h := newHarness(t, 0)
	a, _ := h.connect()
	b, _ := h.connect()
	a.recv()

	a.send(wire.PublicKeyAnnounce{PublicKey: testKey(1)})
	b.recv()
	a.send(wire.PublicKeyAnnounce{PublicKey: testKey(5)})
	assert.Equal(t, wire.PublicKeyAnnounce{From: "A", PublicKey: testKey(5)}, b.recv())

	got, _ := h.engine.Directory().LookupKey("A")
	assert.Equal(t, domain.PublicKey(testKey(5)), got)
}

func TestEngine_SlowClientIsDropped(t *testing.T) {
	h := newHarness(t, 2)
	a, _ := h.connect()

	// Nobody reads from this client, and its socket accepts nothing.
	h.connectWith(newPipe(0))
	assert.Equal(t, wire.PeerList{Clients: []domain.ConnectionID{"B"}}, a.recv())

	for i := 0; i < 8; i++ {
		a.send(wire.PublicKeyAnnounce{PublicKey: testKey(byte(i + 1))})
	}
	require.Eventually(t, func() bool {
		return h.engine.Directory().Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, wire.PeerList{Clients: []domain.ConnectionID{}}, a.recv())
}

func TestEngine_ShutdownClosesEveryone(t *testing.T) {
	h := newHarness(t, 0)
	for i := 0; i < 5; i++ {
		h.connect()
	}
	h.engine.Shutdown()
	assert.Zero(t, h.engine.Directory().Len())

	err := h.engine.Serve(context.Background(), newPipe(1))
	require.ErrorIs(t, err, relay.ErrShuttingDown)
}

func TestEngine_ShutdownDuringJoin(t *testing.T) {
	p := newPipe(8)
	entered := make(chan struct{})
	e := relay.NewEngine(relay.NewDirectory(), nil, nil, relay.EngineConfig{
		NewID: func() (domain.ConnectionID, error) {
			close(entered)
			<-p.closed
			return "late", nil
		},
	})

	served := make(chan error, 1)
	go func() { served <- e.Serve(context.Background(), p) }()

	<-entered
	e.Shutdown()

	select {
	case err := <-served:
		require.ErrorIs(t, err, relay.ErrShuttingDown)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	_, ok := e.Directory().LookupHandle("late")
	assert.False(t, ok)
	assert.Zero(t, e.Directory().Len())
	assert.Empty(t, p.fromRelay)
}

func TestEngine_ManyConcurrentClients(t *testing.T) {
	h := newHarness(t, 1024)
	const n = 20

	var wg sync.WaitGroup
	clients := make([]*client, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clients[i] = h.connectWith(newPipe(4096))
		}(i)
	}
	wg.Wait()

	require.Eventually(t, func() bool { return h.engine.Directory().Len() == n }, 2*time.Second, 10*time.Millisecond)

	// Half leave concurrently.
	for i := 0; i < n/2; i++ {
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			c.disconnect()
		}(clients[i])
	}
	wg.Wait()
	require.Eventually(t, func() bool { return h.engine.Directory().Len() == n/2 }, 2*time.Second, 10*time.Millisecond)

	// Each survivor's most recent peer list is the final membership.
	for _, c := range clients[n/2:] {
		var last wire.PeerList
		var self domain.ConnectionID
	drain:
		for {
			select {
			case b := <-c.pipe.fromRelay:
				rec, err := wire.Decode(b)
				require.NoError(t, err)
				switch r := rec.(type) {
				case wire.IdentityAssigned:
					self = r.ID
				case wire.PeerList:
					last = r
				}
			case <-time.After(100 * time.Millisecond):
				break drain
			}
		}
		want := h.engine.Directory().AllIdentitiesExcept(self)
		assert.ElementsMatch(t, want, last.Clients, fmt.Sprintf("client %s", self))
	}
}
