package message_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
	"cipherchat/internal/protocol/wire"
	"cipherchat/internal/services/message"
	"cipherchat/internal/services/session"
)

// scriptedConn plays the relay: the test pushes records in and inspects
// what the service wrote.
type scriptedConn struct {
	in     chan []byte
	wrote  chan []byte
	closed chan struct{}
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{
		in:     make(chan []byte, 16),
		wrote:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *scriptedConn) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case <-c.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *scriptedConn) WriteMessage(_ context.Context, b []byte) error {
	c.wrote <- b
	return nil
}

func (c *scriptedConn) Close() error       { close(c.closed); return nil }
func (c *scriptedConn) RemoteAddr() string { return "script" }

func (c *scriptedConn) push(t *testing.T, r wire.Record) {
	t.Helper()
	c.in <- wire.MustEncode(r)
}

func (c *scriptedConn) written(t *testing.T) wire.Record {
	t.Helper()
	select {
	case b := <-c.wrote:
		rec, err := wire.Decode(b)
		require.NoError(t, err)
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("nothing written")
		return nil
	}
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	conn     *scriptedConn
	sessions *session.Manager
	svc      *message.Service
	runErr   chan error
}

func start(t *testing.T, cfg message.Config) *fixture {
	t.Helper()
	sessions, err := session.New()
	require.NoError(t, err)
	t.Cleanup(sessions.Close)

	if cfg.Now == nil {
		cfg.Now = func() time.Time { return fixedNow }
	}
	f := &fixture{
		conn:     newScriptedConn(),
		sessions: sessions,
		runErr:   make(chan error, 1),
	}
	f.svc = message.New(f.conn, sessions, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { f.runErr <- f.svc.Run(ctx) }()

	f.conn.push(t, wire.IdentityAssigned{ID: "me"})
	announce, ok := f.conn.written(t).(wire.PublicKeyAnnounce)
	require.True(t, ok, "clientId must be answered with our key")
	assert.Equal(t, wire.Bytes(sessions.PublicKey()), announce.PublicKey)
	assert.Empty(t, announce.From)
	return f
}

func nextEvent[T domain.Event](t *testing.T, events <-chan domain.Event) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "events closed")
			if v, ok := ev.(T); ok {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("no %T event", zero)
			return zero
		}
	}
}

// introduce makes a peer manager known to f as id.
func (f *fixture) introduce(t *testing.T, id domain.ConnectionID) *session.Manager {
	t.Helper()
	peer, err := session.New()
	require.NoError(t, err)
	t.Cleanup(peer.Close)
	require.NoError(t, peer.HandlePublicKey("me", f.sessions.PublicKey()))

	f.conn.push(t, wire.PeerList{Clients: []domain.ConnectionID{id}})
	ev := nextEvent[domain.PeerListEvent](t, f.svc.Events())
	assert.Equal(t, []domain.ConnectionID{id}, ev.Peers)

	f.conn.push(t, wire.PublicKeyAnnounce{From: id, PublicKey: wire.Bytes(peer.PublicKey())})
	require.NoError(t, f.sessions.Await(context.Background(), id, 2*time.Second))
	return peer
}

func TestService_IdentityAndReady(t *testing.T) {
	f := start(t, message.Config{})
	require.NoError(t, f.svc.WaitReady(context.Background()))
	assert.Equal(t, domain.ConnectionID("me"), f.svc.Self())

	// A second clientId does not change who we are.
	f.conn.push(t, wire.IdentityAssigned{ID: "other"})
	f.conn.push(t, wire.PeerList{Clients: []domain.ConnectionID{}})
	nextEvent[domain.PeerListEvent](t, f.svc.Events())
	assert.Equal(t, domain.ConnectionID("me"), f.svc.Self())
}

func TestService_ReceivesMessage(t *testing.T) {
	f := start(t, message.Config{})
	bob := f.introduce(t, "bob")

	box, err := bob.EncryptFor("me", []byte("hello"))
	require.NoError(t, err)
	f.conn.push(t, wire.EncryptedMessage{From: "bob", To: "me", IV: box.IV, Ciphertext: box.Ciphertext, HMAC: box.HMAC})

	ev := nextEvent[domain.MessageEvent](t, f.svc.Events())
	assert.Equal(t, domain.DecryptedMessage{From: "bob", Plaintext: []byte("hello"), Received: fixedNow}, ev.Message)
}

func TestService_PerMessageFailuresKeepRunning(t *testing.T) {
	f := start(t, message.Config{})
	bob := f.introduce(t, "bob")

	box, err := bob.EncryptFor("me", []byte("hello"))
	require.NoError(t, err)
	box.Ciphertext[0] ^= 1
	f.conn.push(t, wire.EncryptedMessage{From: "bob", IV: box.IV, Ciphertext: box.Ciphertext, HMAC: box.HMAC})
	fail := nextEvent[domain.FailureEvent](t, f.svc.Events())
	assert.Equal(t, domain.ConnectionID("bob"), fail.Peer)
	assert.ErrorIs(t, fail.Err, crypto.ErrDecryption)

	f.conn.push(t, wire.EncryptedMessage{From: "carol", IV: box.IV, Ciphertext: box.Ciphertext, HMAC: box.HMAC})
	fail = nextEvent[domain.FailureEvent](t, f.svc.Events())
	assert.ErrorIs(t, fail.Err, session.ErrNoSharedSecret)

	f.conn.push(t, wire.PublicKeyAnnounce{From: "carol", PublicKey: wire.Bytes{4, 4, 4}})
	fail = nextEvent[domain.FailureEvent](t, f.svc.Events())
	assert.ErrorIs(t, fail.Err, crypto.ErrInvalidPeerKey)

	f.conn.in <- []byte(`{"type":"bogus"}`)
	fail = nextEvent[domain.FailureEvent](t, f.svc.Events())
	assert.ErrorIs(t, fail.Err, wire.ErrUnknownType)

	// Still decrypting.
	box, err = bob.EncryptFor("me", []byte("again"))
	require.NoError(t, err)
	f.conn.push(t, wire.EncryptedMessage{From: "bob", IV: box.IV, Ciphertext: box.Ciphertext, HMAC: box.HMAC})
	ev := nextEvent[domain.MessageEvent](t, f.svc.Events())
	assert.Equal(t, "again", string(ev.Message.Plaintext))
}

func TestService_IgnoresOwnKey(t *testing.T) {
	f := start(t, message.Config{})
	f.conn.push(t, wire.PublicKeyAnnounce{From: "me", PublicKey: wire.Bytes(f.sessions.PublicKey())})
	f.conn.push(t, wire.PublicKeyAnnounce{PublicKey: wire.Bytes(f.sessions.PublicKey())})
	f.conn.push(t, wire.PeerList{Clients: []domain.ConnectionID{}})
	nextEvent[domain.PeerListEvent](t, f.svc.Events())
	assert.Empty(t, f.sessions.Peers())
}

func TestService_PeerListPrunesSecrets(t *testing.T) {
	f := start(t, message.Config{})
	f.introduce(t, "bob")
	assert.Equal(t, []domain.ConnectionID{"bob"}, f.sessions.Peers())

	f.conn.push(t, wire.PeerList{Clients: []domain.ConnectionID{"carol"}})
	nextEvent[domain.PeerListEvent](t, f.svc.Events())
	assert.Empty(t, f.sessions.Peers())
	assert.Equal(t, []domain.ConnectionID{"carol"}, f.svc.Peers())
}

func TestService_Notice(t *testing.T) {
	f := start(t, message.Config{})
	f.conn.push(t, wire.ErrorNotice{Code: wire.CodeRecipientUnavailable, Message: "Recipient Z not found or not connected"})
	n := nextEvent[domain.NoticeEvent](t, f.svc.Events())
	assert.ErrorIs(t, message.NoticeErr(n), message.ErrRecipientUnavailable)

	f.conn.push(t, wire.ErrorNotice{Code: wire.CodeUnknownType, Message: "Unknown message type: x"})
	n = nextEvent[domain.NoticeEvent](t, f.svc.Events())
	err := message.NoticeErr(n)
	assert.ErrorIs(t, err, message.ErrRejected)
	assert.NotErrorIs(t, err, message.ErrRecipientUnavailable)
}

func TestService_Send(t *testing.T) {
	f := start(t, message.Config{HandshakeTimeout: 50 * time.Millisecond})
	bob := f.introduce(t, "bob")

	require.NoError(t, f.svc.Send(context.Background(), "bob", []byte("to bob")))
	env, ok := f.conn.written(t).(wire.EncryptedMessage)
	require.True(t, ok)
	assert.Equal(t, domain.ConnectionID("bob"), env.To)
	assert.Empty(t, env.From)
	pt, err := bob.DecryptFrom("me", env.Box())
	require.NoError(t, err)
	assert.Equal(t, "to bob", string(pt))

	err = f.svc.Send(context.Background(), "ghost", []byte("x"))
	require.ErrorIs(t, err, session.ErrHandshakeTimeout)

	err = f.svc.Send(context.Background(), "me", []byte("x"))
	require.ErrorIs(t, err, message.ErrSendToSelf)
}

func TestService_SendWaitsForPeerKey(t *testing.T) {
	f := start(t, message.Config{HandshakeTimeout: 5 * time.Second})

	errc := make(chan error, 1)
	go func() { errc <- f.svc.Send(context.Background(), "late", []byte("eventually")) }()
	time.Sleep(20 * time.Millisecond)
	late := f.introduce(t, "late")

	require.NoError(t, <-errc)
	env, ok := f.conn.written(t).(wire.EncryptedMessage)
	require.True(t, ok)
	pt, err := late.DecryptFrom("me", env.Box())
	require.NoError(t, err)
	assert.Equal(t, "eventually", string(pt))
}

func TestService_RunEndsOnClose(t *testing.T) {
	f := start(t, message.Config{})
	require.NoError(t, f.conn.Close())

	select {
	case err := <-f.runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	for range f.svc.Events() {
	}
	require.ErrorIs(t, f.svc.Send(context.Background(), "bob", nil), message.ErrClosed)
}
