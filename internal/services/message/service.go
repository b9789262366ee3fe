package message

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
	"cipherchat/internal/protocol/wire"
)

const (
	// DefaultHandshakeTimeout bounds how long Send waits for a peer's key.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultEventBuffer is the capacity of the Events channel.
	DefaultEventBuffer = 64
)

// Config tunes a Service.
type Config struct {
	HandshakeTimeout time.Duration
	EventBuffer      int

	// Now stamps received messages. Defaults to time.Now.
	Now func() time.Time
}

// Service implements domain.MessageService over one relay connection.
//
// High-level flow:
//   - Run reads records until the connection ends. The relay's clientId is
//     answered with our public key; peer lists prune the session manager;
//     key announcements establish secrets; envelopes are decrypted.
//   - Send waits for our identity and the recipient's key, seals and writes.
//
// Run blocks on Events when nobody drains it, so callers must keep reading
// until the channel is closed.
type Service struct {
	conn     domain.Conn
	sessions domain.SessionService
	cfg      Config
	log      *logging.Logger

	events chan domain.Event
	ready  chan struct{}
	done   chan struct{}

	mu    sync.RWMutex
	self  domain.ConnectionID
	peers []domain.ConnectionID
}

var _ domain.MessageService = (*Service)(nil)

// New constructs a Service. log may be nil.
func New(conn domain.Conn, sessions domain.SessionService, cfg Config, log *logging.Logger) *Service {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logging.MustGetLogger("client")
	}
	return &Service{
		conn:     conn,
		sessions: sessions,
		cfg:      cfg,
		log:      log,
		events:   make(chan domain.Event, cfg.EventBuffer),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Events delivers what the user should see. Closed when Run returns.
func (s *Service) Events() <-chan domain.Event { return s.events }

// Self returns the identity the relay assigned us, or "" before clientId.
func (s *Service) Self() domain.ConnectionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.self
}

// Peers returns the last peer list received from the relay.
func (s *Service) Peers() []domain.ConnectionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ConnectionID(nil), s.peers...)
}

// WaitReady blocks until the relay has assigned our identity.
func (s *Service) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes records until the connection fails or ctx is done. It
// closes Events on return. A clean close by the relay returns nil.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.events)
	defer close(s.done)

	for {
		data, err := s.conn.ReadMessage(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, io.EOF) {
				s.log.Notice("relay closed the connection")
				return nil
			}
			return fmt.Errorf("reading from relay: %w", err)
		}
		if err := s.handle(ctx, data); err != nil {
			return err
		}
	}
}

// handle processes one record. Only a failure to talk to the relay is
// returned; per-record problems become events.
func (s *Service) handle(ctx context.Context, data []byte) error {
	rec, err := wire.Decode(data)
	if err != nil {
		s.log.Warningf("discarding record from relay: %v", err)
		return s.emit(ctx, domain.FailureEvent{Err: err})
	}

	switch r := rec.(type) {
	case wire.IdentityAssigned:
		return s.onIdentity(ctx, r.ID)

	case wire.PeerList:
		peers := append([]domain.ConnectionID(nil), r.Clients...)
		s.mu.Lock()
		s.peers = peers
		s.mu.Unlock()
		s.sessions.Retain(peers)
		s.log.Debugf("peer list: %v", peers)
		return s.emit(ctx, domain.PeerListEvent{Peers: peers})

	case wire.PublicKeyAnnounce:
		if r.From == "" || r.From == s.Self() {
			return nil
		}
		key := domain.PublicKey(r.PublicKey)
		if err := s.sessions.HandlePublicKey(r.From, key); err != nil {
			s.log.Warningf("key from %s rejected: %v", r.From, err)
			return s.emit(ctx, domain.FailureEvent{Peer: r.From, Err: err})
		}
		s.log.Infof("shared secret with %s (key %s)", r.From, crypto.Fingerprint(key))
		return nil

	case wire.EncryptedMessage:
		if r.From == "" {
			return s.emit(ctx, domain.FailureEvent{Err: fmt.Errorf("%w: envelope without sender", wire.ErrMalformedRecord)})
		}
		pt, err := s.sessions.DecryptFrom(r.From, r.Box())
		if err != nil {
			s.log.Warningf("message from %s dropped: %v", r.From, err)
			return s.emit(ctx, domain.FailureEvent{Peer: r.From, Err: err})
		}
		return s.emit(ctx, domain.MessageEvent{Message: domain.DecryptedMessage{
			From:      r.From,
			Plaintext: pt,
			Received:  s.cfg.Now(),
		}})

	case wire.ErrorNotice:
		s.log.Warningf("relay: %s: %s", r.Code, r.Message)
		return s.emit(ctx, domain.NoticeEvent{Code: r.Code, Message: r.Message})
	}
	return nil
}

func (s *Service) onIdentity(ctx context.Context, id domain.ConnectionID) error {
	s.mu.Lock()
	if s.self != "" {
		s.mu.Unlock()
		s.log.Warningf("relay reassigned identity %s; ignoring", id)
		return nil
	}
	s.self = id
	s.mu.Unlock()
	close(s.ready)

	s.log.Noticef("connected as %s", id)
	announce := wire.PublicKeyAnnounce{PublicKey: wire.Bytes(s.sessions.PublicKey())}
	if err := s.conn.WriteMessage(ctx, wire.MustEncode(announce)); err != nil {
		return fmt.Errorf("publishing public key: %w", err)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, ev domain.Event) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send seals plaintext for to and hands it to the relay. It waits up to
// HandshakeTimeout for the recipient's key. Delivery failures reported by
// the relay arrive later as a NoticeEvent; see NoticeErr.
func (s *Service) Send(ctx context.Context, to domain.ConnectionID, plaintext []byte) error {
	if s.isDone() {
		return ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.send(ctx, to, plaintext)
	if errors.Is(err, context.Canceled) && s.isDone() {
		return ErrClosed
	}
	return err
}

func (s *Service) send(ctx context.Context, to domain.ConnectionID, plaintext []byte) error {
	if err := s.WaitReady(ctx); err != nil {
		return err
	}
	if to == s.Self() {
		return ErrSendToSelf
	}
	if err := s.sessions.Await(ctx, to, s.cfg.HandshakeTimeout); err != nil {
		return err
	}
	box, err := s.sessions.EncryptFor(to, plaintext)
	if err != nil {
		return err
	}
	if err := s.conn.WriteMessage(ctx, wire.MustEncode(wire.NewEncryptedMessage(to, box))); err != nil {
		return fmt.Errorf("sending to %s: %w", to, err)
	}
	s.log.Debugf("sent %d bytes to %s", len(plaintext), to)
	return nil
}

func (s *Service) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
