package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
	"cipherchat/internal/util/memzero"
)

var (
	// ErrNoSharedSecret indicates no key has been received from the peer.
	ErrNoSharedSecret = errors.New("session: no shared secret with peer")

	// ErrHandshakeTimeout indicates the peer's key did not arrive in time.
	ErrHandshakeTimeout = errors.New("session: timed out waiting for peer key")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: manager closed")
)

// peer is the per-peer state. ready is closed exactly when secret is set.
type peer struct {
	key     domain.PublicKey
	secret  []byte
	ready   chan struct{}
	waiters int
}

func newPeer() *peer { return &peer{ready: make(chan struct{})} }

// Manager implements domain.SessionService.
type Manager struct {
	keys *crypto.KeyPair

	mu     sync.Mutex
	peers  map[domain.ConnectionID]*peer
	closed bool
}

var _ domain.SessionService = (*Manager)(nil)

// New generates the local key pair. A failure here is fatal for the client.
func New() (*Manager, error) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &Manager{
		keys:  kp,
		peers: make(map[domain.ConnectionID]*peer),
	}, nil
}

// PublicKey returns our public key as published to the relay.
func (m *Manager) PublicKey() domain.PublicKey { return m.keys.Public() }

// Fingerprint returns the fingerprint of our public key.
func (m *Manager) Fingerprint() domain.Fingerprint {
	return crypto.Fingerprint(m.keys.Public())
}

// PeerFingerprint returns the fingerprint of the key we hold for id.
func (m *Manager) PeerFingerprint(id domain.ConnectionID) (domain.Fingerprint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[id]
	if !ok || p.secret == nil {
		return "", false
	}
	return crypto.Fingerprint(p.key), true
}

// HandlePublicKey derives and caches the secret shared with id.
//
// Republishing the same key is a no-op. A different key replaces the
// secret and wipes the old one. An invalid key leaves any previous state
// untouched and returns an error wrapping crypto.ErrInvalidPeerKey.
func (m *Manager) HandlePublicKey(id domain.ConnectionID, key domain.PublicKey) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if p, ok := m.peers[id]; ok && p.secret != nil && p.key.Equal(key) {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	secret, err := crypto.DeriveSharedKey(m.keys, key)
	if err != nil {
		return fmt.Errorf("peer %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		memzero.Zero(secret)
		return ErrClosed
	}
	p, ok := m.peers[id]
	if !ok {
		p = newPeer()
		m.peers[id] = p
	}
	if p.secret != nil {
		memzero.Zero(p.secret)
	} else {
		close(p.ready)
	}
	p.key = key.Clone()
	p.secret = secret
	return nil
}

// Forget wipes the secret shared with id.
func (m *Manager) Forget(id domain.ConnectionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forgetLocked(id)
}

func (m *Manager) forgetLocked(id domain.ConnectionID) {
	p, ok := m.peers[id]
	if !ok {
		return
	}
	memzero.Zero(p.secret)
	if p.waiters == 0 {
		delete(m.peers, id)
		return
	}
	// Someone is in Await: keep the entry so a later key still wakes them.
	if p.secret != nil {
		p.ready = make(chan struct{})
	}
	p.key, p.secret = nil, nil
}

// Retain forgets every peer that is not in ids.
func (m *Manager) Retain(ids []domain.ConnectionID) {
	keep := make(map[domain.ConnectionID]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.peers {
		if _, ok := keep[id]; ok || p.secret == nil {
			continue
		}
		m.forgetLocked(id)
	}
}

// EncryptFor seals plaintext for id.
func (m *Manager) EncryptFor(id domain.ConnectionID, plaintext []byte) (domain.SealedBox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[id]
	if !ok || p.secret == nil {
		return domain.SealedBox{}, fmt.Errorf("%w: %s", ErrNoSharedSecret, id)
	}
	return crypto.Seal(p.secret, plaintext)
}

// DecryptFrom verifies and opens a box sent by id.
func (m *Manager) DecryptFrom(id domain.ConnectionID, box domain.SealedBox) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[id]
	if !ok || p.secret == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSharedSecret, id)
	}
	return crypto.Open(p.secret, box)
}

// Await blocks until a secret with id exists. A non-positive timeout waits
// until ctx is done.
func (m *Manager) Await(ctx context.Context, id domain.ConnectionID, timeout time.Duration) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	p, ok := m.peers[id]
	if !ok {
		p = newPeer()
		m.peers[id] = p
	}
	if p.secret != nil {
		m.mu.Unlock()
		return nil
	}
	p.waiters++
	ready := p.ready
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		p.waiters--
		if p.waiters == 0 && p.secret == nil && m.peers[id] == p {
			delete(m.peers, id)
		}
		m.mu.Unlock()
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-ready:
		return nil
	case <-expired:
		return fmt.Errorf("%w: %s after %s", ErrHandshakeTimeout, id, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Peers returns the peers we currently share a secret with, sorted.
func (m *Manager) Peers() []domain.ConnectionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ConnectionID, 0, len(m.peers))
	for id, p := range m.peers {
		if p.secret != nil {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close wipes every secret. The manager cannot be used afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	secrets := make([][]byte, 0, len(m.peers))
	for id, p := range m.peers {
		secrets = append(secrets, p.secret)
		p.secret = nil
		delete(m.peers, id)
	}
	memzero.ZeroAll(secrets...)
	m.closed = true
}
