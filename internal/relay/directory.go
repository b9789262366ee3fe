package relay

import (
	"sync"

	"cipherchat/internal/domain"
)

type entry struct {
	handle domain.Handle
	key    domain.PublicKey
}

// Directory maps connected identities to their handle and published key.
// Keys are stored inside the entry, so unregistering an identity removes its
// key in the same step.
//
// Snapshots are returned in registration order.
type Directory struct {
	mu      sync.RWMutex
	entries map[domain.ConnectionID]*entry
	order   []domain.ConnectionID
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{entries: make(map[domain.ConnectionID]*entry)}
}

// Register adds id with its handle.
func (d *Directory) Register(id domain.ConnectionID, h domain.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[id]; ok {
		return ErrDuplicate
	}
	d.entries[id] = &entry{handle: h}
	d.order = append(d.order, id)
	return nil
}

// Unregister removes id and its published key.
func (d *Directory) Unregister(id domain.ConnectionID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[id]; !ok {
		return ErrNotFound
	}
	delete(d.entries, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

// PublishKey stores key for id, replacing any earlier key.
func (d *Directory) PublishKey(id domain.ConnectionID, key domain.PublicKey) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.key = key.Clone()
	return nil
}

// LookupHandle returns the handle registered for id.
func (d *Directory) LookupHandle(id domain.ConnectionID) (domain.Handle, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[id]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// LookupKey returns the key published by id, if any.
func (d *Directory) LookupKey(id domain.ConnectionID) (domain.PublicKey, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[id]
	if !ok || e.key == nil {
		return nil, false
	}
	return e.key.Clone(), true
}

// SnapshotOtherKeys returns every published key except the one owned by
// excluding.
func (d *Directory) SnapshotOtherKeys(excluding domain.ConnectionID) []domain.PublicKeyRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []domain.PublicKeyRecord
	for _, id := range d.order {
		if id == excluding {
			continue
		}
		if e := d.entries[id]; e.key != nil {
			out = append(out, domain.PublicKeyRecord{Owner: id, Key: e.key.Clone()})
		}
	}
	return out
}

// AllIdentitiesExcept returns every registered identity other than id.
func (d *Directory) AllIdentitiesExcept(id domain.ConnectionID) []domain.ConnectionID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.ConnectionID, 0, len(d.order))
	for _, v := range d.order {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Handles returns the handles of every registered identity.
func (d *Directory) Handles() []domain.Handle {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Handle, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.entries[id].handle)
	}
	return out
}

// Len returns the number of registered identities.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
