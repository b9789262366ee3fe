package types

// ConnectionID is the opaque identity the relay assigns to one transport
// connection. It is never reused.
type ConnectionID string

// String returns the string form of the connection identity.
func (id ConnectionID) String() string { return string(id) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }
