// Package domain defines core data models and interfaces shared across the app.
// It contains plain types (wire/state) and contracts (interfaces) only.
//
// The relay and the client agree on ConnectionID as the only addressing
// handle and on PublicKey as the 65-byte uncompressed P-256 point that is
// published once per connection.
package domain
