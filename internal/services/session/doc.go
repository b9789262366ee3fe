// Package session holds the participant's ephemeral key pair and one
// shared secret per peer.
//
// A secret is derived with P-256 ECDH the first time a peer's public key
// arrives and is replaced (the old one wiped) when the peer republishes a
// different key. Secrets are wiped when the peer leaves the relay's peer
// list or the manager is closed. Nothing is persisted.
package session
