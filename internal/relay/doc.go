// Package relay implements the untrusted relay: a Directory of connected
// identities and their published keys, and the Engine that drives each
// connection through
//
//	connecting -> identified -> key-published -> closed
//
// On connect the engine assigns a random identity, sends it to the client
// and broadcasts the new peer list. A published key is stored, announced to
// every other client and answered with every key already known. Encrypted
// envelopes are forwarded to their recipient with the sender identity
// replaced by the one the relay assigned; their content is never inspected
// or stored. On close the identity and its key leave the directory and the
// remaining clients get a fresh peer list, exactly once.
//
// Problems with a single record are answered with an error record; they
// never close the connection.
package relay
