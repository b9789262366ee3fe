// Package main runs the cipherchat relay.
//
// The relay assigns every websocket connection a random identity, keeps a
// directory of connected identities and their published P-256 public keys,
// fans key announcements out to everyone else and forwards encrypted
// envelopes to their named recipient. It never holds a private key and
// never decrypts anything.
//
// # HTTP API
//
//	GET /ws
//	    Websocket upgrade. One JSON record per text frame.
//
//	GET /livez
//	    Liveness probe; always 200 while the process serves.
//
//	GET /metrics
//	    Prometheus metrics, when enabled with --metrics or [Metrics].
//
// # Records
//
//	relay -> client  {"type":"clientId","id":...}
//	relay -> client  {"type":"clientList","clients":[...]}
//	both ways        {"type":"publicKey","from":...,"publicKey":[...]}
//	both ways        {"type":"encryptedMessage","from":...,"to":...,"iv":[...],"ciphertext":[...],"hmac":[...]}
//	relay -> client  {"type":"error","code":...,"message":...}
//
// # Behaviour
//
// State is in memory only. A disconnect removes the identity and its key
// and sends the new peer list to everyone left. TLS is enabled by --cert
// and --key; without them the relay speaks plain HTTP for development.
package main
