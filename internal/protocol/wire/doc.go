// Package wire encodes and decodes the records exchanged between clients
// and the relay.
//
// Every record is a JSON object with a "type" discriminator:
//
//	{"type":"clientId","id":"..."}
//	{"type":"clientList","clients":["...", ...]}
//	{"type":"publicKey","from":"...","publicKey":[4, ...]}
//	{"type":"encryptedMessage","from":"...","to":"...","iv":[...],"ciphertext":[...],"hmac":[...]}
//	{"type":"error","code":"...","message":"..."}
//
// Byte sequences are arrays of integers 0-255 rather than base64 strings,
// which is what browser clients produce with Array.from(Uint8Array).
//
// Decode returns one of the concrete Record types so callers dispatch with a
// type switch. Unknown fields and anything after the first JSON value are
// ignored.
package wire
