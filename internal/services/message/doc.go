// Package message drives one participant's relay connection.
//
// It answers the relay's clientId with our public key, keeps the peer list
// and the session manager in step, decrypts incoming envelopes and seals
// outgoing ones. Everything the user should see is delivered as a
// domain.Event on Events().
package message
