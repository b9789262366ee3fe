package types

// Event is something the client surfaces to its user. The concrete types
// are PeerListEvent, MessageEvent, NoticeEvent and FailureEvent.
type Event interface {
	event()
}

// PeerListEvent carries the relay's current peer list (self excluded).
type PeerListEvent struct {
	Peers []ConnectionID
}

// MessageEvent carries one decrypted message.
type MessageEvent struct {
	Message DecryptedMessage
}

// NoticeEvent is an error notice sent by the relay.
type NoticeEvent struct {
	Code    string
	Message string
}

// FailureEvent reports a local, per-message failure (bad peer key,
// undecryptable envelope). The session keeps running.
type FailureEvent struct {
	Peer ConnectionID
	Err  error
}

func (PeerListEvent) event() {}
func (MessageEvent) event()  {}
func (NoticeEvent) event()   {}
func (FailureEvent) event()  {}
