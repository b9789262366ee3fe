// Package websocket adapts gorilla/websocket connections to domain.Conn.
//
// The relay accepts connections with Acceptor; clients open them with Dial.
// Each record travels in one text frame. Reads and writes honour context
// cancellation by moving the socket deadline.
package websocket
