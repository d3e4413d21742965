// File: api/handler.go
// Package api defines the callback contract between the protocol engine and a script host.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Handler serves plain HTTP requests. A returned error becomes a 500 unless it
// is a *HandlerError carrying another status.
type Handler interface {
	ServeRequest(req *Request) (*Response, error)
}

// HandlerFunc adapts an ordinary function to Handler.
type HandlerFunc func(req *Request) (*Response, error)

// ServeRequest calls f(req).
func (f HandlerFunc) ServeRequest(req *Request) (*Response, error) {
	return f(req)
}

// Message is one complete (possibly reassembled) WebSocket data message.
type Message struct {
	Binary bool
	Data   []byte
}

// Text returns the payload as a string.
func (m Message) Text() string { return string(m.Data) }

// WebSocketCallbacks are the connection lifecycle hooks. Any of them may be nil.
// Callbacks run on the connection's own goroutine.
type WebSocketCallbacks struct {
	Open    func(c Conn)
	Message func(c Conn, m Message)
	Close   func(c Conn)
}

// Empty reports whether no callback is set.
func (cb WebSocketCallbacks) Empty() bool {
	return cb.Open == nil && cb.Message == nil && cb.Close == nil
}
