// Package session
// Author: momentics <momentics@gmail.com>
//
// Per-connection WebSocket session loop. A Session owns its connection from
// the end of the opening handshake until it exits: it reads into a fixed
// accumulation buffer, decodes every complete frame from a moving cursor,
// reassembles fragmented messages, answers pings and dispatches messages to
// the registered callbacks. On exit it fires the close callback, leaves every
// room and closes the socket.
package session
