// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Implements the WebSocket wire protocol (RFC 6455) for hioload-serve.
//
// Includes:
//   - Buffer-oriented frame decoding with a bounded unmask scratch area
//   - Unmasked server-side frame encoding
//   - Opening handshake accept token and the 101 response
//   - Close frame payload helpers
//
// Nothing in this package performs I/O beyond writing to a caller-supplied io.Writer.
package protocol
