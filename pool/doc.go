// Package pool
// Author: momentics <momentics@gmail.com>
//
// Reusable byte buffers for HTTP read buffers and WebSocket session buffers.
package pool
