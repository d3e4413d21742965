// File: protocol/handshake.go
// Package protocol provides the native WebSocket opening handshake without net/http.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

// HTTP header names for the WebSocket upgrade, lower-cased.
const (
	HeaderConnection      = "connection"
	HeaderUpgrade         = "upgrade"
	HeaderSecWebSocketKey = "sec-websocket-key"
)

const (
	ValueWebSocket = "websocket"
	WebSocketGUID  = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
)

// ErrNoWebSocketKey is returned when an upgrade request lacks Sec-WebSocket-Key.
var ErrNoWebSocketKey = errors.New("missing Sec-WebSocket-Key header")

// HeaderGetter looks a header up by case-insensitive name.
type HeaderGetter interface {
	Get(name string) string
}

// AcceptKey computes the Sec-WebSocket-Accept value from the client's key (RFC 6455 §1.3).
func AcceptKey(clientKey string) string {
	hash := sha1.Sum([]byte(clientKey + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(hash[:])
}

// IsUpgradeRequest reports whether the headers ask for a WebSocket upgrade.
func IsUpgradeRequest(h HeaderGetter) bool {
	return containsToken(h.Get(HeaderUpgrade), ValueWebSocket)
}

// Handshake validates the upgrade headers and returns the accept token.
func Handshake(h HeaderGetter) (string, error) {
	key := strings.TrimSpace(h.Get(HeaderSecWebSocketKey))
	if key == "" {
		return "", ErrNoWebSocketKey
	}
	return AcceptKey(key), nil
}

// WriteHandshakeResponse writes the literal 101 response carrying accept.
func WriteHandshakeResponse(w io.Writer, accept string) error {
	_, err := io.WriteString(w, "HTTP/1.1 101 Switching Protocols\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Accept: "+accept+"\r\n\r\n")
	return err
}

// containsToken checks if a comma-separated header value holds token (case-insensitive).
func containsToken(headerValue, token string) bool {
	for _, p := range strings.Split(headerValue, ",") {
		if strings.EqualFold(strings.TrimSpace(p), token) {
			return true
		}
	}
	return false
}
