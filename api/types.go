// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Request/response values exchanged with the registered handler.

package api

import "strings"

// Header maps lower-cased header names to values. On duplicates the last value wins.
type Header map[string]string

// Get returns the value for name, matched case-insensitively.
func (h Header) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Set stores value under the lower-cased name.
func (h Header) Set(name, value string) {
	h[strings.ToLower(name)] = value
}

// Request is one parsed HTTP/1.1 request. It is built once per exchange and
// discarded once the response is written.
type Request struct {
	Method string
	// Path is the raw request-target; the query string is left in place.
	Path   string
	Proto  string
	Header Header
	Body   []byte
	// RemoteAddr is filled in by the server.
	RemoteAddr string
}

// KeepAlive reports whether the client asked to reuse the connection.
func (r *Request) KeepAlive() bool {
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("Connection")), "keep-alive")
}

// DefaultContentType is used when a Response leaves ContentType empty.
const DefaultContentType = "text/plain"

// Response is what a handler returns. Status 0 means 200.
type Response struct {
	Status      int
	Header      map[string]string
	Body        []byte
	ContentType string
}

// Text wraps a plain string as a 200 text/plain response.
func Text(s string) *Response {
	return &Response{Status: 200, Body: []byte(s), ContentType: DefaultContentType}
}

// StatusCode returns Status, defaulting to 200.
func (r *Response) StatusCode() int {
	if r == nil || r.Status == 0 {
		return 200
	}
	return r.Status
}

// Type returns ContentType. When it is empty a Content-Type entry in Header,
// matched case-insensitively, is used, and text/plain after that.
func (r *Response) Type() string {
	if r == nil {
		return DefaultContentType
	}
	if r.ContentType != "" {
		return r.ContentType
	}
	for k, v := range r.Header {
		if strings.EqualFold(k, "Content-Type") && v != "" {
			return v
		}
	}
	return DefaultContentType
}
