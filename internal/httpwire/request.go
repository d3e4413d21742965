// File: internal/httpwire/request.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package httpwire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/momentics/hioload-serve/api"
)

var (
	// ErrMalformedRequest means the start line or a header line could not be parsed.
	ErrMalformedRequest = errors.New("malformed http request")
	// ErrRequestTooLarge means the request cannot fit under the buffer ceiling.
	ErrRequestTooLarge = errors.New("http request exceeds size limit")
)

var headerTerminator = []byte("\r\n\r\n")

// Parse splits a fully buffered request into method, path, headers and body.
// Everything after the blank line is the body.
func Parse(raw []byte) (*api.Request, error) {
	end := bytes.Index(raw, headerTerminator)
	if end < 0 {
		return nil, fmt.Errorf("%w: missing header terminator", ErrMalformedRequest)
	}
	req, err := parseHead(raw[:end])
	if err != nil {
		return nil, err
	}
	req.Body = raw[end+len(headerTerminator):]
	return req, nil
}

// parseHead parses the start line and header block (without the terminator).
func parseHead(head []byte) (*api.Request, error) {
	lines := strings.Split(string(head), "\r\n")

	parts := strings.Fields(lines[0])
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "HTTP/") {
		return nil, fmt.Errorf("%w: bad start line %q", ErrMalformedRequest, lines[0])
	}
	req := &api.Request{
		Method: parts[0],
		Path:   parts[1],
		Proto:  parts[2],
		Header: make(api.Header, len(lines)-1),
	}
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		sep := strings.IndexByte(line, ':')
		if sep <= 0 {
			return nil, fmt.Errorf("%w: bad header line %q", ErrMalformedRequest, line)
		}
		req.Header.Set(strings.TrimSpace(line[:sep]), strings.TrimSpace(line[sep+1:]))
	}
	return req, nil
}

// contentLength reads Content-Length; absent means 0.
func contentLength(h api.Header) (int64, error) {
	v := h.Get("Content-Length")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad content-length %q", ErrMalformedRequest, v)
	}
	return n, nil
}
