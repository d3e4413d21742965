// File: internal/httpwire/response.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package httpwire

import (
	"bytes"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/momentics/hioload-serve/api"
)

var statusText = map[int]string{
	100: "Continue",
	101: "Switching Protocols",
	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	307: "Temporary Redirect",
	308: "Permanent Redirect",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	409: "Conflict",
	413: "Payload Too Large",
	415: "Unsupported Media Type",
	429: "Too Many Requests",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
}

// StatusText returns the reason phrase for code, or "Unknown".
func StatusText(code int) string {
	if s, ok := statusText[code]; ok {
		return s
	}
	return "Unknown"
}

// managed headers are written by the serializer itself.
var managed = map[string]bool{"content-length": true, "content-type": true, "connection": true}

// AppendResponse serializes resp:
//
//	HTTP/1.1 {status} {text}\r\nContent-Length: {n}\r\n{headers}\r\n\r\n{body}
//
// Extra headers are emitted in sorted order so output is deterministic.
func AppendResponse(dst []byte, resp *api.Response, keepAlive bool) []byte {
	status := resp.StatusCode()
	var body []byte
	if resp != nil {
		body = resp.Body
	}

	b := bytes.NewBuffer(dst)
	b.WriteString("HTTP/1.1 ")
	b.WriteString(strconv.Itoa(status))
	b.WriteByte(' ')
	b.WriteString(StatusText(status))
	b.WriteString("\r\nContent-Length: ")
	b.WriteString(strconv.Itoa(len(body)))
	b.WriteString("\r\nContent-Type: ")
	b.WriteString(resp.Type())

	if resp != nil && len(resp.Header) > 0 {
		keys := make([]string, 0, len(resp.Header))
		for k := range resp.Header {
			if !managed[strings.ToLower(k)] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString("\r\n")
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(resp.Header[k])
		}
	}
	if keepAlive {
		b.WriteString("\r\nConnection: keep-alive")
	} else {
		b.WriteString("\r\nConnection: close")
	}
	b.WriteString("\r\n\r\n")
	b.Write(body)
	return b.Bytes()
}

// WriteResponse serializes resp and writes it with a single Write call.
func WriteResponse(w io.Writer, resp *api.Response, keepAlive bool) error {
	_, err := w.Write(AppendResponse(nil, resp, keepAlive))
	return err
}

// Plain builds a bare status response with the reason phrase as body.
func Plain(status int) *api.Response {
	return &api.Response{Status: status, Body: []byte(StatusText(status))}
}
