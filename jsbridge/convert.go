// File: jsbridge/convert.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conversions between script values and the api request/response types.

package jsbridge

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/goccy/go-json"

	"github.com/momentics/hioload-serve/api"
)

const contentTypeJSON = "application/json"

func isNullish(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

// toID reads a connection id; anything missing or non-positive is 0, which
// excludes nobody.
func toID(v goja.Value) uint64 {
	if isNullish(v) {
		return 0
	}
	n := v.ToInteger()
	if n <= 0 {
		return 0
	}
	return uint64(n)
}

func (b *Bridge) requestValue(req *api.Request) goja.Value {
	headers := make(map[string]any, len(req.Header))
	for k, v := range req.Header {
		headers[k] = v
	}
	obj := b.rt.NewObject()
	_ = obj.Set("method", req.Method)
	_ = obj.Set("path", req.Path)
	_ = obj.Set("headers", headers)
	_ = obj.Set("body", string(req.Body))
	_ = obj.Set("remoteAddress", req.RemoteAddr)
	return obj
}

func (b *Bridge) connValue(c api.Conn) goja.Value {
	obj := b.rt.NewObject()
	_ = obj.Set("id", c.ID())
	_ = obj.Set("remoteAddress", c.RemoteAddr())
	_ = obj.Set("send", func(call goja.FunctionCall) goja.Value {
		return b.rt.ToValue(c.Send(b.toBytes(call.Argument(0))) == nil)
	})
	_ = obj.Set("sendBinary", func(call goja.FunctionCall) goja.Value {
		return b.rt.ToValue(c.SendBinary(b.toBytes(call.Argument(0))) == nil)
	})
	_ = obj.Set("rooms", func(goja.FunctionCall) goja.Value {
		rooms := c.Rooms()
		if rooms == nil {
			rooms = []string{}
		}
		return b.rt.ToValue(rooms)
	})
	return obj
}

// messageValue passes text as a string and binary data as an ArrayBuffer.
func (b *Bridge) messageValue(m api.Message) goja.Value {
	if m.Binary {
		return b.rt.ToValue(b.rt.NewArrayBuffer(m.Data))
	}
	return b.rt.ToValue(m.Text())
}

// toBytes encodes an outgoing payload. Strings and binary buffers are sent
// as-is; any other value is JSON-encoded.
func (b *Bridge) toBytes(v goja.Value) []byte {
	if isNullish(v) {
		return nil
	}
	switch x := v.Export().(type) {
	case string:
		return []byte(x)
	case goja.ArrayBuffer:
		return x.Bytes()
	case []byte:
		return x
	default:
		data, err := json.Marshal(x)
		if err != nil {
			panic(b.rt.NewTypeError("cannot encode value: %v", err))
		}
		return data
	}
}

// toResponse maps a script return value to a response:
//
//	undefined, null  -> 200, empty body
//	string           -> 200 text/plain
//	{status, body, headers, contentType} -> as given; non-string bodies are JSON
//	any other object -> 200 application/json
func (b *Bridge) toResponse(v goja.Value) (*api.Response, error) {
	if isNullish(v) {
		return &api.Response{Status: 200}, nil
	}
	if s, ok := v.Export().(string); ok {
		return api.Text(s), nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return api.Text(v.String()), nil
	}
	if !isResponseShape(obj) {
		data, err := json.Marshal(obj.Export())
		if err != nil {
			return nil, fmt.Errorf("encode response: %w", err)
		}
		return &api.Response{Status: 200, Body: data, ContentType: contentTypeJSON}, nil
	}

	resp := &api.Response{Status: 200}
	if s := obj.Get("status"); !isNullish(s) {
		resp.Status = int(s.ToInteger())
	}
	if ct := obj.Get("contentType"); !isNullish(ct) {
		resp.ContentType = ct.String()
	}
	if h := obj.Get("headers"); !isNullish(h) {
		if m, ok := h.Export().(map[string]any); ok {
			resp.Header = make(map[string]string, len(m))
			for k, val := range m {
				resp.Header[k] = fmt.Sprint(val)
				if resp.ContentType == "" && strings.EqualFold(k, "Content-Type") {
					resp.ContentType = resp.Header[k]
				}
			}
		}
	}
	if body := obj.Get("body"); !isNullish(body) {
		switch x := body.Export().(type) {
		case string:
			resp.Body = []byte(x)
		case goja.ArrayBuffer:
			resp.Body = x.Bytes()
		case []byte:
			resp.Body = x
		default:
			data, err := json.Marshal(x)
			if err != nil {
				return nil, fmt.Errorf("encode response body: %w", err)
			}
			resp.Body = data
			if resp.ContentType == "" {
				resp.ContentType = contentTypeJSON
			}
		}
	}
	if resp.Status < 100 || resp.Status > 999 {
		return nil, fmt.Errorf("invalid response status %d", resp.Status)
	}
	return resp, nil
}

func isResponseShape(obj *goja.Object) bool {
	for _, k := range []string{"status", "body", "headers", "contentType"} {
		if v := obj.Get(k); v != nil && !goja.IsUndefined(v) {
			return true
		}
	}
	return false
}
