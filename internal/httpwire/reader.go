// File: internal/httpwire/reader.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package httpwire

import (
	"bytes"
	"errors"
	"io"

	"github.com/momentics/hioload-serve/api"
	"github.com/momentics/hioload-serve/pool"
)

const (
	DefaultInitialBuffer = 8 << 10  // 8 KiB
	DefaultMaxRequest    = 10 << 20 // 10 MiB
)

// Reader accumulates bytes from a connection until one whole request is
// buffered. The buffer starts at the initial size and doubles on demand but
// never grows past the ceiling. Bytes past the end of a request stay buffered
// for the next call.
type Reader struct {
	r     io.Reader
	buf   []byte
	n     int
	max   int
	err   error
	pool  *pool.BytePool
	owned bool // buf came from pool
}

// NewReader wraps r. A nil pool allocates the initial buffer directly.
func NewReader(r io.Reader, initial, max int, p *pool.BytePool) *Reader {
	if max <= 0 {
		max = DefaultMaxRequest
	}
	if initial <= 0 {
		initial = DefaultInitialBuffer
	}
	if initial > max {
		initial = max
	}
	rd := &Reader{r: r, max: max}
	if p != nil && p.Size() == initial {
		rd.buf, rd.pool, rd.owned = p.Get(), p, true
	} else {
		rd.buf = make([]byte, initial)
	}
	return rd
}

// Cap is the current buffer capacity; it never exceeds the ceiling.
func (rd *Reader) Cap() int { return len(rd.buf) }

// Buffered returns a copy of bytes read past the last returned request.
func (rd *Reader) Buffered() []byte {
	return append([]byte(nil), rd.buf[:rd.n]...)
}

// Release hands a pooled buffer back. The Reader must not be used afterwards.
func (rd *Reader) Release() {
	if rd.owned {
		rd.pool.Put(rd.buf)
	}
	rd.buf, rd.n, rd.owned = nil, 0, false
}

// Next blocks until a complete request is buffered and returns it.
//
// It returns io.EOF if the peer closed before sending anything,
// io.ErrUnexpectedEOF if it closed mid-request, ErrRequestTooLarge when the
// request cannot fit under the ceiling, and ErrMalformedRequest for bad syntax.
// A request is never returned before its declared Content-Length has arrived.
func (rd *Reader) Next() (*api.Request, error) {
	var (
		req     *api.Request
		headEnd = -1
		need    = 0
		scanned = 0
	)
	for {
		if headEnd < 0 {
			from := scanned - (len(headerTerminator) - 1)
			if from < 0 {
				from = 0
			}
			if i := bytes.Index(rd.buf[from:rd.n], headerTerminator); i >= 0 {
				var err error
				if req, err = parseHead(rd.buf[:from+i]); err != nil {
					return nil, err
				}
				cl, err := contentLength(req.Header)
				if err != nil {
					return nil, err
				}
				headEnd = from + i + len(headerTerminator)
				if cl > int64(rd.max-headEnd) {
					return nil, ErrRequestTooLarge
				}
				need = headEnd + int(cl)
			}
			scanned = rd.n
		}

		if headEnd >= 0 && rd.n >= need {
			req.Body = append([]byte(nil), rd.buf[headEnd:need]...)
			rd.n = copy(rd.buf, rd.buf[need:rd.n])
			return req, nil
		}

		if rd.err != nil {
			return nil, rd.err
		}
		if rd.n == len(rd.buf) {
			if err := rd.grow(); err != nil {
				return nil, err
			}
		}

		m, err := rd.r.Read(rd.buf[rd.n:])
		rd.n += m
		if err != nil {
			if errors.Is(err, io.EOF) {
				if rd.n == 0 && headEnd < 0 {
					err = io.EOF
				} else {
					err = io.ErrUnexpectedEOF
				}
			}
			rd.err = err
		}
	}
}

// grow doubles the buffer up to the ceiling.
func (rd *Reader) grow() error {
	if len(rd.buf) >= rd.max {
		return ErrRequestTooLarge
	}
	size := len(rd.buf) * 2
	if size > rd.max {
		size = rd.max
	}
	nb := make([]byte, size)
	copy(nb, rd.buf[:rd.n])
	if rd.owned {
		rd.pool.Put(rd.buf)
		rd.owned = false
	}
	rd.buf = nb
	return nil
}
