// File: protocol/frame_codec.go
// Package protocol implements the buffer-oriented frame codec with frame size enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Decoding works on whatever bytes the caller has accumulated so far and reports
// ErrNeedMoreData until a whole frame is present. Encoding produces unmasked
// server frames.

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrNeedMoreData means the buffer holds only a prefix of the next frame.
	ErrNeedMoreData = errors.New("need more data")
	// ErrPayloadTooLarge means the declared payload does not fit the unmask scratch buffer.
	ErrPayloadTooLarge = errors.New("frame payload exceeds maximum allowed size")
	// ErrProtocol marks an inconsistent or forbidden frame header.
	ErrProtocol = errors.New("websocket protocol violation")
)

// Frame is one decoded WebSocket frame.
type Frame struct {
	Fin    bool
	Opcode byte
	Masked bool
	// Payload is unmasked. After Decoder.Decode it aliases the decoder's
	// scratch buffer and is only valid until the next Decode call.
	Payload []byte
	// Consumed is header + mask key + payload length.
	Consumed int
}

// Decoder decodes frames from an accumulation buffer. It owns a fixed-size
// scratch buffer into which payloads are unmasked. A Decoder is not safe for
// concurrent use.
type Decoder struct {
	scratch []byte
}

// NewDecoder returns a Decoder whose payloads may not exceed maxPayload bytes.
func NewDecoder(maxPayload int) *Decoder {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxFramePayload
	}
	return &Decoder{scratch: make([]byte, maxPayload)}
}

// NewDecoderWithScratch uses scratch (typically pooled) as the unmask area;
// its length is the payload bound.
func NewDecoderWithScratch(scratch []byte) *Decoder {
	return &Decoder{scratch: scratch}
}

// MaxPayload returns the scratch bound.
func (d *Decoder) MaxPayload() int {
	return len(d.scratch)
}

// Decode parses the frame at the start of raw.
//
// It returns ErrNeedMoreData when raw is shorter than the header or the declared
// payload, ErrPayloadTooLarge as soon as the declared length is known to exceed the
// scratch bound, and an error wrapping ErrProtocol for malformed headers.
func (d *Decoder) Decode(raw []byte) (Frame, error) {
	if len(raw) < 2 {
		return Frame{}, ErrNeedMoreData
	}
	b0, b1 := raw[0], raw[1]
	f := Frame{
		Fin:    b0&FinBit != 0,
		Opcode: b0 & 0x0F,
		Masked: b1&MaskBit != 0,
	}

	if b0&RsvBits != 0 {
		return Frame{}, fmt.Errorf("%w: reserved bits set", ErrProtocol)
	}
	if !IsData(f.Opcode) && f.Opcode != OpcodeClose && f.Opcode != OpcodePing && f.Opcode != OpcodePong {
		return Frame{}, fmt.Errorf("%w: reserved opcode 0x%x", ErrProtocol, f.Opcode)
	}

	length := uint64(b1 & LenMask)
	offset := 2
	switch length {
	case len16Marker:
		if len(raw) < offset+2 {
			return Frame{}, ErrNeedMoreData
		}
		length = uint64(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case len64Marker:
		if len(raw) < offset+8 {
			return Frame{}, ErrNeedMoreData
		}
		length = binary.BigEndian.Uint64(raw[offset:])
		if length>>63 != 0 {
			return Frame{}, fmt.Errorf("%w: 64-bit length has the high bit set", ErrProtocol)
		}
		offset += 8
	}

	if IsControl(f.Opcode) && (!f.Fin || length > MaxControlPayloadLen) {
		return Frame{}, fmt.Errorf("%w: invalid control frame", ErrProtocol)
	}
	if length > uint64(len(d.scratch)) {
		return Frame{}, ErrPayloadTooLarge
	}

	var key [4]byte
	if f.Masked {
		if len(raw) < offset+4 {
			return Frame{}, ErrNeedMoreData
		}
		copy(key[:], raw[offset:offset+4])
		offset += 4
	}

	n := int(length)
	total := offset + n
	if len(raw) < total {
		return Frame{}, ErrNeedMoreData
	}

	payload := d.scratch[:n]
	copy(payload, raw[offset:total])
	if f.Masked {
		Mask(payload, key)
	}
	f.Payload = payload
	f.Consumed = total
	return f, nil
}

// Mask XORs buf in place with key. Applying it twice restores the input.
func Mask(buf []byte, key [4]byte) {
	for i := range buf {
		buf[i] ^= key[i&3]
	}
}

// Encode returns a new unmasked frame carrying payload.
func Encode(payload []byte, opcode byte, fin bool) []byte {
	return AppendFrame(make([]byte, 0, headerLen(len(payload))+len(payload)), payload, opcode, fin)
}

// AppendFrame appends an unmasked frame to dst and returns the extended slice.
func AppendFrame(dst, payload []byte, opcode byte, fin bool) []byte {
	b0 := opcode & 0x0F
	if fin {
		b0 |= FinBit
	}
	n := len(payload)
	switch {
	case n <= 125:
		dst = append(dst, b0, byte(n))
	case n <= 0xFFFF:
		dst = append(dst, b0, len16Marker)
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, b0, len64Marker)
		dst = binary.BigEndian.AppendUint64(dst, uint64(n))
	}
	return append(dst, payload...)
}

// EncodeMasked builds a client-style masked frame. The server never sends
// these; they exist for clients and tests driving the decoder.
func EncodeMasked(payload []byte, opcode byte, fin bool, key [4]byte) []byte {
	n := len(payload)
	b0 := opcode & 0x0F
	if fin {
		b0 |= FinBit
	}
	out := make([]byte, 0, headerLen(n)+4+n)
	out = append(out, b0)
	switch {
	case n <= 125:
		out = append(out, MaskBit|byte(n))
	case n <= 0xFFFF:
		out = append(out, MaskBit|len16Marker)
		out = binary.BigEndian.AppendUint16(out, uint16(n))
	default:
		out = append(out, MaskBit|len64Marker)
		out = binary.BigEndian.AppendUint64(out, uint64(n))
	}
	out = append(out, key[:]...)
	start := len(out)
	out = append(out, payload...)
	Mask(out[start:], key)
	return out
}

// ClosePayload builds a close frame body: a 2-byte status code followed by reason.
func ClosePayload(code uint16, reason string) []byte {
	b := binary.BigEndian.AppendUint16(make([]byte, 0, 2+len(reason)), code)
	return append(b, reason...)
}

// ParseClosePayload splits a close frame body. An empty body yields CloseNoStatusRcvd.
func ParseClosePayload(p []byte) (uint16, string, error) {
	switch len(p) {
	case 0:
		return CloseNoStatusRcvd, "", nil
	case 1:
		return 0, "", fmt.Errorf("%w: truncated close code", ErrProtocol)
	}
	return binary.BigEndian.Uint16(p), string(p[2:]), nil
}

func headerLen(n int) int {
	switch {
	case n <= 125:
		return 2
	case n <= 0xFFFF:
		return 4
	default:
		return 10
	}
}
