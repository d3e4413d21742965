// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket wire protocol constants

package protocol

const (
	// Data opcodes
	OpcodeContinuation = 0x0
	OpcodeText         = 0x1
	OpcodeBinary       = 0x2

	// Control opcodes (>=0x8)
	OpcodeClose = 0x8
	OpcodePing  = 0x9
	OpcodePong  = 0xA

	// Frame limit settings
	MaxControlPayloadLen = 125
	MaxFrameHeaderLen    = 14 // 2 + 8 extended length + 4 mask key

	// DefaultMaxFramePayload bounds the unmask scratch buffer.
	DefaultMaxFramePayload = 1 << 20 // 1 MiB

	// Bit masks
	FinBit  = 0x80
	RsvBits = 0x70
	MaskBit = 0x80
	LenMask = 0x7F

	// Length tier markers in byte1
	len16Marker = 126
	len64Marker = 127

	// Close codes
	CloseNormalClosure      = 1000
	CloseGoingAway          = 1001
	CloseProtocolError      = 1002
	CloseUnsupportedData    = 1003
	CloseNoStatusRcvd       = 1005
	CloseAbnormalClosure    = 1006
	CloseInvalidPayloadData = 1007
	ClosePolicyViolation    = 1008
	CloseMessageTooBig      = 1009
	CloseMissingExtension   = 1010
	CloseInternalServerErr  = 1011
)

// IsControl reports whether op is a control opcode.
func IsControl(op byte) bool {
	return op&0x08 != 0
}

// IsData reports whether op carries application data (including continuation).
func IsData(op byte) bool {
	return op == OpcodeContinuation || op == OpcodeText || op == OpcodeBinary
}

// OpcodeName returns a short label for logging.
func OpcodeName(op byte) string {
	switch op {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return "reserved"
	}
}
