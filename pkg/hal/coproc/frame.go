// Package coproc talks to the motor/sensor coprocessor over a serial link.
//
// The coprocessor owns the encoder timers and the line sensor ADCs. Both
// ends exchange frames numbered with a per-direction sequence. A receiver
// that sees an unexpected sequence resynchronizes with a REQ/ACK handshake,
// so the link recovers from dropped or garbled bytes without checksums.
//
// Frame layout:
//
//	seq | code (bit 7 event, bits 4-6 length, 7 = length byte follows) | [len] | data
//
// Replies carry the request seq in data[0]; bit 0 of a reply code marks a
// failed command.
package coproc

import (
	"fmt"
	"time"
)

// Control bytes, never valid as a sequence.
const (
	ctlREQ byte = 0xff
	ctlACK byte = 0xfe
)

// Frame code bits.
const (
	FlagEvent byte = 0x80
	FlagError byte = 0x01

	codeMask  byte = 0x8f
	lenShift       = 4
	lenInline      = 7
	// MaxData is the largest payload.
	MaxData = 0x7f
)

// Seq numbers frames in one direction.
type Seq byte

func randomSeq() Seq {
	return Seq(byte(time.Now().UnixNano())).Next()
}

// Next returns the following sequence, skipping 0 and control values.
func (s Seq) Next() Seq {
	n := byte(s) + 1
	if n == 0 || n >= 0xf0 {
		return 1
	}
	return Seq(n)
}

// Valid reports whether s can number a frame.
func (s Seq) Valid() bool {
	return s > 0 && s < 0xf0
}

// Frame is one unit on the link.
type Frame struct {
	Seq  Seq
	Code byte
	Data []byte
}

// Event reports whether the frame was sent unsolicited.
func (f *Frame) Event() bool {
	return f.Code&FlagEvent != 0
}

// AppendBinary appends the encoded frame to b.
func (f *Frame) AppendBinary(b []byte) ([]byte, error) {
	n := len(f.Data)
	if n > MaxData {
		return b, fmt.Errorf("frame data too long: %d", n)
	}
	code := f.Code & codeMask
	if n < lenInline {
		b = append(b, byte(f.Seq), code|byte(n)<<lenShift)
	} else {
		b = append(b, byte(f.Seq), code|lenInline<<lenShift, byte(n))
	}
	return append(b, f.Data...), nil
}
