package coproc

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/romi.go/pkg/hal"
)

// Command codes. Bit 0 is reserved for the error flag in replies.
const (
	CodePing     byte = 0x00
	CodeCounters byte = 0x02
	CodeADC      byte = 0x04
	CodeInfo     byte = 0x06
)

// Failure reasons in error replies.
const (
	ReasonUnknown byte = iota + 1
	ReasonDevice
	ReasonArgs
)

// NumCounters and NumADC are the channels sampled by the coprocessor.
const (
	NumCounters = 2
	NumADC      = 5
)

// Info describes the coprocessor.
type Info struct {
	Version       byte
	CounterPeriod uint16
}

// Ping checks the peer is alive.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Call(ctx, CodePing)
	return err
}

// Info reads firmware version and the encoder timer period.
func (c *Client) Info(ctx context.Context) (Info, error) {
	data, err := c.Call(ctx, CodeInfo)
	if err != nil {
		return Info{}, err
	}
	if len(data) != 3 {
		return Info{}, fmt.Errorf("info: bad reply length %d", len(data))
	}
	return Info{Version: data[0], CounterPeriod: binary.LittleEndian.Uint16(data[1:])}, nil
}

// Counters reads the left and right encoder timers.
func (c *Client) Counters(ctx context.Context) (v [NumCounters]uint16, err error) {
	err = c.readWords(ctx, CodeCounters, v[:])
	return
}

// ADC reads the line sensor channels FL2, FL1, FC, FR1, FR2.
func (c *Client) ADC(ctx context.Context) (v [NumADC]uint16, err error) {
	err = c.readWords(ctx, CodeADC, v[:])
	return
}

func (c *Client) readWords(ctx context.Context, code byte, out []uint16) error {
	data, err := c.Call(ctx, code)
	if err != nil {
		return err
	}
	if len(data) != 2*len(out) {
		return fmt.Errorf("command 0x%02x: bad reply length %d", code, len(data))
	}
	for n := range out {
		out[n] = binary.LittleEndian.Uint16(data[2*n:])
	}
	return nil
}

// Responder is the coprocessor side: it answers commands from local
// devices. It's used for loopback operation and tests.
type Responder struct {
	Link     *Link
	Counters [NumCounters]hal.Counter
	ADC      [NumADC]hal.ADC
	Version  byte
}

// NewResponder creates a responder and installs it as the link handler.
func NewResponder(link *Link) *Responder {
	r := &Responder{Link: link, Version: 1}
	link.Handler = r
	return r
}

// HandleFrame implements FrameHandler.
func (r *Responder) HandleFrame(ctx context.Context, f *Frame) {
	if f.Event() {
		return
	}
	data, reason := r.execute(f)
	out := &Frame{Code: f.Code, Data: append([]byte{byte(f.Seq)}, data...)}
	if reason != 0 {
		out.Code |= FlagError
		out.Data = []byte{byte(f.Seq), reason}
	}
	if err := r.Link.Send(out); err != nil {
		glog.Warningf("coproc responder: reply 0x%02x: %v", f.Code, err)
	}
}

func (r *Responder) execute(f *Frame) ([]byte, byte) {
	switch f.Code {
	case CodePing:
		return nil, 0
	case CodeInfo:
		var period uint32
		if r.Counters[0] != nil {
			period = r.Counters[0].Period()
		}
		return binary.LittleEndian.AppendUint16([]byte{r.Version}, uint16(period)), 0
	case CodeCounters:
		var out []byte
		for _, c := range r.Counters {
			if c == nil {
				return nil, ReasonDevice
			}
			v, err := c.Count()
			if err != nil {
				return nil, ReasonDevice
			}
			out = binary.LittleEndian.AppendUint16(out, uint16(v))
		}
		return out, 0
	case CodeADC:
		var out []byte
		for _, a := range r.ADC {
			if a == nil {
				return nil, ReasonDevice
			}
			v, err := a.Read()
			if err != nil {
				return nil, ReasonDevice
			}
			out = binary.LittleEndian.AppendUint16(out, v)
		}
		return out, 0
	}
	return nil, ReasonUnknown
}
