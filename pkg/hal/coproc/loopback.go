package coproc

import (
	"context"
	"io"
	"sync"

	fx "github.com/robotalks/romi.go/pkg/framework"
	"github.com/robotalks/romi.go/pkg/hal"
)

const pipeBuffer = 256

// Pipe is one end of an in-process byte stream.
type Pipe struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
	rest []byte
}

// NewPipe creates both ends of a pipe. Closing either end closes both.
func NewPipe() (*Pipe, *Pipe) {
	ab, ba := make(chan []byte, pipeBuffer), make(chan []byte, pipeBuffer)
	done, once := make(chan struct{}), &sync.Once{}
	return &Pipe{in: ba, out: ab, done: done, once: once},
		&Pipe{in: ab, out: ba, done: done, once: once}
}

// Read implements io.Reader. Data still buffered when the pipe is closed
// is discarded.
func (p *Pipe) Read(b []byte) (int, error) {
	if p.closed() {
		return 0, io.EOF
	}
	if len(p.rest) == 0 {
		select {
		case p.rest = <-p.in:
		case <-p.done:
			return 0, io.EOF
		}
	}
	n := copy(b, p.rest)
	p.rest = p.rest[n:]
	return n, nil
}

// Write implements io.Writer.
func (p *Pipe) Write(b []byte) (int, error) {
	// select picks randomly when the buffer has room after close.
	if p.closed() {
		return 0, io.ErrClosedPipe
	}
	select {
	case p.out <- append([]byte(nil), b...):
		return len(b), nil
	case <-p.done:
		return 0, io.ErrClosedPipe
	}
}

func (p *Pipe) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Close implements io.Closer.
func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// Loopback runs a Responder serving local devices and a Client polling
// them through a Pipe. The simulation uses it to exercise the same path
// as the serial coprocessor.
type Loopback struct {
	Client    *Client
	Poller    *Poller
	Responder *Responder

	pipe *Pipe
}

// NewLoopback serves the encoders and line sensors of board.
func NewLoopback(board hal.Board) *Loopback {
	a, b := NewPipe()
	client := NewClient(NewLink(a))
	r := NewResponder(NewLink(b))
	r.Counters = [NumCounters]hal.Counter{board.Left.Encoder, board.Right.Encoder}
	r.ADC = board.Line
	return &Loopback{Client: client, Poller: NewPoller(client), Responder: r, pipe: a}
}

// Run implements Runnable.
func (l *Loopback) Run(ctx context.Context) error {
	return fx.RunWithContextCloser(ctx, l.pipe, func() error {
		return fx.NewRunnerWith(ctx).WithFailFast(true).Go(
			fx.NamedRun("coproc-responder", l.Responder.Link),
			fx.NamedRun("coproc-link", l.Client),
			fx.NamedRun("coproc-poller", l.Poller),
		).Wait()
	})
}
