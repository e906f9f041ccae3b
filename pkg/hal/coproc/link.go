package coproc

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"
)

// ErrNotReady is returned when sending before the link is synchronized.
var ErrNotReady = errors.New("link not ready")

// DefaultTimeout bounds a handshake or a partially received frame.
const DefaultTimeout = 100 * time.Millisecond

// FrameHandler receives complete frames.
type FrameHandler interface {
	HandleFrame(context.Context, *Frame)
}

// HandleFrameFunc is the func form of FrameHandler.
type HandleFrameFunc func(context.Context, *Frame)

// HandleFrame implements FrameHandler.
func (f HandleFrameFunc) HandleFrame(ctx context.Context, fr *Frame) {
	f(ctx, fr)
}

// Link sends and receives frames over a byte stream.
type Link struct {
	Stream  io.ReadWriter
	Handler FrameHandler
	// OnState is called from Run when the link state changes.
	OnState func(LinkState)
	Timeout time.Duration

	lock  sync.Mutex
	seq   Seq
	state LinkState
	out   []byte

	dec decoder
}

// NewLink creates a link over the stream.
func NewLink(stream io.ReadWriter) *Link {
	return &Link{
		Stream:  stream,
		Timeout: DefaultTimeout,
		seq:     randomSeq(),
	}
}

// State returns the current link state.
func (l *Link) State() LinkState {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.state
}

// Send numbers and writes a frame.
func (l *Link) Send(f *Frame) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	if !l.state.Ready() {
		return ErrNotReady
	}
	f.Seq = l.seq
	var err error
	if l.out, err = f.AppendBinary(l.out[:0]); err != nil {
		return err
	}
	if _, err = l.Stream.Write(l.out); err != nil {
		return err
	}
	l.seq = l.seq.Next()
	return nil
}

// Run reads the stream until ctx is done or the stream fails.
// A read returning no data, like a serial port read timeout, is ignored.
func (l *Link) Run(ctx context.Context) error {
	bytesCh, errCh := make(chan []byte), make(chan error, 1)
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go l.read(readCtx, bytesCh, errCh)

	var timer *time.Timer
	var expired <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	apply := func(d decoded) error {
		action, err := l.apply(ctx, d)
		if err != nil || action == timerKeep {
			return err
		}
		if timer != nil {
			timer.Stop()
			timer, expired = nil, nil
		}
		if action == timerRestart {
			timer = time.NewTimer(l.Timeout)
			expired = timer.C
		}
		return nil
	}

	if err := apply(l.dec.resync()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-expired:
			timer, expired = nil, nil
			glog.V(3).Infof("coproc: link timeout in state %s", l.dec.state())
			if err := apply(l.dec.expire()); err != nil {
				return err
			}
		case chunk := <-bytesCh:
			for _, b := range chunk {
				if err := apply(l.dec.feed(b)); err != nil {
					return err
				}
			}
		}
	}
}

func (l *Link) read(ctx context.Context, bytesCh chan<- []byte, errCh chan<- error) {
	for {
		buf := make([]byte, 64)
		n, err := l.Stream.Read(buf)
		if err != nil {
			errCh <- err
			return
		}
		if n == 0 {
			continue
		}
		select {
		case bytesCh <- buf[:n]:
		case <-ctx.Done():
			return
		}
	}
}

type timerAction int

const (
	timerKeep timerAction = iota
	timerRestart
	timerStop
)

// apply handles one decoder outcome and tells what to do with the timeout.
func (l *Link) apply(ctx context.Context, d decoded) (timerAction, error) {
	l.lock.Lock()
	changed := l.state != d.state
	l.state = d.state
	var err error
	if d.ctl != 0 {
		_, err = l.Stream.Write([]byte{d.ctl, byte(l.seq)})
	}
	l.lock.Unlock()
	if err != nil {
		return timerKeep, err
	}
	if changed {
		glog.V(2).Infof("coproc: link %s", d.state)
		if l.OnState != nil {
			l.OnState(d.state)
		}
	}
	if d.frame != nil && l.Handler != nil {
		l.Handler.HandleFrame(ctx, d.frame)
	}
	switch {
	case d.state.Receiving() || d.ctl == ctlREQ:
		return timerRestart, nil
	case d.state.Ready():
		return timerStop, nil
	}
	return timerKeep, nil
}
