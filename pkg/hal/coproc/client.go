package coproc

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoReply is returned for a request when the peer answered a later one.
var ErrNoReply = errors.New("no reply")

// CommandError is a failed command reported by the coprocessor.
type CommandError struct {
	Code   byte
	Reason byte
}

// Error implements error.
func (e *CommandError) Error() string {
	return fmt.Sprintf("command 0x%02x failed: %d", e.Code, e.Reason)
}

type reply struct {
	data []byte
	err  error
}

type pending struct {
	seq  Seq
	code byte
	ch   chan reply
}

// Client issues commands over a link and matches replies.
type Client struct {
	link   *Link
	events chan *Frame

	lock    sync.Mutex
	pending []*pending
}

// NewClient creates a client and installs itself as the link handler.
func NewClient(link *Link) *Client {
	c := &Client{link: link, events: make(chan *Frame, 16)}
	link.Handler = c
	return c
}

// Link returns the underlying link.
func (c *Client) Link() *Link {
	return c.link
}

// Events delivers unsolicited frames. Events are dropped when nobody reads.
func (c *Client) Events() <-chan *Frame {
	return c.events
}

// Call sends a command and waits for its reply data.
func (c *Client) Call(ctx context.Context, code byte, data ...byte) ([]byte, error) {
	p := &pending{code: code, ch: make(chan reply, 1)}
	f := &Frame{Code: code &^ (FlagEvent | FlagError), Data: data}
	c.lock.Lock()
	if err := c.link.Send(f); err != nil {
		c.lock.Unlock()
		return nil, err
	}
	p.seq = f.Seq
	c.pending = append(c.pending, p)
	c.lock.Unlock()

	select {
	case r := <-p.ch:
		return r.data, r.err
	case <-ctx.Done():
		c.forget(p)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(p *pending) {
	c.lock.Lock()
	defer c.lock.Unlock()
	for n, q := range c.pending {
		if q == p {
			c.pending = append(c.pending[:n], c.pending[n+1:]...)
			return
		}
	}
}

// HandleFrame implements FrameHandler.
func (c *Client) HandleFrame(ctx context.Context, f *Frame) {
	if f.Event() {
		select {
		case c.events <- f:
		default:
		}
		return
	}
	if len(f.Data) == 0 || !Seq(f.Data[0]).Valid() {
		return
	}
	seq := Seq(f.Data[0])
	c.lock.Lock()
	var skipped []*pending
	var match *pending
	for n, p := range c.pending {
		if p.seq == seq {
			skipped, match = c.pending[:n:n], p
			c.pending = c.pending[n+1:]
			break
		}
	}
	c.lock.Unlock()
	if match == nil {
		return
	}
	for _, p := range skipped {
		p.ch <- reply{err: ErrNoReply}
	}
	if f.Code&FlagError != 0 {
		var reason byte
		if len(f.Data) > 1 {
			reason = f.Data[1]
		}
		match.ch <- reply{err: &CommandError{Code: match.code, Reason: reason}}
		return
	}
	match.ch <- reply{data: f.Data[1:]}
}

// Run implements Runnable.
func (c *Client) Run(ctx context.Context) error {
	return c.link.Run(ctx)
}
