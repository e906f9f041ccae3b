package telemetry

import (
	"context"
	"sync"
)

// Hub fans frames out to subscribers, dropping frames for slow ones.
type Hub struct {
	lock sync.Mutex
	subs map[chan Frame]struct{}
}

// Subscribe returns a channel of frames and a func to unsubscribe.
func (h *Hub) Subscribe(buffer int) (<-chan Frame, func()) {
	ch := make(chan Frame, buffer)
	h.lock.Lock()
	if h.subs == nil {
		h.subs = make(map[chan Frame]struct{})
	}
	h.subs[ch] = struct{}{}
	h.lock.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.lock.Lock()
			delete(h.subs, ch)
			h.lock.Unlock()
		})
	}
}

// Subscribers returns the number of subscribers.
func (h *Hub) Subscribers() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.subs)
}

// Publish implements Sink.
func (h *Hub) Publish(_ context.Context, f Frame) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	for ch := range h.subs {
		select {
		case ch <- f:
		default:
		}
	}
	return nil
}
