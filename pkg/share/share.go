// Package share provides the data exchange primitives between tasks.
//
// Tasks never talk to each other directly. A producer puts values into a
// Share (latest value wins) or a Queue (FIFO), and consumers read them in
// their own step.
package share

import (
	"fmt"
	"sync"
)

// Item is the common view of shares and queues used for listing.
type Item interface {
	Name() string
	String() string
}

// Share holds a single value which is overwritten by each Put.
type Share[T any] struct {
	name  string
	lock  sync.RWMutex
	value T
	puts  uint64
}

// NewShare creates a share with the zero value of T.
func NewShare[T any](name string) *Share[T] {
	return &Share[T]{name: name}
}

// NewShareWith creates a share holding an initial value.
func NewShareWith[T any](name string, initial T) *Share[T] {
	return &Share[T]{name: name, value: initial}
}

// Name returns the name of the share.
func (s *Share[T]) Name() string {
	return s.name
}

// Put replaces the value.
func (s *Share[T]) Put(v T) {
	s.lock.Lock()
	s.value = v
	s.puts++
	s.lock.Unlock()
}

// Get returns the latest value.
func (s *Share[T]) Get() T {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.value
}

// Puts returns how many times the value was written.
func (s *Share[T]) Puts() uint64 {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.puts
}

// String implements fmt.Stringer.
func (s *Share[T]) String() string {
	return fmt.Sprintf("Share %s: %v", s.name, s.Get())
}
